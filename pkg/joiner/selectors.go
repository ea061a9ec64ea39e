package joiner

// Platform UIs change often, so every lookup tries a list of selectors in
// order. Teams selectors cover both enterprise and teams.live.com meetings.

var teamsNameInputSelectors = []string{
	`input[placeholder="Type your name"]`,
	`input[placeholder*="Enter your name"]`,
	`input[placeholder*="your name"]`,
	`input[data-tid="prejoin-display-name-input"]`,
	`#prejoin-input-name`,
	`input[type="text"]`,
}

var teamsJoinButtonSelectors = []string{
	`button[data-tid="prejoin-join-button"]`,
	`[data-tid="joinButton"]`,
	`button.join-btn`,
}

var teamsLeaveButtonSelectors = []string{
	`button[aria-label*="Leave"]`,
	`button[aria-label*="leave"]`,
	`button[id*="hangup"]`,
	`button[data-tid="hangup-button"]`,
	`#hangup-button`,
	`[data-tid="call-hangup"]`,
	`button[aria-label*="Hang up"]`,
	`button[aria-label*="End call"]`,
}

var teamsRosterSelectors = []string{
	`[data-tid="roster-list"]`,
	`#roster-list`,
}

var teamsDeniedTexts = []string{
	"You can't join this meeting",
	"Meeting has ended",
	"You were removed from the meeting",
}

var teamsLobbyTexts = []string{
	"Waiting to be let in",
	"Someone in the meeting should let you in soon",
	"Waiting for organizer",
}

var teamsMoreActionsSelectors = []string{
	`button[aria-label*="More actions"]`,
	`button[aria-label*="More options"]`,
	`button[id*="more-button"]`,
	`button[data-tid="more-button"]`,
	`#callingButtons-showMoreBtn`,
	`[data-tid="callingButtons-showMoreBtn"]`,
	`button[title*="More"]`,
}

var teamsCaptionContainerSelectors = []string{
	`[data-tid="closed-captions-renderer"]`,
	`.ts-captions-container`,
	`[data-tid="captions-renderer"]`,
	`[class*="captions-container"]`,
	`[class*="live-caption"]`,
}

var teamsDismissTexts = []string{
	"Close",
	"Got it",
	"OK",
	"Skip",
	"Not now",
}

var meetNameInputSelectors = []string{
	`input[placeholder="Your name"]`,
	`input[placeholder="Enter your name"]`,
	`input[aria-label="Your name"]`,
	`input[aria-label="Enter your name"]`,
	`input[type="text"]`,
}

var meetJoinButtonTexts = []string{
	"Ask to join",
	"Join now",
	"Join",
}

var meetLeaveButtonSelectors = []string{
	`button[aria-label*="Leave call"]`,
	`button[aria-label*="Leave"]`,
}

var meetCameraOffSelectors = []string{
	`button[aria-label*="Turn off camera"]`,
	`button[aria-label*="camera is on"]`,
	`button[data-is-muted="false"][aria-label*="camera"]`,
}

var meetMicOffSelectors = []string{
	`button[aria-label*="Turn off microphone"]`,
	`button[aria-label*="microphone is on"]`,
	`button[data-is-muted="false"][aria-label*="microphone"]`,
}

var meetCaptionsOnSelectors = []string{
	`button[aria-label*="Turn off captions"]`,
}

var zoomLeaveButtonSelectors = []string{
	`button[aria-label*="Leave"]`,
	`button[title*="Leave"]`,
}
