package joiner

import (
	"time"

	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

// inMeetingIndicatorSelectors back up the leave button check. Any of these
// present means the call UI is still mounted.
var inMeetingIndicatorSelectors = []string{
	`[data-tid="roster-list"]`,
	`[class*="participant"]`,
	`[class*="Participant"]`,
	`button[aria-label*="Mute"]`,
	`button[aria-label*="microphone"]`,
	`video`,
	`[class*="call-controls"]`,
	`[class*="CallControls"]`,
	`[data-is-muted]`,
	`[data-participant-id]`,
	`[class*="footer-button"]`,
}

func leaveSelectorsFor(platform meeting.Platform) []string {
	switch platform {
	case meeting.PlatformTeams:
		return teamsLeaveButtonSelectors
	case meeting.PlatformGoogleMeet:
		return meetLeaveButtonSelectors
	default:
		return zoomLeaveButtonSelectors
	}
}

// monitor watches an active meeting tab until the meeting ends, the bot is
// removed, or the tab is closed, then runs cleanup and the OnEnd callback.
func (j *Joiner) monitor(t *tab, key string) {
	m := t.meeting
	log.Infof("monitoring meeting | title: %s, platform: %s", m.Title, m.Platform)

	kicked := false

	ticker := time.NewTicker(j.opts.MonitorInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-t.ctx.Done():
			log.Infof("meeting tab closed | title: %s", m.Title)
			break loop
		case <-ticker.C:
		}

		if m.Platform == meeting.PlatformTeams &&
			evalBool(t.ctx, textVisibleJS(teamsDeniedTexts)) {
			log.Infof("removed from meeting | title: %s", m.Title)
			kicked = true
			break loop
		}

		if evalBool(t.ctx, anyVisibleJS(leaveSelectorsFor(m.Platform))) {
			continue
		}
		if evalBool(t.ctx, anyElementJS(inMeetingIndicatorSelectors)) {
			continue
		}

		// Both checks failed; recheck once before declaring the meeting
		// over, since page transitions cause false positives.
		sleepCtx(t.ctx, 5*time.Second)
		if evalBool(t.ctx, anyElementJS(inMeetingIndicatorSelectors)) {
			log.Debug("still in meeting after recheck")
			continue
		}

		log.Infof("meeting appears to have ended | title: %s", m.Title)
		break loop
	}

	j.remove(key)
	t.cancel()

	if j.cb.OnEnd != nil {
		j.cb.OnEnd(m, kicked)
	}
}
