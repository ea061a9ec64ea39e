package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/auth"
	"github.com/soniqlabs/meetbot/pkg/calendar"
	"github.com/soniqlabs/meetbot/pkg/meeting"
)

const (
	defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	defaultGmailBaseURL    = "https://gmail.googleapis.com/gmail/v1"

	// Invites arrive as emails with .ics attachments; only recent mail is
	// worth scanning.
	gmailInviteQuery = "has:attachment filename:ics newer_than:7d"
)

// Gmail discovers meetings from both the Google Calendar API and .ics
// attachments on recent Gmail messages.
type Gmail struct {
	manager *auth.Manager

	calendarBaseURL string
	gmailBaseURL    string
	now             func() time.Time
}

func NewGmail(manager *auth.Manager) *Gmail {
	return &Gmail{
		manager:         manager,
		calendarBaseURL: defaultCalendarBaseURL,
		gmailBaseURL:    defaultGmailBaseURL,
		now:             time.Now,
	}
}

func (g *Gmail) Provider() auth.Provider { return auth.ProviderGmail }

func (g *Gmail) Authenticated() bool {
	return g.manager.Authenticated(auth.ProviderGmail)
}

func (g *Gmail) Meetings(ctx context.Context, lookahead time.Duration) ([]meeting.Meeting, error) {
	client, err := g.manager.Client(ctx, auth.ProviderGmail)
	if err != nil {
		return nil, err
	}

	var meetings []meeting.Meeting

	calendarMeetings, err := g.calendarEvents(ctx, client, lookahead)
	if err != nil {
		log.Errorf("failed to fetch google calendar events | error: %v", err)
	}
	meetings = append(meetings, calendarMeetings...)

	emailMeetings, err := g.emailInvites(ctx, client, lookahead)
	if err != nil {
		log.Errorf("failed to fetch gmail invites | error: %v", err)
	}
	meetings = append(meetings, emailMeetings...)

	unique := meeting.Deduplicate(meetings)
	log.Infof("gmail meetings found | calendar: %d, email: %d, unique: %d",
		len(calendarMeetings), len(emailMeetings), len(unique))
	return unique, nil
}

type gcalEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

type gcalEvent struct {
	ID          string        `json:"id"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	Start       gcalEventTime `json:"start"`
	End         gcalEventTime `json:"end"`
	HangoutLink string        `json:"hangoutLink"`
	Organizer   struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"organizer"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
	ConferenceData struct {
		EntryPoints []struct {
			EntryPointType string `json:"entryPointType"`
			URI            string `json:"uri"`
		} `json:"entryPoints"`
	} `json:"conferenceData"`
}

type gcalEventList struct {
	Items         []gcalEvent `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
}

func (g *Gmail) calendarEvents(ctx context.Context, client *http.Client, lookahead time.Duration) ([]meeting.Meeting, error) {
	now := g.now().UTC()
	var meetings []meeting.Meeting

	pageToken := ""
	for {
		params := url.Values{}
		params.Set("timeMin", now.Format(time.RFC3339))
		params.Set("timeMax", now.Add(lookahead).Format(time.RFC3339))
		params.Set("singleEvents", "true")
		params.Set("orderBy", "startTime")
		params.Set("maxResults", "250")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page gcalEventList
		endpoint := fmt.Sprintf("%s/calendars/primary/events?%s", g.calendarBaseURL, params.Encode())
		if err := getJSON(ctx, client, endpoint, &page); err != nil {
			return meetings, err
		}

		for _, event := range page.Items {
			if m, ok := g.parseCalendarEvent(event); ok {
				meetings = append(meetings, m)
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return meetings, nil
}

func (g *Gmail) parseCalendarEvent(event gcalEvent) (meeting.Meeting, bool) {
	start, ok := parseGcalTime(event.Start)
	if !ok {
		return meeting.Meeting{}, false
	}
	end, ok := parseGcalTime(event.End)
	if !ok {
		return meeting.Meeting{}, false
	}

	title := event.Summary
	if title == "" {
		title = "Untitled Meeting"
	}

	// Conference entry points are the authoritative link; hangoutLink and a
	// location/description scan are fallbacks.
	var meetingURL string
	platform := meeting.PlatformUnknown
	for _, entry := range event.ConferenceData.EntryPoints {
		if entry.EntryPointType == "video" {
			meetingURL = entry.URI
			platform = meeting.DetectPlatform(meetingURL)
			break
		}
	}
	if meetingURL == "" && event.HangoutLink != "" {
		meetingURL = event.HangoutLink
		platform = meeting.PlatformGoogleMeet
	}
	if meetingURL == "" {
		var found bool
		meetingURL, platform, found = meeting.ExtractURL(event.Location + " " + event.Description)
		if !found {
			log.Debugf("skipping event without meeting url | summary: %s", title)
			return meeting.Meeting{}, false
		}
	}

	organizer := event.Organizer.DisplayName
	if organizer == "" {
		organizer = event.Organizer.Email
	}
	var attendees []string
	for _, a := range event.Attendees {
		attendees = append(attendees, a.Email)
	}

	return meeting.Meeting{
		ID:             meeting.GenerateID(meetingURL, start, event.ID),
		Title:          title,
		StartTime:      start,
		EndTime:        end,
		URL:            meetingURL,
		Platform:       platform,
		Source:         meeting.SourceGmail,
		Organizer:      organizer,
		OrganizerEmail: event.Organizer.Email,
		Attendees:      attendees,
		Description:    meeting.CleanHTML(event.Description),
		Location:       event.Location,
		RawEventID:     event.ID,
	}, true
}

func parseGcalTime(t gcalEventTime) (time.Time, bool) {
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	if t.Date != "" {
		parsed, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

type gmailMessageList struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

type gmailMessagePart struct {
	Filename string `json:"filename"`
	Body     struct {
		AttachmentID string `json:"attachmentId"`
		Data         string `json:"data"`
	} `json:"body"`
	Parts []gmailMessagePart `json:"parts"`
}

type gmailMessage struct {
	Payload gmailMessagePart `json:"payload"`
}

type gmailAttachment struct {
	Data string `json:"data"`
}

func (g *Gmail) emailInvites(ctx context.Context, client *http.Client, lookahead time.Duration) ([]meeting.Meeting, error) {
	var meetings []meeting.Meeting

	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", gmailInviteQuery)
		params.Set("maxResults", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page gmailMessageList
		endpoint := fmt.Sprintf("%s/users/me/messages?%s", g.gmailBaseURL, params.Encode())
		if err := getJSON(ctx, client, endpoint, &page); err != nil {
			return meetings, err
		}

		for _, msg := range page.Messages {
			parsed, err := g.parseMessageInvite(ctx, client, msg.ID, lookahead)
			if err != nil {
				log.Warnf("failed to parse invite email | message: %s, error: %v", msg.ID, err)
				continue
			}
			meetings = append(meetings, parsed...)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return meetings, nil
}

func (g *Gmail) parseMessageInvite(ctx context.Context, client *http.Client, messageID string, lookahead time.Duration) ([]meeting.Meeting, error) {
	var msg gmailMessage
	endpoint := fmt.Sprintf("%s/users/me/messages/%s?format=full", g.gmailBaseURL, messageID)
	if err := getJSON(ctx, client, endpoint, &msg); err != nil {
		return nil, err
	}

	var meetings []meeting.Meeting
	for _, part := range flattenParts(msg.Payload) {
		if !strings.HasSuffix(part.Filename, ".ics") {
			continue
		}

		encoded := part.Body.Data
		if encoded == "" && part.Body.AttachmentID != "" {
			var att gmailAttachment
			endpoint := fmt.Sprintf("%s/users/me/messages/%s/attachments/%s", g.gmailBaseURL, messageID, part.Body.AttachmentID)
			if err := getJSON(ctx, client, endpoint, &att); err != nil {
				return meetings, err
			}
			encoded = att.Data
		}
		if encoded == "" {
			continue
		}

		ics, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			log.Warnf("bad attachment encoding | message: %s, error: %v", messageID, err)
			continue
		}
		meetings = append(meetings, calendar.ParseInvite(string(ics), meeting.SourceGmail, lookahead, g.now().UTC())...)
	}

	return meetings, nil
}

func flattenParts(part gmailMessagePart) []gmailMessagePart {
	parts := []gmailMessagePart{part}
	for _, child := range part.Parts {
		parts = append(parts, flattenParts(child)...)
	}
	return parts
}
