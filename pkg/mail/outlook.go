package mail

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/auth"
	"github.com/soniqlabs/meetbot/pkg/meeting"
)

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// Outlook discovers meetings from the Microsoft Graph calendar view.
type Outlook struct {
	manager *auth.Manager

	graphBaseURL string
	now          func() time.Time
}

func NewOutlook(manager *auth.Manager) *Outlook {
	return &Outlook{
		manager:      manager,
		graphBaseURL: defaultGraphBaseURL,
		now:          time.Now,
	}
}

func (o *Outlook) Provider() auth.Provider { return auth.ProviderOutlook }

func (o *Outlook) Authenticated() bool {
	return o.manager.Authenticated(auth.ProviderOutlook)
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    struct {
		Content string `json:"content"`
	} `json:"body"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Start         graphDateTime `json:"start"`
	End           graphDateTime `json:"end"`
	IsCancelled   bool          `json:"isCancelled"`
	OnlineMeeting struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
	Organizer struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"organizer"`
	Attendees []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"attendees"`
}

type graphEventList struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

func (o *Outlook) Meetings(ctx context.Context, lookahead time.Duration) ([]meeting.Meeting, error) {
	client, err := o.manager.Client(ctx, auth.ProviderOutlook)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	params := url.Values{}
	params.Set("startDateTime", now.Format(time.RFC3339))
	params.Set("endDateTime", now.Add(lookahead).Format(time.RFC3339))
	params.Set("$top", "50")
	params.Set("$orderby", "start/dateTime")

	var meetings []meeting.Meeting
	endpoint := fmt.Sprintf("%s/me/calendarview?%s", o.graphBaseURL, params.Encode())
	for endpoint != "" {
		var page graphEventList
		if err := getJSON(ctx, client, endpoint, &page); err != nil {
			return meetings, err
		}
		for _, event := range page.Value {
			if m, ok := o.parseEvent(event); ok {
				meetings = append(meetings, m)
			}
		}
		endpoint = page.NextLink
	}

	unique := meeting.Deduplicate(meetings)
	log.Infof("outlook meetings found | total: %d, unique: %d", len(meetings), len(unique))
	return unique, nil
}

func (o *Outlook) parseEvent(event graphEvent) (meeting.Meeting, bool) {
	if event.IsCancelled {
		return meeting.Meeting{}, false
	}

	start, ok := parseGraphTime(event.Start)
	if !ok {
		return meeting.Meeting{}, false
	}
	end, ok := parseGraphTime(event.End)
	if !ok {
		return meeting.Meeting{}, false
	}

	title := event.Subject
	if title == "" {
		title = "Untitled Meeting"
	}

	meetingURL := event.OnlineMeeting.JoinURL
	platform := meeting.DetectPlatform(meetingURL)
	if meetingURL == "" {
		var found bool
		meetingURL, platform, found = meeting.ExtractURL(event.Location.DisplayName + " " + event.Body.Content)
		if !found {
			log.Debugf("skipping graph event without meeting url | subject: %s", title)
			return meeting.Meeting{}, false
		}
	}

	organizer := event.Organizer.EmailAddress.Name
	if organizer == "" {
		organizer = event.Organizer.EmailAddress.Address
	}
	var attendees []string
	for _, a := range event.Attendees {
		attendees = append(attendees, a.EmailAddress.Address)
	}

	return meeting.Meeting{
		ID:             meeting.GenerateID(meetingURL, start, event.ID),
		Title:          title,
		StartTime:      start,
		EndTime:        end,
		URL:            meetingURL,
		Platform:       platform,
		Source:         meeting.SourceOutlook,
		Organizer:      organizer,
		OrganizerEmail: event.Organizer.EmailAddress.Address,
		Attendees:      attendees,
		Description:    meeting.CleanHTML(event.Body.Content),
		Location:       event.Location.DisplayName,
		RawEventID:     event.ID,
	}, true
}

// Graph returns naive timestamps plus a named zone. UTC is requested via
// the Prefer header by default zone, but be defensive about both shapes.
func parseGraphTime(t graphDateTime) (time.Time, bool) {
	if t.DateTime == "" {
		return time.Time{}, false
	}

	loc := time.UTC
	if t.TimeZone != "" && t.TimeZone != "UTC" {
		if parsed, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = parsed
		}
	}

	for _, layout := range []string{"2006-01-02T15:04:05.0000000", "2006-01-02T15:04:05", time.RFC3339} {
		if parsed, err := time.ParseInLocation(layout, t.DateTime, loc); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
