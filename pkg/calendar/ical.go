package calendar

import (
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

// Teams invites exported by Exchange carry the join link in a vendor
// property rather than the description.
const propTeamsMeetingURL = "X-MICROSOFT-SKYPETEAMSMEETINGURL"

// ParseInvite decodes iCalendar (.ics) content and extracts online meetings
// that fall inside the lookahead window. Events without a recognizable
// meeting link are skipped.
func ParseInvite(ics string, source meeting.Source, lookahead time.Duration, now time.Time) []meeting.Meeting {
	var meetings []meeting.Meeting

	decoder := ical.NewDecoder(strings.NewReader(ics))
	windowEnd := now.Add(lookahead)

	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Errorf("failed to decode icalendar | error: %v", err)
			return meetings
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			m, ok := parseEvent(comp, source, now, windowEnd)
			if !ok {
				continue
			}
			meetings = append(meetings, m)
		}
	}

	return meetings
}

func parseEvent(comp *ical.Component, source meeting.Source, now, windowEnd time.Time) (meeting.Meeting, bool) {
	start, ok := eventTime(comp, ical.PropDateTimeStart)
	if !ok {
		return meeting.Meeting{}, false
	}
	end, ok := eventTime(comp, ical.PropDateTimeEnd)
	if !ok {
		// No DTEND: assume a one hour meeting.
		end = start.Add(time.Hour)
	}

	if start.After(windowEnd) || end.Before(now) {
		return meeting.Meeting{}, false
	}

	summary := propValue(comp, ical.PropSummary)
	if summary == "" {
		summary = "Untitled Meeting"
	}
	description := meeting.CleanHTML(propValue(comp, ical.PropDescription))
	location := propValue(comp, ical.PropLocation)
	uid := propValue(comp, ical.PropUID)

	var organizerName, organizerEmail string
	if prop := comp.Props.Get(ical.PropOrganizer); prop != nil {
		organizerEmail = strings.TrimPrefix(prop.Value, "mailto:")
		organizerName = prop.Params.Get("CN")
		if organizerName == "" {
			organizerName = organizerEmail
		}
	}

	var attendees []string
	for _, prop := range comp.Props.Values(ical.PropAttendee) {
		attendees = append(attendees, strings.TrimPrefix(prop.Value, "mailto:"))
	}

	url := propValue(comp, propTeamsMeetingURL)
	platform := meeting.PlatformTeams
	if url == "" {
		var found bool
		url, platform, found = meeting.ExtractURL(description + " " + location)
		if !found {
			log.Debugf("no meeting url in event | summary: %s, start: %s", summary, start.Format(time.RFC3339))
			return meeting.Meeting{}, false
		}
	}

	return meeting.Meeting{
		ID:             meeting.GenerateID(url, start, uid),
		Title:          summary,
		StartTime:      start,
		EndTime:        end,
		URL:            url,
		Platform:       platform,
		Source:         source,
		Organizer:      organizerName,
		OrganizerEmail: organizerEmail,
		Attendees:      attendees,
		Description:    description,
		Location:       location,
		RawEventID:     uid,
	}, true
}

func propValue(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}

// eventTime resolves DTSTART/DTEND to a UTC timestamp. Date-only values
// (all-day events) become midnight UTC.
func eventTime(comp *ical.Component, name string) (time.Time, bool) {
	prop := comp.Props.Get(name)
	if prop == nil {
		return time.Time{}, false
	}
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		log.Debugf("unparseable event time | prop: %s, value: %s, error: %v", name, prop.Value, err)
		return time.Time{}, false
	}
	return t.UTC(), true
}
