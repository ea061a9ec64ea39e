package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/soniqlabs/meetbot/pkg/auth"
	"github.com/soniqlabs/meetbot/pkg/meeting"
)

var mailTestNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// authedManager returns a manager with a valid stored token so Client()
// succeeds without contacting a token endpoint.
func authedManager(t *testing.T, provider auth.Provider) *auth.Manager {
	t.Helper()
	dir := t.TempDir()
	m := auth.NewManager(dir,
		auth.Credentials{ClientID: "id", ClientSecret: "secret"},
		auth.Credentials{ClientID: "id", ClientSecret: "secret"},
	)

	token := oauth2.Token{AccessToken: "test-token", Expiry: time.Now().Add(time.Hour)}
	data, err := json.Marshal(token)
	require.NoError(t, err)
	path := filepath.Join(dir, string(provider)+"_token.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return m
}

func TestGmailCalendarEvents(t *testing.T) {
	events := map[string]any{
		"items": []map[string]any{
			{
				"id":      "ev1",
				"summary": "Design Review",
				"start":   map[string]string{"dateTime": "2026-03-01T10:00:00Z"},
				"end":     map[string]string{"dateTime": "2026-03-01T11:00:00Z"},
				"conferenceData": map[string]any{
					"entryPoints": []map[string]string{
						{"entryPointType": "video", "uri": "https://meet.google.com/abc-defg-hij"},
					},
				},
				"organizer": map[string]string{"email": "lead@example.com", "displayName": "Lead"},
				"attendees": []map[string]string{{"email": "dev@example.com"}},
			},
			{
				// No link anywhere: must be skipped.
				"id":      "ev2",
				"summary": "Coffee",
				"start":   map[string]string{"dateTime": "2026-03-01T12:00:00Z"},
				"end":     map[string]string{"dateTime": "2026-03-01T12:30:00Z"},
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/calendars/primary/events":
			require.Equal(t, "true", r.URL.Query().Get("singleEvents"))
			json.NewEncoder(w).Encode(events)
		case r.URL.Path == "/users/me/messages":
			json.NewEncoder(w).Encode(map[string]any{"messages": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGmail(authedManager(t, auth.ProviderGmail))
	g.calendarBaseURL = srv.URL
	g.gmailBaseURL = srv.URL
	g.now = func() time.Time { return mailTestNow }

	meetings, err := g.Meetings(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	require.Equal(t, "Design Review", meetings[0].Title)
	require.Equal(t, meeting.PlatformGoogleMeet, meetings[0].Platform)
	require.Equal(t, "Lead", meetings[0].Organizer)
}

func TestGmailEmailInvites(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\n" +
		"UID:u1\r\nSUMMARY:Emailed Meeting\r\n" +
		"DTSTART:20260301T150000Z\r\nDTEND:20260301T160000Z\r\n" +
		"DESCRIPTION:https://teams.microsoft.com/l/meetup-join/19:x@thread.v2/0\r\n" +
		"END:VEVENT\r\nEND:VCALENDAR\r\n"
	encoded := base64.URLEncoding.EncodeToString([]byte(ics))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/calendars/primary/events":
			json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
		case "/users/me/messages":
			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "m1"}},
			})
		case "/users/me/messages/m1":
			json.NewEncoder(w).Encode(map[string]any{
				"payload": map[string]any{
					"parts": []map[string]any{
						{"filename": "invite.ics", "body": map[string]string{"attachmentId": "att1"}},
					},
				},
			})
		case "/users/me/messages/m1/attachments/att1":
			json.NewEncoder(w).Encode(map[string]string{"data": encoded})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGmail(authedManager(t, auth.ProviderGmail))
	g.calendarBaseURL = srv.URL
	g.gmailBaseURL = srv.URL
	g.now = func() time.Time { return mailTestNow }

	meetings, err := g.Meetings(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	require.Equal(t, "Emailed Meeting", meetings[0].Title)
	require.Equal(t, meeting.PlatformTeams, meetings[0].Platform)
	require.Equal(t, meeting.SourceGmail, meetings[0].Source)
}

func TestGmailNotAuthenticated(t *testing.T) {
	m := auth.NewManager(t.TempDir(),
		auth.Credentials{ClientID: "id", ClientSecret: "secret"}, auth.Credentials{})
	g := NewGmail(m)
	require.False(t, g.Authenticated())

	_, err := g.Meetings(context.Background(), time.Hour)
	require.Error(t, err)
}

func TestOutlookCalendarView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/calendarview", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"id":      "gid1",
					"subject": "Sprint Planning",
					"start":   map[string]string{"dateTime": "2026-03-01T13:00:00.0000000", "timeZone": "UTC"},
					"end":     map[string]string{"dateTime": "2026-03-01T14:00:00.0000000", "timeZone": "UTC"},
					"onlineMeeting": map[string]string{
						"joinUrl": "https://teams.microsoft.com/l/meetup-join/19:plan@thread.v2/0",
					},
					"organizer": map[string]any{
						"emailAddress": map[string]string{"name": "PM", "address": "pm@example.com"},
					},
				},
				{
					"id":          "gid2",
					"subject":     "Cancelled One",
					"isCancelled": true,
					"start":       map[string]string{"dateTime": "2026-03-01T15:00:00.0000000", "timeZone": "UTC"},
					"end":         map[string]string{"dateTime": "2026-03-01T16:00:00.0000000", "timeZone": "UTC"},
				},
			},
		})
	}))
	defer srv.Close()

	o := NewOutlook(authedManager(t, auth.ProviderOutlook))
	o.graphBaseURL = srv.URL
	o.now = func() time.Time { return mailTestNow }

	meetings, err := o.Meetings(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	require.Equal(t, "Sprint Planning", meetings[0].Title)
	require.Equal(t, meeting.PlatformTeams, meetings[0].Platform)
	require.Equal(t, meeting.SourceOutlook, meetings[0].Source)
	require.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), meetings[0].StartTime)
}

func TestParseGraphTimeFormats(t *testing.T) {
	parsed, ok := parseGraphTime(graphDateTime{DateTime: "2026-03-01T13:00:00.0000000", TimeZone: "UTC"})
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), parsed)

	_, ok = parseGraphTime(graphDateTime{})
	require.False(t, ok)
}
