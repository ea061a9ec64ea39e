package meeting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testMeeting(start, end time.Time) Meeting {
	return Meeting{
		ID:        GenerateID("https://meet.google.com/abc-defg-hij", start, "ev1"),
		Title:     "Standup",
		StartTime: start,
		EndTime:   end,
		URL:       "https://meet.google.com/abc-defg-hij",
		Platform:  PlatformGoogleMeet,
		Source:    SourceGmail,
	}
}

func TestGenerateIDStable(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := GenerateID("https://meet.google.com/abc", start, "uid")
	b := GenerateID("https://meet.google.com/abc", start, "uid")
	require.Equal(t, a, b)
	require.Len(t, a, 16)
}

func TestGenerateIDDiffersByEvent(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NotEqual(t,
		GenerateID("https://meet.google.com/abc", start, "uid1"),
		GenerateID("https://meet.google.com/abc", start, "uid2"))
}

func TestMeetingLifecycle(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	m := testMeeting(start, end)

	require.False(t, m.HasStartedAt(start.Add(-time.Minute)))
	require.True(t, m.HasStartedAt(start))
	require.True(t, m.IsActiveAt(start.Add(10*time.Minute)))
	require.False(t, m.HasEndedAt(end))
	require.True(t, m.HasEndedAt(end.Add(time.Second)))
	require.Equal(t, 30*time.Minute, m.Duration())
}

func TestDeduplicate(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := testMeeting(start, start.Add(time.Hour))
	b := testMeeting(start, start.Add(time.Hour))
	b.Source = SourceOutlook

	// Same URL at a different time is a different meeting.
	c := testMeeting(start.Add(24*time.Hour), start.Add(25*time.Hour))

	unique := Deduplicate([]Meeting{a, b, c})
	require.Len(t, unique, 2)
	require.Equal(t, SourceGmail, unique[0].Source)
}

func TestSessionActive(t *testing.T) {
	s := Session{SessionID: "s1", StartedAt: time.Now()}
	require.True(t, s.Active())
	now := time.Now()
	s.EndedAt = &now
	require.False(t, s.Active())
}
