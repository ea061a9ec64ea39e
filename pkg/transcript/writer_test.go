package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

func TestWriterLifecycle(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	w, err := NewWriter(dir, "abc123", start)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "transcript_abc123_20260314_100000.txt"), w.Path())

	w.Append("Alice", "Hello everyone", start.Add(5*time.Second))
	w.Append("Bob", "Hi Alice", start.Add(10*time.Second))
	w.Append("System", "Recording started", start.Add(11*time.Second))

	require.NoError(t, w.Close(start.Add(time.Minute)))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "--- Transcription started for abc123")
	require.Contains(t, content, "[10:00:05] Alice: Hello everyone")
	require.Contains(t, content, "[10:00:10] Bob: Hi Alice")
	require.Contains(t, content, "--- Transcription ended")

	// System is written to the file but not a participant.
	require.Equal(t, []string{"Alice", "Bob"}, w.Participants())
	require.Len(t, w.Segments(), 3)
}

func TestWriterSanitizesMeetingID(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	w, err := NewWriter(dir, "ab/c..12 3", start)
	require.NoError(t, err)
	defer w.Close(start)

	base := filepath.Base(w.Path())
	require.True(t, strings.HasPrefix(base, "transcript_abc123_"), base)
}

func TestAppendAfterCloseDropped(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()

	w, err := NewWriter(dir, "m1", start)
	require.NoError(t, err)
	require.NoError(t, w.Close(start))

	w.Append("Alice", "too late", start)
	require.Empty(t, w.Segments())
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	w, err := NewWriter(dir, "m1", start)
	require.NoError(t, err)
	w.Append("Alice", "Hello", start.Add(time.Second))
	require.NoError(t, w.Close(end))

	m := meeting.Meeting{
		ID:             "m1",
		Title:          "Weekly Sync",
		URL:            "https://meet.google.com/abc-defg-hij",
		Platform:       meeting.PlatformGoogleMeet,
		Organizer:      "Carol",
		OrganizerEmail: "carol@example.com",
	}
	export := w.Export(m, end)

	require.Equal(t, "m1", export.Metadata.MeetingID)
	require.Equal(t, "Weekly Sync", export.Metadata.Title)
	require.Equal(t, "google_meet", export.Metadata.Platform)
	require.Equal(t, 1800, export.Metadata.DurationSeconds)
	require.Equal(t, []string{"Alice"}, export.Metadata.ParticipantNames)
	require.Equal(t, w.Path(), export.Metadata.TranscriptFile)
	require.Equal(t, "carol@example.com", export.Metadata.OrganizerEmail)
	require.Len(t, export.Transcription, 1)
	require.Equal(t, "10:00:01", export.Transcription[0].Timestamp)
}
