// Package transcript persists captured captions to plain-text files and
// exports them as structured JSON at the end of a meeting.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

// Writer appends caption lines for a single meeting to a transcript file.
// Lines are flushed as they arrive so a crash mid-meeting loses nothing.
type Writer struct {
	lock         sync.Mutex
	file         *os.File
	path         string
	startedAt    time.Time
	endedAt      time.Time
	participants map[string]struct{}
	segments     []meeting.TranscriptSegment
	closed       bool
}

// NewWriter opens a transcript file named
// transcript_<meetingID>_<timestamp>.txt under dir.
func NewWriter(dir, meetingID string, now time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	name := fmt.Sprintf("transcript_%s_%s.txt", safeID(meetingID), now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}

	w := &Writer{
		file:         file,
		path:         path,
		startedAt:    now,
		participants: make(map[string]struct{}),
	}
	w.writeLine(fmt.Sprintf("--- Transcription started for %s at %s ---", meetingID, now.Format(time.RFC3339)))
	log.Infof("started transcription | file: %s", path)
	return w, nil
}

func safeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Append records one caption line. Speakers named "system" or "unknown"
// are written but not counted as participants.
func (w *Writer) Append(speaker, text string, at time.Time) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return
	}

	lower := strings.ToLower(speaker)
	if speaker != "" && lower != "system" && lower != "unknown" {
		w.participants[speaker] = struct{}{}
	}

	timeStr := at.Format("15:04:05")
	w.segments = append(w.segments, meeting.TranscriptSegment{
		Timestamp: timeStr,
		Speaker:   speaker,
		Text:      text,
	})
	w.writeLine(fmt.Sprintf("[%s] %s: %s", timeStr, speaker, text))
}

func (w *Writer) writeLine(line string) {
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		log.Errorf("transcript write failed | error: %v", err)
		return
	}
	if err := w.file.Sync(); err != nil {
		log.Errorf("transcript sync failed | error: %v", err)
	}
}

// Close writes the trailer line and closes the file. Append calls after
// Close are dropped.
func (w *Writer) Close(now time.Time) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.endedAt = now

	w.writeLine(fmt.Sprintf("--- Transcription ended at %s ---", now.Format(time.RFC3339)))
	err := w.file.Close()
	log.Infof("stopped transcription | file: %s, segments: %d", w.path, len(w.segments))
	return err
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Participants() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	names := make([]string, 0, len(w.participants))
	for name := range w.participants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w *Writer) Segments() []meeting.TranscriptSegment {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]meeting.TranscriptSegment(nil), w.segments...)
}

// Metadata summarizes a finished meeting for the JSON export.
type Metadata struct {
	MeetingID        string   `json:"meeting_id"`
	MeetingURL       string   `json:"meeting_url,omitempty"`
	Platform         string   `json:"platform"`
	Title            string   `json:"title,omitempty"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	DurationSeconds  int      `json:"duration_seconds"`
	ParticipantNames []string `json:"participant_names"`
	TranscriptFile   string   `json:"transcript_file"`
	Organizer        string   `json:"organizer,omitempty"`
	OrganizerEmail   string   `json:"organizer_email,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// Export is the JSON document uploaded alongside the raw transcript file.
type Export struct {
	Metadata        Metadata                    `json:"metadata"`
	Transcription   []meeting.TranscriptSegment `json:"transcription"`
	ExportTimestamp string                      `json:"export_timestamp"`
}

// Export builds the structured document for a closed writer.
func (w *Writer) Export(m meeting.Meeting, now time.Time) Export {
	w.lock.Lock()
	defer w.lock.Unlock()

	endedAt := w.endedAt
	if endedAt.IsZero() {
		endedAt = now
	}

	names := make([]string, 0, len(w.participants))
	for name := range w.participants {
		names = append(names, name)
	}
	sort.Strings(names)

	return Export{
		Metadata: Metadata{
			MeetingID:        m.ID,
			MeetingURL:       m.URL,
			Platform:         string(m.Platform),
			Title:            m.Title,
			StartTime:        w.startedAt.Format(time.RFC3339),
			EndTime:          endedAt.Format(time.RFC3339),
			DurationSeconds:  int(endedAt.Sub(w.startedAt).Seconds()),
			ParticipantNames: names,
			TranscriptFile:   w.path,
			Organizer:        m.Organizer,
			OrganizerEmail:   m.OrganizerEmail,
			Description:      m.Description,
		},
		Transcription:   append([]meeting.TranscriptSegment(nil), w.segments...),
		ExportTimestamp: now.Format(time.RFC3339),
	}
}
