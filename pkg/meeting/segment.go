package meeting

import "time"

// TranscriptSegment is one line of captured caption text. Timestamp is a
// wall-clock HH:MM:SS string matching the plain-text transcript format.
type TranscriptSegment struct {
	MeetingID string `json:"meeting_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

// Session is one active joined meeting.
type Session struct {
	Meeting      Meeting    `json:"meeting"`
	SessionID    string     `json:"session_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Recording    bool       `json:"is_recording"`
	Transcribing bool       `json:"is_transcribing"`
	Segments     int        `json:"transcript_count"`
}

func (s Session) Active() bool {
	return s.EndedAt == nil
}
