package upload

import (
	"fmt"
	"io"
	"time"
)

type Uploader interface {
	// Key is a unique identifier for the object within the bucket.
	Upload(key, contentType string, body io.Reader) error
	// URL returns the s3:// style location of an uploaded key.
	URL(key string) string
	GetDirectory() string
}

// MeetingJSONKey is the object key for a meeting's structured export.
func MeetingJSONKey(meetingID string, now time.Time) string {
	return fmt.Sprintf("meetings/%s_%s.json", meetingID, now.Format("20060102_150405"))
}

// TranscriptKey is the object key for a meeting's raw transcript text.
func TranscriptKey(meetingID string, now time.Time) string {
	return fmt.Sprintf("meetings/%s_%s.txt", meetingID, now.Format("20060102_150405"))
}

// RecordingKey is the object key for a meeting's screen recording.
func RecordingKey(meetingID string, now time.Time) string {
	return fmt.Sprintf("meetings/%s_%s.mp4", meetingID, now.Format("20060102_150405"))
}
