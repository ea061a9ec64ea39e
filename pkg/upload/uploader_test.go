package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectKeys(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	require.Equal(t, "meetings/abc123_20260314_103000.json", MeetingJSONKey("abc123", at))
	require.Equal(t, "meetings/abc123_20260314_103000.txt", TranscriptKey("abc123", at))
	require.Equal(t, "meetings/abc123_20260314_103000.mp4", RecordingKey("abc123", at))
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(S3Config{Region: "us-east-1"})
	require.ErrorIs(t, err, ErrEmptyS3BucketName)
}

func TestURLIncludesDirectory(t *testing.T) {
	u := &s3Uploader{bucket: "meetbot-data", directory: "prod"}
	require.Equal(t, "s3://meetbot-data/prod/meetings/m1.json", u.URL("meetings/m1.json"))

	u = &s3Uploader{bucket: "meetbot-data"}
	require.Equal(t, "s3://meetbot-data/meetings/m1.json", u.URL("meetings/m1.json"))
}
