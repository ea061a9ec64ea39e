package meeting

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type Platform string

const (
	PlatformTeams      Platform = "teams"
	PlatformZoom       Platform = "zoom"
	PlatformGoogleMeet Platform = "google_meet"
	PlatformUnknown    Platform = "unknown"
)

var ErrUnknownPlatform = errors.New("unknown meeting platform")

func ParsePlatform(p string) (Platform, error) {
	switch p {
	case string(PlatformTeams):
		return PlatformTeams, nil
	case string(PlatformZoom):
		return PlatformZoom, nil
	case string(PlatformGoogleMeet):
		return PlatformGoogleMeet, nil
	default:
		return PlatformUnknown, ErrUnknownPlatform
	}
}

type Source string

const (
	SourceGmail   Source = "gmail"
	SourceOutlook Source = "outlook"
	SourceManual  Source = "manual"
)

// S3Override carries per-meeting storage credentials supplied on manual
// joins. When nil, the service-wide uploader is used.
type S3Override struct {
	Bucket          string `json:"bucket_name"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

// Meeting is a single online meeting discovered from a calendar source or
// registered through a manual join.
type Meeting struct {
	ID             string   `json:"meeting_id"`
	Title          string   `json:"title"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	URL            string   `json:"meeting_url"`
	Platform       Platform `json:"platform"`
	Source         Source   `json:"source"`
	Organizer      string   `json:"organizer,omitempty"`
	OrganizerEmail string   `json:"organizer_email,omitempty"`
	Attendees      []string `json:"attendees,omitempty"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	RawEventID     string   `json:"-"`

	Scheduled         bool `json:"is_scheduled"`
	Joined            bool `json:"is_joined"`
	Completed         bool `json:"is_completed"`
	Kicked            bool `json:"was_kicked"`
	RejoinAttempts    int  `json:"rejoin_attempts"`
	MaxRejoinAttempts int  `json:"max_rejoin_attempts"`

	CaptionLanguage string      `json:"caption_language,omitempty"`
	BotName         string      `json:"bot_name,omitempty"`
	S3              *S3Override `json:"-"`
}

func (m Meeting) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

func (m Meeting) HasStartedAt(now time.Time) bool {
	return !now.Before(m.StartTime)
}

func (m Meeting) HasEndedAt(now time.Time) bool {
	return now.After(m.EndTime)
}

func (m Meeting) IsActiveAt(now time.Time) bool {
	return m.HasStartedAt(now) && !m.HasEndedAt(now)
}

func (m Meeting) HasStarted() bool { return m.HasStartedAt(time.Now()) }
func (m Meeting) HasEnded() bool   { return m.HasEndedAt(time.Now()) }
func (m Meeting) IsActive() bool   { return m.IsActiveAt(time.Now()) }

// DedupKey identifies a meeting across providers. The same event often
// arrives via both the calendar API and an emailed .ics invite.
func (m Meeting) DedupKey() string {
	return m.URL + "|" + m.StartTime.UTC().Format(time.RFC3339)
}

// GenerateID derives a stable 16-hex-char meeting ID from the URL, start
// time and the provider's event ID.
func GenerateID(url string, start time.Time, eventID string) string {
	unique := fmt.Sprintf("%s|%s|%s", url, start.UTC().Format(time.RFC3339), eventID)
	sum := sha256.Sum256([]byte(unique))
	return hex.EncodeToString(sum[:])[:16]
}

// Deduplicate removes meetings that share a DedupKey, keeping first seen.
func Deduplicate(meetings []Meeting) []Meeting {
	seen := make(map[string]bool, len(meetings))
	unique := make([]Meeting, 0, len(meetings))
	for _, m := range meetings {
		key := m.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, m)
	}
	return unique
}
