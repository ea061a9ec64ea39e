// Package store records where each processed meeting's data ended up.
// The default backend is a local JSON file; when DATABASE_URL is set a
// Postgres table is used instead.
package store

import "time"

// Record maps one processed meeting to its uploaded artifacts.
type Record struct {
	MeetingID  string    `json:"meeting_id"`
	MeetingURL string    `json:"meeting_url"`
	Title      string    `json:"title,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	S3Path     string    `json:"s3_path"`
	AddedAt    time.Time `json:"added_at"`
}

type Store interface {
	Save(rec Record) error
	// ByURL returns nil when the URL has never been processed.
	ByURL(url string) (*Record, error)
	All() ([]Record, error)
	Close() error
}
