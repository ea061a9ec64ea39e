package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Postgres stores records in a meetings table, upserting on meeting URL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Postgres{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meetings (
			id SERIAL PRIMARY KEY,
			meeting_id TEXT NOT NULL,
			meeting_url TEXT NOT NULL UNIQUE,
			title TEXT,
			platform TEXT,
			s3_path TEXT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *Postgres) Save(rec Record) error {
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO meetings (meeting_id, meeting_url, title, platform, s3_path, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (meeting_url) DO UPDATE
		SET meeting_id = $1, title = $3, platform = $4, s3_path = $5, added_at = $6
	`, rec.MeetingID, rec.MeetingURL, rec.Title, rec.Platform, rec.S3Path, rec.AddedAt)
	return err
}

func (s *Postgres) ByURL(url string) (*Record, error) {
	var rec Record
	err := s.db.QueryRow(`
		SELECT meeting_id, meeting_url, COALESCE(title, ''), COALESCE(platform, ''), s3_path, added_at
		FROM meetings
		WHERE meeting_url = $1
	`, url).Scan(&rec.MeetingID, &rec.MeetingURL, &rec.Title, &rec.Platform, &rec.S3Path, &rec.AddedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Postgres) All() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT meeting_id, meeting_url, COALESCE(title, ''), COALESCE(platform, ''), s3_path, added_at
		FROM meetings
		ORDER BY added_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.MeetingID, &rec.MeetingURL, &rec.Title, &rec.Platform, &rec.S3Path, &rec.AddedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
