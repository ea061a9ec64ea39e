package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

type jsonDB struct {
	CreatedAt   time.Time         `json:"created_at"`
	LastUpdated time.Time         `json:"last_updated"`
	Meetings    map[string]Record `json:"meetings"`
}

// JSONFile is a small file-backed store keyed by meeting URL. Every write
// rewrites the whole file, which is fine at the volumes a single bot sees.
type JSONFile struct {
	lock sync.Mutex
	path string
}

func NewJSONFile(path string) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &JSONFile{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		now := time.Now()
		if err := s.write(jsonDB{CreatedAt: now, LastUpdated: now, Meetings: map[string]Record{}}); err != nil {
			return nil, err
		}
		log.Infof("created meeting database | path: %s", path)
	} else {
		log.Infof("using existing meeting database | path: %s", path)
	}
	return s, nil
}

func (s *JSONFile) read() (jsonDB, error) {
	var db jsonDB
	data, err := os.ReadFile(s.path)
	if err != nil {
		return db, fmt.Errorf("read meeting database: %w", err)
	}
	if err := json.Unmarshal(data, &db); err != nil {
		return db, fmt.Errorf("parse meeting database: %w", err)
	}
	if db.Meetings == nil {
		db.Meetings = map[string]Record{}
	}
	return db, nil
}

func (s *JSONFile) write(db jsonDB) error {
	db.LastUpdated = time.Now()
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write meeting database: %w", err)
	}
	return nil
}

func (s *JSONFile) Save(rec Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	db, err := s.read()
	if err != nil {
		return err
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now()
	}
	db.Meetings[rec.MeetingURL] = rec
	if err := s.write(db); err != nil {
		return err
	}
	log.Infof("recorded meeting | url: %s, s3: %s", rec.MeetingURL, rec.S3Path)
	return nil
}

func (s *JSONFile) ByURL(url string) (*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	db, err := s.read()
	if err != nil {
		return nil, err
	}
	rec, ok := db.Meetings[url]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *JSONFile) All() ([]Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	db, err := s.read()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(db.Meetings))
	for _, rec := range db.Meetings {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].AddedAt.Before(records[j].AddedAt) })
	return records, nil
}

func (s *JSONFile) Close() error {
	return nil
}
