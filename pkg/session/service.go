// Package session coordinates one bot visit per meeting: the browser join,
// caption capture, screen recording, and the end-of-meeting export.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/joiner"
	"github.com/soniqlabs/meetbot/pkg/meeting"
	"github.com/soniqlabs/meetbot/pkg/recording"
	"github.com/soniqlabs/meetbot/pkg/store"
	"github.com/soniqlabs/meetbot/pkg/stream"
	"github.com/soniqlabs/meetbot/pkg/transcript"
	"github.com/soniqlabs/meetbot/pkg/upload"
)

var (
	ErrEmptyMeetingURL  = errors.New("empty meeting URL")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyInMeeting = errors.New("bot is already in this meeting")
)

// JoinRequest is a manual join submitted through the API.
type JoinRequest struct {
	URL             string
	Title           string
	BotName         string
	CaptionLanguage string
	DurationMinutes int
	S3              *meeting.S3Override
}

type Service interface {
	// Join starts a manual session and returns immediately; the browser
	// join continues in the background.
	Join(ctx context.Context, req JoinRequest) (meeting.Session, error)
	// JoinScheduled runs a scheduler-initiated join synchronously.
	JoinScheduled(ctx context.Context, m meeting.Meeting) error
	Leave(ctx context.Context, sessionID string) error
	Sessions() []meeting.Session
	Session(sessionID string) (meeting.Session, bool)
	ActiveCount() int
	SetUploader(uploader upload.Uploader)
	Shutdown()
}

type sessionState struct {
	session meeting.Session
	writer  *transcript.Writer
}

type service struct {
	lock        sync.Mutex
	sessions    map[string]*sessionState
	byMeetingID map[string]string

	joiner        *joiner.Joiner
	recorder      *recording.Recorder
	hub           *stream.Hub
	uploader      upload.Uploader
	store         store.Store
	webhooks      []string
	transcriptDir string
}

// Deps are the collaborators a session service needs. Uploader and Store
// may be nil; artifacts then stay on local disk only.
type Deps struct {
	Recorder      *recording.Recorder
	Hub           *stream.Hub
	Uploader      upload.Uploader
	Store         store.Store
	Webhooks      []string
	TranscriptDir string
	JoinerOptions joiner.Options
}

func NewService(deps Deps) Service {
	s := &service{
		sessions:      make(map[string]*sessionState),
		byMeetingID:   make(map[string]string),
		recorder:      deps.Recorder,
		hub:           deps.Hub,
		uploader:      deps.Uploader,
		store:         deps.Store,
		webhooks:      deps.Webhooks,
		transcriptDir: deps.TranscriptDir,
	}
	if s.transcriptDir == "" {
		s.transcriptDir = "transcripts"
	}
	s.joiner = joiner.New(deps.JoinerOptions, joiner.Callbacks{
		OnSegment: s.handleSegment,
		OnEnd:     s.handleEnd,
	})
	return s
}

func (s *service) SetUploader(uploader upload.Uploader) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.uploader = uploader
}

func (s *service) Join(ctx context.Context, req JoinRequest) (meeting.Session, error) {
	if req.URL == "" {
		return meeting.Session{}, ErrEmptyMeetingURL
	}

	platform := meeting.DetectPlatform(req.URL)
	now := time.Now()
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = time.Hour
	}

	title := req.Title
	if title == "" {
		title = "Manual Meeting"
	}

	m := meeting.Meeting{
		ID:              meeting.GenerateID(req.URL, now, uuid.NewString()),
		Title:           title,
		URL:             req.URL,
		Platform:        platform,
		Source:          meeting.SourceManual,
		StartTime:       now,
		EndTime:         now.Add(duration),
		BotName:         req.BotName,
		CaptionLanguage: req.CaptionLanguage,
		S3:              req.S3,
	}

	sess, err := s.register(m)
	if err != nil {
		return meeting.Session{}, err
	}

	go func() {
		if err := s.runJoin(m); err != nil {
			log.Errorf("manual join failed | url: %s, error: %v", m.URL, err)
		}
	}()
	return sess, nil
}

func (s *service) JoinScheduled(ctx context.Context, m meeting.Meeting) error {
	if m.URL == "" {
		return ErrEmptyMeetingURL
	}
	if _, err := s.register(m); err != nil {
		return err
	}
	return s.runJoin(m)
}

// register creates the session record before the browser work starts so
// duplicate joins are rejected early.
func (s *service) register(m meeting.Meeting) (meeting.Session, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.byMeetingID[m.ID]; ok {
		return meeting.Session{}, ErrAlreadyInMeeting
	}
	key := meeting.NormalizeURL(m.URL)
	for _, state := range s.sessions {
		if state.session.Active() && meeting.NormalizeURL(state.session.Meeting.URL) == key {
			return meeting.Session{}, ErrAlreadyInMeeting
		}
	}

	sess := meeting.Session{
		Meeting:   m,
		SessionID: uuid.NewString(),
		StartedAt: time.Now(),
	}
	s.sessions[sess.SessionID] = &sessionState{session: sess}
	s.byMeetingID[m.ID] = sess.SessionID
	return sess, nil
}

// runJoin performs the browser join and enables capture on success.
func (s *service) runJoin(m meeting.Meeting) error {
	if err := s.joiner.Start(); err != nil {
		s.finish(m, false)
		return err
	}
	if err := s.joiner.Join(m); err != nil {
		s.finish(m, false)
		return err
	}

	writer, err := transcript.NewWriter(s.transcriptDir, m.ID, time.Now())
	if err != nil {
		log.Errorf("transcript writer failed | meeting: %s, error: %v", m.ID, err)
	}

	recordingOn := false
	if s.recorder != nil && s.recorder.Available() {
		if _, err := s.recorder.Start(m.ID); err != nil {
			log.Warnf("recording failed to start | meeting: %s, error: %v", m.ID, err)
		} else {
			recordingOn = true
		}
	}

	s.lock.Lock()
	if sid, ok := s.byMeetingID[m.ID]; ok {
		state := s.sessions[sid]
		state.writer = writer
		state.session.Meeting.Joined = true
		state.session.Recording = recordingOn
		state.session.Transcribing = writer != nil
	}
	s.lock.Unlock()
	return nil
}

// handleSegment runs for every caption line the joiner captures.
func (s *service) handleSegment(meetingID, speaker, text, timestamp string) {
	at := time.Now()
	if ts, err := time.Parse(time.RFC3339, timestamp); err == nil {
		at = ts.Local()
	}

	s.lock.Lock()
	sid, ok := s.byMeetingID[meetingID]
	var writer *transcript.Writer
	if ok {
		state := s.sessions[sid]
		writer = state.writer
		state.session.Segments++
	}
	s.lock.Unlock()
	if !ok {
		return
	}

	if writer != nil {
		writer.Append(speaker, text, at)
	}
	if s.hub != nil {
		s.hub.Broadcast(meeting.TranscriptSegment{
			MeetingID: meetingID,
			Timestamp: at.Format("15:04:05"),
			Speaker:   speaker,
			Text:      text,
		})
	}
}

// handleEnd runs when the joiner's monitor declares the meeting over.
func (s *service) handleEnd(m meeting.Meeting, kicked bool) {
	s.finish(m, kicked)
}

// finish stops capture, exports the transcript and records the artifacts.
func (s *service) finish(m meeting.Meeting, kicked bool) {
	now := time.Now()

	s.lock.Lock()
	sid, ok := s.byMeetingID[m.ID]
	if !ok {
		s.lock.Unlock()
		return
	}
	state := s.sessions[sid]
	delete(s.byMeetingID, m.ID)
	state.session.EndedAt = &now
	state.session.Meeting.Completed = true
	state.session.Meeting.Kicked = kicked
	state.session.Recording = false
	state.session.Transcribing = false
	writer := state.writer
	uploader := s.uploader
	s.lock.Unlock()

	log.Infof("closing session | title: %s, kicked: %t", m.Title, kicked)

	var recInfo *recording.Info
	if s.recorder != nil && s.recorder.Recording(m.ID) {
		if info, err := s.recorder.Stop(m.ID); err == nil {
			recInfo = &info
		} else {
			log.Warnf("stop recording failed | meeting: %s, error: %v", m.ID, err)
		}
	}

	if writer == nil {
		return
	}
	if err := writer.Close(now); err != nil {
		log.Errorf("close transcript failed | meeting: %s, error: %v", m.ID, err)
	}
	export := writer.Export(m, now)

	// Manual joins can carry their own bucket credentials.
	if m.S3 != nil {
		custom, err := upload.NewS3Uploader(upload.S3Config{
			Region:          m.S3.Region,
			Bucket:          m.S3.Bucket,
			AccessKeyID:     m.S3.AccessKeyID,
			SecretAccessKey: m.S3.SecretAccessKey,
		})
		if err != nil {
			log.Errorf("per-meeting uploader failed | meeting: %s, error: %v", m.ID, err)
		} else {
			uploader = custom
		}
	}

	s3Path := s.uploadArtifacts(m, export, writer.Path(), recInfo, uploader, now)
	if s3Path != "" && s.store != nil {
		err := s.store.Save(store.Record{
			MeetingID:  m.ID,
			MeetingURL: m.URL,
			Title:      m.Title,
			Platform:   string(m.Platform),
			S3Path:     s3Path,
			AddedAt:    now,
		})
		if err != nil {
			log.Errorf("store save failed | meeting: %s, error: %v", m.ID, err)
		}
	}

	s.notifyWebhooks(export)
}

// uploadArtifacts pushes the JSON export, the raw transcript file and the
// recording to S3 and returns the export's object URL, or "" when no
// uploader is configured.
func (s *service) uploadArtifacts(m meeting.Meeting, export transcript.Export, transcriptPath string, recInfo *recording.Info, uploader upload.Uploader, now time.Time) string {
	body, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		log.Errorf("export marshal failed | meeting: %s, error: %v", m.ID, err)
		return ""
	}

	if uploader == nil {
		path := filepath.Join(s.transcriptDir, fmt.Sprintf("meeting_%s_%s.json", m.ID, now.Format("20060102_150405")))
		if err := os.WriteFile(path, body, 0644); err != nil {
			log.Errorf("local export failed | meeting: %s, error: %v", m.ID, err)
			return ""
		}
		log.Infof("transcription exported locally | meeting: %s, path: %s", m.ID, path)
		return ""
	}

	key := upload.MeetingJSONKey(m.ID, now)
	if err := uploader.Upload(key, "application/json", bytes.NewReader(body)); err != nil {
		log.Errorf("export upload failed | meeting: %s, error: %v", m.ID, err)
		return ""
	}
	s3Path := uploader.URL(key)
	log.Infof("transcription uploaded | meeting: %s, s3: %s", m.ID, s3Path)

	if transcriptPath != "" {
		if err := s.uploadTranscript(uploader, m.ID, transcriptPath, now); err != nil {
			log.Warnf("transcript upload failed | meeting: %s, error: %v", m.ID, err)
		}
	}

	if recInfo != nil {
		if err := s.uploadRecording(uploader, recInfo, now); err != nil {
			log.Warnf("recording upload failed | meeting: %s, error: %v", m.ID, err)
		}
	}
	return s3Path
}

func (s *service) uploadTranscript(uploader upload.Uploader, meetingID, path string, now time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := upload.TranscriptKey(meetingID, now)
	if err := uploader.Upload(key, "text/plain", f); err != nil {
		return err
	}
	log.Infof("transcript uploaded | meeting: %s, s3: %s", meetingID, uploader.URL(key))
	return nil
}

func (s *service) uploadRecording(uploader upload.Uploader, info *recording.Info, now time.Time) error {
	f, err := os.Open(info.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := upload.RecordingKey(info.MeetingID, now)
	if err := uploader.Upload(key, "video/mp4", f); err != nil {
		return err
	}
	log.Infof("recording uploaded | meeting: %s, s3: %s", info.MeetingID, uploader.URL(key))
	return nil
}

var webhookClient = &http.Client{Timeout: 5 * time.Second}

// notifyWebhooks POSTs the export to each configured endpoint.
func (s *service) notifyWebhooks(export transcript.Export) {
	if len(s.webhooks) == 0 {
		return
	}
	body, err := json.Marshal(export)
	if err != nil {
		return
	}
	for _, url := range s.webhooks {
		resp, err := webhookClient.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Errorf("webhook failed | url: %s, error: %v", url, err)
			continue
		}
		resp.Body.Close()
		log.Debugf("webhook notified | url: %s, status: %d", url, resp.StatusCode)
	}
}

func (s *service) Leave(ctx context.Context, sessionID string) error {
	s.lock.Lock()
	state, ok := s.sessions[sessionID]
	var sess meeting.Session
	if ok {
		sess = state.session
	}
	s.lock.Unlock()
	if !ok || !sess.Active() {
		return ErrSessionNotFound
	}

	// Closing the tab triggers the monitor's cleanup path, which runs the
	// full export through handleEnd.
	if !s.joiner.Leave(sess.Meeting.URL) {
		// Tab already gone; finalize directly.
		s.finish(sess.Meeting, false)
	}
	return nil
}

func (s *service) Sessions() []meeting.Session {
	s.lock.Lock()
	defer s.lock.Unlock()

	sessions := make([]meeting.Session, 0, len(s.sessions))
	for _, state := range s.sessions {
		sessions = append(sessions, state.session)
	}
	return sessions
}

func (s *service) Session(sessionID string) (meeting.Session, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return meeting.Session{}, false
	}
	return state.session, true
}

func (s *service) ActiveCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	count := 0
	for _, state := range s.sessions {
		if state.session.Active() {
			count++
		}
	}
	return count
}

func (s *service) Shutdown() {
	log.Info("shutting down session service")

	s.lock.Lock()
	var meetings []meeting.Meeting
	for _, state := range s.sessions {
		if state.session.Active() {
			meetings = append(meetings, state.session.Meeting)
		}
	}
	s.lock.Unlock()

	for _, m := range meetings {
		s.finish(m, false)
	}
	if s.recorder != nil {
		s.recorder.StopAll()
	}
	s.joiner.Stop()
}

