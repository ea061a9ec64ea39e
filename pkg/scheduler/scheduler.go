// Package scheduler polls calendar sources for upcoming meetings and fires
// join/end callbacks at the right times.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

var (
	ErrDuplicateMeeting = errors.New("meeting already scheduled")
	ErrMeetingEnded     = errors.New("meeting has already ended")
	ErrTooLateToJoin    = errors.New("meeting started too long ago")
	ErrTooManyMeetings  = errors.New("concurrent meeting limit reached")
)

// Options are the scheduling tunables. Zero values fall back to defaults
// matching SCHEDULER_* environment settings.
type Options struct {
	PollInterval      time.Duration
	Lookahead         time.Duration
	JoinBefore        time.Duration
	MaxJoinAfterStart time.Duration
	MaxConcurrent     int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 40 * time.Second
	}
	if o.Lookahead <= 0 {
		o.Lookahead = 24 * time.Hour
	}
	if o.JoinBefore <= 0 {
		o.JoinBefore = time.Minute
	}
	if o.MaxJoinAfterStart <= 0 {
		o.MaxJoinAfterStart = 10 * time.Minute
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 5
	}
	return o
}

// Callbacks connect the scheduler to the rest of the bot.
type Callbacks struct {
	// Poll fetches upcoming meetings from all authenticated sources.
	Poll func(ctx context.Context, lookahead time.Duration) ([]meeting.Meeting, error)
	// OnJoin fires when it is time to join a meeting.
	OnJoin func(ctx context.Context, m meeting.Meeting)
	// OnEnd fires when a meeting's scheduled end time passes.
	OnEnd func(ctx context.Context, m meeting.Meeting)
}

type job struct {
	meeting   meeting.Meeting
	joinAt    time.Time
	endAt     time.Time
	joinTimer *time.Timer
	endTimer  *time.Timer
	joined    bool
}

// Scheduler deduplicates discovered meetings by ID and URL and owns one
// join timer and one end timer per scheduled meeting.
type Scheduler struct {
	opts Options
	cb   Callbacks

	lock   sync.Mutex
	byID   map[string]*job
	byURL  map[string]string
	active int

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	now func() time.Time
}

func New(opts Options, cb Callbacks) *Scheduler {
	return &Scheduler{
		opts:  opts.withDefaults(),
		cb:    cb,
		byID:  make(map[string]*job),
		byURL: make(map[string]string),
		now:   time.Now,
	}
}

// Start launches the background poll loop. Safe to call once.
func (s *Scheduler) Start() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.pollLoop(ctx)

	log.Infof("scheduler started | poll interval: %s, lookahead: %s", s.opts.PollInterval, s.opts.Lookahead)
}

// Stop cancels the poll loop and all pending timers.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	var done chan struct{}
	if s.running {
		s.running = false
		s.cancel()
		done = s.done
	}
	for id, j := range s.byID {
		j.joinTimer.Stop()
		j.endTimer.Stop()
		delete(s.byID, id)
		delete(s.byURL, meeting.NormalizeURL(j.meeting.URL))
	}
	s.lock.Unlock()

	if done != nil {
		<-done
		log.Info("scheduler stopped")
	}
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PollNow(ctx); err != nil {
				log.Errorf("email poll failed | error: %v", err)
			}
		}
	}
}

// PollNow runs one poll immediately and schedules everything it finds.
// Useful at startup so the first meetings do not wait a full interval.
func (s *Scheduler) PollNow(ctx context.Context) ([]meeting.Meeting, error) {
	if s.cb.Poll == nil {
		return nil, nil
	}
	meetings, err := s.cb.Poll(ctx, s.opts.Lookahead)
	if err != nil {
		return nil, err
	}

	scheduled := 0
	for _, m := range meetings {
		if err := s.Schedule(m); err == nil {
			scheduled++
		}
	}
	log.Infof("email poll complete | found: %d, newly scheduled: %d", len(meetings), scheduled)
	return meetings, nil
}

// Schedule registers a meeting for an automatic join. Duplicates (by ID or
// by URL; the same meeting often arrives from several providers), ended
// meetings and meetings too far past their start are rejected.
func (s *Scheduler) Schedule(m meeting.Meeting) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	normURL := meeting.NormalizeURL(m.URL)
	if _, ok := s.byID[m.ID]; ok {
		return ErrDuplicateMeeting
	}
	if _, ok := s.byURL[normURL]; ok {
		return ErrDuplicateMeeting
	}

	now := s.now()
	if m.HasEndedAt(now) {
		return ErrMeetingEnded
	}
	if m.HasStartedAt(now) && now.Sub(m.StartTime) > s.opts.MaxJoinAfterStart {
		return ErrTooLateToJoin
	}

	joinAt := m.StartTime.Add(-s.opts.JoinBefore)
	if joinAt.Before(now) {
		// Join window already open; go in almost immediately.
		joinAt = now.Add(5 * time.Second)
	}

	m.Scheduled = true
	j := &job{meeting: m, joinAt: joinAt, endAt: m.EndTime}
	j.joinTimer = time.AfterFunc(joinAt.Sub(now), func() { s.runJoin(m.ID) })
	j.endTimer = time.AfterFunc(m.EndTime.Sub(now), func() { s.runEnd(m.ID) })

	s.byID[m.ID] = j
	s.byURL[normURL] = m.ID

	log.Infof("scheduled meeting | title: %s, join at: %s, end at: %s",
		m.Title, joinAt.Format("15:04:05"), m.EndTime.Format("15:04:05"))
	return nil
}

func (s *Scheduler) runJoin(meetingID string) {
	s.lock.Lock()
	j, ok := s.byID[meetingID]
	if !ok {
		s.lock.Unlock()
		return
	}
	if s.active >= s.opts.MaxConcurrent {
		s.lock.Unlock()
		log.Warnf("join skipped, concurrency limit reached | meeting: %s, limit: %d",
			j.meeting.Title, s.opts.MaxConcurrent)
		return
	}
	j.joined = true
	s.active++
	m := j.meeting
	s.lock.Unlock()

	log.Infof("time to join meeting | title: %s", m.Title)
	if s.cb.OnJoin != nil {
		s.cb.OnJoin(context.Background(), m)
	}
}

func (s *Scheduler) runEnd(meetingID string) {
	s.lock.Lock()
	j, ok := s.byID[meetingID]
	if !ok {
		s.lock.Unlock()
		return
	}
	s.removeLocked(meetingID, j)
	m := j.meeting
	s.lock.Unlock()

	log.Infof("meeting ending | title: %s", m.Title)
	if s.cb.OnEnd != nil {
		s.cb.OnEnd(context.Background(), m)
	}
}

// Cancel drops a scheduled meeting and stops its timers.
func (s *Scheduler) Cancel(meetingID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	j, ok := s.byID[meetingID]
	if !ok {
		return false
	}
	s.removeLocked(meetingID, j)
	log.Infof("cancelled meeting | id: %s", meetingID)
	return true
}

func (s *Scheduler) removeLocked(meetingID string, j *job) {
	j.joinTimer.Stop()
	j.endTimer.Stop()
	if j.joined && s.active > 0 {
		s.active--
	}
	delete(s.byID, meetingID)
	delete(s.byURL, meeting.NormalizeURL(j.meeting.URL))
}

// Scheduled returns all currently tracked meetings.
func (s *Scheduler) Scheduled() []meeting.Meeting {
	s.lock.Lock()
	defer s.lock.Unlock()

	meetings := make([]meeting.Meeting, 0, len(s.byID))
	for _, j := range s.byID {
		meetings = append(meetings, j.meeting)
	}
	return meetings
}

// JobInfo describes one pending timer for API introspection.
type JobInfo struct {
	MeetingID string    `json:"meeting_id"`
	Title     string    `json:"title"`
	JoinAt    time.Time `json:"join_at"`
	EndAt     time.Time `json:"end_at"`
	Joined    bool      `json:"joined"`
}

func (s *Scheduler) Jobs() []JobInfo {
	s.lock.Lock()
	defer s.lock.Unlock()

	jobs := make([]JobInfo, 0, len(s.byID))
	for id, j := range s.byID {
		jobs = append(jobs, JobInfo{
			MeetingID: id,
			Title:     j.meeting.Title,
			JoinAt:    j.joinAt,
			EndAt:     j.endAt,
			Joined:    j.joined,
		})
	}
	return jobs
}

func (s *Scheduler) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.running
}

func (s *Scheduler) ScheduledCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.byID)
}
