// Package recording captures the virtual display and the pulse audio sink
// with ffmpeg while the bot sits in a meeting.
package recording

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress for meeting")
	ErrNotRecording     = errors.New("no active recording for meeting")
)

// Config describes the capture sources. Defaults match the container
// environment set up by startup.sh.
type Config struct {
	Display     string
	AudioSource string
	OutputDir   string
	Resolution  string
	FrameRate   int
}

func (c Config) withDefaults() Config {
	if c.Display == "" {
		c.Display = ":99"
	}
	if c.AudioSource == "" {
		c.AudioSource = "vsink.monitor"
	}
	if c.OutputDir == "" {
		c.OutputDir = "recordings"
	}
	if c.Resolution == "" {
		c.Resolution = "1920x1080"
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	return c
}

// Info summarizes one finished capture.
type Info struct {
	RecordingID string    `json:"recording_id"`
	MeetingID   string    `json:"meeting_id"`
	Path        string    `json:"path"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	SizeBytes   int64     `json:"size_bytes"`
}

type capture struct {
	id        string
	cmd       *exec.Cmd
	path      string
	startedAt time.Time
}

// Recorder runs one ffmpeg process per recorded meeting.
type Recorder struct {
	lock   sync.Mutex
	cfg    Config
	binary string
	active map[string]*capture
}

func NewRecorder(cfg Config) *Recorder {
	return &Recorder{
		cfg:    cfg.withDefaults(),
		binary: "ffmpeg",
		active: make(map[string]*capture),
	}
}

// Available reports whether ffmpeg can be found on PATH.
func (r *Recorder) Available() bool {
	_, err := exec.LookPath(r.binary)
	return err == nil
}

func (r *Recorder) args(outputPath string) []string {
	return []string{
		"-f", "x11grab",
		"-video_size", r.cfg.Resolution,
		"-framerate", strconv.Itoa(r.cfg.FrameRate),
		"-i", r.cfg.Display,
		"-f", "pulse",
		"-i", r.cfg.AudioSource,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-loglevel", "error", "-y",
		outputPath,
	}
}

// Start begins capturing for a meeting. The output lands in
// <outputDir>/<meetingID>_<unix>/video_audio.mp4.
func (r *Recorder) Start(meetingID string) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.active[meetingID]; ok {
		return "", ErrAlreadyRecording
	}

	startedAt := time.Now()
	dir := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%s_%d", meetingID, startedAt.Unix()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording dir: %w", err)
	}
	outputPath := filepath.Join(dir, "video_audio.mp4")

	cmd := exec.Command(r.binary, r.args(outputPath)...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start ffmpeg: %w", err)
	}

	r.active[meetingID] = &capture{
		id:        shortuuid.New(),
		cmd:       cmd,
		path:      outputPath,
		startedAt: startedAt,
	}
	log.Infof("recording started | meeting: %s, output: %s", meetingID, outputPath)
	return outputPath, nil
}

// Stop interrupts ffmpeg so it finalizes the container, then waits for
// the process to exit.
func (r *Recorder) Stop(meetingID string) (Info, error) {
	r.lock.Lock()
	c, ok := r.active[meetingID]
	if !ok {
		r.lock.Unlock()
		return Info{}, ErrNotRecording
	}
	delete(r.active, meetingID)
	r.lock.Unlock()

	// SIGINT lets ffmpeg write the trailer. SIGKILL would corrupt the file.
	if err := c.cmd.Process.Signal(syscall.SIGINT); err != nil {
		log.Warnf("ffmpeg signal failed | meeting: %s, error: %v", meetingID, err)
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			// ffmpeg exits non-zero when interrupted; the file is still valid.
			log.Debugf("ffmpeg exited | meeting: %s, result: %v", meetingID, err)
		}
	case <-time.After(10 * time.Second):
		log.Warnf("ffmpeg did not exit, killing | meeting: %s", meetingID)
		c.cmd.Process.Kill()
		<-done
	}

	info := Info{
		RecordingID: c.id,
		MeetingID:   meetingID,
		Path:        c.path,
		StartedAt:   c.startedAt,
		EndedAt:     time.Now(),
	}
	if stat, err := os.Stat(c.path); err == nil {
		info.SizeBytes = stat.Size()
	}
	log.Infof("recording stopped | meeting: %s, duration: %s, size: %d bytes",
		meetingID, info.EndedAt.Sub(info.StartedAt).Round(time.Second), info.SizeBytes)
	return info, nil
}

// Recording reports whether a capture is active for the meeting.
func (r *Recorder) Recording(meetingID string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	_, ok := r.active[meetingID]
	return ok
}

// StopAll ends every active capture, used during shutdown.
func (r *Recorder) StopAll() {
	r.lock.Lock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.lock.Unlock()

	for _, id := range ids {
		if _, err := r.Stop(id); err != nil && !errors.Is(err, ErrNotRecording) {
			log.Errorf("stop recording failed | meeting: %s, error: %v", id, err)
		}
	}
}
