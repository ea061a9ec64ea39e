package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soniqlabs/meetbot/pkg/auth"
	"github.com/soniqlabs/meetbot/pkg/meeting"
	"github.com/soniqlabs/meetbot/pkg/scheduler"
	"github.com/soniqlabs/meetbot/pkg/session"
	"github.com/soniqlabs/meetbot/pkg/store"
)

var ErrEmptyFields = errors.New("one or more fields is empty")

type botController struct {
	sessions  session.Service
	scheduler *scheduler.Scheduler
	store     store.Store
	auth      *auth.Manager
}

func NewBotController(sessions session.Service, sched *scheduler.Scheduler, st store.Store, manager *auth.Manager) botController {
	return botController{
		sessions:  sessions,
		scheduler: sched,
		store:     st,
		auth:      manager,
	}
}

type JoinMeetingRequest struct {
	MeetingURL      string `json:"meeting_url"`
	BotName         string `json:"bot_name"`
	Title           string `json:"title"`
	CaptionLanguage string `json:"caption_language"`
	DurationMinutes int    `json:"duration_minutes"`

	S3BucketName      string `json:"s3_bucket_name"`
	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
	S3Region          string `json:"s3_region"`
}

type JoinMeetingResponse struct {
	SessionID string `json:"session_id"`
	MeetingID string `json:"meeting_id"`
	Platform  string `json:"platform"`
	Status    string `json:"status"`
}

func (bc *botController) JoinMeeting(c echo.Context) error {
	// Bind request data
	data := new(JoinMeetingRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	// Sanitise request
	if data.MeetingURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	if meeting.DetectPlatform(data.MeetingURL) == meeting.PlatformUnknown {
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("unsupported meeting URL"))
	}

	req := session.JoinRequest{
		URL:             data.MeetingURL,
		Title:           data.Title,
		BotName:         data.BotName,
		CaptionLanguage: data.CaptionLanguage,
		DurationMinutes: data.DurationMinutes,
	}
	if data.S3BucketName != "" {
		req.S3 = &meeting.S3Override{
			Bucket:          data.S3BucketName,
			AccessKeyID:     data.S3AccessKeyID,
			SecretAccessKey: data.S3SecretAccessKey,
			Region:          data.S3Region,
		}
	}

	// Call service
	sess, err := bc.sessions.Join(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyInMeeting) {
			return echo.NewHTTPError(http.StatusConflict, err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusAccepted, JoinMeetingResponse{
		SessionID: sess.SessionID,
		MeetingID: sess.Meeting.ID,
		Platform:  string(sess.Meeting.Platform),
		Status:    "joining",
	})
}

type StatusResponse struct {
	Status            string                         `json:"status"`
	ActiveSessions    int                            `json:"active_sessions"`
	ScheduledMeetings int                            `json:"scheduled_meetings"`
	SchedulerRunning  bool                           `json:"scheduler_running"`
	Providers         map[string]auth.ProviderStatus `json:"providers"`
	Time              string                         `json:"time"`
}

func (bc *botController) Status(c echo.Context) error {
	resp := StatusResponse{
		Status:         "ok",
		ActiveSessions: bc.sessions.ActiveCount(),
		Time:           time.Now().Format(time.RFC3339),
	}
	if bc.scheduler != nil {
		resp.ScheduledMeetings = bc.scheduler.ScheduledCount()
		resp.SchedulerRunning = bc.scheduler.Running()
	}
	if bc.auth != nil {
		resp.Providers = bc.auth.Status()
	}
	return c.JSON(http.StatusOK, resp)
}

func (bc *botController) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, bc.sessions.Sessions())
}

func (bc *botController) EndSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	err := bc.sessions.Leave(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusOK)
}

type MeetingsResponse struct {
	Scheduled []scheduler.JobInfo `json:"scheduled"`
	Processed []store.Record      `json:"processed"`
}

// ListMeetings returns upcoming scheduled joins and already processed
// meetings from the store.
func (bc *botController) ListMeetings(c echo.Context) error {
	resp := MeetingsResponse{
		Scheduled: []scheduler.JobInfo{},
		Processed: []store.Record{},
	}
	if bc.scheduler != nil {
		resp.Scheduled = bc.scheduler.Jobs()
	}
	if bc.store != nil {
		records, err := bc.store.All()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err)
		}
		resp.Processed = records
	}
	return c.JSON(http.StatusOK, resp)
}

type PollResponse struct {
	Found     int `json:"found"`
	Scheduled int `json:"scheduled"`
}

// Poll triggers an immediate calendar poll instead of waiting for the
// next scheduler tick.
func (bc *botController) Poll(c echo.Context) error {
	if bc.scheduler == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, errors.New("scheduler not configured"))
	}

	found, err := bc.scheduler.PollNow(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, PollResponse{
		Found:     len(found),
		Scheduled: bc.scheduler.ScheduledCount(),
	})
}
