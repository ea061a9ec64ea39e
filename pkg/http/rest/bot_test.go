package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/soniqlabs/meetbot/pkg/meeting"
	"github.com/soniqlabs/meetbot/pkg/session"
	"github.com/soniqlabs/meetbot/pkg/upload"
)

type stubSessions struct {
	joined   []session.JoinRequest
	joinErr  error
	leaveErr error
	left     []string
	sessions []meeting.Session
}

func (s *stubSessions) Join(ctx context.Context, req session.JoinRequest) (meeting.Session, error) {
	if s.joinErr != nil {
		return meeting.Session{}, s.joinErr
	}
	s.joined = append(s.joined, req)
	return meeting.Session{
		SessionID: "sess-1",
		Meeting: meeting.Meeting{
			ID:       "meet-1",
			URL:      req.URL,
			Platform: meeting.DetectPlatform(req.URL),
		},
		StartedAt: time.Now(),
	}, nil
}

func (s *stubSessions) JoinScheduled(ctx context.Context, m meeting.Meeting) error { return nil }

func (s *stubSessions) Leave(ctx context.Context, sessionID string) error {
	if s.leaveErr != nil {
		return s.leaveErr
	}
	s.left = append(s.left, sessionID)
	return nil
}

func (s *stubSessions) Sessions() []meeting.Session               { return s.sessions }
func (s *stubSessions) Session(string) (meeting.Session, bool)    { return meeting.Session{}, false }
func (s *stubSessions) ActiveCount() int                          { return len(s.sessions) }
func (s *stubSessions) SetUploader(upload.Uploader)               {}
func (s *stubSessions) Shutdown()                                 {}

func doRequest(t *testing.T, handler echo.HandlerFunc, method, target, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	err := handler(c)
	if err != nil {
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		rec.Code = he.Code
	}
	return rec
}

func TestJoinMeetingValidation(t *testing.T) {
	bc := NewBotController(&stubSessions{}, nil, nil, nil)

	rec := doRequest(t, bc.JoinMeeting, http.MethodPost, "/api/join", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, bc.JoinMeeting, http.MethodPost, "/api/join", `{"meeting_url":"https://example.com/watch"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinMeetingAccepted(t *testing.T) {
	stub := &stubSessions{}
	bc := NewBotController(stub, nil, nil, nil)

	body := `{"meeting_url":"https://meet.google.com/abc-defg-hij","title":"Standup","duration_minutes":15,"s3_bucket_name":"custom","s3_region":"us-east-1"}`
	rec := doRequest(t, bc.JoinMeeting, http.MethodPost, "/api/join", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp JoinMeetingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "sess-1", resp.SessionID)
	require.Equal(t, "joining", resp.Status)
	require.Equal(t, "google_meet", resp.Platform)

	require.Len(t, stub.joined, 1)
	require.Equal(t, "Standup", stub.joined[0].Title)
	require.NotNil(t, stub.joined[0].S3)
	require.Equal(t, "custom", stub.joined[0].S3.Bucket)
}

func TestJoinMeetingConflict(t *testing.T) {
	bc := NewBotController(&stubSessions{joinErr: session.ErrAlreadyInMeeting}, nil, nil, nil)

	body := `{"meeting_url":"https://meet.google.com/abc-defg-hij"}`
	rec := doRequest(t, bc.JoinMeeting, http.MethodPost, "/api/join", body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatus(t *testing.T) {
	stub := &stubSessions{sessions: []meeting.Session{{SessionID: "sess-1"}}}
	bc := NewBotController(stub, nil, nil, nil)

	rec := doRequest(t, bc.Status, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, 1, resp.ActiveSessions)
	require.False(t, resp.SchedulerRunning)
}

func TestEndSession(t *testing.T) {
	stub := &stubSessions{}
	bc := NewBotController(stub, nil, nil, nil)

	rec := doRequest(t, bc.EndSession, http.MethodDelete, "/api/sessions/sess-1", "", "id", "sess-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"sess-1"}, stub.left)

	bc = NewBotController(&stubSessions{leaveErr: session.ErrSessionNotFound}, nil, nil, nil)
	rec = doRequest(t, bc.EndSession, http.MethodDelete, "/api/sessions/missing", "", "id", "missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	stub := &stubSessions{sessions: []meeting.Session{{SessionID: "sess-1"}, {SessionID: "sess-2"}}}
	bc := NewBotController(stub, nil, nil, nil)

	rec := doRequest(t, bc.ListSessions, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []meeting.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
}

func TestPollWithoutScheduler(t *testing.T) {
	bc := NewBotController(&stubSessions{}, nil, nil, nil)

	rec := doRequest(t, bc.Poll, http.MethodPost, "/api/poll", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListMeetingsEmpty(t *testing.T) {
	bc := NewBotController(&stubSessions{}, nil, nil, nil)

	rec := doRequest(t, bc.ListMeetings, http.MethodGet, "/api/meetings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MeetingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Scheduled)
	require.Empty(t, resp.Processed)
}
