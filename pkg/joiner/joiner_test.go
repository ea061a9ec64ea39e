package joiner

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

func TestTeamsWebURL(t *testing.T) {
	require.Equal(t,
		"https://teams.microsoft.com/l/meetup-join/19%3ameeting_x/0?webjoin=true",
		teamsWebURL("https://teams.microsoft.com/l/meetup-join/19%3ameeting_x/0"))

	require.Equal(t,
		"https://teams.microsoft.com/l/meetup-join/abc?context=x&webjoin=true",
		teamsWebURL("https://teams.microsoft.com/l/meetup-join/abc?context=x"))

	// Already forced.
	url := "https://teams.live.com/meet/123?webjoin=true"
	require.Equal(t, url, teamsWebURL(url))
}

func TestParseCaptionPayload(t *testing.T) {
	p, err := parseCaptionPayload(`{"speaker":"Alice","text":"Hello there","timestamp":"2026-03-14T10:00:05Z"}`)
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Speaker)
	require.Equal(t, "Hello there", p.Text)
	require.Equal(t, "2026-03-14T10:00:05Z", p.Timestamp)

	_, err = parseCaptionPayload("not json")
	require.Error(t, err)
}

func TestScriptBuildersEscapeValues(t *testing.T) {
	js := fillFirstVisibleJS([]string{`input[type="text"]`}, `Bot "Name" <x>`)
	require.Contains(t, js, `input[type=\"text\"]`)
	require.Contains(t, js, `Bot \"Name\"`)

	js = clickButtonByTextJS([]string{"Join now"})
	require.Contains(t, js, `"Join now"`)

	// Selector lists must round-trip as valid JSON arrays.
	js = anyVisibleJS(teamsLeaveButtonSelectors)
	start := strings.Index(js, "[")
	end := strings.Index(js, "]")
	var sels []string
	require.NoError(t, json.Unmarshal([]byte(js[start:end+1]), &sels))
	require.Equal(t, teamsLeaveButtonSelectors, sels)
}

func TestLeaveSelectorsPerPlatform(t *testing.T) {
	require.Equal(t, teamsLeaveButtonSelectors, leaveSelectorsFor(meeting.PlatformTeams))
	require.Equal(t, meetLeaveButtonSelectors, leaveSelectorsFor(meeting.PlatformGoogleMeet))
	require.Equal(t, zoomLeaveButtonSelectors, leaveSelectorsFor(meeting.PlatformZoom))
}

func TestJoinRequiresStart(t *testing.T) {
	j := New(Options{}, Callbacks{})
	err := j.Join(meeting.Meeting{URL: "https://meet.google.com/abc-defg-hij", Platform: meeting.PlatformGoogleMeet})
	require.ErrorIs(t, err, ErrNotStarted)
	require.False(t, j.IsActive("https://meet.google.com/abc-defg-hij"))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	require.Equal(t, "Meeting Assistant", o.BotName)
	require.NotZero(t, o.AdmissionTimeout)
	require.NotZero(t, o.MonitorInterval)
}

func TestCaptionObserversUseBinding(t *testing.T) {
	require.Contains(t, meetCaptionObserverJS, captionBinding)
	require.Contains(t, teamsCaptionObserverJS, captionBinding)
}

func TestTeamsCameraMicOffEvaluatesToString(t *testing.T) {
	// The caller decodes the result as a string, so the script must join
	// the toggled device names rather than return an array.
	require.Contains(t, teamsCameraMicOffJS, `results.join(",")`)
}
