package meeting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTeamsURL(t *testing.T) {
	text := `Join here: https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc%40thread.v2/0?context=%7b%22Tid%22%3a%22x%22%7d`
	url, platform, ok := ExtractURL(text)
	require.True(t, ok)
	require.Equal(t, PlatformTeams, platform)
	require.Contains(t, url, "teams.microsoft.com/l/meetup-join/")
}

func TestExtractTeamsLiveURL(t *testing.T) {
	url, platform, ok := ExtractURL("https://teams.live.com/meet/9312345678901")
	require.True(t, ok)
	require.Equal(t, PlatformTeams, platform)
	require.Equal(t, "https://teams.live.com/meet/9312345678901", url)
}

func TestExtractZoomURL(t *testing.T) {
	url, platform, ok := ExtractURL("Zoom link https://us02web.zoom.us/j/82345678901?pwd=abc123, see you there")
	require.True(t, ok)
	require.Equal(t, PlatformZoom, platform)
	require.Equal(t, "https://us02web.zoom.us/j/82345678901?pwd=abc123", url)
}

func TestExtractGoogleMeetURL(t *testing.T) {
	url, platform, ok := ExtractURL("meet at https://meet.google.com/abc-defg-hij today")
	require.True(t, ok)
	require.Equal(t, PlatformGoogleMeet, platform)
	require.Equal(t, "https://meet.google.com/abc-defg-hij", url)
}

func TestExtractURLTrimsTrailingPunctuation(t *testing.T) {
	url, _, ok := ExtractURL("https://meet.google.com/abc-defg-hij.")
	require.True(t, ok)
	require.Equal(t, "https://meet.google.com/abc-defg-hij", url)
}

func TestExtractURLNoMatch(t *testing.T) {
	_, platform, ok := ExtractURL("lunch at the corner cafe")
	require.False(t, ok)
	require.Equal(t, PlatformUnknown, platform)
}

func TestExtractAllURLs(t *testing.T) {
	text := "https://meet.google.com/abc-defg-hij and https://us02web.zoom.us/j/111 and again https://meet.google.com/abc-defg-hij"
	urls := ExtractAllURLs(text)
	require.Len(t, urls, 2)
}

func TestDetectPlatform(t *testing.T) {
	require.Equal(t, PlatformTeams, DetectPlatform("https://teams.microsoft.com/l/meetup-join/x"))
	require.Equal(t, PlatformTeams, DetectPlatform("https://teams.live.com/meet/1"))
	require.Equal(t, PlatformZoom, DetectPlatform("https://zoom.us/j/123"))
	require.Equal(t, PlatformGoogleMeet, DetectPlatform("https://meet.google.com/abc"))
	require.Equal(t, PlatformUnknown, DetectPlatform("https://example.com"))
}

func TestNormalizeURL(t *testing.T) {
	require.Equal(t, "https://meet.google.com/abc", NormalizeURL("https://meet.google.com/abc?authuser=0"))
	require.Equal(t, "https://zoom.us/j/1", NormalizeURL("https://zoom.us/j/1/"))
	require.Equal(t, "", NormalizeURL(""))
}

func TestCleanHTML(t *testing.T) {
	require.Equal(t, "Agenda: sync up", CleanHTML("<p>Agenda:</p><b>sync</b>   up"))
	require.Equal(t, "", CleanHTML(""))
}
