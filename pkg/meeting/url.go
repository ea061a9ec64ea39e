package meeting

import (
	"regexp"
	"strings"
)

// Teams publishes meeting links under several hosts and path shapes, so the
// patterns are kept per platform in match order.
var urlPatterns = []struct {
	platform Platform
	patterns []*regexp.Regexp
}{
	{PlatformTeams, []*regexp.Regexp{
		regexp.MustCompile(`(?i)https://teams\.microsoft\.com/l/meetup-join/[^\s<>"']+`),
		regexp.MustCompile(`(?i)https://teams\.microsoft\.com/meet/[^\s<>"']+`),
		regexp.MustCompile(`(?i)https://teams\.live\.com/meet/[^\s<>"']+`),
	}},
	{PlatformZoom, []*regexp.Regexp{
		regexp.MustCompile(`(?i)https://[\w-]*\.?zoom\.us/j/\d+[^\s<>"']*`),
		regexp.MustCompile(`(?i)https://[\w-]*\.?zoom\.us/my/[\w.-]+[^\s<>"']*`),
	}},
	{PlatformGoogleMeet, []*regexp.Regexp{
		regexp.MustCompile(`(?i)https://meet\.google\.com/[\w-]+`),
	}},
}

// ExtractURL scans free text (email body, event description, location) for
// the first recognizable meeting link.
func ExtractURL(text string) (string, Platform, bool) {
	if text == "" {
		return "", PlatformUnknown, false
	}
	for _, entry := range urlPatterns {
		for _, re := range entry.patterns {
			if match := re.FindString(text); match != "" {
				return strings.TrimRight(match, ".,;:"), entry.platform, true
			}
		}
	}
	return "", PlatformUnknown, false
}

// ExtractAllURLs returns every distinct meeting link found in text.
func ExtractAllURLs(text string) []string {
	if text == "" {
		return nil
	}
	var urls []string
	seen := make(map[string]bool)
	for _, entry := range urlPatterns {
		for _, re := range entry.patterns {
			for _, match := range re.FindAllString(text, -1) {
				url := strings.TrimRight(match, ".,;:")
				if !seen[url] {
					seen[url] = true
					urls = append(urls, url)
				}
			}
		}
	}
	return urls
}

func DetectPlatform(url string) Platform {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "teams.microsoft.com"), strings.Contains(lower, "teams.live.com"):
		return PlatformTeams
	case strings.Contains(lower, "zoom.us"):
		return PlatformZoom
	case strings.Contains(lower, "meet.google.com"):
		return PlatformGoogleMeet
	default:
		return PlatformUnknown
	}
}

// NormalizeURL strips tracking query parameters and trailing slashes so the
// same meeting compares equal regardless of provider decoration.
func NormalizeURL(url string) string {
	if url == "" {
		return ""
	}
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return strings.TrimRight(url, "/")
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanHTML strips tags and collapses whitespace from HTML event bodies.
func CleanHTML(text string) string {
	if text == "" {
		return ""
	}
	clean := htmlTagRe.ReplaceAllString(text, " ")
	clean = whitespaceRe.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}
