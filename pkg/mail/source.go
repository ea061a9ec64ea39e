// Package mail discovers upcoming online meetings from the user's mail and
// calendar providers.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soniqlabs/meetbot/pkg/auth"
	"github.com/soniqlabs/meetbot/pkg/meeting"
)

// Source is one provider of upcoming meetings.
type Source interface {
	Provider() auth.Provider
	Authenticated() bool
	// Meetings returns upcoming online meetings within the lookahead
	// window, deduplicated within the source.
	Meetings(ctx context.Context, lookahead time.Duration) ([]meeting.Meeting, error)
}

// getJSON performs an authenticated GET and decodes the JSON response.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
