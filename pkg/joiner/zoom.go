package joiner

import (
	"errors"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/labstack/gommon/log"
)

var errSignInRequired = errors.New("meeting requires sign-in and no credentials are available")

// joinZoom only gets the bot onto the meeting page. Zoom's web client has
// no stable automation path, so the join itself must be completed from the
// browser; audio capture still works once in.
func (j *Joiner) joinZoom(t *tab) error {
	m := t.meeting
	log.Infof("navigating to Zoom meeting | url: %s", m.URL)

	if err := chromedp.Run(t.ctx,
		runtime.AddBinding(captionBinding),
		chromedp.Navigate(m.URL),
	); err != nil {
		return err
	}

	log.Info("waiting for Zoom page to stabilize, complete the join flow in the browser")
	sleepCtx(t.ctx, 30*time.Second)
	return t.ctx.Err()
}
