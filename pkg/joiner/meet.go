package joiner

import (
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/labstack/gommon/log"
)

func (j *Joiner) joinMeet(t *tab) error {
	m := t.meeting
	log.Infof("navigating to Google Meet | url: %s", m.URL)

	if err := chromedp.Run(t.ctx,
		runtime.AddBinding(captionBinding),
		chromedp.Navigate(m.URL),
	); err != nil {
		return err
	}
	sleepCtx(t.ctx, 3*time.Second)

	if name := evalString(t.ctx, clickButtonByTextJS([]string{"Continue without microphone and camera"})); name != "" {
		log.Info("continuing without microphone and camera")
		sleepCtx(t.ctx, time.Second)
	}

	j.meetMuteDevices(t)

	botName := j.botName(t.meeting)
	if sel := evalString(t.ctx, fillFirstVisibleJS(meetNameInputSelectors, botName)); sel != "" {
		log.Infof("entered guest name | name: %s", botName)
		sleepCtx(t.ctx, time.Second)
	} else if evalBool(t.ctx, textVisibleJS([]string{"Sign in to join"})) {
		return errSignInRequired
	}

	if name := evalString(t.ctx, clickButtonByTextJS(meetJoinButtonTexts)); name != "" {
		log.Infof("clicked join button | text: %s", name)
		sleepCtx(t.ctx, 2*time.Second)
	} else {
		log.Warn("no join button found, may have auto-joined")
	}

	if err := j.meetWaitForAdmission(t); err != nil {
		return err
	}
	log.Infof("admitted to Google Meet | title: %s", m.Title)

	if err := chromedp.Run(t.ctx, chromedp.Evaluate(meetCaptionObserverJS, nil)); err != nil {
		return err
	}
	log.Info("Meet caption observer injected")

	go j.meetEnsureCaptions(t)
	return nil
}

// meetMuteDevices turns the camera and microphone off on the pre-join
// screen, falling back to the Ctrl+E / Ctrl+D shortcuts.
func (j *Joiner) meetMuteDevices(t *tab) {
	if sel := evalString(t.ctx, clickFirstVisibleJS(meetCameraOffSelectors)); sel != "" {
		log.Debugf("camera turned off | selector: %s", sel)
	} else {
		chromedp.Run(t.ctx, chromedp.KeyEvent("e", chromedp.KeyModifiers(input.ModifierCtrl)))
	}
	sleepCtx(t.ctx, 500*time.Millisecond)

	if sel := evalString(t.ctx, clickFirstVisibleJS(meetMicOffSelectors)); sel != "" {
		log.Debugf("microphone turned off | selector: %s", sel)
	} else {
		chromedp.Run(t.ctx, chromedp.KeyEvent("d", chromedp.KeyModifiers(input.ModifierCtrl)))
	}
	sleepCtx(t.ctx, 500*time.Millisecond)
}

func (j *Joiner) meetWaitForAdmission(t *tab) error {
	deadline := time.Now().Add(j.opts.AdmissionTimeout)
	lastLog := time.Now()

	for time.Now().Before(deadline) {
		if err := t.ctx.Err(); err != nil {
			return err
		}
		if evalBool(t.ctx, anyVisibleJS(meetLeaveButtonSelectors)) {
			return nil
		}
		if time.Since(lastLog) >= 10*time.Second {
			log.Infof("waiting for Meet admission | title: %s", t.meeting.Title)
			lastLog = time.Now()
		}
		sleepCtx(t.ctx, 2*time.Second)
	}
	return ErrAdmissionTimeout
}

// meetEnsureCaptions keeps retrying until captions are on. The "c" shortcut
// is the most reliable path since it bypasses any overlay.
func (j *Joiner) meetEnsureCaptions(t *tab) {
	sleepCtx(t.ctx, 5*time.Second)

	for {
		if t.ctx.Err() != nil {
			return
		}
		if evalBool(t.ctx, anyVisibleJS(meetCaptionsOnSelectors)) {
			log.Info("Meet captions are on")
			return
		}

		chromedp.Run(t.ctx, chromedp.KeyEvent("c"))
		sleepCtx(t.ctx, 2*time.Second)
		if evalBool(t.ctx, anyVisibleJS(meetCaptionsOnSelectors)) {
			log.Info("Meet captions enabled via shortcut")
			return
		}

		log.Debug("captions not enabled yet, retrying")
		sleepCtx(t.ctx, 10*time.Second)
	}
}
