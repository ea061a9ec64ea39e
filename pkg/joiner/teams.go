package joiner

import (
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/labstack/gommon/log"
)

// teamsWebURL forces the browser client so the desktop app prompt never
// appears.
func teamsWebURL(url string) string {
	if strings.Contains(url, "webjoin=true") {
		return url
	}
	connector := "?"
	if strings.Contains(url, "?") {
		connector = "&"
	}
	return url + connector + "webjoin=true"
}

func (j *Joiner) joinTeams(t *tab) error {
	m := t.meeting
	url := teamsWebURL(m.URL)
	log.Infof("navigating to Teams meeting | url: %s", url)

	if err := chromedp.Run(t.ctx,
		runtime.AddBinding(captionBinding),
		chromedp.Navigate(url),
	); err != nil {
		return err
	}

	// Teams takes a while to settle into the pre-join screen.
	sleepCtx(t.ctx, 20*time.Second)

	j.teamsHandlePermissionDialog(t)
	j.teamsDismissOverlays(t)
	sleepCtx(t.ctx, 3*time.Second)

	botName := j.botName(t.meeting)
	if sel := evalString(t.ctx, fillFirstVisibleJS(teamsNameInputSelectors, botName)); sel != "" {
		log.Infof("entered bot name | name: %s, selector: %s", botName, sel)
	} else {
		log.Warn("name input not found on Teams pre-join screen")
	}

	if res := evalString(t.ctx, teamsCameraMicOffJS); res != "" {
		log.Debugf("pre-join devices muted | toggled: %s", res)
	}
	sleepCtx(t.ctx, time.Second)

	if !j.teamsClickJoin(t) {
		sleepCtx(t.ctx, 2*time.Second)
		if !j.teamsClickJoin(t) {
			log.Warn("join button not clicked, waiting for admission anyway")
		}
	}

	if err := j.teamsWaitForAdmission(t); err != nil {
		return err
	}
	log.Infof("admitted to Teams meeting | title: %s", m.Title)

	if !j.teamsEnableCaptions(t) {
		log.Warn("Teams captions not enabled, transcription may be empty")
	}
	if err := chromedp.Run(t.ctx, chromedp.Evaluate(teamsCaptionObserverJS, nil)); err != nil {
		return err
	}
	log.Info("Teams caption observer injected")

	go j.teamsCaptionMonitor(t)
	return nil
}

func (j *Joiner) teamsHandlePermissionDialog(t *tab) {
	allowTexts := []string{"Allow", "Allow devices", "Allow access"}
	if name := evalString(t.ctx, clickButtonByTextJS(allowTexts)); name != "" {
		log.Infof("granted device access | button: %s", name)
		sleepCtx(t.ctx, 2*time.Second)
		return
	}
	if name := evalString(t.ctx, clickButtonByTextJS([]string{"Continue without audio or video"})); name != "" {
		log.Warnf("no device access granted, audio capture may not work | button: %s", name)
		sleepCtx(t.ctx, 2*time.Second)
	}
}

func (j *Joiner) teamsDismissOverlays(t *tab) {
	chromedp.Run(t.ctx, chromedp.KeyEvent(kb.Escape))
	sleepCtx(t.ctx, 500*time.Millisecond)
	if name := evalString(t.ctx, clickButtonByTextJS(teamsDismissTexts)); name != "" {
		log.Debugf("dismissed dialog | button: %s", name)
		sleepCtx(t.ctx, 500*time.Millisecond)
	}
}

func (j *Joiner) teamsClickJoin(t *tab) bool {
	if sel := evalString(t.ctx, clickFirstVisibleJS(teamsJoinButtonSelectors)); sel != "" {
		log.Infof("clicked join button | selector: %s", sel)
		return true
	}
	if name := evalString(t.ctx, clickButtonByTextJS([]string{"Join now", "Join meeting"})); name != "" {
		log.Infof("clicked join button | text: %s", name)
		return true
	}
	return false
}

func (j *Joiner) teamsWaitForAdmission(t *tab) error {
	deadline := time.Now().Add(j.opts.AdmissionTimeout)
	lastLog := time.Now()

	for time.Now().Before(deadline) {
		if err := t.ctx.Err(); err != nil {
			return err
		}

		// A late permission dialog blocks admission detection.
		if evalBool(t.ctx, textVisibleJS([]string{"Continue without audio or video"})) {
			j.teamsHandlePermissionDialog(t)
		}

		if evalBool(t.ctx, anyVisibleJS(teamsLeaveButtonSelectors)) ||
			evalBool(t.ctx, anyVisibleJS(teamsRosterSelectors)) {
			return nil
		}
		if evalBool(t.ctx, textVisibleJS(teamsDeniedTexts)) {
			return ErrAdmissionDenied
		}

		if time.Since(lastLog) >= 10*time.Second {
			if evalBool(t.ctx, textVisibleJS(teamsLobbyTexts)) {
				log.Infof("waiting in Teams lobby | title: %s", t.meeting.Title)
			} else {
				log.Infof("waiting for Teams admission | title: %s", t.meeting.Title)
			}
			lastLog = time.Now()
		}
		sleepCtx(t.ctx, 2*time.Second)
	}
	return ErrAdmissionTimeout
}

func (j *Joiner) teamsEnableCaptions(t *tab) bool {
	if evalBool(t.ctx, anyVisibleJS(teamsCaptionContainerSelectors)) {
		return true
	}

	if sel := evalString(t.ctx, clickFirstVisibleJS(teamsMoreActionsSelectors)); sel != "" {
		sleepCtx(t.ctx, 2*time.Second)
		if evalBool(t.ctx, teamsCaptionMenuItemJS) {
			log.Info("Teams live captions enabled")
			sleepCtx(t.ctx, 2*time.Second)
			return true
		}
		chromedp.Run(t.ctx, chromedp.KeyEvent(kb.Escape))
	}
	return false
}

// teamsCaptionMonitor re-enables captions if they get turned off mid-call.
func (j *Joiner) teamsCaptionMonitor(t *tab) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if !evalBool(t.ctx, anyVisibleJS(teamsCaptionContainerSelectors)) {
				log.Info("caption container missing, re-enabling")
				j.teamsEnableCaptions(t)
			}
		}
	}
}
