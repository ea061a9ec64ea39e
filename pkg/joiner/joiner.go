// Package joiner drives a Chrome instance into meetings, keeps the bot
// muted, turns on captions and streams them back through a page binding.
package joiner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

var (
	ErrNotStarted       = errors.New("joiner not started")
	ErrAlreadyJoined    = errors.New("meeting already active")
	ErrAdmissionTimeout = errors.New("timed out waiting for meeting admission")
	ErrAdmissionDenied  = errors.New("meeting entry denied")
)

// Options tune the join behavior.
type Options struct {
	// BotName is the display name entered on guest screens.
	BotName string
	// AdmissionTimeout bounds the lobby wait. Default 10 minutes.
	AdmissionTimeout time.Duration
	// MonitorInterval is the in-meeting health check period. Default 10s.
	MonitorInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BotName == "" {
		o.BotName = "Meeting Assistant"
	}
	if o.AdmissionTimeout <= 0 {
		o.AdmissionTimeout = 10 * time.Minute
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = 10 * time.Second
	}
	return o
}

// Callbacks deliver join results to the owner.
type Callbacks struct {
	// OnSegment fires for every stable caption line.
	OnSegment func(meetingID, speaker, text, timestamp string)
	// OnEnd fires when the meeting ends or the bot is removed. It runs on
	// the monitor goroutine after the tab is closed.
	OnEnd func(m meeting.Meeting, kicked bool)
}

type tab struct {
	meeting meeting.Meeting
	ctx     context.Context
	cancel  context.CancelFunc
}

// Joiner owns one headful Chrome process and one tab per active meeting.
// Active meetings are keyed by normalized URL.
type Joiner struct {
	opts Options
	cb   Callbacks

	lock    sync.Mutex
	active  map[string]*tab
	started bool

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func New(opts Options, cb Callbacks) *Joiner {
	return &Joiner{
		opts:   opts.withDefaults(),
		cb:     cb,
		active: make(map[string]*tab),
	}
}

// allocatorOptions configure Chrome for unattended meeting capture: fake
// media devices so platforms see a muted camera, audio routed to the pulse
// sink, and automation fingerprints hidden.
func allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),

		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("use-fake-device-for-media-stream", true),
		chromedp.Flag("enable-usermedia-screen-capturing", true),
		chromedp.Flag("allow-http-screen-capture", true),

		chromedp.Flag("alsa-output-device", "default"),
		chromedp.Flag("audio-output-channels", "2"),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-background-media-suspend", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),

		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-popup-blocking", true),
	)
}

// Start launches the browser process. Calling it again is a no-op.
func (j *Joiner) Start() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.started {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Spin the browser up eagerly so failures surface here rather than on
	// the first join.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return err
	}

	j.allocCancel = allocCancel
	j.browserCtx = browserCtx
	j.browserCancel = browserCancel
	j.started = true
	log.Info("meeting joiner started")
	return nil
}

// Stop closes every tab and shuts the browser down.
func (j *Joiner) Stop() {
	j.lock.Lock()
	if !j.started {
		j.lock.Unlock()
		return
	}
	j.started = false
	for url, t := range j.active {
		t.cancel()
		delete(j.active, url)
	}
	browserCancel := j.browserCancel
	allocCancel := j.allocCancel
	j.lock.Unlock()

	browserCancel()
	allocCancel()
	log.Info("meeting joiner stopped")
}

// Join opens a tab for the meeting and runs the platform join flow. It
// blocks until the bot is admitted (or fails) and then monitors the meeting
// in the background.
func (j *Joiner) Join(m meeting.Meeting) error {
	key := meeting.NormalizeURL(m.URL)

	j.lock.Lock()
	if !j.started {
		j.lock.Unlock()
		return ErrNotStarted
	}
	if _, ok := j.active[key]; ok {
		j.lock.Unlock()
		return ErrAlreadyJoined
	}

	tabCtx, tabCancel := chromedp.NewContext(j.browserCtx)
	t := &tab{meeting: m, ctx: tabCtx, cancel: tabCancel}
	j.active[key] = t
	j.lock.Unlock()

	j.listenCaptions(t)

	var err error
	switch m.Platform {
	case meeting.PlatformTeams:
		err = j.joinTeams(t)
	case meeting.PlatformGoogleMeet:
		err = j.joinMeet(t)
	case meeting.PlatformZoom:
		err = j.joinZoom(t)
	default:
		err = meeting.ErrUnknownPlatform
	}

	if err != nil {
		log.Errorf("join failed | title: %s, platform: %s, error: %v", m.Title, m.Platform, err)
		j.remove(key)
		tabCancel()
		return err
	}

	log.Infof("joined meeting | title: %s, platform: %s", m.Title, m.Platform)
	go j.monitor(t, key)
	return nil
}

// listenCaptions wires the page binding to the OnSegment callback and
// registers it in the tab before any navigation.
func (j *Joiner) listenCaptions(t *tab) {
	chromedp.ListenTarget(t.ctx, func(ev interface{}) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != captionBinding {
			return
		}
		p, err := parseCaptionPayload(called.Payload)
		if err != nil {
			log.Debugf("bad caption payload | error: %v", err)
			return
		}
		if p.Text == "" {
			return
		}
		if j.cb.OnSegment != nil {
			j.cb.OnSegment(t.meeting.ID, p.Speaker, p.Text, p.Timestamp)
		}
	})
}

func (j *Joiner) remove(key string) {
	j.lock.Lock()
	delete(j.active, key)
	j.lock.Unlock()
}

// Leave closes the meeting tab. The monitor notices the dead context and
// runs the usual end-of-meeting callback.
func (j *Joiner) Leave(url string) bool {
	key := meeting.NormalizeURL(url)

	j.lock.Lock()
	t, ok := j.active[key]
	j.lock.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

func (j *Joiner) IsActive(url string) bool {
	j.lock.Lock()
	defer j.lock.Unlock()
	_, ok := j.active[meeting.NormalizeURL(url)]
	return ok
}

// botName prefers the name supplied on a manual join.
func (j *Joiner) botName(m meeting.Meeting) string {
	if m.BotName != "" {
		return m.BotName
	}
	return j.opts.BotName
}

func (j *Joiner) ActiveURLs() []string {
	j.lock.Lock()
	defer j.lock.Unlock()

	urls := make([]string, 0, len(j.active))
	for url := range j.active {
		urls = append(urls, url)
	}
	return urls
}

// evalBool evaluates a JS expression producing a boolean, tolerating page
// transitions by treating errors as false.
func evalBool(ctx context.Context, js string) bool {
	var res bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &res)); err != nil {
		return false
	}
	return res
}

// evalString evaluates a JS expression producing a string.
func evalString(ctx context.Context, js string) string {
	var res string
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &res)); err != nil {
		return ""
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
