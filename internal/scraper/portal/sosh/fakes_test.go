package sosh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/grez-lucas/sosh-invoices/internal/config"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
)

// fakeControl is a scripted element. onClick runs after the click is
// recorded, so a control can move the page somewhere else.
type fakeControl struct {
	name    string
	page    *fakePage
	onClick func()
	failing bool
	fillErr error
}

func (c *fakeControl) Click(context.Context) error {
	if c.failing {
		return errors.New("element detached")
	}
	c.page.record("click:" + c.name)
	if c.onClick != nil {
		c.onClick()
	}
	return nil
}

func (c *fakeControl) Fill(_ context.Context, text string) error {
	if c.fillErr != nil {
		return c.fillErr
	}
	c.page.record("fill:" + c.name + "=" + text)
	return nil
}

// fakeFrame is an embedded document with its own controls.
type fakeFrame struct {
	controls map[browser.Matcher]*fakeControl
}

func (f *fakeFrame) Query(_ context.Context, m browser.Matcher) (browser.Element, bool, error) {
	if c, ok := f.controls[m]; ok {
		return c, true, nil
	}
	return nil, false, nil
}

// fakePage scripts the portal: which controls exist, where navigations
// land, what the network returns and what the rendered HTML looks like.
type fakePage struct {
	mu sync.Mutex

	url      string
	controls map[browser.Matcher]*fakeControl
	frames   []browser.Surface
	// redirects maps a navigation target to where the browser ends up.
	redirects   map[string]string
	navigateErr map[string]error

	responses []browser.CapturedResponse
	snapshot  *browser.Snapshot
	snapErr   error

	actions     []string
	navigations []string
	waits       []string
	observed    bool
	stopped     bool
	snapshots   int
	onEnter     func()
}

func newFakePage(url string) *fakePage {
	return &fakePage{
		url:         url,
		controls:    map[browser.Matcher]*fakeControl{},
		redirects:   map[string]string{},
		navigateErr: map[string]error{},
	}
}

// add registers a control answering matcher m.
func (p *fakePage) add(name string, m browser.Matcher) *fakeControl {
	c := &fakeControl{name: name, page: p}
	p.controls[m] = c
	return c
}

func (p *fakePage) record(action string) {
	p.mu.Lock()
	p.actions = append(p.actions, action)
	p.mu.Unlock()
}

func (p *fakePage) setURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

func (p *fakePage) Query(_ context.Context, m browser.Matcher) (browser.Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.controls[m]; ok {
		return c, true, nil
	}
	return nil, false, nil
}

func (p *fakePage) Frames(context.Context) ([]browser.Surface, error) {
	return p.frames, nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	if err := p.navigateErr[url]; err != nil {
		return err
	}
	if to, ok := p.redirects[url]; ok {
		p.url = to
	} else {
		p.url = url
	}
	return nil
}

func (p *fakePage) WaitURL(ctx context.Context, re *regexp.Regexp, _ time.Duration) error {
	p.mu.Lock()
	p.waits = append(p.waits, re.String())
	url := p.url
	p.mu.Unlock()
	if re.MatchString(url) {
		return nil
	}
	return fmt.Errorf("url never matched %s: %w", re, browser.ErrWaitTimeout)
}

func (p *fakePage) PressEnter(context.Context) error {
	p.record("enter")
	if p.onEnter != nil {
		p.onEnter()
	}
	return nil
}

func (p *fakePage) ObserveResponses(_ context.Context, match func(string) bool, sink func(browser.CapturedResponse)) (func(), error) {
	p.mu.Lock()
	p.observed = true
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range p.responses {
		if !match(r.URL) {
			continue
		}
		wg.Add(1)
		go func(r browser.CapturedResponse) {
			defer wg.Done()
			sink(r)
		}(r)
	}
	return func() {
		wg.Wait()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	}, nil
}

func (p *fakePage) NavigateAndSettle(ctx context.Context, url string, _ time.Duration) error {
	return p.Navigate(ctx, url)
}

func (p *fakePage) Snapshot(context.Context) (*browser.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots++
	if p.snapErr != nil {
		return nil, p.snapErr
	}
	if p.snapshot == nil {
		return &browser.Snapshot{HTML: "<html><body></body></html>", URL: p.url}, nil
	}
	return p.snapshot, nil
}

// fakeRequester serves bodies by URL; statuses default to 200.
type fakeRequester struct {
	bodies       map[string][]byte
	statuses     map[string]int
	contentTypes map[string]string
	errs         map[string]error
	fetched      []string
}

func (r *fakeRequester) Fetch(_ context.Context, url string) (*browser.Document, error) {
	r.fetched = append(r.fetched, url)
	if err := r.errs[url]; err != nil {
		return nil, err
	}
	status := 200
	if s, ok := r.statuses[url]; ok {
		status = s
	}
	contentType := "application/pdf"
	if ct, ok := r.contentTypes[url]; ok {
		contentType = ct
	}
	return &browser.Document{URL: url, Status: status, ContentType: contentType, Body: r.bodies[url]}, nil
}

type fakeSession struct {
	page        *fakePage
	requester   *fakeRequester
	closed      int
	screenshots []string
}

func (s *fakeSession) Page() RunPage { return s.page }

func (s *fakeSession) Requester(context.Context) (Requester, error) { return s.requester, nil }

func (s *fakeSession) Screenshot(_ context.Context, path string) error {
	s.screenshots = append(s.screenshots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// testConfig is the default configuration with timeouts short enough for
// unit tests.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timeouts = config.TimeoutConfig{
		IdentifierField:      30 * time.Millisecond,
		IdentifierFieldFrame: 20 * time.Millisecond,
		PasswordField:        30 * time.Millisecond,
		PasswordFieldFrame:   20 * time.Millisecond,
		GateClickRace:        10 * time.Millisecond,
		GateURL:              20 * time.Millisecond,
		PostLogin:            20 * time.Millisecond,
		PasswordMode:         10 * time.Millisecond,
		PasswordModeRace:     10 * time.Millisecond,
		ContinueSettle:       time.Millisecond,
		ChallengeProbeDelay:  time.Millisecond,
		CookieAccept:         10 * time.Millisecond,
		NetworkIdle:          20 * time.Millisecond,
		DiscoveryGrace:       time.Millisecond,
		Download:             time.Second,
		Navigation:           time.Second,
		Fill:                 time.Second,
		SnapshotSettle:       time.Second,
	}
	return cfg
}
