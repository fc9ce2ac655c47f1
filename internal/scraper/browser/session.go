package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// SessionConfig controls how the persistent browser context is launched.
type SessionConfig struct {
	ProfileDir     string
	Bin            string
	Headless       bool
	Stealth        bool
	HumanTyping    bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	RequestTimeout time.Duration
	// Timeouts caps navigation, field filling and snapshot settling on
	// the run's page.
	Timeouts Timeouts

	// Hijack, when set, answers every request of the page instead of the
	// network. Tests use it to replay recordings.
	Hijack func(*rod.Hijack)
}

// Session owns a browser bound to an on-disk profile and the single page
// used by a scraping run. Cookies and tokens written to the profile survive
// process restarts, which is what keeps repeated logins from triggering
// challenges.
type Session struct {
	cfg      SessionConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *Page
	router   *rod.HijackRouter

	closeOnce sync.Once
	closeErr  error
}

// OpenSession ensures the profile directory exists, launches a browser bound
// to it and selects the run's page: the context's existing page if it has
// one, a new one otherwise. The caller must Close the session on every
// exit path.
func OpenSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := os.MkdirAll(cfg.ProfileDir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	l := launcher.New().
		Context(ctx).
		UserDataDir(cfg.ProfileDir).
		Headless(cfg.Headless).
		// CRITICAL: Disable the "Automation" internal flags
		Set("disable-blink-features", "AutomationControlled").
		Set("exclude-switches", "enable-automation").
		Set("no-first-run").
		Set("no-default-browser-check")
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight))
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s := &Session{cfg: cfg, launcher: l, browser: b}

	page, err := s.selectPage()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if cfg.Hijack != nil {
		s.router = page.HijackRequests()
		if err := s.router.Add("*", "", cfg.Hijack); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("install request hijacker: %w", err)
		}
		go s.router.Run()
	}
	s.page = NewPage(page, cfg.HumanTyping).WithTimeouts(cfg.Timeouts)
	return s, nil
}

func (s *Session) selectPage() (*rod.Page, error) {
	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	var page *rod.Page
	switch {
	case !pages.Empty():
		page = pages.First()
		if s.cfg.Stealth {
			if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
				return nil, fmt.Errorf("inject stealth script: %w", err)
			}
		}
	case s.cfg.Stealth:
		page, err = stealth.Page(s.browser)
	default:
		page, err = s.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	if s.cfg.ViewportWidth > 0 && s.cfg.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.cfg.ViewportWidth,
			Height:            s.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	return page, nil
}

// Page returns the single page of the run.
func (s *Session) Page() *Page { return s.page }

// Requester returns an HTTP client carrying the browser's current cookies,
// so document downloads reuse the authenticated session.
func (s *Session) Requester(ctx context.Context) (*HTTPRequester, error) {
	cookies, err := s.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read browser cookies: %w", err)
	}
	jar, err := JarFromCookies(cookies)
	if err != nil {
		return nil, err
	}
	return NewHTTPRequester(NewSessionClient(jar, s.cfg.UserAgent, s.cfg.RequestTimeout)), nil
}

// Screenshot writes a full-page PNG of the run's page.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	return s.page.Screenshot(ctx, path)
}

// Close releases the browser. It is safe to call more than once. The
// profile directory is left in place: launcher.Cleanup would delete it.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
	})
	return s.closeErr
}
