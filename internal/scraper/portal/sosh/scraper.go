package sosh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/grez-lucas/sosh-invoices/internal/config"
	"github.com/grez-lucas/sosh-invoices/internal/logging"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"go.uber.org/zap"
)

// Operations reported in portal.ScraperError.
const (
	OpOpenSession = "OpenSession"
	OpLogin       = "Login"
	OpDiscover    = "Discover"
	OpDownload    = "Download"
)

const (
	logSource         = "orange-sosh"
	successScreenshot = "factures-final.png"
	failureScreenshot = "failure.png"
)

// RunPage is the single page of a run.
type RunPage interface {
	LoginPage
	ListingPage
}

// Session is a persistent browser context with one page.
type Session interface {
	Page() RunPage
	Requester(ctx context.Context) (Requester, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// SessionOpener acquires the run's session. The crawler closes it.
type SessionOpener func(ctx context.Context, cfg browser.SessionConfig) (Session, error)

// OpenBrowserSession is the SessionOpener backed by a real browser.
func OpenBrowserSession(ctx context.Context, cfg browser.SessionConfig) (Session, error) {
	s, err := browser.OpenSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return rodSession{s}, nil
}

type rodSession struct {
	*browser.Session
}

func (s rodSession) Page() RunPage { return s.Session.Page() }

func (s rodSession) Requester(ctx context.Context) (Requester, error) {
	r, err := s.Session.Requester(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

var _ portal.InvoiceScraper = (*Crawler)(nil)

// Crawler runs the whole pipeline: session, login, discovery, download.
type Crawler struct {
	cfg         *config.Config
	logger      *zap.Logger
	openSession SessionOpener
	hijack      func(*rod.Hijack)

	auth        *Authenticator
	invoiceURL  *regexp.Regexp
	invoiceLink *regexp.Regexp
}

type Option func(*Crawler)

// WithSessionOpener replaces the browser launcher, mostly for tests.
func WithSessionOpener(open SessionOpener) Option {
	return func(c *Crawler) {
		c.openSession = open
	}
}

// WithHijacker answers the browser's requests with h, for replaying
// recorded sessions.
func WithHijacker(h func(*rod.Hijack)) Option {
	return func(c *Crawler) {
		c.hijack = h
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

func NewCrawler(cfg *config.Config, opts ...Option) (*Crawler, error) {
	c := &Crawler{
		cfg:         cfg,
		logger:      zap.NewNop(),
		openSession: OpenBrowserSession,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("source", logSource))

	var err error
	if c.auth, err = NewAuthenticator(cfg.Portal, cfg.Timeouts, c.logger); err != nil {
		return nil, err
	}
	if c.invoiceURL, err = regexp.Compile(cfg.Portal.InvoiceURLPattern); err != nil {
		return nil, fmt.Errorf("invoice url pattern: %w", err)
	}
	if c.invoiceLink, err = regexp.Compile(cfg.Portal.InvoiceLinkPattern); err != nil {
		return nil, fmt.Errorf("invoice link pattern: %w", err)
	}
	return c, nil
}

// Run executes one scraping run. The session is closed on every path. Fatal
// errors come back as *portal.ScraperError; individual download failures
// only shrink the result.
func (c *Crawler) Run(ctx context.Context, params portal.RunParams) (*portal.RunResult, error) {
	headless := c.cfg.Browser.Headless
	if params.Headless != nil {
		headless = *params.Headless
	}
	outDir := params.OutputDir
	if outDir == "" {
		outDir = c.cfg.Output.Dir
	}

	log := c.logger.With(zap.String("runId", uuid.NewString()))
	log.Info("crawler_start",
		zap.Bool("headless", headless),
		zap.String("invoiceDir", outDir),
		zap.String("contractId", params.Credentials.AccountID),
		zap.String("login", logging.Mask(params.Credentials.Identifier)),
	)

	sess, err := c.openSession(ctx, c.sessionConfig(headless))
	if err != nil {
		return nil, c.fail(ctx, log, nil, OpOpenSession, fmt.Errorf("%w: %v", portal.ErrSessionUnavailable, err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("session_close_failed", zap.Error(err))
		}
	}()

	page := sess.Page()

	auth := *c.auth
	auth.logger = log
	if err := auth.Login(ctx, page, params.Credentials); err != nil {
		return nil, c.fail(ctx, log, sess, OpLogin, err)
	}

	discoverer := NewDiscoverer(c.invoiceURL, c.invoiceLink, c.cfg.Timeouts.NetworkIdle, c.cfg.Timeouts.DiscoveryGrace, log)
	invoices, err := discoverer.Discover(ctx, page, c.cfg.Portal.ListingURL(params.Credentials.AccountID))
	if err != nil {
		return nil, c.fail(ctx, log, sess, OpDiscover, err)
	}

	requester, err := sess.Requester(ctx)
	if err != nil {
		return nil, c.fail(ctx, log, sess, OpDownload, fmt.Errorf("%w: %v", portal.ErrSessionUnavailable, err))
	}
	saved, err := NewDownloader(log).DownloadAll(ctx, requester, invoices, outDir)
	if err != nil {
		return nil, c.fail(ctx, log, sess, OpDownload, err)
	}

	c.screenshot(ctx, log, sess, successScreenshot)
	log.Info("crawler_done", zap.Int("saved", len(saved)), zap.Int("invoicesFound", len(invoices)))
	return &portal.RunResult{Downloaded: saved, DiscoveredCount: len(invoices)}, nil
}

func (c *Crawler) sessionConfig(headless bool) browser.SessionConfig {
	b := c.cfg.Browser
	return browser.SessionConfig{
		ProfileDir:     b.ProfileDir,
		Bin:            b.Bin,
		Headless:       headless,
		Stealth:        b.Stealth,
		HumanTyping:    b.HumanTyping,
		UserAgent:      b.UserAgent,
		ViewportWidth:  b.ViewportWidth,
		ViewportHeight: b.ViewportHeight,
		RequestTimeout: c.cfg.Timeouts.Download,
		Hijack:         c.hijack,
		Timeouts: browser.Timeouts{
			Navigation: c.cfg.Timeouts.Navigation,
			Fill:       c.cfg.Timeouts.Fill,
			Settle:     c.cfg.Timeouts.SnapshotSettle,
		},
	}
}

func (c *Crawler) fail(ctx context.Context, log *zap.Logger, sess Session, op string, err error) error {
	log.Error("error",
		zap.String("kind", portal.KindOf(err)),
		zap.String("operation", op),
		zap.Error(err),
	)
	if sess != nil {
		c.screenshot(ctx, log, sess, failureScreenshot)
	}
	return &portal.ScraperError{Portal: portal.PortalOrangeSosh, Operation: op, Cause: err}
}

// screenshot is best effort and only runs with debug screenshots enabled.
func (c *Crawler) screenshot(ctx context.Context, log *zap.Logger, sess Session, name string) {
	if !c.cfg.Debug.Screenshots {
		return
	}
	if err := os.MkdirAll(c.cfg.Debug.Dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(c.cfg.Debug.Dir, name)
	if err := sess.Screenshot(ctx, path); err != nil {
		log.Debug("screenshot_failed", zap.String("file", path), zap.Error(err))
		return
	}
	log.Info("screenshot_saved", zap.String("file", path))
}
