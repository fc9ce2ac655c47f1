package sosh

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/grez-lucas/sosh-invoices/internal/config"
	"github.com/grez-lucas/sosh-invoices/internal/logging"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"go.uber.org/zap"
)

// LoginPage is the page surface the authentication flow drives.
type LoginPage interface {
	browser.Framed
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	WaitURL(ctx context.Context, re *regexp.Regexp, timeout time.Duration) error
	PressEnter(ctx context.Context) error
}

// Authenticator moves a page from wherever it is to the customer area.
type Authenticator struct {
	gates     GatePatterns
	postLogin *regexp.Regexp
	entryURL  string
	loginURL  string
	timeouts  config.TimeoutConfig
	poll      time.Duration
	logger    *zap.Logger
}

func NewAuthenticator(p config.PortalConfig, t config.TimeoutConfig, logger *zap.Logger) (*Authenticator, error) {
	gates, err := CompileGatePatterns(p)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		gates:     gates,
		postLogin: gates.PostLogin(),
		entryURL:  p.EntryURL,
		loginURL:  p.LoginURL,
		timeouts:  t,
		poll:      browser.DefaultPollInterval,
		logger:    logger,
	}, nil
}

// Login is a no-op when the persisted session already lands in the
// customer area. Otherwise it walks the gate: identifier, optional
// password mode switch, password, submit. An OTP or captcha prompt after
// submission aborts with portal.ErrChallengeRequired.
func (a *Authenticator) Login(ctx context.Context, page LoginPage, creds portal.Credentials) error {
	url := a.currentURL(ctx, page)
	a.logger.Info("login_if_needed_start", zap.String("url", url))

	state := DetectGate(url, a.gates)
	a.logger.Info("login_state_detected", zap.Stringer("state", state))
	if state == GateAuthenticated {
		return nil
	}

	if state != GateLogin {
		if err := a.reachGate(ctx, page); err != nil {
			return err
		}
	}

	if err := a.enterIdentifier(ctx, page, creds.Identifier); err != nil {
		return err
	}

	if a.clickIfPresent(ctx, page, ContinueButton, a.timeouts.GateClickRace, "continue_clicked") {
		a.selectPasswordMode(ctx, page)
		// The password step often renders after a short delay or navigation.
		if err := browser.Sleep(ctx, a.timeouts.ContinueSettle); err != nil {
			return err
		}
	}

	if err := a.enterPassword(ctx, page, creds.Secret); err != nil {
		return err
	}

	if err := a.submit(ctx, page); err != nil {
		return err
	}

	if err := browser.Sleep(ctx, a.timeouts.ChallengeProbeDelay); err != nil {
		return err
	}
	if err := a.probeChallenge(ctx, page); err != nil {
		return err
	}

	if err := page.WaitURL(ctx, a.postLogin, a.timeouts.PostLogin); err != nil {
		return fmt.Errorf("%w: %v", portal.ErrPostLoginTimeout, err)
	}

	url = a.currentURL(ctx, page)
	if DetectGate(url, a.gates) == GatePreAuthPortal {
		// The public site is accepted as a landing, but a rejected login can
		// redirect there too.
		a.logger.Warn("post_login_public_landing", zap.String("url", url))
	}
	a.logger.Info("login_success", zap.String("url", url))
	return nil
}

// reachGate goes through the public site to the login portal, forcing a
// direct navigation when the sign-in link does not get there in time.
func (a *Authenticator) reachGate(ctx context.Context, page LoginPage) error {
	if err := page.Navigate(ctx, a.entryURL); err != nil {
		a.logger.Warn("goto_sosh_failed", zap.Error(err))
	} else {
		a.logger.Info("goto_sosh")
	}

	a.clickIfPresent(ctx, page, CookieAcceptButton, a.timeouts.CookieAccept, "cookies_accepted")

	if !a.clickIfPresent(ctx, page, SignInLink, a.timeouts.GateClickRace, "click_identifiez_vous") {
		a.clickIfPresent(ctx, page, LoginFallbackLink, a.timeouts.GateClickRace, "click_login_fallback")
	}

	err := page.WaitURL(ctx, a.gates.Login, min(a.timeouts.GateClickRace, a.timeouts.GateURL))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	a.logger.Info("forcing_login_portal")
	if err := page.Navigate(ctx, a.loginURL); err != nil {
		return fmt.Errorf("%w: %v", portal.ErrGateUnreachable, err)
	}
	if err := page.WaitURL(ctx, a.gates.Login, a.timeouts.GateURL); err != nil {
		return fmt.Errorf("%w: %v", portal.ErrGateUnreachable, err)
	}
	return nil
}

func (a *Authenticator) enterIdentifier(ctx context.Context, page LoginPage, identifier string) error {
	field, found := browser.Locate(ctx, page, browser.Lookup{
		Name:         "identifier",
		Candidates:   IdentifierField,
		Timeout:      a.timeouts.IdentifierField,
		FrameTimeout: a.timeouts.IdentifierFieldFrame,
		PollInterval: a.poll,
	})
	a.logger.Info("login_field_found", zap.Bool("found", found))
	if !found {
		return portal.ErrIdentifierFieldNotFound
	}
	if err := field.Fill(ctx, identifier); err != nil {
		return fmt.Errorf("%w: fill: %v", portal.ErrIdentifierFieldNotFound, err)
	}
	a.logger.Info("login_filled", zap.String("login", logging.Mask(identifier)))
	return nil
}

// selectPasswordMode clicks the password-mode switch when the variant shows
// one. It gives up after PasswordModeRace; absence is not an error.
func (a *Authenticator) selectPasswordMode(ctx context.Context, page LoginPage) {
	raceCtx, cancel := context.WithTimeout(ctx, a.timeouts.PasswordModeRace)
	defer cancel()

	control, found := browser.Locate(raceCtx, page, browser.Lookup{
		Name:         "password mode",
		Candidates:   PasswordModeControl,
		Timeout:      a.timeouts.PasswordModeRace,
		PollInterval: a.poll,
	})
	if !found {
		return
	}

	clickCtx, cancelClick := context.WithTimeout(ctx, a.timeouts.PasswordMode)
	defer cancelClick()
	if err := control.Click(clickCtx); err != nil {
		a.logger.Debug("password_mode_click_failed", zap.Error(err))
		return
	}
	a.logger.Info("password_mode_click")
}

func (a *Authenticator) enterPassword(ctx context.Context, page LoginPage, secret string) error {
	field, found := browser.Locate(ctx, page, browser.Lookup{
		Name:         "password",
		Candidates:   PasswordField,
		Timeout:      a.timeouts.PasswordField,
		FrameTimeout: a.timeouts.PasswordFieldFrame,
		PollInterval: a.poll,
	})
	a.logger.Info("password_field_found", zap.Bool("found", found))
	if !found {
		return portal.ErrPasswordFieldNotFound
	}
	if err := field.Fill(ctx, secret); err != nil {
		return fmt.Errorf("%w: fill: %v", portal.ErrPasswordFieldNotFound, err)
	}
	a.logger.Info("password_filled")
	return nil
}

// submit clicks the submit control, or presses Enter when there is none.
func (a *Authenticator) submit(ctx context.Context, page LoginPage) error {
	if a.clickIfPresent(ctx, page, SubmitButton, a.timeouts.GateClickRace, "submit_clicked") {
		return nil
	}
	if err := page.PressEnter(ctx); err != nil {
		return fmt.Errorf("submit with enter key: %w", err)
	}
	a.logger.Info("submit_enter_key")
	return nil
}

// probeChallenge must run after every submission. It looks at the main
// document and at the first embedded frame, the same places the login
// fields are searched.
func (a *Authenticator) probeChallenge(ctx context.Context, page LoginPage) error {
	surfaces := []browser.Surface{page}
	if frames, err := page.Frames(ctx); err == nil && len(frames) > 0 {
		surfaces = append(surfaces, frames[0])
	}

	var otpPrompt, captchaFrame bool
	for _, s := range surfaces {
		if _, found := browser.Probe(ctx, s, OTPInput); found {
			otpPrompt = true
		}
		if _, found := browser.Probe(ctx, s, CaptchaFrame); found {
			captchaFrame = true
		}
	}
	if !otpPrompt && !captchaFrame {
		return nil
	}
	a.logger.Warn("otp_or_captcha_detected",
		zap.Bool("otpPrompt", otpPrompt),
		zap.Bool("captchaFrame", captchaFrame),
	)
	return portal.ErrChallengeRequired
}

// clickIfPresent clicks the first matching control in the main document
// without waiting for one to appear. It reports whether a click happened.
func (a *Authenticator) clickIfPresent(ctx context.Context, page LoginPage, candidates []browser.Matcher, timeout time.Duration, step string) bool {
	el, found := browser.Probe(ctx, page, candidates)
	if !found {
		return false
	}

	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := el.Click(clickCtx); err != nil {
		a.logger.Debug(step+"_failed", zap.Error(err))
		return false
	}
	a.logger.Info(step)
	return true
}

func (a *Authenticator) currentURL(ctx context.Context, page LoginPage) string {
	url, err := page.URL(ctx)
	if err != nil {
		a.logger.Debug("page_url_unavailable", zap.Error(err))
		return ""
	}
	return url
}
