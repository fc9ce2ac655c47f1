package sosh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	loginPortalURL = "https://login.orange.fr/?return_url=espace-client"
	customerURL    = "https://espace-client.orange.fr/accueil"
)

var testCreds = portal.Credentials{
	Identifier: "user@example.com",
	Secret:     "s3cr3t-pass",
	AccountID:  "9001234567",
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	cfg := testConfig()
	a, err := NewAuthenticator(cfg.Portal, cfg.Timeouts, zap.New(core))
	require.NoError(t, err)
	a.poll = 5 * time.Millisecond
	return a, logs
}

// loginPortalPage is a page already on the login portal with both fields;
// submitting lands on the customer area.
func loginPortalPage() *fakePage {
	p := newFakePage(loginPortalURL)
	p.add("identifier", IdentifierField[0])
	p.add("password", PasswordField[1])
	submit := p.add("submit", SubmitButton[0])
	submit.onClick = func() { p.setURL(customerURL) }
	return p
}

func steps(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.All() {
		out = append(out, e.Message)
	}
	return out
}

func TestLogin_AuthenticatedSessionShortCircuits(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := newFakePage(customerURL)
	page.add("identifier", IdentifierField[0])

	err := a.Login(context.Background(), page, testCreds)

	require.NoError(t, err)
	assert.Empty(t, page.actions, "no fill or click on a valid session")
	assert.Empty(t, page.navigations)
	assert.Empty(t, page.waits)
	assert.Equal(t, []string{"login_if_needed_start", "login_state_detected"}, steps(logs))
}

func TestLogin_FromLoginPortal(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := loginPortalPage()

	err := a.Login(context.Background(), page, testCreds)

	require.NoError(t, err)
	assert.Empty(t, page.navigations, "already on the gate")
	assert.Equal(t, []string{
		"fill:identifier=user@example.com",
		"fill:password=s3cr3t-pass",
		"click:submit",
	}, page.actions)

	filled := logs.FilterMessage("login_filled").All()
	require.Len(t, filled, 1)
	assert.Equal(t, "us****om", filled[0].ContextMap()["login"])
	assert.Equal(t, 1, logs.FilterMessage("login_success").Len())
}

func TestLogin_FullFlowThroughPublicSite(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := newFakePage("about:blank")

	page.add("accept cookies", CookieAcceptButton[1])
	signIn := page.add("identifiez-vous", SignInLink[0])
	signIn.onClick = func() { page.setURL(loginPortalURL) }
	page.add("identifier", IdentifierField[2])
	page.add("continue", ContinueButton[0])
	page.add("password mode", PasswordModeControl[0])
	page.add("password", PasswordField[0])
	submit := page.add("submit", SubmitButton[0])
	submit.onClick = func() { page.setURL(customerURL) }

	err := a.Login(context.Background(), page, testCreds)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.sosh.fr/"}, page.navigations)
	assert.Equal(t, []string{
		"click:accept cookies",
		"click:identifiez-vous",
		"fill:identifier=user@example.com",
		"click:continue",
		"click:password mode",
		"fill:password=s3cr3t-pass",
		"click:submit",
	}, page.actions)
	assert.Equal(t, []string{
		"login_if_needed_start",
		"login_state_detected",
		"goto_sosh",
		"cookies_accepted",
		"click_identifiez_vous",
		"login_field_found",
		"login_filled",
		"continue_clicked",
		"password_mode_click",
		"password_field_found",
		"password_filled",
		"submit_clicked",
		"login_success",
	}, steps(logs))
}

func TestLogin_FallbackLinkWhenNoSignInLink(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := loginPortalPage()
	page.url = "https://www.sosh.fr/"
	fallback := page.add("login link", LoginFallbackLink[1])
	fallback.onClick = func() { page.setURL(loginPortalURL) }

	require.NoError(t, a.Login(context.Background(), page, testCreds))
	assert.Contains(t, page.actions, "click:login link")
	assert.Equal(t, 1, logs.FilterMessage("click_login_fallback").Len())
	assert.Zero(t, logs.FilterMessage("forcing_login_portal").Len())
}

func TestLogin_ForcesLoginPortalWhenLinkDoesNotArrive(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := loginPortalPage()
	page.url = "https://www.sosh.fr/"
	page.redirects["https://login.orange.fr/"] = loginPortalURL

	require.NoError(t, a.Login(context.Background(), page, testCreds))
	assert.Equal(t, []string{"https://www.sosh.fr/", "https://login.orange.fr/"}, page.navigations)
	assert.Equal(t, 1, logs.FilterMessage("forcing_login_portal").Len())
}

func TestLogin_GateUnreachable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePage)
	}{
		{
			name: "forced navigation lands elsewhere",
			setup: func(p *fakePage) {
				p.redirects["https://login.orange.fr/"] = "https://www.sosh.fr/maintenance"
			},
		},
		{
			name: "forced navigation fails",
			setup: func(p *fakePage) {
				p.navigateErr["https://login.orange.fr/"] = errors.New("net::ERR_NAME_NOT_RESOLVED")
			},
		},
		{
			name: "forced navigation times out",
			setup: func(p *fakePage) {
				p.navigateErr["https://login.orange.fr/"] = fmt.Errorf("navigate https://login.orange.fr/: %w after 30s", browser.ErrWaitTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAuthenticator(t)
			page := loginPortalPage()
			page.url = "chrome://newtab/"
			tt.setup(page)

			err := a.Login(context.Background(), page, testCreds)

			assert.ErrorIs(t, err, portal.ErrGateUnreachable)
			assert.Empty(t, page.actions)
		})
	}
}

func TestLogin_IdentifierFieldNotFound(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	page := newFakePage(loginPortalURL)
	page.add("password", PasswordField[1])

	err := a.Login(context.Background(), page, testCreds)

	assert.ErrorIs(t, err, portal.ErrIdentifierFieldNotFound)
	assert.Equal(t, "login_field_not_found", portal.KindOf(err))
	assert.Empty(t, page.actions)
}

func TestLogin_PasswordFieldNotFound(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	page := newFakePage(loginPortalURL)
	page.add("identifier", IdentifierField[0])
	page.add("continue", ContinueButton[0])

	err := a.Login(context.Background(), page, testCreds)

	assert.ErrorIs(t, err, portal.ErrPasswordFieldNotFound)
	assert.Equal(t, []string{"fill:identifier=user@example.com", "click:continue"}, page.actions)
}

func TestLogin_PasswordFieldInFirstFrame(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	page := newFakePage(loginPortalURL)
	page.add("identifier", IdentifierField[0])
	submit := page.add("submit", SubmitButton[0])
	submit.onClick = func() { page.setURL(customerURL) }

	framed := &fakeFrame{controls: map[browser.Matcher]*fakeControl{
		PasswordField[1]: {name: "framed password", page: page},
	}}
	page.frames = []browser.Surface{framed, &fakeFrame{}}

	require.NoError(t, a.Login(context.Background(), page, testCreds))
	assert.Contains(t, page.actions, "fill:framed password=s3cr3t-pass")
}

func TestLogin_PasswordFillFailureIsFieldNotFound(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := loginPortalPage()
	page.controls[PasswordField[1]].fillErr = fmt.Errorf("fill field: %w", browser.ErrLabelWithoutControl)

	err := a.Login(context.Background(), page, testCreds)

	assert.ErrorIs(t, err, portal.ErrPasswordFieldNotFound)
	assert.NotContains(t, page.actions, "click:submit")
	assert.Zero(t, logs.FilterMessage("password_filled").Len())
}

func TestLogin_SubmitsWithEnterWithoutSubmitControl(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := newFakePage(loginPortalURL)
	page.add("identifier", IdentifierField[0])
	page.add("password", PasswordField[1])
	page.onEnter = func() { page.setURL(customerURL) }

	require.NoError(t, a.Login(context.Background(), page, testCreds))
	assert.Equal(t, "enter", page.actions[len(page.actions)-1])
	assert.Equal(t, 1, logs.FilterMessage("submit_enter_key").Len())
}

func TestLogin_PostLoginTimeout(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	page := newFakePage(loginPortalURL)
	page.add("identifier", IdentifierField[0])
	page.add("password", PasswordField[1])
	page.add("submit", SubmitButton[0]) // stays on the login portal

	err := a.Login(context.Background(), page, testCreds)

	assert.ErrorIs(t, err, portal.ErrPostLoginTimeout)
	assert.True(t, portal.IsRetryable(err))
}

func TestLogin_ChallengeHaltsBeforeAnyWait(t *testing.T) {
	tests := []struct {
		name   string
		marker browser.Matcher
	}{
		{"captcha frame", CaptchaFrame[1]},
		{"otp input", OTPInput[2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, logs := newTestAuthenticator(t)
			page := newFakePage(loginPortalURL)
			page.add("identifier", IdentifierField[0])
			page.add("password", PasswordField[1])
			submit := page.add("submit", SubmitButton[0])
			submit.onClick = func() { page.add("challenge", tt.marker) }

			err := a.Login(context.Background(), page, testCreds)

			assert.ErrorIs(t, err, portal.ErrChallengeRequired)
			assert.False(t, portal.IsRetryable(err))
			assert.Empty(t, page.waits, "no post-login wait after a challenge")
			assert.Equal(t, 1, logs.FilterMessage("otp_or_captcha_detected").Len())
			assert.Zero(t, logs.FilterMessage("login_success").Len())
		})
	}
}

func TestLogin_ChallengeInFrameHalts(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := newFakePage(loginPortalURL)
	page.add("identifier", IdentifierField[0])

	framed := &fakeFrame{controls: map[browser.Matcher]*fakeControl{
		PasswordField[1]: {name: "framed password", page: page},
	}}
	page.frames = []browser.Surface{framed}

	// The OTP prompt replaces the password step inside the frame.
	submit := page.add("submit", SubmitButton[0])
	submit.onClick = func() {
		framed.controls[OTPInput[2]] = &fakeControl{name: "otp", page: page}
	}

	err := a.Login(context.Background(), page, testCreds)

	assert.ErrorIs(t, err, portal.ErrChallengeRequired)
	assert.False(t, portal.IsRetryable(err))
	assert.Contains(t, page.actions, "fill:framed password=s3cr3t-pass")
	assert.Empty(t, page.waits, "no post-login wait after a challenge")
	assert.Equal(t, 1, logs.FilterMessage("otp_or_captcha_detected").Len())
}

func TestLogin_PublicLandingIsFlagged(t *testing.T) {
	a, logs := newTestAuthenticator(t)
	page := loginPortalPage()
	page.controls[SubmitButton[0]].onClick = func() { page.setURL("https://www.sosh.fr/") }

	require.NoError(t, a.Login(context.Background(), page, testCreds))
	assert.Equal(t, 1, logs.FilterMessage("post_login_public_landing").Len())
}

func TestLogin_OptionalControlClickFailureIsTolerated(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	page := loginPortalPage()
	page.add("continue", ContinueButton[0]).failing = true

	require.NoError(t, a.Login(context.Background(), page, testCreds))
	assert.NotContains(t, page.actions, "click:continue")
}
