package sosh

import "github.com/grez-lucas/sosh-invoices/internal/scraper/browser"

// Candidate controls of the Orange login flow, in priority order. The
// first matcher that hits wins.
//
// Text patterns are JS regex literals matched against the element text,
// so the CSS part stays narrow: a bare "*" would match <html> first.
var (
	// Public site (www.sosh.fr)
	CookieAcceptButton = []browser.Matcher{
		{CSS: "button, [role='button']", Text: "/tout accepter/i"},
		{CSS: "button, [role='button']", Text: "/accepter/i"},
		{CSS: "button, [role='button']", Text: `/^\s*ok\s*$/i`},
	}
	SignInLink = []browser.Matcher{
		{CSS: "a, [role='link']", Text: "/identifiez-vous/i"},
	}
	LoginFallbackLink = []browser.Matcher{
		{CSS: "a[href*='identification']"},
		{CSS: "a[href*='login']"},
	}

	// Login portal (login.orange.fr)
	IdentifierField = []browser.Matcher{
		{CSS: `input[name="login"]`},
		{CSS: "input#login"},
		{CSS: `input[type="email"]`},
		{CSS: `input[type="text"][name*="login"]`},
		{CSS: `input[name*="ident"]`},
	}
	ContinueButton = []browser.Matcher{
		{CSS: "button, [role='button']", Text: "/continuer|suivant|valider/i"},
	}
	// Some flow variants default to a passwordless mode and need an explicit
	// switch before the password field is rendered.
	PasswordModeControl = []browser.Matcher{
		{CSS: "button, a, [role='button'], span, p", Text: "/identifier avec votre mot de passe/i"},
		{CSS: "button, [role='button']", Text: "/mot de passe|password/i"},
		{CSS: "a, [role='link']", Text: "/mot de passe|password/i"},
		{CSS: "span, p, label", Text: "/s['’]identifier.*mot de passe/i"},
		{CSS: "span, p, label", Text: "/mot de passe/i"},
	}
	PasswordField = []browser.Matcher{
		{CSS: "#password-label"},
		{CSS: `input[type="password"]`},
		{CSS: `input[autocomplete="current-password"]`},
		{CSS: `input[name="password"]`},
		{CSS: `input[id="password"]`},
		{CSS: `input[name*="pass"]`},
		{CSS: `input[id*="pass"]`},
		{CSS: `input[name*="code"]`},
		{CSS: `input[id*="code"]`},
	}
	SubmitButton = []browser.Matcher{
		{CSS: "button, [role='button']", Text: "/se connecter|connexion|valider/i"},
	}

	// Challenge markers probed right after submission
	OTPInput = []browser.Matcher{
		{CSS: "input[name*='otp']"},
		{CSS: "input[name*='code']"},
		{CSS: "input[autocomplete='one-time-code']"},
	}
	CaptchaFrame = []browser.Matcher{
		{CSS: "iframe[src*='captcha']"},
		{CSS: "iframe[src*='recaptcha']"},
	}
)
