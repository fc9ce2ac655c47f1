// Package sosh drives the Orange/Sosh customer area: login gate, invoice
// history discovery and document download.
package sosh

import (
	"fmt"
	"regexp"

	"github.com/grez-lucas/sosh-invoices/internal/config"
)

// GateState is where the browser sits in the authentication flow.
type GateState int

const (
	GateUnknown GateState = iota
	GateLogin
	GatePreAuthPortal
	GateAuthenticated
)

func (s GateState) String() string {
	switch s {
	case GateLogin:
		return "login"
	case GatePreAuthPortal:
		return "sosh"
	case GateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// GatePatterns classify URLs by domain.
type GatePatterns struct {
	Login    *regexp.Regexp
	Public   *regexp.Regexp
	Customer *regexp.Regexp
}

// CompileGatePatterns builds the classifier from the portal settings.
func CompileGatePatterns(p config.PortalConfig) (GatePatterns, error) {
	var (
		gp  GatePatterns
		err error
	)
	if gp.Login, err = regexp.Compile(p.LoginPattern); err != nil {
		return gp, fmt.Errorf("login pattern: %w", err)
	}
	if gp.Public, err = regexp.Compile(p.PublicPattern); err != nil {
		return gp, fmt.Errorf("public pattern: %w", err)
	}
	if gp.Customer, err = regexp.Compile(p.CustomerPattern); err != nil {
		return gp, fmt.Errorf("customer pattern: %w", err)
	}
	return gp, nil
}

// PostLogin matches either landing that counts as a completed login.
func (gp GatePatterns) PostLogin() *regexp.Regexp {
	return regexp.MustCompile("(?:" + gp.Customer.String() + ")|(?:" + gp.Public.String() + ")")
}

// DetectGate classifies url. The login portal is checked first, then the
// public site, then the customer area. Call it again after every
// navigation; the result is never cached.
func DetectGate(url string, gp GatePatterns) GateState {
	switch {
	case gp.Login.MatchString(url):
		return GateLogin
	case gp.Public.MatchString(url):
		return GatePreAuthPortal
	case gp.Customer.MatchString(url):
		return GateAuthenticated
	default:
		return GateUnknown
	}
}
