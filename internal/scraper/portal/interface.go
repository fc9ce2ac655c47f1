// Package portal defines the common structs and logic shared by the
// invoice portal implementations.
package portal

import "context"

type InvoiceScraper interface {
	// Run authenticates, discovers the invoice listing and downloads every
	// document it finds. The browser session is released before returning.
	Run(ctx context.Context, params RunParams) (*RunResult, error)
}

type PortalCode string

const (
	PortalOrangeSosh PortalCode = "ORANGE_SOSH"
)
