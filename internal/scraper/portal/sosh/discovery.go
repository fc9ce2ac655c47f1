package sosh

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"go.uber.org/zap"
)

// ListingPage is the page surface invoice discovery drives.
type ListingPage interface {
	ObserveResponses(ctx context.Context, match func(url string) bool, sink func(browser.CapturedResponse)) (stop func(), err error)
	NavigateAndSettle(ctx context.Context, url string, idleTimeout time.Duration) error
	Snapshot(ctx context.Context) (*browser.Snapshot, error)
}

// responseQueue is append-only while the observer runs and drained once
// after it stops.
type responseQueue struct {
	mu    sync.Mutex
	items []browser.CapturedResponse
}

func (q *responseQueue) push(r browser.CapturedResponse) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

func (q *responseQueue) drain() []browser.CapturedResponse {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Discoverer collects the invoice list of one listing page visit.
type Discoverer struct {
	invoiceURL  *regexp.Regexp
	invoiceLink *regexp.Regexp
	idle        time.Duration
	grace       time.Duration
	logger      *zap.Logger
}

func NewDiscoverer(invoiceURL, invoiceLink *regexp.Regexp, idle, grace time.Duration, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		invoiceURL:  invoiceURL,
		invoiceLink: invoiceLink,
		idle:        idle,
		grace:       grace,
		logger:      logger,
	}
}

// Discover sniffs invoice data from the listing page's own XHR/fetch
// traffic. Only when that yields nothing are the page's anchors scanned.
// The result is deduplicated by document URL.
func (d *Discoverer) Discover(ctx context.Context, page ListingPage, listingURL string) ([]portal.InvoiceRecord, error) {
	queue := &responseQueue{}
	stop, err := page.ObserveResponses(ctx, d.invoiceURL.MatchString, queue.push)
	if err != nil {
		return nil, fmt.Errorf("%w: observe responses: %v", portal.ErrDiscoveryFailed, err)
	}
	stopped := false
	defer func() {
		if !stopped {
			stop()
		}
	}()

	if err := page.NavigateAndSettle(ctx, listingURL, d.idle); err != nil {
		return nil, fmt.Errorf("%w: %v", portal.ErrDiscoveryFailed, err)
	}
	d.logger.Info("facture_page_loaded", zap.String("url", listingURL))

	// Late asynchronous calls
	if err := browser.Sleep(ctx, d.grace); err != nil {
		return nil, err
	}
	stop()
	stopped = true

	records := d.reduce(queue.drain())

	if len(records) == 0 {
		d.logger.Info("fallback_dom_scrape")
		snap, err := page.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot: %v", portal.ErrDiscoveryFailed, err)
		}
		records, err = ExtractAnchors(snap.HTML, snap.URL, d.invoiceLink)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", portal.ErrDiscoveryFailed, err)
		}
	}

	unique := Dedupe(records)
	d.logger.Info("invoices_parsed", zap.Int("count", len(unique)))
	return unique, nil
}

func (d *Discoverer) reduce(responses []browser.CapturedResponse) []portal.InvoiceRecord {
	var records []portal.InvoiceRecord
	for _, res := range responses {
		payload := ClassifyPayload(res.Body)
		if payload.Kind == PayloadUnrecognized {
			continue
		}
		d.logger.Info("xhr_captured",
			zap.String("url", res.URL),
			zap.Stringer("kind", payload.Kind),
			zap.Int("entries", len(payload.Entries)),
		)
		records = append(records, payload.Records()...)
	}
	return records
}
