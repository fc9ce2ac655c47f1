// Package browser provides utilities for browser automation with Rod.
package browser

import (
	"context"
	"time"
)

// DefaultPollInterval is how often Locate re-probes while waiting.
const DefaultPollInterval = 100 * time.Millisecond

// Matcher is one strategy for finding a control. CSS alone is a selector
// match; with Text set, the element must also match the JS regex literal
// (for example `/identifiez-vous/i`) against its text.
type Matcher struct {
	CSS  string
	Text string
}

// Element is a resolved control on the page.
type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
}

// Surface is a document that can be queried without waiting: the main page
// or one of its frames.
type Surface interface {
	// Query returns the first element matching m. ok is false when nothing
	// matches; err is reserved for driver failures.
	Query(ctx context.Context, m Matcher) (el Element, ok bool, err error)
}

// Framed is a surface that also exposes its embedded frames in document
// order.
type Framed interface {
	Surface
	Frames(ctx context.Context) ([]Surface, error)
}

// Lookup describes one control to resolve: its candidates in priority
// order and how long to wait in the main document and then in the first
// embedded frame. A zero FrameTimeout disables the frame retry.
type Lookup struct {
	Name         string
	Candidates   []Matcher
	Timeout      time.Duration
	FrameTimeout time.Duration
	PollInterval time.Duration
}

// Probe runs a single non-waiting pass over candidates. The first
// candidate that matches wins; there is no scoring.
func Probe(ctx context.Context, s Surface, candidates []Matcher) (Element, bool) {
	for _, m := range candidates {
		if ctx.Err() != nil {
			return nil, false
		}
		el, ok, err := s.Query(ctx, m)
		if err != nil || !ok {
			continue
		}
		return el, true
	}
	return nil, false
}

// Locate polls the main document until a candidate matches or Timeout
// elapses, then retries once against the first embedded frame. Absence is
// reported as ok=false, never as an error: callers decide whether it is
// fatal.
func Locate(ctx context.Context, page Framed, l Lookup) (Element, bool) {
	if el, ok := poll(ctx, page, l.Candidates, l.Timeout, l.interval()); ok {
		return el, true
	}
	if l.FrameTimeout <= 0 || ctx.Err() != nil {
		return nil, false
	}

	frames, err := page.Frames(ctx)
	if err != nil || len(frames) == 0 {
		return nil, false
	}
	return poll(ctx, frames[0], l.Candidates, l.FrameTimeout, l.interval())
}

func (l Lookup) interval() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return DefaultPollInterval
}

func poll(ctx context.Context, s Surface, candidates []Matcher, timeout, every time.Duration) (Element, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if el, ok := Probe(ctx, s, candidates); ok {
			return el, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		if err := Sleep(ctx, min(every, remaining)); err != nil {
			return nil, false
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
