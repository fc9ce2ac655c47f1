package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeouts caps the page operations rod would otherwise keep waiting on for
// as long as the run context lives. Zero fields take the defaults.
type Timeouts struct {
	// Navigation bounds a navigation together with its load event.
	Navigation time.Duration
	// Fill bounds focusing and typing into one field.
	Fill time.Duration
	// Settle bounds the DOM stability wait before a snapshot. A page whose
	// DOM never stops changing is serialized as it is when it runs out.
	Settle time.Duration
}

const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultFillTimeout       = 30 * time.Second
	DefaultSettleTimeout     = 5 * time.Second
)

func (t Timeouts) withDefaults() Timeouts {
	if t.Navigation <= 0 {
		t.Navigation = DefaultNavigationTimeout
	}
	if t.Fill <= 0 {
		t.Fill = DefaultFillTimeout
	}
	if t.Settle <= 0 {
		t.Settle = DefaultSettleTimeout
	}
	return t
}

// within runs op under a context that ends after d. When that bound is what
// stopped op, the error wraps ErrWaitTimeout; a cancelled parent is reported
// as is.
func within(ctx context.Context, d time.Duration, what string, op func(ctx context.Context) error) error {
	bctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := op(bctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(bctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", what, ErrWaitTimeout, d)
	}
	return fmt.Errorf("%s: %w", what, err)
}
