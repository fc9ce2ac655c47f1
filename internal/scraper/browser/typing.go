package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// keystrokeDelay is the pause after each key when typing like a person:
// 50 to 150ms.
func keystrokeDelay() time.Duration {
	return time.Duration(50+rand.Intn(100)) * time.Millisecond
}

// TypeHuman sends one keydown/keyup pair per rune with a short random pause
// after each, so the login form's key listeners see someone typing.
func TypeHuman(ctx context.Context, el *rod.Element, text string) error {
	return typeRunes(ctx, el, text, keystrokeDelay)
}

// TypeFast sends the same key events without pauses.
func TypeFast(ctx context.Context, el *rod.Element, text string) error {
	return typeRunes(ctx, el, text, nil)
}

func typeRunes(ctx context.Context, el *rod.Element, text string, pause func() time.Duration) error {
	el = el.Context(ctx)
	for _, r := range text {
		if err := el.Type(input.Key(r)); err != nil {
			return fmt.Errorf("type key: %w", err)
		}
		if pause == nil {
			continue
		}
		if err := Sleep(ctx, pause()); err != nil {
			return err
		}
	}
	return nil
}
