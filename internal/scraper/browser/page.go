package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

var (
	// ErrWaitTimeout is returned by bounded waits that ran out of time.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrLabelWithoutControl is returned when a <label> is filled but it is
	// not bound to any form control.
	ErrLabelWithoutControl = errors.New("label has no associated control")
)

const urlPollInterval = 100 * time.Millisecond

// Page adapts a *rod.Page to the surfaces the login flow and the invoice
// discovery drive.
type Page struct {
	page        *rod.Page
	humanTyping bool
	timeouts    Timeouts
}

// NewPage wraps page. With humanTyping set, Fill types key by key with
// random delays instead of inserting the text at once.
func NewPage(page *rod.Page, humanTyping bool) *Page {
	return &Page{page: page, humanTyping: humanTyping, timeouts: Timeouts{}.withDefaults()}
}

// WithTimeouts replaces the operation caps and returns p.
func (p *Page) WithTimeouts(t Timeouts) *Page {
	p.timeouts = t.withDefaults()
	return p
}

// Rod exposes the underlying page for tooling.
func (p *Page) Rod() *rod.Page { return p.page }

func (p *Page) Query(ctx context.Context, m Matcher) (Element, bool, error) {
	return query(ctx, p.page, m, p.humanTyping, p.timeouts.Fill)
}

// Frames returns the embedded frames of the main document.
func (p *Page) Frames(ctx context.Context) ([]Surface, error) {
	frames := ChildFrames(p.page.Context(ctx), false)
	out := make([]Surface, 0, len(frames))
	for _, f := range frames {
		out = append(out, &frameSurface{page: f, humanTyping: p.humanTyping, fillTimeout: p.timeouts.Fill})
	}
	return out, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Navigate loads url and waits for the load event, both within the
// navigation timeout.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return within(ctx, p.timeouts.Navigation, "navigate "+url, func(ctx context.Context) error {
		page := p.page.Context(ctx)
		if err := page.Navigate(url); err != nil {
			return err
		}
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("wait load: %w", err)
		}
		return nil
	})
}

// NavigateAndSettle loads url and then waits, at most idleTimeout, for the
// network to go quiet. Only the navigation itself can fail; an idle wait
// that runs out is not an error.
func (p *Page) NavigateAndSettle(ctx context.Context, url string, idleTimeout time.Duration) error {
	idleCtx, cancel := context.WithTimeout(ctx, idleTimeout)
	defer cancel()

	waitIdle := p.page.Context(idleCtx).WaitRequestIdle(
		500*time.Millisecond,
		nil,
		nil,
		[]proto.NetworkResourceType{
			proto.NetworkResourceTypeWebSocket,
			proto.NetworkResourceTypeEventSource,
			proto.NetworkResourceTypeMedia,
		},
	)
	err := within(ctx, p.timeouts.Navigation, "navigate "+url, func(ctx context.Context) error {
		return p.page.Context(ctx).Navigate(url)
	})
	if err != nil {
		return err
	}
	waitIdle()
	return ctx.Err()
}

// WaitURL polls the current URL until it matches re or timeout elapses.
func (p *Page) WaitURL(ctx context.Context, re *regexp.Regexp, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if url, err := p.URL(ctx); err == nil && re.MatchString(url) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("url never matched %s: %w", re, ErrWaitTimeout)
		}
		if err := Sleep(ctx, urlPollInterval); err != nil {
			return err
		}
	}
}

// PressEnter sends the keyboard commit action to the focused element.
func (p *Page) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Keyboard.Type(input.Enter)
}

// Screenshot writes a full-page PNG to path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	buf, err := p.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return os.WriteFile(path, buf, 0o644)
}

type frameSurface struct {
	page        *rod.Page
	humanTyping bool
	fillTimeout time.Duration
}

func (f *frameSurface) Query(ctx context.Context, m Matcher) (Element, bool, error) {
	return query(ctx, f.page, m, f.humanTyping, f.fillTimeout)
}

func query(ctx context.Context, page *rod.Page, m Matcher, humanTyping bool, fillTimeout time.Duration) (Element, bool, error) {
	page = page.Context(ctx)

	var (
		has bool
		el  *rod.Element
		err error
	)
	if m.Text == "" {
		has, el, err = page.Has(m.CSS)
	} else {
		has, el, err = page.HasR(m.CSS, m.Text)
	}
	if err != nil || !has {
		return nil, false, err
	}
	return &element{el: el, humanTyping: humanTyping, fillTimeout: fillTimeout}, true, nil
}

type element struct {
	el          *rod.Element
	humanTyping bool
	fillTimeout time.Duration
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// Fill replaces the current value of the field with text. A <label> is
// filled through the control it labels.
func (e *element) Fill(ctx context.Context, text string) error {
	return within(ctx, e.fillTimeout, "fill field", func(ctx context.Context) error {
		el, err := fillTarget(e.el.Context(ctx))
		if err != nil {
			return err
		}
		if err := el.SelectAllText(); err != nil {
			return fmt.Errorf("select field text: %w", err)
		}
		if e.humanTyping {
			return TypeHuman(ctx, el, text)
		}
		if err := el.Input(text); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Some masked inputs reject a programmatic value; key events
			// still go through.
			return TypeFast(ctx, el, text)
		}
		return nil
	})
}

// fillTarget returns the control a <label> is bound to, or el itself.
// Typing into a label would land in the document body.
func fillTarget(el *rod.Element) (*rod.Element, error) {
	tag, err := el.Eval(`() => this.tagName`)
	if err != nil {
		return nil, fmt.Errorf("read field tag: %w", err)
	}
	if !strings.EqualFold(tag.Value.Str(), "label") {
		return el, nil
	}
	control, err := el.ElementByJS(rod.Eval(`() => this.control`))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLabelWithoutControl, err)
	}
	return control, nil
}
