package browser

import (
	"time"

	"github.com/go-rod/rod"
)

const domStableDiff = 0.01

// WaitForIFrames recursively waits for DOM stability on all visible iframes.
// This ensures that iframe content is fully loaded before interaction.
// Every wait runs under page's context, so a deadline there bounds the
// whole walk.
func WaitForIFrames(page *rod.Page, settle time.Duration) {
	_ = page.WaitDOMStable(settle, domStableDiff)

	ctx := page.GetContext()
	for _, frame := range ChildFrames(page, true) {
		if ctx.Err() != nil {
			return
		}
		WaitForIFrames(frame.Context(ctx), settle)
	}
}

// ChildFrames returns the accessible frames embedded directly in page, in
// document order. With visibleOnly set, hidden iframes are skipped.
func ChildFrames(page *rod.Page, visibleOnly bool) []*rod.Page {
	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil
	}

	frames := make([]*rod.Page, 0, len(iframes))
	for _, iframe := range iframes {
		if visibleOnly {
			if visible, _ := iframe.Visible(); !visible {
				continue
			}
		}
		frame, err := iframe.Frame()
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}
