package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	jsoniter "github.com/json-iterator/go"
)

// snapshotJS serializes the rendered document without touching the live
// DOM. Open shadow roots and same-origin iframe bodies are appended as
// marked containers so one goquery parse sees every anchor:
//
//	<div data-shadow-root="true" data-shadow-host="my-el">...</div>
//	<div data-captured-iframe="true" data-iframe-src="...">...</div>
//
// Cross-origin frames are recorded with data-iframe-error.
const snapshotJS = `() => {
	const MAX_DEPTH = 50;
	const parts = [];
	let shadowCount = 0;
	let iframeCount = 0;

	function esc(v) {
		return String(v || '').replace(/&/g, '&amp;').replace(/"/g, '&quot;');
	}

	function walk(root, depth) {
		if (depth > MAX_DEPTH) return;
		for (const el of root.querySelectorAll('*')) {
			if (el.shadowRoot) {
				shadowCount++;
				parts.push('<div data-shadow-root="true" data-shadow-host="' + esc(el.tagName.toLowerCase()) + '">'
					+ el.shadowRoot.innerHTML + '</div>');
				walk(el.shadowRoot, depth + 1);
			}
			if (el.tagName === 'IFRAME') {
				let doc = null;
				try {
					doc = el.contentDocument || (el.contentWindow && el.contentWindow.document);
				} catch (e) {
					parts.push('<div data-captured-iframe="true" data-iframe-error="' + esc(e.message)
						+ '" data-iframe-src="' + esc(el.src) + '"></div>');
					continue;
				}
				if (!doc || !doc.body) continue;
				iframeCount++;
				parts.push('<div data-captured-iframe="true" data-iframe-src="' + esc(el.src) + '">'
					+ doc.body.innerHTML + '</div>');
				walk(doc, depth + 1);
			}
		}
	}

	walk(document, 0);

	return JSON.stringify({
		html: document.documentElement.outerHTML + parts.join(''),
		url: location.href,
		shadowCount: shadowCount,
		iframeCount: iframeCount
	});
}`

// Snapshot holds the serialized rendered document of a page.
type Snapshot struct {
	HTML        string `json:"html"`
	URL         string `json:"url"`
	ShadowCount int    `json:"shadowCount"`
	IframeCount int    `json:"iframeCount"`
}

// TakeSnapshot serializes page, inlining shadow roots and accessible
// iframes. If the script fails it falls back to plain page.HTML().
func TakeSnapshot(ctx context.Context, page *rod.Page) (*Snapshot, error) {
	page = page.Context(ctx)

	res, evalErr := page.Eval(snapshotJS)
	if evalErr == nil {
		var snap Snapshot
		if err := jsoniter.UnmarshalFromString(res.Value.Str(), &snap); err == nil {
			return &snap, nil
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("snapshot failed and fallback HTML failed: %w", err)
	}
	snap := &Snapshot{HTML: html}
	if info, err := page.Info(); err == nil {
		snap.URL = info.URL
	}
	return snap, nil
}

// snapshotSettle is how long each frame's DOM must stay unchanged before
// the page is serialized.
const snapshotSettle = 300 * time.Millisecond

// Snapshot serializes the wrapped page once its visible frames are stable,
// or once the settle timeout runs out, whichever comes first.
func (p *Page) Snapshot(ctx context.Context) (*Snapshot, error) {
	settleCtx, cancel := context.WithTimeout(ctx, p.timeouts.Settle)
	WaitForIFrames(p.page.Context(settleCtx), snapshotSettle)
	cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return TakeSnapshot(ctx, p.page)
}
