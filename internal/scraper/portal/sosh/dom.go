package sosh

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
)

// ExtractAnchors scans every anchor of a rendered document and keeps those
// whose resolved href matches keyword or ends in ".pdf". Relative hrefs are
// resolved against pageURL, or against the frame address for anchors that
// come from a captured iframe.
func ExtractAnchors(html, pageURL string, keyword *regexp.Regexp) ([]portal.InvoiceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	base, _ := url.Parse(pageURL)

	var records []portal.InvoiceRecord
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := resolveHref(anchorBase(a, base), strings.TrimSpace(a.AttrOr("href", "")))
		if href == "" {
			return
		}
		if !keyword.MatchString(href) && !strings.HasSuffix(href, ".pdf") {
			return
		}
		records = append(records, portal.InvoiceRecord{
			Origin:      portal.OriginDOM,
			DocumentURL: href,
			DisplayText: strings.TrimSpace(a.Text()),
		})
	})
	return records, nil
}

// anchorBase is the document address a's href is relative to: the src of
// the innermost captured iframe holding it, else the page.
func anchorBase(a *goquery.Selection, page *url.URL) *url.URL {
	src := a.Closest("[data-captured-iframe]").AttrOr("data-iframe-src", "")
	if src == "" {
		return page
	}
	frameURL, err := url.Parse(src)
	if err != nil {
		return page
	}
	if page != nil && page.Scheme != "" {
		frameURL = page.ResolveReference(frameURL)
	}
	if frameURL.Scheme == "" {
		return page
	}
	return frameURL
}

func resolveHref(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil || base.Scheme == "" {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// Dedupe drops records without a DocumentURL and keeps the first record of
// each URL, preserving order.
func Dedupe(records []portal.InvoiceRecord) []portal.InvoiceRecord {
	seen := make(map[string]struct{}, len(records))
	unique := make([]portal.InvoiceRecord, 0, len(records))
	for _, r := range records {
		if r.DocumentURL == "" {
			continue
		}
		if _, dup := seen[r.DocumentURL]; dup {
			continue
		}
		seen[r.DocumentURL] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
