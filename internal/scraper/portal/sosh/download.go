package sosh

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"go.uber.org/zap"
)

// Requester fetches a document with the authenticated session.
type Requester interface {
	Fetch(ctx context.Context, url string) (*browser.Document, error)
}

const (
	defaultExt      = "pdf"
	defaultStem     = "invoice"
	maxDatePartRune = 32
)

var nonWordRun = regexp.MustCompile(`\W+`)

// documentExt maps a response media type to the saved file's extension.
// Unlisted or missing types are saved as PDF.
var documentExt = map[string]string{
	"application/pdf":   "pdf",
	"application/x-pdf": "pdf",
	"text/html":         "html",
	"application/json":  "json",
	"application/zip":   "zip",
	"image/png":         "png",
	"image/jpeg":        "jpg",
}

type Downloader struct {
	logger *zap.Logger
}

func NewDownloader(logger *zap.Logger) *Downloader {
	return &Downloader{logger: logger}
}

// DownloadAll fetches every record in order and writes the bodies under
// dir. A failed record is logged and skipped; the sequence number in the
// file name only counts successes.
func (d *Downloader) DownloadAll(ctx context.Context, req Requester, records []portal.InvoiceRecord, dir string) ([]portal.DownloadOutcome, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create invoice dir: %w", err)
	}

	outcomes := make([]portal.DownloadOutcome, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		if rec.DocumentURL == "" {
			continue
		}

		doc, err := req.Fetch(ctx, rec.DocumentURL)
		if err != nil {
			d.logger.Warn("invoice_download_failed", zap.String("url", rec.DocumentURL), zap.Error(err))
			continue
		}
		if doc.Status >= 400 {
			d.logger.Warn("invoice_download_failed", zap.String("url", rec.DocumentURL), zap.Int("status", doc.Status))
			continue
		}

		dest := filepath.Join(dir, FileName(rec, len(outcomes)+1, doc.ContentType))
		if err := os.WriteFile(dest, doc.Body, 0o644); err != nil {
			d.logger.Warn("invoice_download_failed", zap.String("url", rec.DocumentURL), zap.Error(err))
			continue
		}
		outcomes = append(outcomes, portal.DownloadOutcome{Record: rec, DestinationPath: dest})
		d.logger.Info("invoice_saved", zap.String("url", rec.DocumentURL), zap.String("file", dest))
	}
	return outcomes, nil
}

// FileName is <date-part>_<seq>.<ext>. The date part collapses every run of
// non-word characters to "_" and keeps 32 characters at most; without one
// the stem is "invoice". The extension follows the response Content-Type.
func FileName(rec portal.InvoiceRecord, seq int, contentType string) string {
	stem := nonWordRun.ReplaceAllString(rec.Date, "_")
	if r := []rune(stem); len(r) > maxDatePartRune {
		stem = string(r[:maxDatePartRune])
	}
	if stem == "" {
		stem = defaultStem
	}
	return fmt.Sprintf("%s_%d.%s", stem, seq, extension(contentType))
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultExt
	}
	if ext, ok := documentExt[mediaType]; ok {
		return ext
	}
	return defaultExt
}
