// capture-fixtures walks a developer through the Orange/Sosh pages the
// crawler touches and saves each as an HTML fixture, plus a HAR of the
// invoice XHR traffic seen along the way.
//
// Usage:
//
//	go run ./scripts/capture-fixtures -config=config.yaml
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grez-lucas/sosh-invoices/internal/config"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	portaltestutil "github.com/grez-lucas/sosh-invoices/internal/scraper/portal/testutil"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/testutil"
)

const (
	portalDir      = "sosh"
	listingCapture = "historique_factures"
)

// Pages to capture, in the order a login walks through them
var capturePages = []PageCapture{
	{Name: "sosh_home", Instructions: "Open https://www.sosh.fr/ (accept cookies or not)"},
	{Name: "login_identifier", Instructions: "Click 'Identifiez-vous', stop on the identifier step"},
	{Name: "login_password", Instructions: "Enter the identifier and continue, stop on the password step"},
	{Name: "login_challenge", Instructions: "If an OTP or captcha step shows up, stay on it (or skip)"},
	{Name: "espace_client", Instructions: "Finish logging in, wait for the customer area"},
	{Name: "historique_factures", Instructions: "Open the invoice history of the contract"},
}

type PageCapture struct {
	Name         string
	Instructions string
}

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	outputDir := flag.String("output", "", "Output directory (default: internal/scraper/portal/sosh/testdata/fixtures)")
	settle := flag.Duration("settle", time.Second, "DOM stability window before each capture")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outDir := *outputDir
	if outDir == "" {
		outDir = portaltestutil.FixturesDir(portalDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║           ORANGE / SOSH FIXTURE CAPTURE TOOL                   ║")
	fmt.Println("╠════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Profile: %-51s  ║\n", cfg.Browser.ProfileDir)
	fmt.Printf("║  Output: %-52s  ║\n", outDir)
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Visible browser on the crawler's own profile: captures see the same
	// session state as a real run.
	sess, err := browser.OpenSession(ctx, browser.SessionConfig{
		ProfileDir:     cfg.Browser.ProfileDir,
		Bin:            cfg.Browser.Bin,
		Headless:       false,
		Stealth:        cfg.Browser.Stealth,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
	})
	if err != nil {
		fmt.Printf("Error opening browser: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	page := sess.Page()

	invoiceURL := regexp.MustCompile(cfg.Portal.InvoiceURLPattern)
	recorded := make(chan browser.CapturedResponse, 64)
	stopObserving, err := page.ObserveResponses(ctx, invoiceURL.MatchString, func(r browser.CapturedResponse) {
		select {
		case recorded <- r:
		default:
		}
	})
	if err != nil {
		fmt.Printf("⚠️  Network observer unavailable: %v\n", err)
	}

	reader := bufio.NewReader(os.Stdin)
	var listing *browser.Snapshot

	fmt.Println("📋 Instructions:")
	fmt.Println("   - A browser window has opened")
	fmt.Println("   - Follow the prompts below")
	fmt.Println("   - Press ENTER after completing each step")
	fmt.Println("   - Type 'skip' to skip a page")
	fmt.Println("   - Type 'quit' to exit")
	fmt.Println()

	for _, capture := range capturePages {
		fmt.Println("────────────────────────────────────────────────────────────────")
		fmt.Printf("📄 Capturing: %s.html\n", capture.Name)
		fmt.Printf("📝 Instructions: %s\n", capture.Instructions)
		fmt.Print("   Press ENTER when ready (or 'skip'/'quit'): ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))

		if input == "quit" {
			fmt.Println("\n👋 Exiting...")
			break
		}
		if input == "skip" {
			fmt.Printf("   ⏭️  Skipped %s\n\n", capture.Name)
			continue
		}

		browser.WaitForIFrames(page.Rod(), *settle)

		screenshotPath := filepath.Join(outDir, capture.Name+".png")
		if err := page.Screenshot(ctx, screenshotPath); err != nil {
			fmt.Printf("   ⚠️  Screenshot failed: %v\n", err)
		} else {
			fmt.Printf("   📸 Screenshot: %s\n", screenshotPath)
		}

		snap, err := page.Snapshot(ctx)
		if err != nil {
			fmt.Printf("   ❌ Error capturing HTML: %v\n\n", err)
			continue
		}
		if snap.IframeCount > 0 || snap.ShadowCount > 0 {
			fmt.Printf("   🔲 Flattened %d iframe(s) and %d shadow root(s)\n", snap.IframeCount, snap.ShadowCount)
		}

		htmlPath := filepath.Join(outDir, capture.Name+".html")
		if err := os.WriteFile(htmlPath, []byte(snap.HTML), 0o644); err != nil {
			fmt.Printf("   ❌ Error saving HTML: %v\n\n", err)
			continue
		}

		if capture.Name == listingCapture {
			listing = snap
		}

		fmt.Printf("   ✅ Saved: %s\n", htmlPath)
		fmt.Printf("   🔗 URL: %s\n\n", snap.URL)
	}

	if stopObserving != nil {
		stopObserving()
	}
	close(recorded)
	saveRecording(outDir, listing, recorded)
	saveMetadata(outDir)

	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("✅ Capture complete!")
	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Sanitize sensitive data before committing!")
	fmt.Println("   Run: go run ./scripts/sanitize-patterns -portal=sosh")
	fmt.Println("        go run ./scripts/sanitize-har -portal=sosh -scenario=discovery")
	fmt.Println("════════════════════════════════════════════════════════════════")
}

// saveRecording writes the listing document followed by the sniffed invoice
// responses to the recordings directory next to the fixtures.
func saveRecording(outDir string, listing *browser.Snapshot, recorded <-chan browser.CapturedResponse) {
	var har testutil.HARLog
	if listing == nil {
		fmt.Println("   ℹ️  Invoice history not captured, no recording written")
		return
	}
	har.Add(listing.URL, 200, "text/html", []byte(listing.HTML))
	for r := range recorded {
		har.Add(r.URL, 200, "application/json", r.Body)
	}
	if len(har.Entries) == 1 {
		fmt.Println("   ℹ️  No invoice XHR captured, the recording only holds the listing")
	}

	recDir := filepath.Join(filepath.Dir(outDir), "recordings")
	if err := os.MkdirAll(recDir, 0o755); err != nil {
		fmt.Printf("   ❌ Error creating %s: %v\n", recDir, err)
		return
	}
	path := filepath.Join(recDir, "discovery.har.json")
	if err := testutil.SaveHAR(path, &har); err != nil {
		fmt.Printf("   ❌ Error saving HAR: %v\n", err)
		return
	}
	fmt.Printf("   🎞️  Recorded %d invoice response(s): %s\n", len(har.Entries)-1, path)
}

func saveMetadata(outDir string) {
	metadata := fmt.Sprintf(`# Fixture Metadata
portal: orange-sosh
captured_at: %s
captured_by: %s

## Files
See .html files in this directory.
Screenshots (.png) provided for visual reference.

## Iframe and shadow DOM handling

Captures are serialized without touching the live DOM. Same-origin iframe
bodies and open shadow roots are appended after the document as:

    <div data-captured-iframe="true" data-iframe-src="...">...</div>
    <div data-shadow-root="true" data-shadow-host="...">...</div>

## Notes
- Contract numbers in URLs must read XXXXXXXXXX before committing
- Update when the portal changes
- Re-run capture if tests start failing
`, time.Now().Format(time.RFC3339), os.Getenv("USER"))

	_ = os.WriteFile(filepath.Join(outDir, "README.md"), []byte(metadata), 0o644)
}
