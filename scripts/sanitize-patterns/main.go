// sanitize-patterns scrubs holder data (contract numbers, phone numbers,
// emails, greetings, tokens) from captured HTML fixtures.
//
// Usage:
//
//	go run ./scripts/sanitize-patterns -portal=sosh [-dry-run]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	portaltestutil "github.com/grez-lucas/sosh-invoices/internal/scraper/portal/testutil"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/testutil"
)

func main() {
	portalDir := flag.String("portal", "sosh", "Portal package directory")
	dryRun := flag.Bool("dry-run", false, "Show what would be changed without modifying files")
	flag.Parse()

	fixturesDir := portaltestutil.FixturesDir(*portalDir)

	files, err := filepath.Glob(filepath.Join(fixturesDir, "*.html"))
	if err != nil || len(files) == 0 {
		fmt.Printf("No HTML files found in %s\n", fixturesDir)
		os.Exit(1)
	}

	fmt.Printf("🔒 Sanitizing fixtures for %s\n", *portalDir)
	if *dryRun {
		fmt.Println("    (DRY RUN - no files will be modified)")
	}
	fmt.Println()

	for _, file := range files {
		sanitizeFile(file, *dryRun)
	}

	fmt.Println()
	fmt.Println("✅ Sanitization complete!")
	if *dryRun {
		fmt.Println("    Run without --dry-run to apply changes")
	}
}

func sanitizeFile(path string, dryRun bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("❌ Error reading %s: %v\n", path, err)
		return
	}

	sanitized, changes := testutil.SanitizeHTML(string(content))
	filename := filepath.Base(path)

	if len(changes) == 0 {
		fmt.Printf("📄 %s: No sensitive data found\n", filename)
		return
	}

	fmt.Printf("📄 %s: Found sensitive data\n", filename)
	descriptions := make([]string, 0, len(changes))
	for d := range changes {
		descriptions = append(descriptions, d)
	}
	sort.Strings(descriptions)
	for _, d := range descriptions {
		fmt.Printf("  - %s: %d matched\n", d, changes[d])
	}

	if dryRun {
		return
	}
	if err := os.WriteFile(path, []byte(sanitized), 0o644); err != nil {
		fmt.Printf("    ❌ Error writing %s: %v\n", path, err)
		return
	}
	fmt.Println("    ✅ Sanitized and saved")
}
