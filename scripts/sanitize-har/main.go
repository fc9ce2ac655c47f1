// sanitize-har removes credentials, tokens and contract numbers from HAR
// recordings before they are committed.
//
// Usage:
//
//	go run ./scripts/sanitize-har -portal=sosh -scenario=discovery
//	go run ./scripts/sanitize-har -portal=sosh -all
//	go run ./scripts/sanitize-har -input=recording.har.json -output=sanitized.har.json
//	go run ./scripts/sanitize-har -portal=sosh -all -check
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/testutil"
)

func main() {
	portalDir := flag.String("portal", "", "Portal package directory: sosh")
	scenario := flag.String("scenario", "", "Scenario name (e.g., discovery)")
	all := flag.Bool("all", false, "Sanitize every recording of the portal")

	inputPath := flag.String("input", "", "Input HAR file path")
	outputPath := flag.String("output", "", "Output HAR file path (defaults to input path)")

	dryRun := flag.Bool("dry-run", false, "Show what would be redacted without modifying")
	check := flag.Bool("check", false, "Exit 1 if any recording still needs sanitizing (for pre-commit)")
	flag.Parse()

	jobs, err := resolveJobs(*portalDir, *scenario, *all, *inputPath, *outputPath)
	if err != nil {
		fmt.Printf("Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	dirty := 0
	for _, j := range jobs {
		n, err := sanitize(j, *dryRun || *check)
		if err != nil {
			fmt.Printf("Error: %s: %v\n", j.in, err)
			os.Exit(1)
		}
		if n > 0 {
			dirty++
		}
	}

	switch {
	case *check && dirty > 0:
		fmt.Printf("\n%d recording(s) contain sensitive values. Run without -check.\n", dirty)
		os.Exit(1)
	case *check, *dryRun:
		fmt.Println("\n[DRY RUN] No changes written.")
	default:
		fmt.Println("\nSafe to commit!")
	}
}

type job struct{ in, out string }

func resolveJobs(portalDir, scenario string, all bool, input, output string) ([]job, error) {
	switch {
	case input != "":
		out := input
		if output != "" {
			out = output
		}
		return []job{{input, out}}, nil
	case portalDir == "":
		return nil, fmt.Errorf("either -input or -portal is required")
	}

	// Conventional path: internal/scraper/portal/{portal}/testdata/recordings/{scenario}.har.json
	dir := filepath.Join("internal", "scraper", "portal", portalDir, "testdata", "recordings")
	if !all {
		if scenario == "" {
			return nil, fmt.Errorf("-scenario or -all is required with -portal")
		}
		path := filepath.Join(dir, scenario+".har.json")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("input file not found: %s", path)
		}
		return []job{{path, path}}, nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.har.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no recordings in %s", dir)
	}
	jobs := make([]job, 0, len(paths))
	for _, p := range paths {
		jobs = append(jobs, job{p, p})
	}
	return jobs, nil
}

// sanitize reports how many values were (or would be) redacted in j.in.
func sanitize(j job, dryRun bool) (int, error) {
	fmt.Printf("Loading HAR file: %s\n", j.in)

	// LoadHAR accepts both Chrome exports and the trimmed layout.
	har, err := testutil.LoadHAR(j.in)
	if err != nil {
		return 0, err
	}
	sanitized := testutil.SanitizeHAR(har)
	redactions := testutil.Redactions(har, sanitized)

	fmt.Printf("  %d entries, %d sensitive value(s)\n", len(har.Entries), len(redactions))
	printRedactions(redactions)

	if dryRun || (len(redactions) == 0 && j.in == j.out) {
		return len(redactions), nil
	}
	if err := testutil.SaveHAR(j.out, sanitized); err != nil {
		return 0, err
	}
	fmt.Printf("  Sanitized HAR saved to: %s\n", j.out)
	return len(redactions), nil
}

func printRedactions(redactions []testutil.Redaction) {
	last := -1
	for _, r := range redactions {
		if r.Entry != last {
			fmt.Printf("  Entry %d: %s %s\n", r.Entry+1, r.Method, truncateURL(r.URL))
			last = r.Entry
		}
		fmt.Printf("    - %s redacted\n", r.Where)
	}
}

func printUsage() {
	fmt.Println("sanitize-har - Remove sensitive data from HAR files before committing")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  go run ./scripts/sanitize-har -portal=sosh -scenario=discovery")
	fmt.Println("  go run ./scripts/sanitize-har -portal=sosh -all [-check]")
	fmt.Println("  go run ./scripts/sanitize-har -input=in.har.json [-output=out.har.json]")
	fmt.Println()
	flag.PrintDefaults()
}

func truncateURL(url string) string {
	if len(url) > 80 {
		return url[:77] + "..."
	}
	return url
}
