// discover-login-fields opens the Orange/Sosh login journey and prints the
// iframe tree, probing each frame for the controls the crawler looks for.
// The output tells which candidate of each control list currently matches
// and in which frame.
//
// Usage:
//
//	go run ./scripts/discover-login-fields [-config=config.yaml]
//
// The script opens a visible browser and prompts you to move through each
// step manually. After you press ENTER, it inspects the frame tree and
// prints a report.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/grez-lucas/sosh-invoices/internal/config"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/browser"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal/sosh"
)

// controlProbe is one control list of the login flow.
type controlProbe struct {
	Name       string
	Candidates []browser.Matcher
}

var soshProbes = []controlProbe{
	{"Cookie accept", sosh.CookieAcceptButton},
	{"Sign-in link", sosh.SignInLink},
	{"Login fallback link", sosh.LoginFallbackLink},
	{"Identifier field", sosh.IdentifierField},
	{"Continue button", sosh.ContinueButton},
	{"Password mode", sosh.PasswordModeControl},
	{"Password field", sosh.PasswordField},
	{"Submit button", sosh.SubmitButton},
	{"OTP input", sosh.OTPInput},
	{"Captcha frame", sosh.CaptchaFrame},
}

// pageToInspect defines a step the user should navigate to.
type pageToInspect struct {
	Name         string
	Instructions string
}

var soshPages = []pageToInspect{
	{"Public site", "Navigate to https://www.sosh.fr/ (don't accept cookies yet)"},
	{"Identifier step", "Click 'Identifiez-vous' and wait for the identifier form"},
	{"Password step", "Enter the identifier, continue, wait for the password form"},
	{"After submit", "Submit the password; stay on whatever shows up (OTP, captcha, customer area)"},
}

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("================================================================")
	fmt.Println("  LOGIN FIELD DISCOVERY: ORANGE / SOSH")
	fmt.Println("================================================================")
	fmt.Println()
	fmt.Println("This tool inspects the iframe tree on each step and reports")
	fmt.Println("which frame answers which control candidate.")
	fmt.Println()

	ctx := context.Background()

	// A throwaway profile keeps the crawler's persisted session intact.
	profile, err := os.MkdirTemp("", "sosh-discover-*")
	if err != nil {
		fmt.Printf("Error creating profile dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(profile)

	sess, err := browser.OpenSession(ctx, browser.SessionConfig{
		ProfileDir:     profile,
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

	page := sess.Page().Rod()
	reader := bufio.NewReader(os.Stdin)

	for _, pg := range soshPages {
		fmt.Println("----------------------------------------------------------------")
		fmt.Printf("PAGE: %s\n", pg.Name)
		fmt.Printf("  -> %s\n", pg.Instructions)
		fmt.Print("  Press ENTER when ready (or 'skip'/'quit'): ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))

		if input == "quit" {
			break
		}
		if input == "skip" {
			fmt.Printf("  Skipped.\n\n")
			continue
		}

		browser.WaitForIFrames(page, 500*time.Millisecond)

		pageURL := page.MustInfo().URL
		fmt.Printf("\n  URL: %s\n\n", pageURL)

		inspectFrame(ctx, page, "main", 1)
		fmt.Println()
	}

	fmt.Println("================================================================")
	fmt.Println("  Discovery complete.")
	fmt.Println("  Reorder the candidate lists in internal/scraper/portal/sosh/")
	fmt.Println("  selectors.go when a later candidate is the one that matches.")
	fmt.Println("================================================================")
}

// inspectFrame recursively reports the first matching candidate of every
// control in a frame, then descends into its iframes.
func inspectFrame(ctx context.Context, page *rod.Page, path string, depth int) {
	indent := strings.Repeat("  ", depth)
	surface := browser.NewPage(page.Timeout(500*time.Millisecond), false)

	found := 0
	for _, probe := range soshProbes {
		for i, m := range probe.Candidates {
			_, ok, err := surface.Query(ctx, m)
			if err != nil || !ok {
				continue
			}
			fmt.Printf("%sFOUND  %-22s  #%d %s\n", indent, probe.Name, i, describe(m))
			found++
			break
		}
	}
	if found == 0 {
		fmt.Printf("%s(no known controls found)\n", indent)
	}

	iframes, err := page.Elements("iframe")
	if err != nil {
		return
	}

	for i, iframe := range iframes {
		src, _ := iframe.Attribute("src")
		id, _ := iframe.Attribute("id")
		title, _ := iframe.Attribute("title")
		visible, _ := iframe.Visible()

		label := fmt.Sprintf("iframe[%d]", i)
		if idStr := deref(id); idStr != "" {
			label = fmt.Sprintf("iframe#%s", idStr)
		} else if titleStr := deref(title); titleStr != "" {
			label = fmt.Sprintf("iframe[title=%s]", titleStr)
		}

		childPath := fmt.Sprintf("%s > %s", path, label)
		fmt.Printf("\n%sIFRAME %s  visible=%v  src=%s\n", indent, childPath, visible, truncate(deref(src), 80))

		frame, err := iframe.Frame()
		if err != nil {
			fmt.Printf("%s  (cannot access frame: %v)\n", indent, err)
			continue
		}

		inspectFrame(ctx, frame, childPath, depth+1)
	}
}

func describe(m browser.Matcher) string {
	if m.Text == "" {
		return m.CSS
	}
	return m.CSS + " " + m.Text
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
