package testutil

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/grez-lucas/sosh-invoices/internal/logging"
)

const redacted = "[REDACTED]"

// AccountPlaceholder replaces contract numbers in recorded URLs and bodies.
const AccountPlaceholder = "XXXXXXXXXX"

// recordingOnlyPatterns extend the log redaction keys with names that are
// harmless in a log line but must not be committed in a recording.
var recordingOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)session`),
	regexp.MustCompile(`(?i)sess_`),
	regexp.MustCompile(`(?i)auth`),
	regexp.MustCompile(`(?i)wassup`), // Orange SSO cookie
	regexp.MustCompile(`(?i)msisdn`),
	regexp.MustCompile(`(?i)email`),
	regexp.MustCompile(`(?i)^contract_?id$`),
}

// SensitiveHeaders are always redacted, whatever their value.
var SensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-auth-token":        true,
	"x-api-key":           true,
	"x-access-token":      true,
	"x-session-id":        true,
	"x-csrf-token":        true,
	"x-xsrf-token":        true,
	"proxy-authorization": true,
}

// accountPath matches the contract number segment of customer-area URLs.
var accountPath = regexp.MustCompile(`(facture-paiement/)\d{6,}`)

// jsonFieldRe captures "key": value pairs with string or scalar values.
var jsonFieldRe = regexp.MustCompile(`"([^"\\]+)"(\s*:\s*)("(?:[^"\\]|\\.)*"|[^",}\]\s]+)`)

// IsSensitiveKey reports whether a recorded field, parameter or header
// named key must be redacted.
func IsSensitiveKey(key string) bool {
	if logging.IsSensitiveKey(key) {
		return true
	}
	for _, re := range recordingOnlyPatterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// SanitizeHAR returns a copy of har with credentials, tokens and contract
// numbers replaced.
func SanitizeHAR(har *HARLog) *HARLog {
	sanitized := &HARLog{Entries: make([]HAREntry, len(har.Entries))}
	for i, entry := range har.Entries {
		sanitized.Entries[i] = HAREntry{
			Request: HARRequest{
				Method:  entry.Request.Method,
				URL:     sanitizeURL(entry.Request.URL),
				Headers: sanitizeHeaders(entry.Request.Headers),
				Body:    sanitizeBody(entry.Request.Body),
			},
			Response: HARResponse{
				Status:  entry.Response.Status,
				Headers: sanitizeHeaders(entry.Response.Headers),
				Content: sanitizeContent(entry.Response.Content),
			},
		}
	}
	return sanitized
}

func sanitizeContent(c HARContent) HARContent {
	// Binary documents are kept as recorded
	if c.Encoding == "base64" {
		return c
	}
	c.Text = sanitizeBody(c.Text)
	return c
}

func sanitizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Path = accountPath.ReplaceAllString(parsed.Path, "${1}"+AccountPlaceholder)
	parsed.RawPath = ""

	query := parsed.Query()
	for key := range query {
		if IsSensitiveKey(key) {
			query.Set(key, redacted)
		}
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

func sanitizeHeaders(headers []HARHeader) []HARHeader {
	sanitized := make([]HARHeader, len(headers))
	for i, h := range headers {
		sanitized[i] = h
		if SensitiveHeaders[strings.ToLower(h.Name)] || IsSensitiveKey(h.Name) {
			sanitized[i].Value = redacted
		}
	}
	return sanitized
}

func sanitizeBody(body string) string {
	if body == "" {
		return body
	}

	trimmed := strings.TrimSpace(body)
	isJSON := strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")

	result := body
	switch {
	case isJSON:
		result = sanitizeJSONBody(result)
	case strings.Contains(body, "=") && !strings.Contains(body, "<"):
		result = sanitizeFormBody(result)
	}
	return accountPath.ReplaceAllString(result, "${1}"+AccountPlaceholder)
}

func sanitizeFormBody(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	for key := range values {
		if IsSensitiveKey(key) {
			values.Set(key, redacted)
		}
	}
	return values.Encode()
}

func sanitizeJSONBody(body string) string {
	return jsonFieldRe.ReplaceAllStringFunc(body, func(pair string) string {
		m := jsonFieldRe.FindStringSubmatch(pair)
		if !IsSensitiveKey(m[1]) {
			return pair
		}
		return `"` + m[1] + `"` + m[2] + `"` + redacted + `"`
	})
}

// HTMLPattern is one redaction applied to captured page markup.
type HTMLPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
	Description string
}

// HTMLPatterns scrub what a logged-in Orange/Sosh page shows about its
// holder.
var HTMLPatterns = []HTMLPattern{
	{
		regexp.MustCompile(`(facture-paiement/)\d{6,}`),
		"${1}" + AccountPlaceholder,
		"Contract number in links",
	},
	{
		regexp.MustCompile(`(?i)(contrat|ligne|client)(\s*(?:n°|no\.?|numéro)?\s*:?\s*)\d{8,}`),
		"${1}${2}" + AccountPlaceholder,
		"Contract number in text",
	},
	{
		regexp.MustCompile(`\b0[67](?:[\s.]?\d{2}){4}\b`),
		"06 00 00 00 00",
		"Mobile number",
	},
	{
		regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		"user@example.com",
		"Email address",
	},
	{
		regexp.MustCompile(`(Bonjour|Bonsoir)\s+[A-ZÀ-Ý][a-zà-ÿ-]+(?:\s+[A-ZÀ-Ý][a-zà-ÿ-]+)?`),
		"$1 PRENOM NOM",
		"Greeting with name",
	},
	{
		regexp.MustCompile(`(?i)(token|csrf|session|wassup)["\s:=]+["']?[a-zA-Z0-9_-]{20,}["']?`),
		`$1="REDACTED"`,
		"Token",
	},
	{
		regexp.MustCompile(`(?i)document\.cookie\s*=\s*["'][^"']+["']`),
		`document.cookie="REDACTED"`,
		"Cookie",
	},
}

// SanitizeHTML applies HTMLPatterns in order and returns the result with the
// number of matches per pattern description.
func SanitizeHTML(html string) (string, map[string]int) {
	changes := map[string]int{}
	for _, p := range HTMLPatterns {
		matches := p.Pattern.FindAllStringIndex(html, -1)
		if len(matches) == 0 {
			continue
		}
		changes[p.Description] += len(matches)
		html = p.Pattern.ReplaceAllString(html, p.Replacement)
	}
	return html, changes
}

// Redaction is one value SanitizeHAR changed.
type Redaction struct {
	Entry  int
	Method string
	URL    string
	// Where is "url", "request body", "response body", or
	// "request header X" / "response header X".
	Where string
}

// Redactions lists what differs between a recording and its sanitized copy,
// entry by entry.
func Redactions(original, sanitized *HARLog) []Redaction {
	var out []Redaction
	for i := range original.Entries {
		if i >= len(sanitized.Entries) {
			break
		}
		orig, san := original.Entries[i], sanitized.Entries[i]
		add := func(where string) {
			out = append(out, Redaction{Entry: i, Method: orig.Request.Method, URL: orig.Request.URL, Where: where})
		}

		if orig.Request.URL != san.Request.URL {
			add("url")
		}
		for _, name := range changedHeaders(orig.Request.Headers, san.Request.Headers) {
			add("request header " + name)
		}
		if orig.Request.Body != san.Request.Body {
			add("request body")
		}
		for _, name := range changedHeaders(orig.Response.Headers, san.Response.Headers) {
			add("response header " + name)
		}
		if orig.Response.Content.Text != san.Response.Content.Text {
			add("response body")
		}
	}
	return out
}

func changedHeaders(orig, san []HARHeader) []string {
	var names []string
	for j, h := range orig {
		if j < len(san) && h.Value != san[j].Value {
			names = append(names, h.Name)
		}
	}
	return names
}
