package portal

// Credentials are supplied by the credential store or the CLI. Identifier
// and Secret must never reach a log line unmasked.
type Credentials struct {
	Identifier string
	Secret     string
	AccountID  string
}

// Origin tells where an invoice record was discovered.
type Origin string

const (
	OriginAPI Origin = "api"
	OriginDOM Origin = "dom"
)

// InvoiceRecord is keyed by DocumentURL: two records with the same URL are
// the same invoice. Empty Date and DisplayText and a nil Amount mean
// "unknown".
type InvoiceRecord struct {
	Origin Origin `json:"source"`
	Date   string `json:"date,omitempty"`
	// Amount is what the portal sent: a json.Number for numeric values,
	// which encodes back as a JSON number, or a string such as "24,49".
	Amount      any    `json:"amount,omitempty"`
	DocumentURL string `json:"pdfUrl"`
	DisplayText string `json:"text,omitempty"`
}

type DownloadOutcome struct {
	Record          InvoiceRecord `json:"record"`
	DestinationPath string        `json:"file"`
}

// RunResult is built once per invocation and handed to the caller.
type RunResult struct {
	Downloaded      []DownloadOutcome `json:"saved"`
	DiscoveredCount int               `json:"invoicesFound"`
}

// Files returns the destination path of every downloaded document.
func (r *RunResult) Files() []string {
	files := make([]string, 0, len(r.Downloaded))
	for _, d := range r.Downloaded {
		files = append(files, d.DestinationPath)
	}
	return files
}

// RunParams is the invocation contract of a scraping run. A nil Headless
// falls back to the configured default, an empty OutputDir to the configured
// invoice directory.
type RunParams struct {
	Credentials Credentials
	Headless    *bool
	OutputDir   string
}
