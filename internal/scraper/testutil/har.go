// Package testutil records and replays portal traffic as HAR files so the
// crawler can be tested without the live site.
package testutil

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var harJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// HARLog is the trimmed HAR layout kept under testdata/recordings.
type HARLog struct {
	Entries []HAREntry `json:"entries"`
}

type HAREntry struct {
	Request  HARRequest  `json:"request"`
	Response HARResponse `json:"response"`
}

type HARRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers []HARHeader `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

type HARResponse struct {
	Status  int         `json:"status"`
	Headers []HARHeader `json:"headers,omitempty"`
	Content HARContent  `json:"content"`
}

type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARContent holds the response body. Binary bodies (invoice PDFs) are
// stored base64 encoded with Encoding set to "base64".
type HARContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// Body returns the decoded response body.
func (c HARContent) Body() []byte {
	if c.Encoding != "base64" {
		return []byte(c.Text)
	}
	body, err := base64.StdEncoding.DecodeString(c.Text)
	if err != nil {
		return []byte(c.Text)
	}
	return body
}

// Add appends a GET exchange. Bodies that are not valid UTF-8 are base64
// encoded.
func (h *HARLog) Add(url string, status int, mimeType string, body []byte) {
	content := HARContent{MimeType: mimeType, Size: len(body)}
	if utf8.Valid(body) {
		content.Text = string(body)
	} else {
		content.Text = base64.StdEncoding.EncodeToString(body)
		content.Encoding = "base64"
	}
	h.Entries = append(h.Entries, HAREntry{
		Request: HARRequest{Method: "GET", URL: url},
		Response: HARResponse{
			Status:  status,
			Headers: []HARHeader{{Name: "Content-Type", Value: mimeType}},
			Content: content,
		},
	})
}

// Chrome DevTools exports HAR 1.2: entries sit under "log" and request
// bodies under postData.
type chromeHAR struct {
	Log struct {
		Entries []chromeHAREntry `json:"entries"`
	} `json:"log"`
}

type chromeHAREntry struct {
	Request struct {
		Method   string      `json:"method"`
		URL      string      `json:"url"`
		Headers  []HARHeader `json:"headers,omitempty"`
		PostData *struct {
			Text string `json:"text"`
		} `json:"postData,omitempty"`
	} `json:"request"`
	Response HARResponse `json:"response"`
}

// LoadHAR reads either a DevTools export or the trimmed layout.
func LoadHAR(path string) (*HARLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read HAR file: %w", err)
	}
	return ParseHAR(data)
}

func ParseHAR(data []byte) (*HARLog, error) {
	var chrome chromeHAR
	if err := harJSON.Unmarshal(data, &chrome); err == nil && len(chrome.Log.Entries) > 0 {
		return fromChrome(&chrome), nil
	}

	var har HARLog
	if err := harJSON.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("parse HAR JSON: %w", err)
	}
	return &har, nil
}

func fromChrome(chrome *chromeHAR) *HARLog {
	entries := make([]HAREntry, len(chrome.Log.Entries))
	for i, ce := range chrome.Log.Entries {
		var body string
		if ce.Request.PostData != nil {
			body = ce.Request.PostData.Text
		}
		entries[i] = HAREntry{
			Request: HARRequest{
				Method:  strings.ToUpper(ce.Request.Method),
				URL:     ce.Request.URL,
				Headers: ce.Request.Headers,
				Body:    body,
			},
			Response: ce.Response,
		}
	}
	return &HARLog{Entries: entries}
}

// SaveHAR writes har as indented JSON.
func SaveHAR(path string, har *HARLog) error {
	data, err := harJSON.MarshalIndent(har, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal HAR: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write HAR file: %w", err)
	}
	return nil
}

// MustLoadHAR loads a HAR file and fails the test if it cannot be loaded.
func MustLoadHAR(t testing.TB, path string) *HARLog {
	t.Helper()

	har, err := LoadHAR(path)
	if err != nil {
		t.Fatalf("failed to load HAR file %s: %v", path, err)
	}
	return har
}
