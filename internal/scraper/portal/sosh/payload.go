package sosh

import (
	"encoding/json"
	"strconv"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	jsoniter "github.com/json-iterator/go"
)

// Numbers are decoded as json.Number so amounts keep their literal text.
var payloadJSON = jsoniter.Config{UseNumber: true}.Froze()

type PayloadKind int

const (
	PayloadUnrecognized PayloadKind = iota
	// PayloadFlatList is a top-level JSON array of invoice objects.
	PayloadFlatList
	// PayloadKeyedInvoiceList is an object whose "invoices" key holds the array.
	PayloadKeyedInvoiceList
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadFlatList:
		return "flat_list"
	case PayloadKeyedInvoiceList:
		return "keyed_invoice_list"
	default:
		return "unrecognized"
	}
}

// Payload is a sniffed response body sorted into one of the shapes the
// invoice endpoints have been seen to return.
type Payload struct {
	Kind    PayloadKind
	Entries []map[string]any
}

// Field fallback, first truthy value wins. The date and amount orders are
// provisional until a live payload sample settles them.
var (
	LinkFields   = []string{"pdfUrl", "url", "link"}
	DateFields   = []string{"date", "billingDate"}
	AmountFields = []string{"amount", "price"}
)

// ClassifyPayload decodes raw and reports its shape. Bodies that are not
// JSON, or JSON of any other shape, are PayloadUnrecognized.
func ClassifyPayload(raw []byte) Payload {
	var data any
	if err := payloadJSON.Unmarshal(raw, &data); err != nil {
		return Payload{Kind: PayloadUnrecognized}
	}

	switch v := data.(type) {
	case []any:
		return Payload{Kind: PayloadFlatList, Entries: objects(v)}
	case map[string]any:
		if list, ok := v["invoices"].([]any); ok {
			return Payload{Kind: PayloadKeyedInvoiceList, Entries: objects(list)}
		}
	}
	return Payload{Kind: PayloadUnrecognized}
}

// Records maps the entries to API-origin invoice records. Flat-list entries
// without any link field are dropped; keyed-list entries are kept with an
// empty DocumentURL and left for Dedupe to discard.
func (p Payload) Records() []portal.InvoiceRecord {
	if p.Kind == PayloadUnrecognized {
		return nil
	}

	records := make([]portal.InvoiceRecord, 0, len(p.Entries))
	for _, entry := range p.Entries {
		link, hasLink := firstTruthy(entry, LinkFields)
		if !hasLink && p.Kind == PayloadFlatList {
			continue
		}
		date, _ := firstTruthy(entry, DateFields)
		amount, _ := firstTruthyValue(entry, AmountFields)
		records = append(records, portal.InvoiceRecord{
			Origin:      portal.OriginAPI,
			Date:        date,
			Amount:      amount,
			DocumentURL: link,
		})
	}
	return records
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// firstTruthy is firstTruthyValue rendered as text. Numbers keep their
// literal.
func firstTruthy(entry map[string]any, keys []string) (string, bool) {
	v, ok := firstTruthyValue(entry, keys)
	switch v := v.(type) {
	case string:
		return v, ok
	case json.Number:
		return string(v), ok
	case bool:
		return strconv.FormatBool(v), ok
	}
	return "", false
}

// firstTruthyValue returns the first of keys holding a non-empty string, a
// non-zero number or true. Numbers come back as json.Number. Objects,
// arrays and nulls are skipped.
func firstTruthyValue(entry map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		switch v := entry[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case json.Number:
			if nonZero(string(v)) {
				return v, true
			}
		case jsoniter.Number:
			if nonZero(string(v)) {
				return json.Number(v), true
			}
		case bool:
			if v {
				return v, true
			}
		}
	}
	return nil, false
}

func nonZero(literal string) bool {
	f, err := strconv.ParseFloat(literal, 64)
	return err == nil && f != 0
}
