package sosh

import (
	"encoding/json"
	"testing"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPayload_Kinds(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    PayloadKind
		entries int
	}{
		{"flat list", `[{"pdfUrl":"https://x/1.pdf"},{"url":"https://x/2.pdf"}]`, PayloadFlatList, 2},
		{"flat list skips non objects", `[{"link":"https://x/1.pdf"}, 3, "a", null]`, PayloadFlatList, 1},
		{"keyed invoice list", `{"invoices":[{"pdfUrl":"https://x/1.pdf"}],"total":1}`, PayloadKeyedInvoiceList, 1},
		{"empty flat list", `[]`, PayloadFlatList, 0},
		{"object without invoices", `{"bills":[{"pdfUrl":"https://x/1.pdf"}]}`, PayloadUnrecognized, 0},
		{"invoices not a list", `{"invoices":{"pdfUrl":"https://x/1.pdf"}}`, PayloadUnrecognized, 0},
		{"scalar", `42`, PayloadUnrecognized, 0},
		{"not json", `<html>nope</html>`, PayloadUnrecognized, 0},
		{"empty body", ``, PayloadUnrecognized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ClassifyPayload([]byte(tt.body))
			assert.Equal(t, tt.kind, p.Kind)
			assert.Len(t, p.Entries, tt.entries)
		})
	}
}

func TestPayloadRecords_FieldFallback(t *testing.T) {
	body := `[
		{"pdfUrl":"https://x/a.pdf","url":"https://x/ignored","date":"2025-03-15","billingDate":"ignored","amount":19.99,"price":1},
		{"pdfUrl":"","url":"https://x/b.pdf","billingDate":"2025-02-15","price":"24,49"},
		{"link":"https://x/c.pdf","date":"","amount":0,"price":12.50},
		{"date":"2025-01-01","amount":10}
	]`

	records := ClassifyPayload([]byte(body)).Records()

	require.Len(t, records, 3, "entries without a link are dropped from flat lists")
	assert.Equal(t, portal.InvoiceRecord{
		Origin: portal.OriginAPI, Date: "2025-03-15", Amount: json.Number("19.99"), DocumentURL: "https://x/a.pdf",
	}, records[0])
	assert.Equal(t, portal.InvoiceRecord{
		Origin: portal.OriginAPI, Date: "2025-02-15", Amount: "24,49", DocumentURL: "https://x/b.pdf",
	}, records[1])
	assert.Equal(t, portal.InvoiceRecord{
		Origin: portal.OriginAPI, Amount: json.Number("12.50"), DocumentURL: "https://x/c.pdf",
	}, records[2], "falsy values fall through to the next field")
}

func TestPayloadRecords_KeyedListKeepsLinklessEntries(t *testing.T) {
	body := `{"invoices":[
		{"url":"https://x/a.pdf","billingDate":"2025-03-15","price":"9.99"},
		{"date":"2025-02-15","amount":"9.99"}
	]}`

	records := ClassifyPayload([]byte(body)).Records()

	require.Len(t, records, 2)
	assert.Equal(t, "https://x/a.pdf", records[0].DocumentURL)
	assert.Equal(t, "2025-03-15", records[0].Date)
	assert.Equal(t, "9.99", records[0].Amount)
	assert.Empty(t, records[1].DocumentURL)
	assert.Len(t, Dedupe(records), 1)
}

func TestPayloadRecords_NumbersKeepLiteralText(t *testing.T) {
	records := ClassifyPayload([]byte(`[{"pdfUrl":"https://x/a.pdf","amount":1.50,"date":20250315}]`)).Records()

	require.Len(t, records, 1)
	assert.Equal(t, json.Number("1.50"), records[0].Amount)
	assert.Equal(t, "20250315", records[0].Date)
}

func TestPayloadRecords_AmountKeepsItsJSONType(t *testing.T) {
	records := ClassifyPayload([]byte(`[
		{"pdfUrl":"https://x/a.pdf","amount":19.99},
		{"pdfUrl":"https://x/b.pdf","amount":"24,49 €"},
		{"pdfUrl":"https://x/c.pdf"}
	]`)).Records()
	require.Len(t, records, 3)

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(records)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"source":"api","amount":19.99,"pdfUrl":"https://x/a.pdf"},
		{"source":"api","amount":"24,49 €","pdfUrl":"https://x/b.pdf"},
		{"source":"api","pdfUrl":"https://x/c.pdf"}
	]`, out)
}

func TestPayloadRecords_Unrecognized(t *testing.T) {
	assert.Nil(t, ClassifyPayload([]byte(`{"status":"ok"}`)).Records())
}
