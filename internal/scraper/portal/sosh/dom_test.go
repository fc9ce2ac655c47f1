package sosh

import (
	"regexp"
	"testing"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	portaltestutil "github.com/grez-lucas/sosh-invoices/internal/scraper/portal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingURL = "https://espace-client.orange.fr/facture-paiement/XXXXXXXXXX/historique-des-factures"

func TestExtractAnchors_HistoryPage(t *testing.T) {
	html := portaltestutil.LoadFixture(t, "sosh", "historique_factures")

	records, err := ExtractAnchors(html, listingURL, regexp.MustCompile(`facture`))
	require.NoError(t, err)

	var urls []string
	for _, r := range records {
		assert.Equal(t, portal.OriginDOM, r.Origin)
		urls = append(urls, r.DocumentURL)
	}
	// Every href on the history page contains "facture-paiement", so the
	// payment-mode link is kept too: the keyword is deliberately loose.
	assert.Equal(t, []string{
		"https://espace-client.orange.fr/facture-paiement/XXXXXXXXXX/facture/2025-03.pdf",
		"https://espace-client.orange.fr/facture-paiement/XXXXXXXXXX/facture/2025-02",
		"https://cdn.orange.fr/documents/releve-2025-01.pdf",
		"https://espace-client.orange.fr/facture-paiement/XXXXXXXXXX/facture/2025-03.pdf",
		"https://espace-client.orange.fr/facture-paiement/XXXXXXXXXX/mode-de-paiement",
		"https://espace-client.orange.fr/facture-paiement/XXXXXXXXXX/facture/2024-12.pdf",
	}, urls)

	assert.Equal(t, "Télécharger la facture de mars", records[0].DisplayText)
	assert.Equal(t, "Relevé", records[2].DisplayText)

	unique := Dedupe(records)
	assert.Len(t, unique, 5)
}

func TestExtractAnchors_FrameAnchorsResolveAgainstFrame(t *testing.T) {
	html := `<html><body>
		<a href="facture/2025-03.pdf">Page</a>
		<div data-captured-iframe="true" data-iframe-src="https://factures.orange.fr/viewer/liste">
			<a href="docs/facture-2025-02.pdf">Frame</a>
			<a href="/facture/2025-01.pdf">Frame root</a>
		</div>
		<div data-captured-iframe="true" data-iframe-error="Blocked" data-iframe-src=""></div>
	</body></html>`

	records, err := ExtractAnchors(html, "https://espace-client.orange.fr/facture-paiement/1/historique", regexp.MustCompile(`facture`))
	require.NoError(t, err)

	var urls []string
	for _, r := range records {
		urls = append(urls, r.DocumentURL)
	}
	assert.Equal(t, []string{
		"https://espace-client.orange.fr/facture-paiement/1/facture/2025-03.pdf",
		"https://factures.orange.fr/viewer/docs/facture-2025-02.pdf",
		"https://factures.orange.fr/facture/2025-01.pdf",
	}, urls)
}

func TestExtractAnchors_NoMatches(t *testing.T) {
	html := `<html><body><a href="/accueil">Accueil</a><a>no href</a></body></html>`

	records, err := ExtractAnchors(html, listingURL, regexp.MustCompile(`facture`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDedupe_FirstOccurrenceWinsAndIsIdempotent(t *testing.T) {
	a := portal.InvoiceRecord{Origin: portal.OriginAPI, DocumentURL: "https://x/u1.pdf", Date: "A"}
	b := portal.InvoiceRecord{Origin: portal.OriginAPI, DocumentURL: "https://x/u2.pdf", Date: "B"}
	c := portal.InvoiceRecord{Origin: portal.OriginDOM, DocumentURL: "https://x/u1.pdf", DisplayText: "C"}
	empty := portal.InvoiceRecord{Origin: portal.OriginAPI}

	once := Dedupe([]portal.InvoiceRecord{a, empty, b, c})
	assert.Equal(t, []portal.InvoiceRecord{a, b}, once)
	assert.Equal(t, once, Dedupe(once))
}
