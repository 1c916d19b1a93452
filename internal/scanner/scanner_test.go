package scanner_test

import (
	"slices"
	"testing"

	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/scanner"
	"github.com/stretchr/testify/require"
)

const payload = "opcion=area&start=2024-05-20&end=2024-06-15&dato=&distritos=9"

func cell(paragraphs ...string) models.Cell {
	c := models.Cell{}
	for i, p := range paragraphs {
		if i > 0 {
			c.Text += " "
		}
		c.Text += p
		c.Paragraphs = append(c.Paragraphs, models.Paragraph{Text: p})
	}
	return c
}

func TestScanSingleMatch(t *testing.T) {
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{cell("Primero Civil")}},
		{Cells: []models.Cell{cell("Exp. 12/2024 JUAN AMADOR MOJICA vs. Banco", "Exp. 13/2024 OTRA PERSONA")}},
	}}

	got := slices.Collect(scanner.New("").Scan(doc, "Juan Amador Mojica", payload))
	require.Len(t, got, 1)
	require.Equal(t, "Exp. 12/2024 JUAN AMADOR MOJICA vs. Banco", got[0].RawText)
	require.Equal(t, "exp. 12/2024 juan amador mojica vs. banco", got[0].NormalizedText)
	require.Equal(t, payload, got[0].ContextPayload)
	require.Equal(t,
		"Exp. 12/2024 JUAN AMADOR MOJICA vs. Banco 'http://sica.tsjmorelos2.gob.mx/boletin/boletinjudicial.php' "+payload,
		got[0].Message)
}

func TestScanAccentInsensitive(t *testing.T) {
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{cell("PAOLA SAMANTHA DOMÍNGUEZ MELÉNDEZ demandada")}},
	}}
	got := slices.Collect(scanner.New("https://example.test/b").Scan(doc, "Paola Samantha Dominguez Melendez", payload))
	require.Len(t, got, 1)
	require.Contains(t, got[0].Message, "'https://example.test/b'")
}

func TestScanNoMatch(t *testing.T) {
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{cell("Exp. 1/2024 ALGUIEN MAS", "Exp. 2/2024 OTRA")}},
	}}
	require.Empty(t, slices.Collect(scanner.New("").Scan(doc, "Juan Amador Mojica", payload)))
	require.Empty(t, slices.Collect(scanner.New("").Scan(doc, "", payload)))
	require.Empty(t, slices.Collect(scanner.New("").Scan(nil, "Juan", payload)))
}

func TestScanDocumentOrder(t *testing.T) {
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{cell("b juan", "a juan"), cell("c juan")}},
		{Cells: []models.Cell{cell("d JUAN")}},
	}}
	var raw []string
	for m := range scanner.New("").Scan(doc, "juan", payload) {
		raw = append(raw, m.RawText)
	}
	require.Equal(t, []string{"b juan", "a juan", "c juan", "d JUAN"}, raw)
}

func TestScanIgnoresTextOutsideParagraphs(t *testing.T) {
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{{
			Text:       "JUAN AMADOR MOJICA Exp. 3/2024",
			Paragraphs: []models.Paragraph{{Text: "Exp. 3/2024"}},
		}}},
	}}
	require.Empty(t, slices.Collect(scanner.New("").Scan(doc, "juan amador mojica", payload)))
}

func TestScanSkipsCellsFailingPrefilter(t *testing.T) {
	// A paragraph is only inspected when its cell passes the cell-level check.
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{{
			Text:       "",
			Paragraphs: []models.Paragraph{{Text: "JUAN AMADOR MOJICA"}},
		}}},
	}}
	require.Empty(t, slices.Collect(scanner.New("").Scan(doc, "juan amador mojica", payload)))
}

func TestScanStopsEarly(t *testing.T) {
	doc := &models.Document{Rows: []models.Row{
		{Cells: []models.Cell{cell("juan 1", "juan 2", "juan 3")}},
	}}
	n := 0
	for range scanner.New("").Scan(doc, "juan", payload) {
		n++
		break
	}
	require.Equal(t, 1, n)
}
