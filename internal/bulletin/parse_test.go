package bulletin_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/DeafMist/boletin-radar/internal/bulletin"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<h1>Boletín</h1>
<table>
  <tr><th>Juzgado</th><th>Acuerdos</th></tr>
  <tr>
    <td>Primero Civil</td>
    <td>
      <p>Exp. 12/2024   JUAN AMADOR <b>MOJICA</b> vs. Banco</p>
      <p>Exp. 13/2024 OTRA PERSONA</p>
      nota suelta
    </td>
  </tr>
  <tr><td><p>Exp. 99/2024 PAOLA SAMANTHA DOMÍNGUEZ</p></td></tr>
</table>
<table><tr><td><p>second table is ignored</p></td></tr></table>
</body></html>`

func TestParse(t *testing.T) {
	doc, err := bulletin.Parse(strings.NewReader(samplePage))
	require.NoError(t, err)
	require.Len(t, doc.Rows, 3)

	// Header row has th cells only.
	require.Empty(t, doc.Rows[0].Cells)

	cells := doc.Rows[1].Cells
	require.Len(t, cells, 2)
	require.Equal(t, "Primero Civil", cells[0].Text)
	require.Empty(t, cells[0].Paragraphs)

	require.Equal(t, "Exp. 12/2024   JUAN AMADOR MOJICA vs. Banco Exp. 13/2024 OTRA PERSONA nota suelta", cells[1].Text)
	require.Len(t, cells[1].Paragraphs, 2)
	require.Equal(t, "Exp. 12/2024   JUAN AMADOR MOJICA vs. Banco", cells[1].Paragraphs[0].Text)
	require.Equal(t, "Exp. 13/2024 OTRA PERSONA", cells[1].Paragraphs[1].Text)

	require.Equal(t, "Exp. 99/2024 PAOLA SAMANTHA DOMÍNGUEZ", doc.Rows[2].Cells[0].Paragraphs[0].Text)
}

func TestParseNoTable(t *testing.T) {
	_, err := bulletin.Parse(strings.NewReader("<html><body><p>Sin resultados</p></body></html>"))
	require.True(t, errors.Is(err, bulletin.ErrNoTable))
}

func TestParseSkipsScriptText(t *testing.T) {
	page := `<table><tr><td><p>visible<script>var hidden = 1;</script></p></td></tr></table>`
	doc, err := bulletin.Parse(strings.NewReader(page))
	require.NoError(t, err)
	require.Equal(t, "visible", doc.Rows[0].Cells[0].Paragraphs[0].Text)
}

func TestParseKeepsWhitespaceInsideTextNodes(t *testing.T) {
	page := "<table><tr><td><p>\n  Exp. 12/2024   JUAN\n\tAMADOR MOJICA <i>actor</i>\n</p></td></tr></table>"
	doc, err := bulletin.Parse(strings.NewReader(page))
	require.NoError(t, err)

	p := doc.Rows[0].Cells[0].Paragraphs[0]
	require.Equal(t, "Exp. 12/2024   JUAN\n\tAMADOR MOJICA actor", p.Text)
	require.Equal(t, p.Text, doc.Rows[0].Cells[0].Text)
}
