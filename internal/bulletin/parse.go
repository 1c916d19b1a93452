package bulletin

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/processing"
)

// Parse reads a bulletin results page and returns the first table as a
// Row/Cell/Paragraph tree. It returns ErrNoTable when the page has no table.
func Parse(r io.Reader) (*models.Document, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse bulletin html: %w", err)
	}

	table := page.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	doc := &models.Document{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row models.Row
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cell := models.Cell{Text: textOf(td)}
			td.Find("p").Each(func(_ int, p *goquery.Selection) {
				cell.Paragraphs = append(cell.Paragraphs, models.Paragraph{Text: textOf(p)})
			})
			row.Cells = append(row.Cells, cell)
		})
		doc.Rows = append(doc.Rows, row)
	})

	return doc, nil
}

// textOf trims each text node under the selection and joins the non-empty
// ones with single spaces.
func textOf(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return processing.JoinText(parts)
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		*parts = append(*parts, n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
