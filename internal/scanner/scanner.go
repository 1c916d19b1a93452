// Package scanner finds paragraphs of a bulletin table that mention a name.
package scanner

import (
	"fmt"
	"iter"
	"strings"

	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/processing"
)

// DefaultPublicURL is the human-facing bulletin page quoted in alerts.
const DefaultPublicURL = "http://sica.tsjmorelos2.gob.mx/boletin/boletinjudicial.php"

// Scanner walks a Document row by row, cell by cell, paragraph by paragraph.
type Scanner struct {
	publicURL string
}

// New returns a Scanner that quotes publicURL in alert messages.
func New(publicURL string) *Scanner {
	if publicURL == "" {
		publicURL = DefaultPublicURL
	}
	return &Scanner{publicURL: publicURL}
}

// Scan yields one MatchCandidate per paragraph whose normalized text
// contains the normalized target, in document order. Cells whose own text
// does not contain the target are skipped without looking at their
// paragraphs; text of a cell that is not inside a paragraph never matches.
func (s *Scanner) Scan(doc *models.Document, target, payload string) iter.Seq[models.MatchCandidate] {
	needle := processing.Normalize(target)

	return func(yield func(models.MatchCandidate) bool) {
		if doc == nil || needle == "" {
			return
		}
		for _, row := range doc.Rows {
			for _, cell := range row.Cells {
				if !strings.Contains(processing.Normalize(cell.Text), needle) {
					continue
				}
				for _, p := range cell.Paragraphs {
					normalized := processing.Normalize(p.Text)
					if !strings.Contains(normalized, needle) {
						continue
					}
					if !yield(models.MatchCandidate{
						RawText:        p.Text,
						NormalizedText: normalized,
						ContextPayload: payload,
						Message:        s.message(p.Text, payload),
					}) {
						return
					}
				}
			}
		}
	}
}

func (s *Scanner) message(raw, payload string) string {
	return fmt.Sprintf("%s '%s' %s", raw, s.publicURL, payload)
}
