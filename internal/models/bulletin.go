package models

import "time"

// SearchTarget is one name to look for in one judicial district.
type SearchTarget struct {
	Name     string `json:"name" yaml:"name"`
	District int    `json:"district" yaml:"district"`
}

// DateWindow is the inclusive range of bulletin dates covered by a query.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Document is the results table of one bulletin search.
type Document struct {
	Rows []Row
}

// Row is a table row.
type Row struct {
	Cells []Cell
}

// Cell holds the full text of a table cell plus its paragraphs.
type Cell struct {
	Text       string
	Paragraphs []Paragraph
}

// Paragraph is a <p> element inside a cell.
type Paragraph struct {
	Text string
}

// MatchCandidate is a paragraph that mentions a search target.
type MatchCandidate struct {
	RawText        string
	NormalizedText string
	ContextPayload string
	Message        string
}
