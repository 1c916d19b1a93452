package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes, drops combining marks and recomposes.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize removes diacritics and lower-cases text so that "Domínguez"
// and "DOMINGUEZ" compare equal.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	out, _, err := transform.String(stripMarks, lower)
	if err != nil {
		return lower
	}
	return out
}

// Contains reports whether the normalized form of text contains the
// normalized form of target. An empty target never matches.
func Contains(text, target string) bool {
	nt := Normalize(target)
	if nt == "" {
		return false
	}
	return strings.Contains(Normalize(text), nt)
}

// JoinText trims every fragment and joins the non-empty ones with a single
// space. Whitespace inside a fragment is kept as is.
func JoinText(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if c := strings.TrimSpace(f); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// BuildRecordID hashes a record key into a fixed-length identifier that is
// safe to use as a document id or cache key.
func BuildRecordID(key string) string {
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}
