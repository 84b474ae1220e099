// Package rut locates and canonicalizes Chilean national ID numbers (RUN/RUT)
// in free text produced by OCR.
//
// Normalize is the single comparison key used anywhere two identifiers are
// compared: the value declared by the identity provider and the value read from
// a document photo always go through it.
package rut

import (
	"regexp"
	"strings"
)

const (
	// MinLength and MaxLength bound the normalized identifier (body + check digit).
	MinLength = 8
	MaxLength = 9

	// anchorWindow is how many bytes after an anchor token are searched.
	anchorWindow = 40
)

var (
	anchorPattern = regexp.MustCompile(`(?i)\b(?:RUN|RUT|C[ée]dula|Civil)\b`)

	// Digit groups with optional '.', whitespace or '-' separators and a trailing
	// check character. Deliberately loose: OCR often drops or doubles punctuation.
	candidatePattern = regexp.MustCompile(`\d{1,2}[.\s]?\d{3}[.\s]?\d{3}\s?-?\s?[\dkK]`)
)

// Normalize strips every character that is not a decimal digit or k/K and
// uppercases the result. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'k' || r == 'K':
			b.WriteByte('K')
		}
	}
	return b.String()
}

// Locate returns the first normalized identifier found in text.
//
// The spans following anchor tokens ("RUN", "RUT", "Cédula", "Civil") are searched
// first, in document order; the whole text is the fallback. A candidate is accepted
// only when its normalized length lies in [MinLength, MaxLength].
func Locate(text string) (string, bool) {
	for _, loc := range anchorPattern.FindAllStringIndex(text, -1) {
		end := loc[1] + anchorWindow
		if end > len(text) {
			end = len(text)
		}
		if id, ok := firstCandidate(text[loc[1]:end]); ok {
			return id, true
		}
	}
	return firstCandidate(text)
}

func firstCandidate(window string) (string, bool) {
	for _, loc := range candidatePattern.FindAllStringIndex(window, -1) {
		// Reject matches carved out of a longer digit run.
		if loc[0] > 0 && isDigit(window[loc[0]-1]) {
			continue
		}
		if loc[1] < len(window) && isDigit(window[loc[1]]) {
			continue
		}
		id := Normalize(window[loc[0]:loc[1]])
		if len(id) >= MinLength && len(id) <= MaxLength {
			return id, true
		}
	}
	return "", false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Equal compares two identifiers by their normalized form. Empty values never match.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}
