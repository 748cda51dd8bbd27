// Package normalize converts raw external identifiers into canonical
// comparison keys. All functions are pure and deterministic: equal inputs up
// to formatting noise produce equal keys.
package normalize

import (
	"strings"
	"unicode"
)

// zero-width and BOM code points seen in pasted marketplace exports
var zeroWidth = map[rune]bool{
	'\u200B': true, // zero width space
	'\u200C': true, // zero width non-joiner
	'\u200D': true, // zero width joiner
	'\uFEFF': true, // byte order mark
}

// OrderID canonicalizes a marketplace order identifier: uppercase with all
// whitespace, hyphens and zero-width characters removed.
// "123-4567890-1234567", "123 4567890 1234567" and "123-4567890-1234567 "
// all map to the same key.
func OrderID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) || r == '-' || zeroWidth[r] {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// SKU canonicalizes a SKU code: uppercase with surrounding and embedded
// whitespace and zero-width characters removed. Hyphens are significant in
// SKU codes and are kept.
func SKU(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) || zeroWidth[r] {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// HeaderCell canonicalizes a report header cell for alias lookup: lowercase,
// with runs of non-alphanumeric characters collapsed to single spaces.
func HeaderCell(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
