// Package textpos locates word boundaries in message text.
//
// All offsets in this package are character offsets (runes), not byte
// offsets, so that positions reported by a speech synthesizer can be used
// directly against text containing emoji or accented letters.
package textpos

import (
	"strings"
	"unicode/utf8"
)

// IsDelimiter reports whether r separates words for playback purposes.
func IsDelimiter(r rune) bool {
	switch r {
	case ' ', '\n', '\t', '\r', '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}

// WordStart returns the offset of the first character of the word that
// encloses pos.
//
// A pos outside [0, len(text)) yields 0. When pos falls on a delimiter the
// scan first advances to the next non-delimiter; if none exists before the
// end of text, pos itself is used. From there the scan walks back while the
// preceding character is not a delimiter.
func WordStart(text string, pos int) int {
	runes := []rune(text)
	if pos < 0 || pos >= len(runes) {
		return 0
	}

	i := pos
	for i < len(runes) && IsDelimiter(runes[i]) {
		i++
	}
	if i >= len(runes) {
		i = pos
	}

	for i > 0 && !IsDelimiter(runes[i-1]) {
		i--
	}
	return i
}

// Len returns the number of characters in text.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}

// From returns the suffix of text starting at character offset pos. Offsets
// past the end yield "" and negative offsets yield text unchanged.
func From(text string, pos int) string {
	if pos <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == pos {
			return text[i:]
		}
		n++
	}
	return ""
}

// Index returns the character offset of the first occurrence of sub in
// text, or -1 if sub is not present.
func Index(text, sub string) int {
	b := strings.Index(text, sub)
	if b < 0 {
		return -1
	}
	return utf8.RuneCountInString(text[:b])
}
