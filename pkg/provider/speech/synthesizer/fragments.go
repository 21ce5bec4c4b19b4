package synthesizer

import "strings"

// SplitFragments splits text after runs of '.', '!', '?' or line breaks,
// keeping trailing whitespace with the preceding fragment. The fragments
// concatenate back to text exactly. Whitespace-only input yields nil.
func SplitFragments(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var (
		out   []string
		start int
		cut   bool
	)
	for i, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			cut = true
		case ' ', '\t', '\r':
		default:
			if cut {
				out = append(out, text[start:i])
				start = i
				cut = false
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
