package chat

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/cogniscribe/pkg/textpos"
)

// minLocateScore is the Jaro-Winkler similarity a word window must reach to
// count as the selected text.
const minLocateScore = 0.85

// LocateText returns the character offset in text where selected starts.
// An exact occurrence wins. Otherwise every window of as many words as
// selected holds is compared with Jaro-Winkler similarity, which tolerates
// selections that were trimmed, re-spaced or transcribed slightly
// differently. ok is false when nothing is similar enough.
func LocateText(text, selected string) (offset int, ok bool) {
	if i := textpos.Index(text, selected); i >= 0 {
		return i, true
	}
	want := strings.Join(strings.FieldsFunc(strings.ToLower(selected), textpos.IsDelimiter), " ")
	if want == "" {
		return 0, false
	}
	n := len(strings.Fields(want))

	words := wordSpans(text)
	best, bestScore := -1, 0.0
	for i := 0; i+n <= len(words); i++ {
		window := make([]string, n)
		for j := range n {
			window[j] = strings.ToLower(words[i+j].text)
		}
		if s := matchr.JaroWinkler(strings.Join(window, " "), want, false); s > bestScore {
			best, bestScore = words[i].start, s
		}
	}
	if best < 0 || bestScore < minLocateScore {
		return 0, false
	}
	return best, true
}

type wordSpan struct {
	start int
	text  string
}

// wordSpans splits text into words with their character offsets.
func wordSpans(text string) []wordSpan {
	var (
		out  []wordSpan
		cur  []rune
		from int
	)
	i := 0
	for _, r := range text {
		if textpos.IsDelimiter(r) {
			if len(cur) > 0 {
				out = append(out, wordSpan{start: from, text: string(cur)})
				cur = cur[:0]
			}
		} else {
			if len(cur) == 0 {
				from = i
			}
			cur = append(cur, r)
		}
		i++
	}
	if len(cur) > 0 {
		out = append(out, wordSpan{start: from, text: string(cur)})
	}
	return out
}
