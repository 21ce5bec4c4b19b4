package textpos

import "testing"

func TestWordStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		pos  int
		want int
	}{
		{"middle of word", "The quick fox", 5, 4},
		{"first char of word", "The quick fox", 4, 4},
		{"on space advances", "The quick fox", 3, 4},
		{"first word", "The quick fox", 2, 0},
		{"last char", "The quick fox", 12, 10},
		{"negative", "The quick fox", -1, 0},
		{"at length", "The quick fox", 13, 0},
		{"past length", "The quick fox", 99, 0},
		{"empty text", "", 0, 0},
		{"punctuation run", "Hi!! there", 2, 5},
		{"newline", "one\ntwo", 3, 4},
		{"trailing delimiters fall back", "end.  ", 4, 4},
		{"trailing delimiters inside word", "end  ", 3, 0},
		{"only delimiters", "...", 1, 1},
		{"semicolon", "a;b", 1, 2},
		{"multibyte", "héllo wörld", 8, 6},
		{"emoji prefix", "🌟 star", 3, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := WordStart(tc.text, tc.pos); got != tc.want {
				t.Errorf("WordStart(%q, %d) = %d, want %d", tc.text, tc.pos, got, tc.want)
			}
		})
	}
}

// TestWordStart_Properties checks, for every valid position, that the result
// never exceeds the input position unless the scan advanced over delimiters,
// and that it always lands on a word start.
func TestWordStart_Properties(t *testing.T) {
	t.Parallel()

	texts := []string{
		"The quick brown fox, jumps; over the lazy dog!",
		"Hello?! How are you...\nFine: thanks.",
		"  leading and trailing  ",
		"a",
	}
	for _, text := range texts {
		runes := []rune(text)
		for p := range runes {
			got := WordStart(text, p)
			if got < 0 || got >= len(runes) {
				t.Fatalf("WordStart(%q, %d) = %d out of range", text, p, got)
			}
			if got > 0 && !IsDelimiter(runes[got-1]) {
				t.Errorf("WordStart(%q, %d) = %d not preceded by a delimiter", text, p, got)
			}
			if !IsDelimiter(runes[p]) && got > p {
				t.Errorf("WordStart(%q, %d) = %d moved forward from a word character", text, p, got)
			}
			if IsDelimiter(runes[got]) && got != p {
				t.Errorf("WordStart(%q, %d) = %d lands on delimiter %q", text, p, got, runes[got])
			}
		}
	}
}

func TestFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		pos  int
		want string
	}{
		{"hello world", 6, "world"},
		{"hello", 0, "hello"},
		{"hello", -3, "hello"},
		{"hello", 5, ""},
		{"hello", 9, ""},
		{"🌟 star", 2, "star"},
	}
	for _, tc := range tests {
		if got := From(tc.text, tc.pos); got != tc.want {
			t.Errorf("From(%q, %d) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	if got := Index("héllo wörld", "wörld"); got != 6 {
		t.Errorf("Index = %d, want 6", got)
	}
	if got := Index("hello", "xyz"); got != -1 {
		t.Errorf("Index = %d, want -1", got)
	}
	if got := Len("héllo"); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}
}
