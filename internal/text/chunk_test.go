package text

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{
			name:   "short text single chunk",
			text:   "Hello world.",
			maxLen: 300,
			want:   []string{"Hello world."},
		},
		{
			name:   "empty input yields single empty chunk",
			text:   "",
			maxLen: 300,
			want:   []string{""},
		},
		{
			name:   "whitespace-only input yields single empty chunk",
			text:   "   \n\t  ",
			maxLen: 300,
			want:   []string{""},
		},
		{
			name:   "paragraphs split on blank lines",
			text:   "Para one.\n\nPara two.",
			maxLen: 300,
			want:   []string{"Para one.", "Para two."},
		},
		{
			name:   "sentences packed greedily",
			text:   "One. Two. Three.",
			maxLen: 10,
			want:   []string{"One. Two.", "Three."},
		},
		{
			name:   "abbreviation does not end a sentence",
			text:   "Dr. Smith went home. He slept.",
			maxLen: 25,
			want:   []string{"Dr. Smith went home.", "He slept."},
		},
		{
			name:   "initial does not end a sentence",
			text:   "J. Smith arrived. Then left.",
			maxLen: 20,
			want:   []string{"J. Smith arrived.", "Then left."},
		},
		{
			name:   "long sentence splits on commas",
			text:   "aaaa, bbbb, cccc",
			maxLen: 6,
			want:   []string{"aaaa,", "bbbb,", "cccc"},
		},
		{
			name:   "comma clauses packed greedily",
			text:   "aa, bb, cccccc, dd",
			maxLen: 8,
			want:   []string{"aa, bb,", "cccccc,", "dd"},
		},
		{
			name:   "word split as last resort",
			text:   "one two three four",
			maxLen: 9,
			want:   []string{"one two", "three", "four"},
		},
		{
			name:   "oversize word emitted whole",
			text:   "supercalifragilistic",
			maxLen: 5,
			want:   []string{"supercalifragilistic"},
		},
		{
			name:   "zero max falls back to default",
			text:   "Hello world.",
			maxLen: 0,
			want:   []string{"Hello world."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text, tt.maxLen)
			if len(got) != len(tt.want) {
				t.Fatalf("Chunk(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Chunk(%q, %d)[%d] = %q, want %q", tt.text, tt.maxLen, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkCountsRunesNotBytes(t *testing.T) {
	// Hangul syllables are three bytes each; the bound is in runes.
	got := Chunk("가나다 라마바", 3)
	want := []string{"가나다", "라마바"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Chunk korean = %q, want %q", got, want)
	}
}

func TestChunkContentPreservation(t *testing.T) {
	texts := []string{
		"Hello world. This is a second sentence! And a third?",
		"Dr. Smith met Mr. Jones, Mrs. Lee, and Prof. Chan at the lab. They talked for hours about nothing much at all.",
		"First paragraph with some words.\n\nSecond paragraph, with a clause, and another clause, plus more to overflow any small bound.",
		"one two three four five six seven eight nine ten eleven twelve",
		"No terminal punctuation here just a plain run of words that keeps going and going",
	}
	bounds := []int{10, 25, 40, 300}

	for _, text := range texts {
		for _, maxLen := range bounds {
			chunks := Chunk(text, maxLen)
			got := strings.Join(chunks, " ")
			want := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
			if got != want {
				t.Fatalf("content not preserved for maxLen %d:\n got  %q\n want %q", maxLen, got, want)
			}
			for _, c := range chunks {
				if utf8.RuneCountInString(c) > maxLen && strings.ContainsRune(c, ' ') {
					t.Fatalf("splittable chunk %q exceeds bound %d", c, maxLen)
				}
			}
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain boundaries",
			text: "First. Second! Third?",
			want: []string{"First.", "Second!", "Third?"},
		},
		{
			name: "abbreviations suppressed",
			text: "See Dr. Jones. Then leave.",
			want: []string{"See Dr. Jones.", "Then leave."},
		},
		{
			name: "no boundary returns whole text",
			text: "no terminal punctuation",
			want: []string{"no terminal punctuation"},
		},
		{
			name: "interior period without space is kept",
			text: "Version 1.5 shipped. Finally.",
			want: []string{"Version 1.5 shipped.", "Finally."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitSentences(%q) = %q, want %q", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("SplitSentences(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}
