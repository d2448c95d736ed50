package text

import (
	"errors"
	"testing"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []TextSegment
	}{
		{
			name: "two adjacent languages",
			text: "<en>Hello</en><es>Hola</es>",
			want: []TextSegment{
				{Language: "en", Text: "Hello"},
				{Language: "es", Text: "Hola"},
			},
		},
		{
			name: "whitespace between tags",
			text: "<en>Hello</en> <es>Hola</es>",
			want: []TextSegment{
				{Language: "en", Text: "Hello"},
				{Language: "es", Text: "Hola"},
			},
		},
		{
			name: "document order preserved",
			text: "<fr>Bonjour</fr><en>Hi</en><pt>Olá</pt>",
			want: []TextSegment{
				{Language: "fr", Text: "Bonjour"},
				{Language: "en", Text: "Hi"},
				{Language: "pt", Text: "Olá"},
			},
		},
		{
			name: "mismatched closing code skipped",
			text: "<en>A</es><fr>B</fr>",
			want: []TextSegment{
				{Language: "fr", Text: "B"},
			},
		},
		{
			name: "empty content dropped",
			text: "<en>   </en><es>Hola</es>",
			want: []TextSegment{
				{Language: "es", Text: "Hola"},
			},
		},
		{
			name: "content trimmed",
			text: "<en>  Hello there  </en>",
			want: []TextSegment{
				{Language: "en", Text: "Hello there"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Segments(tt.text)
			if err != nil {
				t.Fatalf("Segments(%q): %v", tt.text, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Segments(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Segments(%q)[%d] = %+v, want %+v", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSegmentsNoneFound(t *testing.T) {
	for _, text := range []string{
		"plain untagged text",
		"<en>unclosed",
		"<en></en>",
		"",
	} {
		_, err := Segments(text)
		if !errors.Is(err, ErrNoSegments) {
			t.Fatalf("Segments(%q): expected ErrNoSegments, got %v", text, err)
		}
	}
}

func TestHasLanguageTags(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"<en>Hello</en>", true},
		{"before <ko>안녕</ko> after", true},
		{"<en></en>", true},
		{"<en>A</es>", false},
		{"plain text", false},
		{"<en>unclosed", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := HasLanguageTags(tt.text); got != tt.want {
			t.Errorf("HasLanguageTags(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestMixSegments(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})

	got, err := MixSegments(n, []TextSegment{
		{Language: "en", Text: "Hello"},
		{Language: "es", Text: "Hola"},
	})
	if err != nil {
		t.Fatalf("MixSegments: %v", err)
	}
	want := "<en>Hello.</en> <es>Hola.</es>"
	if got != want {
		t.Fatalf("MixSegments = %q, want %q", got, want)
	}

	// The mixed output round-trips through the segmenter.
	segs, err := Segments(got)
	if err != nil {
		t.Fatalf("Segments(mixed): %v", err)
	}
	if len(segs) != 2 || segs[0].Language != "en" || segs[1].Language != "es" {
		t.Fatalf("round trip segments = %+v", segs)
	}
}

func TestMixSegmentsInvalidLanguage(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})

	_, err := MixSegments(n, []TextSegment{{Language: "xx", Text: "Hello"}})
	if !errors.Is(err, ErrInvalidLanguage) {
		t.Fatalf("expected ErrInvalidLanguage, got %v", err)
	}
}
