package text

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoSegments reports tagged input from which no valid language segment
// could be parsed.
var ErrNoSegments = errors.New("no valid language segments found in text")

// TextSegment is a maximal single-language span of mixed-language input.
type TextSegment struct {
	Language string
	Text     string
}

// tagPairPattern matches one <xx>…</xx> span. The closing code is captured
// separately and compared in Go because RE2 has no backreferences.
var tagPairPattern = regexp.MustCompile(`<([a-z]{2})>([^<]*)</([a-z]{2})>`)

// Segments parses tagged text into ordered single-language segments.
// Untagged spans and malformed pairs (unclosed tags, mismatched codes) are
// skipped rather than merged into neighboring segments. Segments whose
// content trims to nothing are dropped.
func Segments(tagged string) ([]TextSegment, error) {
	var segments []TextSegment
	for _, m := range tagPairPattern.FindAllStringSubmatch(tagged, -1) {
		if m[1] != m[3] {
			continue
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		segments = append(segments, TextSegment{Language: m[1], Text: body})
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return segments, nil
}

// HasLanguageTags reports whether the input contains at least one
// well-formed <xx>…</xx> pair. It does not require the segment body to be
// non-empty; it only decides whether input should take the tagged path.
func HasLanguageTags(s string) bool {
	for _, m := range tagPairPattern.FindAllStringSubmatch(s, -1) {
		if m[1] == m[3] {
			return true
		}
	}
	return false
}

// MixSegments normalizes each segment with its own language and joins the
// tagged results with single spaces, producing mixed-language input for
// synthesis.
func MixSegments(n *Normalizer, segments []TextSegment) (string, error) {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		tagged, err := n.Normalize(seg.Text, seg.Language)
		if err != nil {
			return "", err
		}
		parts = append(parts, tagged)
	}
	return strings.Join(parts, " "), nil
}
