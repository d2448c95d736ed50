package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkLen bounds chunk length (in runes) when no per-language
// override applies.
const DefaultMaxChunkLen = 300

var paragraphPattern = regexp.MustCompile(`\n\s*\n`)

// sentenceBoundaryPattern marks a candidate sentence end: terminal
// punctuation followed by whitespace. Candidates directly after a listed
// abbreviation or a single-capital initial are rejected afterwards.
var sentenceBoundaryPattern = regexp.MustCompile(`[.!?]\s+`)

// abbreviations suppress a sentence boundary when the text before the
// candidate punctuation ends with one of them.
var abbreviations = []string{
	"Mr.", "Mrs.", "Ms.", "Dr.", "Prof.", "Sr.", "Jr.",
	"St.", "Ave.", "Rd.", "Blvd.", "Dept.", "Inc.", "Ltd.",
	"Co.", "Corp.", "etc.", "vs.", "e.g.", "i.e.", "Ph.D.",
}

// Chunk splits text into bounded-length pieces along the largest boundaries
// that fit: paragraphs, then sentences, then comma clauses, then words.
// Chunks never exceed maxLen runes except when a single word alone does, in
// which case the word is emitted whole. Rejoining the chunks with single
// spaces reproduces the whitespace-collapsed input. Empty input yields a
// single empty chunk.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return []string{""}
	}

	var chunks []string
	emit := func(c string) {
		c = strings.TrimSpace(c)
		if c != "" {
			chunks = append(chunks, c)
		}
	}

	for _, para := range paragraphPattern.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= maxLen {
			emit(para)
			continue
		}
		packUnits(SplitSentences(para), maxLen, emit, func(sentence string) {
			packUnits(splitClauses(sentence), maxLen, emit, func(clause string) {
				packUnits(strings.Fields(clause), maxLen, emit, nil)
			})
		})
	}

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// packUnits greedily packs units into space-joined chunks of at most maxLen
// runes. A unit that alone exceeds maxLen is handed to overflow for
// finer-grained splitting; with a nil overflow it is emitted whole.
func packUnits(units []string, maxLen int, emit func(string), overflow func(string)) {
	var buf strings.Builder
	runes := 0
	flush := func() {
		if runes > 0 {
			emit(buf.String())
			buf.Reset()
			runes = 0
		}
	}

	for _, unit := range units {
		unit = strings.TrimSpace(unit)
		if unit == "" {
			continue
		}
		n := utf8.RuneCountInString(unit)
		if n > maxLen && overflow != nil {
			flush()
			overflow(unit)
			continue
		}
		if runes > 0 && runes+1+n > maxLen {
			flush()
		}
		if runes > 0 {
			buf.WriteByte(' ')
			runes++
		}
		buf.WriteString(unit)
		runes += n
	}
	flush()
}

// SplitSentences splits text at terminal punctuation followed by whitespace,
// keeping the punctuation with the preceding sentence. Boundaries right
// after a known abbreviation or a single-capital initial do not split.
func SplitSentences(text string) []string {
	matches := sentenceBoundaryPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	var sentences []string
	last := 0
	for _, m := range matches {
		// Candidate sentence including its terminal punctuation.
		head := text[last : m[0]+1]
		if endsWithAbbreviation(head) {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(text[last:m[1]]))
		last = m[1]
	}
	if last < len(text) {
		if tail := strings.TrimSpace(text[last:]); tail != "" {
			sentences = append(sentences, tail)
		}
	}

	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// endsWithAbbreviation reports whether s (ending in terminal punctuation)
// ends with a listed abbreviation or a single-capital initial like "J.".
func endsWithAbbreviation(s string) bool {
	for _, abbr := range abbreviations {
		if strings.HasSuffix(s, abbr) {
			return true
		}
	}
	// Initials: a capital letter directly before the period, preceded by a
	// non-letter (or the start of text).
	if len(s) >= 2 && s[len(s)-1] == '.' {
		r, size := utf8.DecodeLastRuneInString(s[:len(s)-1])
		if unicode.IsUpper(r) {
			rest := s[:len(s)-1-size]
			if rest == "" {
				return true
			}
			prev, _ := utf8.DecodeLastRuneInString(rest)
			if !unicode.IsLetter(prev) {
				return true
			}
		}
	}
	return false
}

// splitClauses splits a sentence after each comma that is followed by
// whitespace, keeping the comma with the preceding clause so that rejoining
// with single spaces preserves content.
func splitClauses(sentence string) []string {
	var clauses []string
	start := 0
	for i := 0; i < len(sentence)-1; i++ {
		if sentence[i] == ',' && isSpaceByte(sentence[i+1]) {
			if c := strings.TrimSpace(sentence[start : i+1]); c != "" {
				clauses = append(clauses, c)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(sentence[start:]); tail != "" {
		clauses = append(clauses, tail)
	}
	if len(clauses) == 0 {
		return []string{sentence}
	}
	return clauses
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
