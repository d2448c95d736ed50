package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// DefaultUnknownID is the id assigned to code points absent from the
// indexer, matching the bundle's published vocabulary.
const DefaultUnknownID = 0

// UnicodeTokenizer maps each code point of the input to an integer id via
// the model bundle's unicode_indexer.json vocabulary.
type UnicodeTokenizer struct {
	table   []int64          // dense form: id indexed by code point
	sparse  map[rune]int64   // dict form: explicit code point entries
	unknown int64
}

// NewUnicodeTokenizer loads a unicode indexer vocabulary from path.
func NewUnicodeTokenizer(path string) (*UnicodeTokenizer, error) {
	if path == "" {
		return nil, errors.New("unicode indexer path must not be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unicode indexer %q: %w", path, err)
	}
	tok, err := NewUnicodeTokenizerFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse unicode indexer %q: %w", path, err)
	}
	return tok, nil
}

// NewUnicodeTokenizerFromBytes parses a unicode indexer vocabulary. Both
// published forms are accepted: a dense JSON array indexed by code point,
// or an object keyed by stringified code points.
func NewUnicodeTokenizerFromBytes(data []byte) (*UnicodeTokenizer, error) {
	if len(data) == 0 {
		return nil, errors.New("unicode indexer data must not be empty")
	}

	var table []int64
	if err := json.Unmarshal(data, &table); err == nil {
		return &UnicodeTokenizer{table: table, unknown: DefaultUnknownID}, nil
	}

	var entries map[string]int64
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unicode indexer is neither an array nor an object: %w", err)
	}
	sparse := make(map[rune]int64, len(entries))
	for key, id := range entries {
		cp, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("unicode indexer key %q is not a code point", key)
		}
		sparse[rune(cp)] = id
	}
	return &UnicodeTokenizer{sparse: sparse, unknown: DefaultUnknownID}, nil
}

// SetUnknownID overrides the id used for unmapped code points.
func (t *UnicodeTokenizer) SetUnknownID(id int64) { t.unknown = id }

// Encode maps each code point of text to its vocabulary id. Unmapped code
// points receive the unknown id.
func (t *UnicodeTokenizer) Encode(text string) ([]int64, error) {
	runes := []rune(text)
	ids := make([]int64, len(runes))
	for i, r := range runes {
		ids[i] = t.lookup(r)
	}
	return ids, nil
}

func (t *UnicodeTokenizer) lookup(r rune) int64 {
	if t.table != nil {
		if int(r) >= 0 && int(r) < len(t.table) {
			return t.table[r]
		}
		return t.unknown
	}
	if id, ok := t.sparse[r]; ok {
		return id
	}
	return t.unknown
}
