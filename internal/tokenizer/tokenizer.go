// Package tokenizer maps normalized text to the integer token ids the
// acoustic model consumes. The stock bundle ships a per-code-point unicode
// indexer; SentencePiece models are supported as a richer vocabulary behind
// the same interface.
package tokenizer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Tokenizer encodes text into model token IDs.
type Tokenizer interface {
	// Encode tokenizes text and returns token IDs.
	Encode(text string) ([]int64, error)
}

// Open loads the vocabulary at path and returns the matching Tokenizer
// implementation: .json selects the unicode indexer, .model a SentencePiece
// model.
func Open(path string) (Tokenizer, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return NewUnicodeTokenizer(path)
	case ".model":
		return NewSentencePieceTokenizer(path)
	default:
		return nil, fmt.Errorf("unsupported vocabulary file %q (expected .json or .model)", path)
	}
}
