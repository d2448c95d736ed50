package tokenizer

import (
	"errors"
	"fmt"
)

// PadID right-pads every sequence in a batch up to the batch maximum.
const PadID int64 = 0

var (
	// ErrEmptyBatch reports a batch request with zero chunks.
	ErrEmptyBatch = errors.New("token batch is empty")
	// ErrEmptyEncoding reports a batch whose chunks all encoded to zero tokens.
	ErrEmptyEncoding = errors.New("all chunks encoded to zero tokens")
)

// TokenBatch is a padded batch of token id sequences plus the attention
// mask marking real (non-padding) positions.
type TokenBatch struct {
	IDs     [][]int64     // [batch][seq], right-padded with PadID
	Mask    [][][]float32 // [batch][1][seq], 1 at real positions
	Lengths []int         // true sequence lengths before padding
	Seq     int           // padded sequence length: max of Lengths
}

// Batch returns the batch size.
func (b *TokenBatch) Batch() int { return len(b.IDs) }

// FlatIDs returns the ids flattened row-major for tensor construction.
func (b *TokenBatch) FlatIDs() []int64 {
	flat := make([]int64, 0, len(b.IDs)*b.Seq)
	for _, row := range b.IDs {
		flat = append(flat, row...)
	}
	return flat
}

// FlatMask returns the mask flattened row-major for tensor construction.
func (b *TokenBatch) FlatMask() []float32 {
	flat := make([]float32, 0, len(b.Mask)*b.Seq)
	for _, row := range b.Mask {
		flat = append(flat, row[0]...)
	}
	return flat
}

// BuildBatch encodes each text with enc and assembles the padded id matrix
// and attention mask. Texts are expected to be normalized already.
func BuildBatch(enc Tokenizer, texts []string) (*TokenBatch, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}

	sequences := make([][]int64, len(texts))
	lengths := make([]int, len(texts))
	seq := 0
	for i, text := range texts {
		ids, err := enc.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("encode chunk %d: %w", i, err)
		}
		sequences[i] = ids
		lengths[i] = len(ids)
		if len(ids) > seq {
			seq = len(ids)
		}
	}
	if seq == 0 {
		return nil, ErrEmptyEncoding
	}

	batch := &TokenBatch{
		IDs:     make([][]int64, len(texts)),
		Mask:    make([][][]float32, len(texts)),
		Lengths: lengths,
		Seq:     seq,
	}
	for i, ids := range sequences {
		row := make([]int64, seq)
		copy(row, ids)
		for j := len(ids); j < seq; j++ {
			row[j] = PadID
		}
		mask := make([]float32, seq)
		for j := 0; j < len(ids); j++ {
			mask[j] = 1
		}
		batch.IDs[i] = row
		batch.Mask[i] = [][]float32{mask}
	}
	return batch, nil
}
