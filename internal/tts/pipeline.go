package tts

import (
	"context"
	"fmt"

	"github.com/example/go-supertonic/internal/audio"
	"github.com/example/go-supertonic/internal/onnx"
	"github.com/example/go-supertonic/internal/tokenizer"
)

// ChunkAudio is one synthesized text chunk: the decoded samples already
// trimmed to the predicted duration, and that duration in seconds.
type ChunkAudio struct {
	Samples  []float32
	Duration float64
}

// Pipeline drives the acoustic model for one batch of normalized text
// chunks: tokenize, encode, sample a latent, refine it step by step, and
// decode to waveforms. It holds no per-request state; one Pipeline serves
// concurrent callers as long as Model and Encoder do.
type Pipeline struct {
	Model   AcousticModel
	Encoder tokenizer.Tokenizer
	Sizer   LatentSizer
}

// Run synthesizes a batch of chunks under one voice style. Speed scales
// the predicted durations (2.0 is twice as fast), steps is the number of
// refinement passes, and noise seeds the initial latent. The context is
// honored between refinement steps, so slow synthesis aborts promptly.
func (p Pipeline) Run(ctx context.Context, texts []string, style onnx.Style, speed float64, steps int, noise NoiseSource) ([]ChunkAudio, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("%w: speed %v must be > 0", ErrInvalidOption, speed)
	}
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps %d must be >= 1", ErrInvalidOption, steps)
	}

	batch, err := tokenizer.BuildBatch(p.Encoder, texts)
	if err != nil {
		return nil, err
	}

	bsz := batch.Batch()

	ids, err := onnx.NewTensor(batch.FlatIDs(), []int64{int64(bsz), int64(batch.Seq)})
	if err != nil {
		return nil, fmt.Errorf("text ids: %w", err)
	}
	mask, err := onnx.NewTensor(batch.FlatMask(), []int64{int64(bsz), 1, int64(batch.Seq)})
	if err != nil {
		return nil, fmt.Errorf("text mask: %w", err)
	}

	style, err = style.Repeat(bsz)
	if err != nil {
		return nil, fmt.Errorf("tile style: %w", err)
	}

	enc, err := p.Model.Encode(ctx, ids, mask, style)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(enc.Durations) != bsz {
		return nil, fmt.Errorf("encode returned %d durations for batch %d", len(enc.Durations), bsz)
	}

	// Playback speed is applied to the predicted durations before sizing,
	// so the latent, the vocoder output, and the trim all agree.
	durations := make([]float32, bsz)
	for i, d := range enc.Durations {
		durations[i] = d / float32(speed)
	}

	state, err := p.Sizer.Sample(durations, noise)
	if err != nil {
		return nil, err
	}

	latent := state.Values
	for step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		latent, err = p.Model.Refine(ctx, latent, state.Mask, enc, style, step, steps)
		if err != nil {
			return nil, fmt.Errorf("refine step %d/%d: %w", step+1, steps, err)
		}
	}

	wavs, err := p.Model.Decode(ctx, latent)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(wavs) != bsz {
		return nil, fmt.Errorf("decode returned %d waveforms for batch %d", len(wavs), bsz)
	}

	out := make([]ChunkAudio, bsz)
	for i, wav := range wavs {
		dur := float64(durations[i])
		out[i] = ChunkAudio{
			Samples:  audio.TrimToDuration(wav, dur, p.Sizer.SampleRate),
			Duration: dur,
		}
	}

	return out, nil
}

// RunChunks synthesizes chunks one at a time rather than as a padded
// batch, calling emit after each chunk. This keeps the latent length per
// call at a single chunk's worth and lets callers stream audio out as it
// is produced. Emit errors abort the remaining chunks.
func (p Pipeline) RunChunks(ctx context.Context, texts []string, style onnx.Style, speed float64, steps int, noise NoiseSource, emit func(int, ChunkAudio) error) error {
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}

		clips, err := p.Run(ctx, []string{text}, style, speed, steps, noise)
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(texts), err)
		}

		if err := emit(i, clips[0]); err != nil {
			return err
		}
	}

	return nil
}
