package tts

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/example/go-supertonic/internal/onnx"
)

// NoiseSource yields standard normal draws for latent initialization.
// *rand.Rand satisfies it.
type NoiseSource interface {
	NormFloat64() float64
}

type systemNoise struct{}

func (systemNoise) NormFloat64() float64 { return rand.NormFloat64() }

// DefaultNoise returns a source backed by the shared top-level generator,
// safe for concurrent use.
func DefaultNoise() NoiseSource { return systemNoise{} }

// SeededNoise returns a deterministic source so the same request produces
// the same waveform. Not safe for concurrent use; wrap with LockedNoise
// when the service handles requests in parallel.
func SeededNoise(seed uint64) NoiseSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// LockedNoise serializes access to an underlying source.
type LockedNoise struct {
	mu  sync.Mutex
	src NoiseSource
}

func NewLockedNoise(src NoiseSource) *LockedNoise { return &LockedNoise{src: src} }

func (l *LockedNoise) NormFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.NormFloat64()
}

// LatentState is the refinement loop's working pair: the latent tensor
// [batch, dim, frames] and its validity mask [batch, 1, frames]. Positions
// at or beyond an item's own frame count hold zeros in both.
type LatentState struct {
	Values *onnx.Tensor
	Mask   *onnx.Tensor
}

// LatentSizer derives latent dimensions from predicted durations. All
// fields come from the model bundle config except MaxFrames, which caps
// the refinement length; zero disables the cap.
type LatentSizer struct {
	SampleRate int
	ChunkSize  int
	Dim        int
	MaxFrames  int
}

// NewLatentSizer builds a sizer from the bundle's model config. ChunkSize
// and Dim are the effective (compressed) values the vocoder consumes.
func NewLatentSizer(cfg onnx.ModelConfig) LatentSizer {
	return LatentSizer{
		SampleRate: cfg.AE.SampleRate,
		ChunkSize:  cfg.EffectiveChunkSize(),
		Dim:        cfg.EffectiveLatentDim(),
	}
}

// Frames returns the shared latent length for a batch whose longest item
// speaks for maxDuration seconds. The sample count is converted to frames
// with a ceiling division carried out in floating point before truncation,
// then floored at one frame so empty predictions still refine.
func (s LatentSizer) Frames(maxDuration float64) int {
	n := int((maxDuration*float64(s.SampleRate) + float64(s.ChunkSize) - 1) / float64(s.ChunkSize))
	if n < 1 {
		n = 1
	}
	return n
}

// itemFrames is the per-item valid frame count: the duration is first
// truncated to whole samples, then ceiling-divided by the chunk size in
// integer arithmetic. Never exceeds Frames(maxDuration) for any item of
// the same batch.
func (s LatentSizer) itemFrames(duration float32) int64 {
	wavLen := int64(float64(duration) * float64(s.SampleRate))
	if wavLen < 0 {
		wavLen = 0
	}
	return (wavLen + int64(s.ChunkSize) - 1) / int64(s.ChunkSize)
}

// Sample builds the initial noisy latent for a batch of predicted
// durations: standard normal noise at valid positions, zeros elsewhere,
// plus the matching mask. Returns ErrLatentTooLong when the shared frame
// count exceeds MaxFrames.
func (s LatentSizer) Sample(durations []float32, noise NoiseSource) (*LatentState, error) {
	if s.SampleRate <= 0 || s.ChunkSize <= 0 || s.Dim <= 0 {
		return nil, fmt.Errorf("latent sizer not configured: rate=%d chunk=%d dim=%d", s.SampleRate, s.ChunkSize, s.Dim)
	}
	if len(durations) == 0 {
		return nil, fmt.Errorf("latent sizing needs at least one duration")
	}
	if noise == nil {
		noise = DefaultNoise()
	}

	maxDur := float64(durations[0])
	for _, d := range durations[1:] {
		if float64(d) > maxDur {
			maxDur = float64(d)
		}
	}

	frames := s.Frames(maxDur)
	if s.MaxFrames > 0 && frames > s.MaxFrames {
		return nil, fmt.Errorf("%w: %d frames (limit %d)", ErrLatentTooLong, frames, s.MaxFrames)
	}

	bsz := len(durations)
	values := make([]float32, bsz*s.Dim*frames)
	mask := make([]float32, bsz*frames)

	for b, dur := range durations {
		valid := int(s.itemFrames(dur))
		if valid > frames {
			valid = frames
		}
		for t := range valid {
			mask[b*frames+t] = 1
		}
		for d := range s.Dim {
			row := (b*s.Dim + d) * frames
			for t := range valid {
				values[row+t] = float32(noise.NormFloat64())
			}
		}
	}

	valuesT, err := onnx.NewTensor(values, []int64{int64(bsz), int64(s.Dim), int64(frames)})
	if err != nil {
		return nil, err
	}
	maskT, err := onnx.NewTensor(mask, []int64{int64(bsz), 1, int64(frames)})
	if err != nil {
		return nil, err
	}

	return &LatentState{Values: valuesT, Mask: maskT}, nil
}
