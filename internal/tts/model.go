package tts

import (
	"context"

	"github.com/example/go-supertonic/internal/onnx"
)

// AcousticModel is the three-call contract the synthesis pipeline drives:
// text encoding with duration prediction, iterative latent refinement, and
// waveform decoding. The native ONNX engine implements it; tests substitute
// in-memory fakes.
type AcousticModel interface {
	Encode(ctx context.Context, ids, mask *onnx.Tensor, style onnx.Style) (*onnx.Encoding, error)
	Refine(ctx context.Context, latent, latentMask *onnx.Tensor, enc *onnx.Encoding, style onnx.Style, step, totalSteps int) (*onnx.Tensor, error)
	Decode(ctx context.Context, latent *onnx.Tensor) ([][]float32, error)
}

var _ AcousticModel = (*onnx.Engine)(nil)
