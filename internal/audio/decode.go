package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// Output format shared by every WAV helper in this package. The sample
// rate varies with the model bundle; channel count and bit depth do not.
const (
	// DefaultSampleRate matches the stock model bundle.
	DefaultSampleRate = 24000
	NumChannels       = 1
	BitDepth          = 16
)

// ErrFormatMismatch is returned when a decoded WAV does not match the expected format.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// DecodeWAV decodes WAV bytes and returns float32 PCM samples. It
// validates mono 16-bit PCM at the given sample rate; a sampleRate of 0
// accepts DefaultSampleRate.
func DecodeWAV(data []byte, sampleRate int) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty WAV input")
	}
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	if int(dec.SampleRate) != sampleRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrFormatMismatch, dec.SampleRate, sampleRate)
	}
	if dec.NumChans != NumChannels {
		return nil, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, dec.NumChans, NumChannels)
	}
	if dec.BitDepth != BitDepth {
		return nil, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, dec.BitDepth, BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}

	return buf.Data, nil
}
