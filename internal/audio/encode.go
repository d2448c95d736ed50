package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// EncodeWAV encodes float32 PCM samples through the wav library as a
// mono 16-bit WAV byte slice at the given sample rate. A sampleRate of 0
// selects DefaultSampleRate. Output from this encoder and from
// EncodeWAVPCM16 carries the same canonical header; this path exists for
// callers already holding go-audio buffers.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	// The wav encoder seeks back to patch chunk sizes on Close, so it
	// needs an io.WriteSeeker rather than a plain buffer.
	sw := &seekBuffer{}

	enc := wav.NewEncoder(sw, sampleRate, BitDepth, NumChannels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: NumChannels},
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return sw.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker over a growable byte slice.
type seekBuffer struct {
	data []byte
	pos  int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if need := s.pos + len(p); need > len(s.data) {
		if need > cap(s.data) {
			grown := make([]byte, need)
			copy(grown, s.data)
			s.data = grown
		} else {
			s.data = s.data[:need]
		}
	}

	copy(s.data[s.pos:], p)
	s.pos += len(p)

	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(s.pos) + offset
	case io.SeekEnd:
		pos = int64(len(s.data)) + offset
	default:
		return 0, fmt.Errorf("unknown whence %d", whence)
	}

	if pos < 0 {
		return 0, errors.New("seek before start of buffer")
	}

	s.pos = int(pos)

	return pos, nil
}
