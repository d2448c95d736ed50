package audio

import (
	"encoding/binary"
	"io"
)

// WriteWAVHeaderStreaming writes a 44-byte WAV header for output whose
// total length is not known in advance. Both the RIFF chunk size and the
// data sub-chunk size are set to 0xFFFFFFFF, the conventional marker for
// an unbounded stream.
//
// Format: mono, 16-bit PCM at the given sample rate; 0 selects
// DefaultSampleRate.
func WriteWAVHeaderStreaming(w io.Writer, sampleRate int) (int, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	var hdr [wavHeaderSize]byte
	putWAVHeader(hdr[:], sampleRate, 0xFFFFFFFF, 0xFFFFFFFF)

	return w.Write(hdr[:])
}

// WritePCM16Samples quantizes float32 samples to little-endian 16-bit
// signed integers and writes them to w. Samples are clamped to [-1, 1].
func WritePCM16Samples(w io.Writer, samples []float32) (int, error) {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(pcm16(s)))
	}

	return w.Write(buf)
}
