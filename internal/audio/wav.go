// Package audio assembles synthesized waveforms: trimming decoded chunks,
// stitching them with inter-chunk silence, and encoding 16-bit PCM WAV
// output for files and streams.
package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the canonical RIFF/WAVE/fmt/data preamble length.
const wavHeaderSize = 44

// putWAVHeader fills hdr with a mono 16-bit PCM header. riffSize and
// dataSize are written as given; streaming callers pass 0xFFFFFFFF for
// both when the final length is unknown.
func putWAVHeader(hdr []byte, sampleRate int, riffSize, dataSize uint32) {
	byteRate := sampleRate * NumChannels * BitDepth / 8
	blockAlign := NumChannels * BitDepth / 8

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], riffSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], NumChannels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], BitDepth)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
}

// pcm16 quantizes one sample to a signed 16-bit value, clamping to
// [-1, 1] first. NaN maps to silence.
func pcm16(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// EncodeWAVPCM16 encodes float32 samples as a mono 16-bit PCM WAV byte
// slice with a standard 44-byte header. Samples are clamped to [-1, 1]
// before quantization.
func EncodeWAVPCM16(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	dataSize := len(samples) * 2
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	out := make([]byte, wavHeaderSize+dataSize)
	putWAVHeader(out, sampleRate, uint32(riffSize), uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(pcm16(s)))
	}

	return out, nil
}
