package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/example/go-supertonic/internal/audio"
)

// AssertValidWAV checks that data decodes as 16-bit mono PCM at the given
// sample rate and carries at least one sample. Decoding goes through the
// same path synthesis consumers use, so anything the helper accepts is
// playable by the rest of the pipeline.
func AssertValidWAV(tb testing.TB, data []byte, wantRate int) {
	tb.Helper()

	samples, err := audio.DecodeWAV(data, wantRate)
	if err != nil {
		tb.Fatalf("WAV validation: %v", err)
	}
	if len(samples) == 0 {
		tb.Fatal("WAV data chunk contains zero samples")
	}
}

// AssertWAVDurationApprox asserts that the audio duration falls within
// [minSec, maxSec]. The sample rate comes from the file header, so the
// helper works for any bundle rate.
func AssertWAVDurationApprox(tb testing.TB, data []byte, minSec, maxSec float64) {
	tb.Helper()

	if len(data) < 44 {
		tb.Fatalf("WAV duration check: data too short (%d bytes)", len(data))
	}

	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	if rate == 0 {
		tb.Fatal("WAV duration check: zero sample rate in header")
	}

	samples, err := audio.DecodeWAV(data, rate)
	if err != nil {
		tb.Fatalf("WAV duration check: %v", err)
	}

	got := float64(len(samples)) / float64(rate)
	if got < minSec || got > maxSec {
		tb.Fatalf("WAV duration %.3fs out of expected range [%.3fs, %.3fs]", got, minSec, maxSec)
	}
}
