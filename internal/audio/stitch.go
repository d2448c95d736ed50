package audio

import "math"

// SampleCount converts a duration in seconds to a sample count at the
// given rate, rounding to the nearest sample.
func SampleCount(seconds float64, sampleRate int) int {
	n := int(math.Round(seconds * float64(sampleRate)))
	if n < 0 {
		return 0
	}

	return n
}

// Silence returns seconds of zero samples at the given rate.
func Silence(seconds float64, sampleRate int) []float32 {
	return make([]float32, SampleCount(seconds, sampleRate))
}

// TrimToDuration truncates samples to the given duration. The decoder
// emits whole latent frames, so the tail beyond the predicted duration is
// padding to discard. Durations longer than the clip leave it unchanged.
func TrimToDuration(samples []float32, seconds float64, sampleRate int) []float32 {
	n := SampleCount(seconds, sampleRate)
	if n > len(samples) {
		n = len(samples)
	}

	return samples[:n]
}

// Stitch concatenates clips in order with silenceSeconds of silence
// between consecutive clips. No silence leads or trails the result, so
// the output length is the sum of the clip lengths plus (len(clips)-1)
// gaps. Empty clips still count as boundaries.
func Stitch(clips [][]float32, silenceSeconds float64, sampleRate int) []float32 {
	if len(clips) == 0 {
		return nil
	}
	if len(clips) == 1 {
		out := make([]float32, len(clips[0]))
		copy(out, clips[0])
		return out
	}

	gap := SampleCount(silenceSeconds, sampleRate)
	total := gap * (len(clips) - 1)
	for _, clip := range clips {
		total += len(clip)
	}

	out := make([]float32, total)
	pos := 0
	for i, clip := range clips {
		if i > 0 {
			pos += gap
		}
		copy(out[pos:], clip)
		pos += len(clip)
	}

	return out
}
