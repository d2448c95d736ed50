package audio

import "math"

// Hook is a sample-level post-processing stage applied before encoding.
type Hook func(samples []float32) []float32

// ApplyHooks runs hooks over samples in order.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PeakNormalize scales samples in place so the peak amplitude reaches 1.0.
// Silence is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, v := range samples {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}

	scale := 1.0 / peak
	for i := range samples {
		samples[i] *= scale
	}

	return samples
}

// Gain scales samples in place by the linear factor g. Values pushed
// outside [-1, 1] are clamped later at encode time.
func Gain(samples []float32, g float64) []float32 {
	if g == 1.0 {
		return samples
	}
	for i := range samples {
		samples[i] = float32(float64(samples[i]) * g)
	}

	return samples
}

// DCBlock removes DC offset from samples using a one-pole high-pass filter
// with a cutoff around 20 Hz.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate < 1 {
		return samples
	}

	const cutoffHz = 20.0
	r := float32(1.0 - 2.0*math.Pi*cutoffHz/float64(sampleRate))

	var prevIn, prevOut float32
	for i, v := range samples {
		out := v - prevIn + r*prevOut
		prevIn = v
		prevOut = out
		samples[i] = out
	}

	return samples
}

// FadeIn applies a linear fade-in ramp over the given duration in milliseconds.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := fadeSamples(len(samples), sampleRate, ms)
	for i := 0; i < n; i++ {
		samples[i] *= float32(i) / float32(n)
	}

	return samples
}

// FadeOut applies a linear fade-out ramp over the given duration in milliseconds.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := fadeSamples(len(samples), sampleRate, ms)
	for i := len(samples) - n; i < len(samples); i++ {
		samples[i] *= float32(len(samples)-1-i) / float32(n)
	}

	return samples
}

func fadeSamples(total, sampleRate int, ms float64) int {
	n := int(ms / 1000.0 * float64(sampleRate))
	if n > total {
		n = total
	}
	if n < 0 {
		n = 0
	}

	return n
}
