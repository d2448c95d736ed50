// Package bench provides timing and report helpers for the supertonic bench command.
package bench

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index       int
	Cold        bool // true for the first run (cold-start)
	Chunks      int  // text chunks stitched into the output
	Duration    time.Duration
	WAVDuration time.Duration
	RTF         float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// An empty slice yields the zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	s := Stats{Min: durations[0], Max: durations[0]}
	var sum time.Duration
	for _, d := range durations {
		sum += d
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
	}
	s.Mean = sum / time.Duration(len(durations))

	return s
}

// CalcRTF returns synthesis time divided by audio time, the real-time
// factor. A zero or negative audio duration yields 0 so callers never
// divide by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// MeanRTF averages the per-run RTF values. Runs with RTF 0 (no audio)
// are skipped so a single failed duration probe does not drag the mean.
func MeanRTF(runs []RunResult) float64 {
	sum := 0.0
	n := 0
	for _, r := range runs {
		if r.RTF <= 0 {
			continue
		}
		sum += r.RTF
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CheckRTFThreshold returns an error when meanRTF exceeds threshold.
// A threshold of 0 or less disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold > 0 && meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// WAVDuration returns the playback duration of a 16-bit PCM WAV file,
// derived from its fmt and data chunk headers.
func WAVDuration(wav []byte) (time.Duration, error) {
	hdr, err := parseWAVHeader(wav)
	if err != nil {
		return 0, err
	}
	samples := hdr.dataSize / hdr.blockAlign
	return time.Duration(samples * int64(time.Second) / hdr.sampleRate), nil
}

// wavHeader carries the RIFF fields a duration calculation needs.
type wavHeader struct {
	sampleRate int64
	blockAlign int64
	dataSize   int64
}

// parseWAVHeader walks the RIFF chunk list once, collecting the fmt and
// data chunks wherever they appear. Neither chunk is guaranteed to sit at
// a fixed offset.
func parseWAVHeader(wav []byte) (wavHeader, error) {
	var hdr wavHeader

	if len(wav) < 44 {
		return hdr, fmt.Errorf("wav too short (%d bytes)", len(wav))
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return hdr, errors.New("not a RIFF/WAVE file")
	}

	var haveFmt, haveData bool
	pos := 12
	for pos+8 <= len(wav) && !(haveFmt && haveData) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(wav) {
				return hdr, errors.New("fmt chunk too short")
			}
			hdr.sampleRate = int64(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			hdr.blockAlign = int64(binary.LittleEndian.Uint16(wav[body+12 : body+14]))
			if hdr.sampleRate == 0 || hdr.blockAlign == 0 {
				return hdr, fmt.Errorf("invalid fmt chunk: sampleRate=%d blockAlign=%d", hdr.sampleRate, hdr.blockAlign)
			}
			haveFmt = true
		case "data":
			hdr.dataSize = int64(size)
			haveData = true
		}

		pos = body + size
		if size%2 != 0 {
			pos++ // chunks are word aligned
		}
	}

	if !haveFmt {
		return hdr, errors.New("fmt chunk not found")
	}
	if !haveData {
		return hdr, errors.New("data chunk not found")
	}
	return hdr, nil
}

// millis converts a duration to fractional milliseconds for report output.
func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

// FormatTable writes a human-readable table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	rule := strings.Repeat("-", 56)

	fmt.Fprintf(w, "%-5s  %-5s  %6s  %10s  %12s  %8s\n", "Run", "Cold", "Chunks", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(w, rule)

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(w, "%-5d  %-5s  %6d  %10.1f  %12.1f  %8.3f\n",
			r.Index+1, cold, r.Chunks, millis(r.Duration), millis(r.WAVDuration), r.RTF)
	}

	fmt.Fprintln(w, rule)
	for _, row := range []struct {
		label string
		value time.Duration
	}{
		{"min", stats.Min},
		{"mean", stats.Mean},
		{"max", stats.Max},
	} {
		fmt.Fprintf(w, "%-5s  %-5s  %6s  %10.1f  %12s  %8s  (%s)\n", "", "", "", millis(row.value), "", "", row.label)
	}
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	Chunks     int     `json:"chunks"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes an indented JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	report := jsonReport{
		Runs: make([]jsonRun, 0, len(runs)),
		Stats: jsonStats{
			MinMS:  millis(stats.Min),
			MeanMS: millis(stats.Mean),
			MaxMS:  millis(stats.Max),
		},
	}
	for _, r := range runs {
		report.Runs = append(report.Runs, jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			Chunks:     r.Chunks,
			DurationMS: millis(r.Duration),
			AudioMS:    millis(r.WAVDuration),
			RTF:        r.RTF,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
