package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestApplyHooks(t *testing.T) {
	double := func(s []float32) []float32 {
		out := make([]float32, len(s))
		for i, v := range s {
			out[i] = v * 2
		}
		return out
	}

	tests := []struct {
		name  string
		input []float32
		hooks []Hook
		want  []float32
	}{
		{
			name:  "no hooks passes through",
			input: []float32{0.1, 0.2, 0.3},
			want:  []float32{0.1, 0.2, 0.3},
		},
		{
			name:  "single hook applies",
			input: []float32{0.1, 0.5},
			hooks: []Hook{double},
			want:  []float32{0.2, 1.0},
		},
		{
			name:  "hooks chain left to right",
			input: []float32{0.1},
			hooks: []Hook{double, double},
			want:  []float32{0.4},
		},
		{
			name:  "empty samples stay empty",
			input: []float32{},
			want:  []float32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyHooks(tt.input, tt.hooks...)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestApplyHooks_RunsInOrder(t *testing.T) {
	var order []int
	mark := func(n int) Hook {
		return func(s []float32) []float32 {
			order = append(order, n)
			return s
		}
	}

	ApplyHooks([]float32{0}, mark(1), mark(2), mark(3))

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("hooks ran in order %v, want [1 2 3]", order)
	}
}

func TestEncodeWAVPCM16_RejectsBadRate(t *testing.T) {
	for _, rate := range []int{0, -1} {
		if _, err := EncodeWAVPCM16([]float32{0.1}, rate); err == nil {
			t.Errorf("EncodeWAVPCM16(rate=%d) should fail", rate)
		}
	}
}

func TestEncodeWAVPCM16_HeaderFields(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 1.0, -1.0}

	data, err := EncodeWAVPCM16(samples, 22050)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16: %v", err)
	}

	if want := 44 + len(samples)*2; len(data) != want {
		t.Errorf("output length = %d, want %d", len(data), want)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("channels = %d, want mono", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 22050 {
		t.Errorf("sample rate in header = %d, want 22050", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bit depth = %d, want 16", got)
	}
}

func TestEncodeWAVPCM16_ClampsOverdrive(t *testing.T) {
	data, err := EncodeWAVPCM16([]float32{2.0, -2.0}, 44100)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16: %v", err)
	}

	hot := int16(binary.LittleEndian.Uint16(data[44:46]))
	cold := int16(binary.LittleEndian.Uint16(data[46:48]))

	if hot != 32767 {
		t.Errorf("clamped +2.0 = %d, want 32767", hot)
	}
	if cold != -32767 {
		t.Errorf("clamped -2.0 = %d, want -32767", cold)
	}
}

func TestEncodeWAVPCM16_EmptyProducesHeaderOnly(t *testing.T) {
	data, err := EncodeWAVPCM16(nil, 44100)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16(nil): %v", err)
	}

	if len(data) != 44 {
		t.Errorf("empty WAV length = %d, want bare 44-byte header", len(data))
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 0 {
		t.Errorf("data chunk size = %d, want 0", got)
	}
}
