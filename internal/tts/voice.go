package tts

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/example/go-supertonic/internal/onnx"
)

type Voice struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	License string `json:"license,omitempty"`
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

// VoiceManager resolves voice ids to style files and loads them as
// conditioning tensors. Loaded styles are cached; they are read-only
// after load, so the cache is shared across concurrent synthesis calls.
type VoiceManager struct {
	baseDir string
	voices  []Voice
	byID    map[string]Voice

	// Raw .bin styles carry no dims, so the layout comes from tts.json:
	// latent_dim*base_chunk_size floats for style_ttl, then
	// base_chunk_size floats for style_dp.
	latentDim int
	chunkSize int

	mu    sync.Mutex
	cache map[string]onnx.Style
}

// NewVoiceManager loads a pinned voice set from a manifest file. Paths in
// the manifest resolve relative to the manifest's directory.
func NewVoiceManager(manifestPath string, cfg onnx.ModelConfig) (*VoiceManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest

	err = json.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	return newVoiceManager(filepath.Dir(manifestPath), manifest.Voices, cfg)
}

// ScanVoices builds the voice set from the style files in dir: every
// .json and .bin file becomes a voice named after its base name. When
// both forms exist for the same id the .json one wins, matching the
// published bundles where .bin files are converted in place.
func ScanVoices(dir string, cfg onnx.ModelConfig) (*VoiceManager, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan voices dir: %w", err)
	}

	byID := make(map[string]Voice)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".json" && ext != ".bin" {
			continue
		}

		id := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, ok := byID[id]; ok {
			if strings.EqualFold(filepath.Ext(prev.Path), ".json") {
				continue
			}
		}

		byID[id] = Voice{ID: id, Path: name}
	}

	if len(byID) == 0 {
		return nil, fmt.Errorf("no voice style files (.json or .bin) in %s", dir)
	}

	voices := make([]Voice, 0, len(byID))
	for _, v := range byID {
		voices = append(voices, v)
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })

	return newVoiceManager(dir, voices, cfg)
}

func newVoiceManager(baseDir string, voices []Voice, cfg onnx.ModelConfig) (*VoiceManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mgr := &VoiceManager{
		baseDir:   baseDir,
		voices:    append([]Voice(nil), voices...),
		byID:      make(map[string]Voice, len(voices)),
		latentDim: cfg.TTL.LatentDim,
		chunkSize: cfg.AE.BaseChunkSize,
		cache:     make(map[string]onnx.Style),
	}

	for _, v := range voices {
		if v.ID == "" {
			return nil, errors.New("voice set contains empty id")
		}

		if v.Path == "" {
			return nil, fmt.Errorf("voice %q has empty path", v.ID)
		}

		if _, exists := mgr.byID[v.ID]; exists {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}

		mgr.byID[v.ID] = v
	}

	return mgr, nil
}

// ListVoices returns the voice set sorted as loaded.
func (m *VoiceManager) ListVoices() []Voice {
	return append([]Voice(nil), m.voices...)
}

// Has reports whether id names a known voice.
func (m *VoiceManager) Has(id string) bool {
	_, ok := m.byID[id]
	return ok
}

// ResolvePath maps a voice id to its style file on disk.
func (m *VoiceManager) ResolvePath(id string) (string, error) {
	v, ok := m.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVoice, id)
	}

	resolved := v.Path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(m.baseDir, resolved)
	}

	resolved = filepath.Clean(resolved)

	_, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("voice file for %q: %w", id, err)
	}

	return resolved, nil
}

// LoadStyle loads the conditioning tensors for a voice id, reading the
// style file on first use and the cache afterwards. The returned style
// has batch size one; callers tile it with Style.Repeat.
func (m *VoiceManager) LoadStyle(id string) (onnx.Style, error) {
	m.mu.Lock()
	cached, ok := m.cache[id]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	path, err := m.ResolvePath(id)
	if err != nil {
		return onnx.Style{}, err
	}

	var style onnx.Style
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		style, err = loadStyleJSON(path)
	case ".bin":
		style, err = m.loadStyleBin(path)
	default:
		err = fmt.Errorf("unsupported style file %q (want .json or .bin)", filepath.Base(path))
	}
	if err != nil {
		return onnx.Style{}, fmt.Errorf("load style for voice %q: %w", id, err)
	}

	m.mu.Lock()
	m.cache[id] = style
	m.mu.Unlock()

	return style, nil
}

// styleTensorJSON is one half of a JSON style file. Data is decoded
// loosely because published files nest it to the tensor rank while
// converted ones may store it flat.
type styleTensorJSON struct {
	Dims []int64         `json:"dims"`
	Data json.RawMessage `json:"data"`
}

type styleFileJSON struct {
	TTL styleTensorJSON `json:"style_ttl"`
	DP  styleTensorJSON `json:"style_dp"`
}

func loadStyleJSON(path string) (onnx.Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return onnx.Style{}, err
	}

	var file styleFileJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return onnx.Style{}, fmt.Errorf("decode style file: %w", err)
	}

	ttl, err := styleTensor("style_ttl", file.TTL)
	if err != nil {
		return onnx.Style{}, err
	}
	dp, err := styleTensor("style_dp", file.DP)
	if err != nil {
		return onnx.Style{}, err
	}

	return onnx.Style{DP: dp, TTL: ttl}, nil
}

func styleTensor(name string, raw styleTensorJSON) (*onnx.Tensor, error) {
	if len(raw.Dims) != 3 {
		return nil, fmt.Errorf("%s: want 3 dims, got %v", name, raw.Dims)
	}

	var nested any
	if err := json.Unmarshal(raw.Data, &nested); err != nil {
		return nil, fmt.Errorf("%s: decode data: %w", name, err)
	}

	flat := make([]float32, 0, raw.Dims[0]*raw.Dims[1]*raw.Dims[2])
	flat, err := flattenFloats(nested, flat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	t, err := onnx.NewTensor(flat, raw.Dims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// flattenFloats appends every number in a json-decoded value to dst in
// order, descending through arbitrarily nested arrays.
func flattenFloats(v any, dst []float32) ([]float32, error) {
	switch x := v.(type) {
	case float64:
		return append(dst, float32(x)), nil
	case []any:
		var err error
		for _, elem := range x {
			dst, err = flattenFloats(elem, dst)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unexpected %T in style data", v)
	}
}

// loadStyleBin reads the raw layout used before JSON conversion: all
// float32 little-endian, style_ttl first, style_dp after.
func (m *VoiceManager) loadStyleBin(path string) (onnx.Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return onnx.Style{}, err
	}

	ttlCount := m.latentDim * m.chunkSize
	dpCount := m.chunkSize
	want := (ttlCount + dpCount) * 4
	if len(data) != want {
		return onnx.Style{}, fmt.Errorf("style bin is %d bytes, want %d (latent_dim=%d base_chunk_size=%d)",
			len(data), want, m.latentDim, m.chunkSize)
	}

	floats := make([]float32, ttlCount+dpCount)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	ttl, err := onnx.NewTensor(floats[:ttlCount], []int64{1, int64(m.latentDim), int64(m.chunkSize)})
	if err != nil {
		return onnx.Style{}, err
	}
	dp, err := onnx.NewTensor(floats[ttlCount:], []int64{1, 1, int64(m.chunkSize)})
	if err != nil {
		return onnx.Style{}, err
	}

	return onnx.Style{DP: dp, TTL: ttl}, nil
}
