package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Graph names within a model bundle.
const (
	GraphDurationPredictor = "duration_predictor"
	GraphTextEncoder       = "text_encoder"
	GraphVectorEstimator   = "vector_estimator"
	GraphVocoder           = "vocoder"
)

// Well-known metadata file names inside a bundle directory.
const (
	ModelConfigFile    = "tts.json"
	UnicodeIndexerFile = "unicode_indexer.json"
)

// AEConfig holds the audio-autoencoder section of tts.json.
type AEConfig struct {
	SampleRate    int `json:"sample_rate"`
	BaseChunkSize int `json:"base_chunk_size"`
}

// TTLConfig holds the text-to-latent section of tts.json.
type TTLConfig struct {
	ChunkCompressFactor int `json:"chunk_compress_factor"`
	LatentDim           int `json:"latent_dim"`
}

// ModelConfig mirrors the tts.json shipped alongside the ONNX graphs.
// Only the fields the pipeline consumes are decoded; sizing constants
// come from here rather than from compiled-in defaults so that a bundle
// exported with different dimensions keeps working.
type ModelConfig struct {
	AE  AEConfig  `json:"ae"`
	TTL TTLConfig `json:"ttl"`
}

// EffectiveChunkSize is the number of waveform samples covered by one
// latent time step.
func (c ModelConfig) EffectiveChunkSize() int {
	return c.AE.BaseChunkSize * c.TTL.ChunkCompressFactor
}

// EffectiveLatentDim is the channel dimension of the sampled latent.
func (c ModelConfig) EffectiveLatentDim() int {
	return c.TTL.LatentDim * c.TTL.ChunkCompressFactor
}

func (c ModelConfig) Validate() error {
	if c.AE.SampleRate < 1 {
		return fmt.Errorf("model config: sample_rate %d must be >= 1", c.AE.SampleRate)
	}
	if c.AE.BaseChunkSize < 1 {
		return fmt.Errorf("model config: base_chunk_size %d must be >= 1", c.AE.BaseChunkSize)
	}
	if c.TTL.ChunkCompressFactor < 1 {
		return fmt.Errorf("model config: chunk_compress_factor %d must be >= 1", c.TTL.ChunkCompressFactor)
	}
	if c.TTL.LatentDim < 1 {
		return fmt.Errorf("model config: latent_dim %d must be >= 1", c.TTL.LatentDim)
	}
	return nil
}

// LoadModelConfig reads and validates a tts.json file.
func LoadModelConfig(path string) (ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("read model config: %w", err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ModelConfig{}, fmt.Errorf("decode model config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return ModelConfig{}, err
	}

	return cfg, nil
}

// NodeInfo names one tensor a graph consumes or produces.
type NodeInfo struct {
	Name  string
	DType string
}

// Session describes one ONNX graph in a bundle: its file on disk and
// the tensors it exchanges.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// graphDefs is the fixed graph inventory of a bundle. File and tensor
// names follow the published ONNX export and are not configurable.
var graphDefs = []Session{
	{
		Name: GraphDurationPredictor,
		Path: "duration_predictor.onnx",
		Inputs: []NodeInfo{
			{Name: "text_ids", DType: "int64"},
			{Name: "style_dp", DType: "float32"},
			{Name: "text_mask", DType: "float32"},
		},
		Outputs: []NodeInfo{
			{Name: "duration", DType: "float32"},
		},
	},
	{
		Name: GraphTextEncoder,
		Path: "text_encoder.onnx",
		Inputs: []NodeInfo{
			{Name: "text_ids", DType: "int64"},
			{Name: "style_ttl", DType: "float32"},
			{Name: "text_mask", DType: "float32"},
		},
		Outputs: []NodeInfo{
			{Name: "text_emb", DType: "float32"},
		},
	},
	{
		Name: GraphVectorEstimator,
		Path: "vector_estimator.onnx",
		Inputs: []NodeInfo{
			{Name: "noisy_latent", DType: "float32"},
			{Name: "text_emb", DType: "float32"},
			{Name: "style_ttl", DType: "float32"},
			{Name: "latent_mask", DType: "float32"},
			{Name: "text_mask", DType: "float32"},
			{Name: "current_step", DType: "float32"},
			{Name: "total_step", DType: "float32"},
		},
		Outputs: []NodeInfo{
			{Name: "denoised_latent", DType: "float32"},
		},
	},
	{
		Name: GraphVocoder,
		Path: "vocoder.onnx",
		Inputs: []NodeInfo{
			{Name: "latent", DType: "float32"},
		},
		Outputs: []NodeInfo{
			{Name: "wav_tts", DType: "float32"},
		},
	},
}

// Bundle is a model directory holding the four ONNX graphs plus their
// shared metadata files.
type Bundle struct {
	Dir    string
	Config ModelConfig

	graphs map[string]Session
	order  []string
}

// BundleFiles lists every file a complete bundle directory must contain.
func BundleFiles() []string {
	files := []string{ModelConfigFile, UnicodeIndexerFile}
	for _, g := range graphDefs {
		files = append(files, g.Path)
	}
	return files
}

// LoadBundle validates a bundle directory and resolves its graphs.
func LoadBundle(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, errors.New("bundle directory is required")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("bundle directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle path %s is not a directory", dir)
	}

	cfg, err := LoadModelConfig(filepath.Join(dir, ModelConfigFile))
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, UnicodeIndexerFile)); err != nil {
		return nil, fmt.Errorf("unicode indexer: %w", err)
	}

	b := &Bundle{
		Dir:    dir,
		Config: cfg,
		graphs: make(map[string]Session, len(graphDefs)),
		order:  make([]string, 0, len(graphDefs)),
	}

	for _, def := range graphDefs {
		path := filepath.Join(dir, def.Path)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("graph file for %q: %w", def.Name, err)
		}

		session := Session{
			Name:    def.Name,
			Path:    path,
			Inputs:  append([]NodeInfo(nil), def.Inputs...),
			Outputs: append([]NodeInfo(nil), def.Outputs...),
		}
		b.graphs[def.Name] = session
		b.order = append(b.order, def.Name)

		slog.Info(
			"resolved ONNX graph",
			"name", def.Name,
			"path", path,
			"inputs", nodeNames(session.Inputs),
			"outputs", nodeNames(session.Outputs),
		)
	}

	return b, nil
}

func (b *Bundle) Graph(name string) (Session, bool) {
	s, ok := b.graphs[name]
	return s, ok
}

func (b *Bundle) Graphs() []Session {
	out := make([]Session, 0, len(b.order))
	for _, name := range b.order {
		s := b.graphs[name]
		s.Inputs = append([]NodeInfo(nil), s.Inputs...)
		s.Outputs = append([]NodeInfo(nil), s.Outputs...)
		out = append(out, s)
	}
	return out
}

// IndexerPath is the location of the code-point vocabulary file.
func (b *Bundle) IndexerPath() string {
	return filepath.Join(b.Dir, UnicodeIndexerFile)
}

func nodeNames(nodes []NodeInfo) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
