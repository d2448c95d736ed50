package onnx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// GraphRunner is the minimal runner contract required by Engine methods.
// Tests substitute in-memory fakes for the native ORT-backed Runner.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// ErrModelInference marks any failed graph execution. errors.Is reports
// it for every *InferenceError in a chain.
var ErrModelInference = errors.New("model inference failed")

// InferenceError wraps a failed graph execution with the graph name.
type InferenceError struct {
	Graph string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on %q failed: %v", e.Graph, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrModelInference }

// Style is a speaker conditioning pair: one tensor for the duration
// predictor and one for the text-to-latent stack. Both are [batch, d, s].
// Styles are read-only; synthesis never mutates them.
type Style struct {
	DP  *Tensor
	TTL *Tensor
}

// Repeat tiles a single-voice style along the batch dimension so one
// loaded voice can condition a whole chunk batch. A style whose batch
// already matches is returned as-is.
func (s Style) Repeat(batch int) (Style, error) {
	if batch < 1 {
		return Style{}, fmt.Errorf("style batch %d must be >= 1", batch)
	}

	dp, err := repeatBatch("style_dp", s.DP, batch)
	if err != nil {
		return Style{}, err
	}
	ttl, err := repeatBatch("style_ttl", s.TTL, batch)
	if err != nil {
		return Style{}, err
	}

	return Style{DP: dp, TTL: ttl}, nil
}

func repeatBatch(name string, t *Tensor, batch int) (*Tensor, error) {
	if err := CheckShape(name, t, -1, -1, -1); err != nil {
		return nil, err
	}

	shape := t.Shape()
	if shape[0] == int64(batch) {
		return t, nil
	}
	if shape[0] != 1 {
		return nil, &ShapeError{Tensor: name, Want: []int64{1, shape[1], shape[2]}, Got: shape}
	}

	data, err := ExtractFloat32(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	tiled := make([]float32, 0, len(data)*batch)
	for range batch {
		tiled = append(tiled, data...)
	}

	return NewTensor(tiled, []int64{int64(batch), shape[1], shape[2]})
}

// Encoding is the per-batch output of Encode: the text embedding the
// refiner conditions on, the attention mask it was built with, and the
// predicted speech duration in seconds per batch item.
type Encoding struct {
	TextEmb   *Tensor
	TextMask  *Tensor
	Durations []float32
}

// Engine exposes the acoustic model as three calls: Encode (duration
// prediction plus text encoding), Refine (one denoising step), and
// Decode (vocoder). Graph access is serialized on a single mutex; the
// underlying ORT sessions are not assumed reentrant.
type Engine struct {
	mu      sync.Mutex
	config  ModelConfig
	runners map[string]GraphRunner
	lib     *Library
}

// NewEngine loads the runtime library once and opens a session per
// bundle graph against it.
func NewEngine(bundle *Bundle, cfg RunnerConfig) (*Engine, error) {
	if bundle == nil {
		return nil, errors.New("bundle is required")
	}

	lib, err := OpenLibrary(cfg)
	if err != nil {
		return nil, err
	}

	runners := make(map[string]GraphRunner, 4)
	for _, session := range bundle.Graphs() {
		r, err := lib.OpenGraph(session)
		if err != nil {
			for _, open := range runners {
				open.Close()
			}
			lib.Close()
			return nil, err
		}
		runners[session.Name] = r
	}

	return &Engine{config: bundle.Config, runners: runners, lib: lib}, nil
}

// NewEngineWithRunners builds an Engine from externally provided graph
// runners. Intended for tests and alternate runtimes.
func NewEngineWithRunners(config ModelConfig, runners map[string]GraphRunner) *Engine {
	internal := make(map[string]GraphRunner, len(runners))
	maps.Copy(internal, runners)

	return &Engine{config: config, runners: internal}
}

func (e *Engine) Config() ModelConfig {
	return e.config
}

// Close releases every graph runner, then the shared runtime library.
// Safe to call multiple times.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, r := range e.runners {
		r.Close()
		delete(e.runners, name)
	}

	if e.lib != nil {
		e.lib.Close()
		e.lib = nil
	}
}

// Encode predicts per-item speech durations and encodes the token batch
// into a text embedding, both conditioned on the voice style.
//
// ids is [batch, seq] int64, mask is [batch, 1, seq] float32.
func (e *Engine) Encode(ctx context.Context, ids, mask *Tensor, style Style) (*Encoding, error) {
	if err := CheckShape("text_ids", ids, -1, -1); err != nil {
		return nil, err
	}
	shape := ids.Shape()
	bsz, seq := shape[0], shape[1]
	if err := CheckShape("text_mask", mask, bsz, 1, seq); err != nil {
		return nil, err
	}
	if err := CheckShape("style_dp", style.DP, bsz, -1, -1); err != nil {
		return nil, err
	}
	if err := CheckShape("style_ttl", style.TTL, bsz, -1, -1); err != nil {
		return nil, err
	}

	dur, err := e.runGraph(ctx, GraphDurationPredictor, map[string]*Tensor{
		"text_ids":  ids,
		"style_dp":  style.DP,
		"text_mask": mask,
	}, "duration")
	if err != nil {
		return nil, err
	}

	durations, err := ExtractFloat32(dur)
	if err != nil {
		return nil, fmt.Errorf("duration output: %w", err)
	}
	if int64(len(durations)) != bsz {
		return nil, &ShapeError{Tensor: "duration", Want: []int64{bsz}, Got: dur.Shape()}
	}

	emb, err := e.runGraph(ctx, GraphTextEncoder, map[string]*Tensor{
		"text_ids":  ids,
		"style_ttl": style.TTL,
		"text_mask": mask,
	}, "text_emb")
	if err != nil {
		return nil, err
	}
	if err := CheckShape("text_emb", emb, bsz, -1, -1); err != nil {
		return nil, err
	}

	return &Encoding{TextEmb: emb, TextMask: mask, Durations: durations}, nil
}

// Refine runs one denoising step over the latent. The returned latent
// has the same shape as the input; step counts are passed to the graph
// as float32 [batch] tensors.
func (e *Engine) Refine(ctx context.Context, latent, latentMask *Tensor, enc *Encoding, style Style, step, totalSteps int) (*Tensor, error) {
	if enc == nil || enc.TextEmb == nil || enc.TextMask == nil {
		return nil, errors.New("refine: encoding is required")
	}
	if totalSteps < 1 {
		return nil, fmt.Errorf("refine: total steps %d must be >= 1", totalSteps)
	}
	if step < 0 || step >= totalSteps {
		return nil, fmt.Errorf("refine: step %d out of range [0, %d)", step, totalSteps)
	}

	if err := CheckShape("noisy_latent", latent, -1, -1, -1); err != nil {
		return nil, err
	}
	shape := latent.Shape()
	bsz, timeLen := shape[0], shape[2]
	if err := CheckShape("latent_mask", latentMask, bsz, 1, timeLen); err != nil {
		return nil, err
	}
	if err := CheckShape("text_emb", enc.TextEmb, bsz, -1, -1); err != nil {
		return nil, err
	}
	if err := CheckShape("text_mask", enc.TextMask, bsz, 1, -1); err != nil {
		return nil, err
	}
	if err := CheckShape("style_ttl", style.TTL, bsz, -1, -1); err != nil {
		return nil, err
	}

	stepT, err := stepTensor(step, int(bsz))
	if err != nil {
		return nil, fmt.Errorf("refine: current_step: %w", err)
	}
	totalT, err := stepTensor(totalSteps, int(bsz))
	if err != nil {
		return nil, fmt.Errorf("refine: total_step: %w", err)
	}

	out, err := e.runGraph(ctx, GraphVectorEstimator, map[string]*Tensor{
		"noisy_latent": latent,
		"text_emb":     enc.TextEmb,
		"style_ttl":    style.TTL,
		"latent_mask":  latentMask,
		"text_mask":    enc.TextMask,
		"current_step": stepT,
		"total_step":   totalT,
	}, "denoised_latent")
	if err != nil {
		return nil, err
	}
	if err := CheckShape("denoised_latent", out, shape...); err != nil {
		return nil, err
	}

	return out, nil
}

// Decode converts a final latent batch into per-item waveforms.
func (e *Engine) Decode(ctx context.Context, latent *Tensor) ([][]float32, error) {
	if err := CheckShape("latent", latent, -1, -1, -1); err != nil {
		return nil, err
	}
	bsz := int(latent.Shape()[0])

	out, err := e.runGraph(ctx, GraphVocoder, map[string]*Tensor{"latent": latent}, "wav_tts")
	if err != nil {
		return nil, err
	}

	samples, err := ExtractFloat32(out)
	if err != nil {
		return nil, fmt.Errorf("wav_tts output: %w", err)
	}
	if len(samples)%bsz != 0 {
		return nil, &ShapeError{Tensor: "wav_tts", Want: []int64{int64(bsz), -1}, Got: out.Shape()}
	}

	per := len(samples) / bsz
	waves := make([][]float32, bsz)
	for i := range waves {
		waves[i] = samples[i*per : (i+1)*per]
	}

	return waves, nil
}

func (e *Engine) runGraph(ctx context.Context, graph string, inputs map[string]*Tensor, output string) (*Tensor, error) {
	e.mu.Lock()
	runner, ok := e.runners[graph]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("graph %q not loaded", graph)
	}

	outputs, err := runner.Run(ctx, inputs)
	e.mu.Unlock()
	if err != nil {
		return nil, &InferenceError{Graph: graph, Err: err}
	}

	out, ok := outputs[output]
	if !ok {
		return nil, &InferenceError{Graph: graph, Err: fmt.Errorf("missing %q in outputs", output)}
	}

	return out, nil
}

func stepTensor(v, batch int) (*Tensor, error) {
	data := make([]float32, batch)
	for i := range data {
		data[i] = float32(v)
	}
	return NewTensor(data, []int64{int64(batch)})
}
