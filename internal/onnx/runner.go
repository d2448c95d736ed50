//go:build !windows

package onnx

import (
	"context"
	"fmt"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// RunnerConfig selects the ONNX Runtime shared object graph sessions
// load against. A zero APIVersion requests the 1.23 C API level.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

const defaultORTAPIVersion = 23

// Library is one loaded ONNX Runtime shared object plus the environment
// its sessions share. The four graphs of a bundle all open against the
// same Library instead of re-loading the runtime per graph.
type Library struct {
	runtime *ort.Runtime
	env     *ort.Env
}

// OpenLibrary loads the runtime named by cfg and creates its environment.
func OpenLibrary(cfg RunnerConfig) (*Library, error) {
	api := cfg.APIVersion
	if api == 0 {
		api = defaultORTAPIVersion
	}

	runtime, err := ort.NewRuntime(cfg.LibraryPath, api)
	if err != nil {
		return nil, fmt.Errorf("ort runtime: %w", err)
	}

	env, err := runtime.NewEnv("supertonic", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("ort env: %w", err)
	}

	return &Library{runtime: runtime, env: env}, nil
}

// Close releases the environment and runtime. Runners opened from this
// Library must be closed first.
func (l *Library) Close() {
	if l.env != nil {
		l.env.Close()
		l.env = nil
	}

	if l.runtime != nil {
		_ = l.runtime.Close()
		l.runtime = nil
	}
}

// OpenGraph creates an inference session for one bundle graph. The
// returned Runner borrows the Library; closing the Runner leaves the
// Library open for its siblings.
func (l *Library) OpenGraph(meta Session) (*Runner, error) {
	session, err := l.runtime.NewSession(l.env, meta.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("ort session for %q (%s): %w", meta.Name, meta.Path, err)
	}

	return &Runner{meta: meta, runtime: l.runtime, session: session}, nil
}

// Runner executes a single ONNX graph session.
type Runner struct {
	meta    Session
	runtime *ort.Runtime
	session *ort.Session
	owned   *Library
}

// NewRunner opens a private Library for a single graph, for callers that
// only need one session. The Runner owns that Library and tears it down
// on Close. Callers juggling several graphs should share one Library
// through OpenGraph instead.
func NewRunner(meta Session, cfg RunnerConfig) (*Runner, error) {
	lib, err := OpenLibrary(cfg)
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", meta.Name, err)
	}

	r, err := lib.OpenGraph(meta)
	if err != nil {
		lib.Close()
		return nil, err
	}
	r.owned = lib

	return r, nil
}

// Run feeds the named tensors through the graph and converts every
// output back. All ORT-side values, inputs and outputs both, are closed
// before returning.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := r.validateFeed(inputs); err != nil {
		return nil, err
	}

	feed := make(map[string]*ort.Value, len(inputs))
	defer closeORTValues(feed)

	for name, t := range inputs {
		v, err := tensorToORT(r.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		feed[name] = v
	}

	fetched, err := r.session.Run(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", r.meta.Name, err)
	}
	defer closeORTValues(fetched)

	results := make(map[string]*Tensor, len(fetched))
	for name, v := range fetched {
		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		results[name] = t
	}

	return results, nil
}

// Close releases the session, and the Library too when this Runner
// opened its own. Safe to call multiple times.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}

	if r.owned != nil {
		r.owned.Close()
		r.owned = nil
	}

	r.runtime = nil
}

// Name returns the graph name from the bundle.
func (r *Runner) Name() string {
	return r.meta.Name
}

// validateFeed checks the feed against the graph's declared inputs before
// anything crosses into the runtime, where the same mistakes surface as
// opaque status codes. Sessions opened without declared inputs skip the
// check.
func (r *Runner) validateFeed(inputs map[string]*Tensor) error {
	if len(r.meta.Inputs) == 0 {
		return nil
	}

	declared := make(map[string]TensorDType, len(r.meta.Inputs))
	for _, in := range r.meta.Inputs {
		declared[in.Name] = TensorDType(in.DType)
	}

	for name, t := range inputs {
		want, ok := declared[name]
		if !ok {
			return fmt.Errorf("graph %q: unknown input %q", r.meta.Name, name)
		}
		if t == nil {
			return fmt.Errorf("graph %q: input %q is nil", r.meta.Name, name)
		}
		if t.DType() != want {
			return fmt.Errorf("graph %q: input %q is %s, want %s", r.meta.Name, name, t.DType(), want)
		}
	}

	for _, in := range r.meta.Inputs {
		if _, ok := inputs[in.Name]; !ok {
			return fmt.Errorf("graph %q: missing input %q", r.meta.Name, in.Name)
		}
	}

	return nil
}

func tensorToORT(runtime *ort.Runtime, t *Tensor) (*ort.Value, error) {
	switch data := t.Data().(type) {
	case []float32:
		return ort.NewTensorValue(runtime, data, t.Shape())
	case []int64:
		return ort.NewTensorValue(runtime, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %T", data)
	}
}

func ortToTensor(v *ort.Value) (*Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(data, shape)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func closeORTValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
