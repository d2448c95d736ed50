//go:build windows

package onnx

import (
	"context"
	"errors"
	"fmt"
)

// RunnerConfig selects the ONNX Runtime shared object graph sessions
// load against. Native ORT loading is unavailable in windows builds.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Library is unavailable in windows builds.
type Library struct{}

// OpenLibrary always fails in windows builds.
func OpenLibrary(RunnerConfig) (*Library, error) {
	return nil, errors.New("onnx runtime loading is unavailable on windows")
}

// Close is a no-op in windows builds.
func (l *Library) Close() {}

// OpenGraph always fails in windows builds.
func (l *Library) OpenGraph(meta Session) (*Runner, error) {
	return nil, fmt.Errorf("onnx runtime is unavailable on windows for graph %q", meta.Name)
}

// Runner is unavailable in windows builds.
type Runner struct {
	name string
}

// NewRunner always fails in windows builds.
func NewRunner(meta Session, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("onnx runtime is unavailable on windows for graph %q", meta.Name)
}

// Run always fails in windows builds.
func (r *Runner) Run(_ context.Context, _ map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, fmt.Errorf("onnx runtime is unavailable on windows for graph %q", r.name)
}

// Close is a no-op in windows builds.
func (r *Runner) Close() {}

// Name returns the graph name.
func (r *Runner) Name() string {
	return r.name
}
