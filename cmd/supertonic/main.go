package main

import (
	"fmt"
	"os"

	"github.com/example/go-supertonic/internal/onnx"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the CLI and then releases the process-wide ONNX runtime.
// A shutdown failure surfaces only when the command itself succeeded.
func run() error {
	err := NewRootCmd().Execute()

	if shutdownErr := onnx.Shutdown(); shutdownErr != nil && err == nil {
		return shutdownErr
	}

	return err
}
