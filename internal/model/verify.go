package model

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/go-supertonic/internal/onnx"
)

type VerifyOptions struct {
	ModelDir   string
	ORTLibrary string
	Stdout     io.Writer
	Stderr     io.Writer
}

var loadGraphSession = loadGraphSessionImpl

// VerifyBundle checks a downloaded model directory: the bundle layout and
// tts.json must parse, every file recorded in the lock manifest must still
// hash to its locked sha256, and each graph must load into an ONNX Runtime
// session.
func VerifyBundle(opts VerifyOptions) error {
	if opts.ModelDir == "" {
		return errors.New("model dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	bundle, err := onnx.LoadBundle(opts.ModelDir)
	if err != nil {
		return fmt.Errorf("load bundle: %w", err)
	}

	cfg := bundle.Config
	fmt.Fprintf(opts.Stdout, "bundle %s: sample_rate=%d latent_dim=%d chunk_size=%d\n",
		opts.ModelDir, cfg.AE.SampleRate, cfg.EffectiveLatentDim(), cfg.EffectiveChunkSize())

	if err := verifyLockedChecksums(opts.ModelDir, opts.Stdout, opts.Stderr); err != nil {
		return err
	}

	var failures []string
	for _, graph := range bundle.Graphs() {
		if err := loadGraphSession(graph, opts); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", graph.Name, err)
			failures = append(failures, graph.Name)

			continue
		}

		_, _ = fmt.Fprintf(opts.Stdout, "PASS %s\n", graph.Name)
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d graph(s): %s", len(failures), strings.Join(failures, ", "))
	}

	return nil
}

// verifyLockedChecksums re-hashes files against the lock manifest written
// at download time. A missing lock manifest is not an error; manually
// placed bundles have nothing to check against.
func verifyLockedChecksums(dir string, stdout, stderr io.Writer) error {
	lockPath := filepath.Join(dir, lockManifestName)
	lock := readLockManifest(lockPath)
	if len(lock.Files) == 0 {
		fmt.Fprintf(stdout, "no lock manifest at %s; skipping checksum verification\n", lockPath)
		return nil
	}

	names := make([]string, 0, len(lock.Files))
	for name := range lock.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	for _, name := range names {
		rec := lock.Files[name]
		path := filepath.Join(dir, filepath.FromSlash(name))

		actual, err := fileSHA256(path)
		if err != nil {
			fmt.Fprintf(stderr, "FAIL %s: %v\n", name, err)
			failures = append(failures, name)
			continue
		}
		if !strings.EqualFold(actual, rec.SHA256) {
			fmt.Fprintf(stderr, "FAIL %s: sha256 %s does not match locked %s\n", name, actual, rec.SHA256)
			failures = append(failures, name)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("checksum mismatch for %d file(s): %s", len(failures), strings.Join(failures, ", "))
	}

	fmt.Fprintf(stdout, "checksums ok (%d files)\n", len(lock.Files))
	return nil
}

func loadGraphSessionImpl(graph onnx.Session, opts VerifyOptions) error {
	runner, err := onnx.NewRunner(graph, onnx.RunnerConfig{LibraryPath: opts.ORTLibrary})
	if err != nil {
		return err
	}
	runner.Close()

	return nil
}
