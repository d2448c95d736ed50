package model

import (
	"fmt"

	"github.com/example/go-supertonic/internal/onnx"
)

// DefaultRepo is the published ONNX export of the Supertonic speech model.
const DefaultRepo = "onnx-community/Supertonic-TTS-2-ONNX"

// DefaultVoiceIDs lists the voice styles shipped in the published repository.
var DefaultVoiceIDs = []string{"F1", "F2", "F3", "F4", "F5", "M1", "M2", "M3", "M4", "M5"}

type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

type ModelFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// PinnedManifest returns the file inventory for a known repository.
// The published repo does not pin per-file checksums; large files resolve
// their sha256 from Hub LFS metadata at download time, and every resolved
// or computed hash is persisted into the local lock manifest.
func PinnedManifest(repo string) (Manifest, error) {
	switch repo {
	case DefaultRepo:
		voices := DefaultVoiceIDs
		files := make([]ModelFile, 0, len(onnx.BundleFiles())+len(voices))
		for _, name := range onnx.BundleFiles() {
			files = append(files, ModelFile{Filename: name, Revision: "main"})
		}
		for _, id := range voices {
			files = append(files, ModelFile{Filename: "voices/" + id + ".bin", Revision: "main"})
		}
		return Manifest{Repo: repo, Files: files}, nil
	default:
		return Manifest{}, fmt.Errorf("no pinned manifest for repo %q", repo)
	}
}
