package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// lockManifestName is written into the output directory after a download
// and consulted on later runs and by verification.
const lockManifestName = "download-manifest.lock.json"

// DownloadOptions configures a bundle download. HTTPClient is injectable
// so tests can route Hub traffic to a local server.
type DownloadOptions struct {
	Repo       string
	OutDir     string
	HFToken    string
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// ErrAccessDenied reports a Hub 401/403, which usually means the repo is
// gated and a token is required.
type ErrAccessDenied struct {
	Repo string
	Msg  string
}

func (e *ErrAccessDenied) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches every file in the pinned manifest for opts.Repo into
// opts.OutDir, verifying checksums where known and recording the results
// in a lock manifest. Files already on disk with a matching checksum are
// not fetched again, so a rerun against a complete directory performs no
// network traffic at all.
func Download(opts DownloadOptions) error {
	if opts.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 0}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	manifest, err := PinnedManifest(opts.Repo)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, lockManifestName)
	lock := readLockManifest(lockPath)
	if lock.Files == nil {
		lock.Files = make(map[string]lockRecord)
	}
	lock.Repo = opts.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	for _, f := range manifest.Files {
		rec, err := syncFile(opts, manifest.Repo, f, lock.Files[f.Filename])
		if err != nil {
			return err
		}
		lock.Files[f.Filename] = rec
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return nil
}

// syncFile brings one manifest entry up to date on disk and returns the
// lock record describing the local copy. The expected checksum comes from
// the manifest pin, then the previous lock record, then Hub metadata. A
// file with no resolvable checksum is trusted on first use and its hash
// locked for later verification.
func syncFile(opts DownloadOptions, repo string, f ModelFile, prev lockRecord) (lockRecord, error) {
	expected := strings.ToLower(f.SHA256)
	if expected == "" && prev.Revision == f.Revision && isSHA256Hex(prev.SHA256) {
		expected = strings.ToLower(prev.SHA256)
	}
	if expected == "" {
		resolved, err := resolveChecksumFromMetadata(opts.HTTPClient, repo, f, opts.HFToken)
		if err != nil {
			return lockRecord{}, err
		}
		expected = resolved
	}

	localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return lockRecord{}, fmt.Errorf("create local subdir: %w", err)
	}

	actual, exists, err := hashExisting(localPath)
	if err != nil {
		return lockRecord{}, err
	}
	if exists {
		if expected == "" {
			fmt.Fprintf(opts.Stdout, "skip %s (existing, sha256 recorded)\n", f.Filename)
			return lockRecord{Revision: f.Revision, SHA256: actual}, nil
		}
		if actual == expected {
			fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
			return lockRecord{Revision: f.Revision, SHA256: expected}, nil
		}
	}

	fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", f.Filename, f.Revision, localPath)
	actual, err = downloadWithProgress(opts.HTTPClient, repo, f, opts.HFToken, localPath, opts.Stdout)
	if err != nil {
		return lockRecord{}, err
	}
	if expected != "" && actual != expected {
		return lockRecord{}, fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, expected, actual)
	}
	fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
	return lockRecord{Revision: f.Revision, SHA256: actual}, nil
}

// existingMatches reports whether the file at path exists and hashes to
// expected.
func existingMatches(path, expected string) (bool, error) {
	actual, ok, err := hashExisting(path)
	if err != nil || !ok {
		return false, err
	}
	return actual == expected, nil
}

// hashExisting returns the sha256 of the file at path, or ok=false when
// nothing is there yet.
func hashExisting(path string) (string, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return "", false, fmt.Errorf("expected file at %s, found directory", path)
	}
	sum, err := fileSHA256(path)
	if err != nil {
		return "", false, err
	}
	return sum, true, nil
}

// hubRequest performs one authenticated Hub request and maps 401/403 to
// ErrAccessDenied. The caller owns the response body on success.
func hubRequest(client *http.Client, method, repo string, file ModelFile, token string) (*http.Response, error) {
	req, err := http.NewRequest(method, resolveURL(repo, file), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, file.Filename, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		return nil, &ErrAccessDenied{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	}
	return resp, nil
}

func downloadWithProgress(client *http.Client, repo string, file ModelFile, token, outPath string, stdout io.Writer) (string, error) {
	resp, err := hubRequest(client, http.MethodGet, repo, file, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", file.Filename, resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	prog := &progressWriter{out: stdout, total: resp.ContentLength, last: time.Now()}
	if _, err := io.Copy(io.MultiWriter(fh, h, prog), resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", file.Filename, err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressWriter reports byte counts to out at most every 700ms, keeping
// long model downloads visibly alive without flooding the terminal.
type progressWriter struct {
	out     io.Writer
	total   int64
	written int64
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.last) > 700*time.Millisecond {
		if p.total > 0 {
			pct := float64(p.written) * 100 / float64(p.total)
			fmt.Fprintf(p.out, "  progress: %.1f%% (%d/%d bytes)\n", pct, p.written, p.total)
		} else {
			fmt.Fprintf(p.out, "  progress: %d bytes\n", p.written)
		}
		p.last = time.Now()
	}
	return len(b), nil
}

// resolveChecksumFromMetadata asks the Hub for a file's sha256 via a HEAD
// request. LFS-backed files surface it in X-Linked-Etag; plain git files
// do not, in which case an empty checksum is returned and the caller falls
// back to trust-on-first-use.
func resolveChecksumFromMetadata(client *http.Client, repo string, f ModelFile, token string) (string, error) {
	resp, err := hubRequest(client, http.MethodHead, repo, f, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request failed for %s: %s", f.Filename, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "X-Repo-Commit", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}
	return "", nil
}

func resolveURL(repo string, file ModelFile) string {
	return fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s", repo, file.Revision, file.Filename)
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// normalizeETag strips quoting and the weak-validator prefix from an ETag
// header value.
func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"`)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// readLockManifest loads a lock manifest, returning an empty one when the
// file is absent or unreadable.
func readLockManifest(path string) lockManifest {
	var out lockManifest
	b, err := os.ReadFile(path)
	if err != nil || json.Unmarshal(b, &out) != nil {
		return lockManifest{}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
