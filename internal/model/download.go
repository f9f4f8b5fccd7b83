package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultBaseURL is the Hugging Face hub endpoint.
const DefaultBaseURL = "https://huggingface.co"

// LockFile is written into the output directory after every download run.
const LockFile = "download-manifest.lock.json"

type DownloadOptions struct {
	Repo     string
	Revision string
	OutDir   string
	HFToken  string
	// BaseURL overrides DefaultBaseURL, mainly for mirrors and tests.
	BaseURL string
	Client  *http.Client
	Stdout  io.Writer
	Stderr  io.Writer
}

// AccessDeniedError is returned for 401/403 responses from the hub.
type AccessDeniedError struct {
	Repo string
	Msg  string
}

func (e *AccessDeniedError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}

	return "access denied for " + e.Repo
}

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
	// Verified is false when no upstream checksum existed and the digest was
	// computed from the downloaded bytes.
	Verified bool `json:"verified"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches every file of the model manifest into opts.OutDir.
func Download(opts DownloadOptions) error {
	if opts.OutDir == "" {
		return errors.New("out dir is required")
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 0}
	}

	manifest := NewManifest(opts.Repo, opts.Revision)
	hub := hubClient{client: opts.Client, baseURL: strings.TrimRight(opts.BaseURL, "/"), repo: manifest.Repo, token: opts.HFToken}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFile)
	lock := readLockManifest(lockPath)
	lock.Repo = manifest.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	var fetched int64

	for _, f := range manifest.Files {
		localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("create local subdir: %w", err)
		}

		if lr, ok := lock.Files[f.Filename]; ok && lr.Revision == f.Revision && isSHA256Hex(lr.SHA256) {
			match, err := existingMatches(localPath, strings.ToLower(lr.SHA256))
			if err != nil {
				return err
			}

			if match {
				_, _ = fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
				continue
			}
		}

		expected := strings.ToLower(f.SHA256)
		if expected == "" {
			sum, err := hub.checksum(f)
			if err != nil {
				return err
			}

			expected = sum
		}

		_, _ = fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", f.Filename, f.Revision, localPath)

		actual, n, err := hub.fetch(f, localPath, opts.Stdout)
		if err != nil {
			return err
		}

		fetched += n

		if expected == "" {
			_, _ = fmt.Fprintf(opts.Stderr, "warning: no upstream checksum for %s; recorded sha256=%s\n", f.Filename, actual)
			lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: actual}

			continue
		}

		if actual != expected {
			_ = os.Remove(localPath)
			return fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, expected, actual)
		}

		_, _ = fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
		lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: expected, Verified: true}
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(opts.Stdout, "downloaded %s; wrote lock manifest: %s\n", humanize.Bytes(uint64(fetched)), lockPath)

	return nil
}

type hubClient struct {
	client  *http.Client
	baseURL string
	repo    string
	token   string
}

func (h hubClient) url(f ModelFile) string {
	return resolveURL(h.baseURL, h.repo, f)
}

func (h hubClient) do(method string, f ModelFile) (*http.Response, error) {
	req, err := http.NewRequest(method, h.url(f), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	setAuth(req, h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, f.Filename, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()

		return nil, &AccessDeniedError{
			Repo: h.repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", h.repo),
		}
	}

	return resp, nil
}

// checksum reads the LFS sha256 from HEAD metadata. An empty result means
// the hub published none (small files are not stored in LFS).
func (h hubClient) checksum(f ModelFile) (string, error) {
	resp, err := h.do(http.MethodHead, f)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request failed for %s: %s", f.Filename, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", nil
}

// fetch streams f into outPath through a .tmp file and returns its sha256
// and size.
func (h hubClient) fetch(f ModelFile, outPath string, stdout io.Writer) (string, int64, error) {
	resp, err := h.do(http.MethodGet, f)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("download failed for %s: %s", f.Filename, resp.Status)
	}

	tmp := outPath + ".tmp"

	fh, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	sum := sha256.New()
	pw := &progressWriter{out: stdout, total: resp.ContentLength, last: time.Now()}

	written, err := io.Copy(io.MultiWriter(fh, sum, pw), resp.Body)
	if err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)

		return "", 0, fmt.Errorf("download read failed: %w", err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(sum.Sum(nil)), written, nil
}

// progressWriter prints a humanized progress line at most every 700ms.
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
			_, _ = fmt.Fprintf(p.out, "  progress: %.1f%% (%s/%s)\n", pct, humanize.Bytes(uint64(p.written)), humanize.Bytes(uint64(p.total)))
		} else {
			_, _ = fmt.Fprintf(p.out, "  progress: %s\n", humanize.Bytes(uint64(p.written)))
		}

		p.last = time.Now()
	}

	return len(b), nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("stat existing file: %w", err)
	}

	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}

	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}

	return actual == expected, nil
}

func resolveURL(baseURL, repo string, file ModelFile) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", baseURL, repo, file.Revision, file.Filename)
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}

	req.Header.Set("Authorization", "Bearer "+token)
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")

	return v
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

func readLockManifest(path string) lockManifest {
	out := lockManifest{Files: map[string]lockRecord{}}

	b, err := os.ReadFile(path)
	if err != nil {
		return out
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
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
