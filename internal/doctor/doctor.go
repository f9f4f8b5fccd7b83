// Package doctor provides environment preflight checks for supertonic.
package doctor

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/example/go-supertonic-tts/internal/asset"
	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/model"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// RuntimeFunc locates the ONNX Runtime library.
type RuntimeFunc func() (onnx.RuntimeInfo, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Runtime locates ONNX Runtime; usually wraps onnx.DetectRuntime.
	Runtime RuntimeFunc
	// SkipRuntime skips the ONNX Runtime check.
	SkipRuntime bool
	// APIVersion is the ORT C API version the runners request. A library
	// older than 1.<APIVersion> cannot serve it.
	APIVersion uint32
	// ModelDir is checked for the full file set when non-empty.
	ModelDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	checkRuntime(cfg, w, &res)

	if cfg.ModelDir != "" {
		checkModel(cfg.ModelDir, w, &res)
	}

	return res
}

func checkRuntime(cfg Config, w io.Writer, res *Result) {
	if cfg.SkipRuntime {
		fmt.Fprintf(w, "%s onnxruntime: skipped\n", PassMark)
		return
	}

	if cfg.Runtime == nil {
		res.fail("onnxruntime: no detector configured")
		fmt.Fprintf(w, "%s onnxruntime: no detector configured\n", FailMark)

		return
	}

	info, err := cfg.Runtime()
	if err != nil {
		res.fail(fmt.Sprintf("onnxruntime: %v", err))
		fmt.Fprintf(w, "%s onnxruntime: not found (%v)\n", FailMark, err)

		return
	}

	if info.Version == "" {
		fmt.Fprintf(w, "%s onnxruntime: %s (version unknown)\n", PassMark, info.LibraryPath)
		return
	}

	if err := checkORTVersion(info.Version, cfg.APIVersion); err != nil {
		res.fail(fmt.Sprintf("onnxruntime version: %v", err))
		fmt.Fprintf(w, "%s onnxruntime %s: %v\n", FailMark, info.Version, err)

		return
	}

	fmt.Fprintf(w, "%s onnxruntime: %s (%s)\n", PassMark, info.LibraryPath, info.Version)
}

func checkModel(dir string, w io.Writer, res *Result) {
	st, err := model.CheckStatus(dir)
	if err != nil {
		res.fail(fmt.Sprintf("model dir %s: %v", dir, err))
		fmt.Fprintf(w, "%s model dir %s: %v\n", FailMark, dir, err)

		return
	}

	if st.Downloaded {
		fmt.Fprintf(w, "%s model files: %d/%d in %s (%s)\n", PassMark, st.DownloadedCount, st.Total, dir, humanize.Bytes(uint64(st.Bytes)))
	} else {
		res.fail(fmt.Sprintf("model files: %d of %d missing", len(st.Missing), st.Total))
		fmt.Fprintf(w, "%s model files: %d/%d in %s\n", FailMark, st.DownloadedCount, st.Total, dir)

		for _, m := range st.Missing {
			fmt.Fprintf(w, "    missing: %s\n", m)
		}
	}

	file := func(rel string) asset.Source {
		return asset.File(filepath.Join(dir, filepath.FromSlash(rel)))
	}

	if mc, err := config.LoadModelConfig(file(model.ConfigFile)); err != nil {
		res.fail(fmt.Sprintf("%s: %v", model.ConfigFile, err))
		fmt.Fprintf(w, "%s %s: %v\n", FailMark, model.ConfigFile, err)
	} else {
		fmt.Fprintf(w, "%s %s: %d Hz, %d latent channels\n", PassMark, model.ConfigFile, mc.AE.SampleRate, mc.LatentChannels())
	}

	if idx, err := tokenizer.LoadUnicodeIndexer(file(model.IndexerFile)); err != nil {
		res.fail(fmt.Sprintf("%s: %v", model.IndexerFile, err))
		fmt.Fprintf(w, "%s %s: %v\n", FailMark, model.IndexerFile, err)
	} else {
		fmt.Fprintf(w, "%s %s: %d entries\n", PassMark, model.IndexerFile, idx.Len())
	}

	styles := voice.DirStyles(dir)
	for _, id := range voice.IDs() {
		s, err := voice.LoadStyle(styles[id])
		if err != nil {
			res.fail(fmt.Sprintf("voice %s: %v", id, err))
			fmt.Fprintf(w, "%s voice %s: %v\n", FailMark, id, err)

			continue
		}

		fmt.Fprintf(w, "%s voice %s: style_ttl %v, style_dp %v\n", PassMark, id, s.TTL().Shape(), s.DP().Shape())
	}
}

// checkORTVersion returns an error if ver cannot serve C API version api.
// ver is expected to be a string like "1.23.2".
func checkORTVersion(ver string, api uint32) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major != 1 {
		return fmt.Errorf("requires onnxruntime 1.x, got %d", major)
	}

	if api > 0 && minor < int(api) {
		return fmt.Errorf("C API version %d requires onnxruntime >=1.%d, got 1.%d", api, api, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}

	return major, minor, nil
}
