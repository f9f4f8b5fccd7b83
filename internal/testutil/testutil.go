// Package testutil provides shared skip helpers and tiny model fixtures.
//
// Skip helpers call t.Skip with a clear reason when the named prerequisite
// is absent, so integration tests remain runnable in partial environments.
// Fixture helpers build a structurally valid model directory whose graphs
// are placeholders; pair them with fake graph runners.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    dir := testutil.RequireModelDir(t)
//	    ...
//	}
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// Fixture model dimensions. One latent frame covers FixtureChunkSize samples.
const (
	FixtureSampleRate    = 16
	FixtureBaseChunkSize = 2
	FixtureCompress      = 2
	FixtureLatentDim     = 1
	FixtureChunkSize     = FixtureBaseChunkSize * FixtureCompress
	FixtureChannels      = FixtureLatentDim * FixtureCompress
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks SUPERTONIC_ORT_LIB, then ORT_LIBRARY_PATH, then common
// system library paths, and returns the library path.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"SUPERTONIC_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)

			return ""
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set SUPERTONIC_ORT_LIB or ORT_LIBRARY_PATH")

	return ""
}

// RequireModelDir skips the test unless SUPERTONIC_MODEL_DIR names a
// directory containing onnx/tts.json, and returns that directory.
func RequireModelDir(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv("SUPERTONIC_MODEL_DIR")
	if dir == "" {
		tb.Skipf("SUPERTONIC_MODEL_DIR not set")
		return ""
	}

	if _, err := os.Stat(filepath.Join(dir, "onnx", "tts.json")); err != nil {
		tb.Skipf("model directory %q incomplete: %v", dir, err)
		return ""
	}

	return dir
}

// ModelConfigJSON returns a tts.json document with the fixture dimensions.
func ModelConfigJSON() []byte {
	return []byte(fmt.Sprintf(
		`{"ae":{"sample_rate":%d,"base_chunk_size":%d},"ttl":{"chunk_compress_factor":%d,"latent_dim":%d}}`,
		FixtureSampleRate, FixtureBaseChunkSize, FixtureCompress, FixtureLatentDim,
	))
}

// IndexerJSON returns an index table mapping code points below 128 to
// themselves and everything else to -1.
func IndexerJSON() []byte {
	table := make([]int64, 128)
	for i := range table {
		table[i] = int64(i)
	}

	data, _ := json.Marshal(table)

	return data
}

// StyleJSON returns a batch-1 style with style_ttl [1, 2, 2] and
// style_dp [1, 1, 2], every value equal to v.
func StyleJSON(v float32) []byte {
	return []byte(fmt.Sprintf(
		`{"style_ttl":{"data":[[[%[1]g,%[1]g],[%[1]g,%[1]g]]],"dims":[1,2,2],"type":"float32"},`+
			`"style_dp":{"data":[[[%[1]g,%[1]g]]],"dims":[1,1,2],"type":"float32"}}`, v))
}

// WriteModelDir lays out a complete fixture model under dir. Graph files
// hold placeholder bytes and cannot be opened by ONNX Runtime.
func WriteModelDir(tb testing.TB, dir string) {
	tb.Helper()

	files := map[string][]byte{
		"onnx/tts.json":             ModelConfigJSON(),
		"onnx/unicode_indexer.json": IndexerJSON(),
	}

	for _, g := range onnx.Graphs {
		files["onnx/"+g+".onnx"] = []byte("placeholder " + g)
	}

	for i, id := range voice.IDs() {
		files[voice.StyleFile(id)] = StyleJSON(float32(i+1) / 10)
	}

	for rel, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", rel, err)
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			tb.Fatalf("write %s: %v", rel, err)
		}
	}
}
