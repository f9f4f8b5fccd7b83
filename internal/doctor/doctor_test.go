package doctor_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-supertonic-tts/internal/doctor"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/testutil"
)

func runtimeAt(version string) doctor.RuntimeFunc {
	return func() (onnx.RuntimeInfo, error) {
		return onnx.RuntimeInfo{LibraryPath: "/usr/lib/libonnxruntime.so", Version: version}, nil
	}
}

func TestRun_AllChecksPass(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)

	cfg := doctor.Config{
		Runtime:    runtimeAt("1.23.2"),
		APIVersion: 23,
		ModelDir:   dir,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Fatalf("expected all checks to pass; failures: %v\n%s", result.Failures(), out.String())
	}

	for _, want := range []string{"onnxruntime", "model files", "tts.json: 16 Hz", "voice F5"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output should mention %q; got:\n%s", want, out.String())
		}
	}

	if strings.Contains(out.String(), doctor.FailMark) {
		t.Errorf("output contains a failure mark:\n%s", out.String())
	}
}

func TestRun_RuntimeChecks(t *testing.T) {
	tests := []struct {
		name     string
		cfg      doctor.Config
		wantFail string
	}{
		{
			name:     "library missing",
			cfg:      doctor.Config{Runtime: func() (onnx.RuntimeInfo, error) { return onnx.RuntimeInfo{}, errors.New("not found") }},
			wantFail: "onnxruntime",
		},
		{
			name:     "no detector",
			cfg:      doctor.Config{},
			wantFail: "onnxruntime",
		},
		{
			name:     "too old for api",
			cfg:      doctor.Config{Runtime: runtimeAt("1.16.3"), APIVersion: 23},
			wantFail: "onnxruntime version",
		},
		{
			name:     "wrong major",
			cfg:      doctor.Config{Runtime: runtimeAt("2.0.0"), APIVersion: 23},
			wantFail: "onnxruntime version",
		},
		{
			name: "unknown version passes",
			cfg:  doctor.Config{Runtime: runtimeAt(""), APIVersion: 23},
		},
		{
			name: "skipped",
			cfg:  doctor.Config{SkipRuntime: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			result := doctor.Run(tt.cfg, &out)

			if tt.wantFail == "" {
				if result.Failed() {
					t.Fatalf("expected pass; failures: %v", result.Failures())
				}

				return
			}

			if !hasFailureContaining(result.Failures(), tt.wantFail) {
				t.Fatalf("expected failure mentioning %q, got: %v", tt.wantFail, result.Failures())
			}

			if !strings.Contains(out.String(), doctor.FailMark) {
				t.Errorf("output should contain %s:\n%s", doctor.FailMark, out.String())
			}
		})
	}
}

func TestRun_MissingModelFilesListed(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)

	if err := os.Remove(filepath.Join(dir, "voice_styles", "M3.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	var out strings.Builder
	result := doctor.Run(doctor.Config{SkipRuntime: true, ModelDir: dir}, &out)

	if !hasFailureContaining(result.Failures(), "model files") {
		t.Errorf("expected model files failure, got: %v", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "voice M3") {
		t.Errorf("expected voice M3 failure, got: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "missing: voice_styles/M3.json") {
		t.Errorf("missing file not listed:\n%s", out.String())
	}
}

func TestRun_BadModelConfig(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "onnx", "tts.json"), []byte(`{"ae":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out strings.Builder
	result := doctor.Run(doctor.Config{SkipRuntime: true, ModelDir: dir}, &out)

	if !hasFailureContaining(result.Failures(), "tts.json") {
		t.Fatalf("expected tts.json failure, got: %v", result.Failures())
	}
}

func TestResult_AddFailure(t *testing.T) {
	var r doctor.Result
	r.AddFailure("external check")

	if !r.Failed() || r.Failures()[0] != "external check" {
		t.Fatalf("failures = %v", r.Failures())
	}
}

func hasFailureContaining(failures []string, substr string) bool {
	for _, f := range failures {
		if strings.Contains(f, substr) {
			return true
		}
	}

	return false
}
