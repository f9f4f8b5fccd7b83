package model

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/testutil"
)

type nopRunner struct{ name string }

func (n nopRunner) Run(context.Context, map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	return nil, nil
}

func (n nopRunner) Name() string { return n.name }

func (n nopRunner) Close() {}

func stubRunners(t *testing.T, fail map[string]bool) *[]string {
	t.Helper()

	orig := newGraphRunner
	t.Cleanup(func() { newGraphRunner = orig })

	var opened []string

	newGraphRunner = func(s onnx.Session, cfg onnx.RunnerConfig) (onnx.GraphRunner, error) {
		if cfg.APIVersion != 23 {
			t.Errorf("APIVersion = %d, want default 23", cfg.APIVersion)
		}

		opened = append(opened, s.Name)

		if fail[s.Name] {
			return nil, errors.New("cannot open graph")
		}

		return nopRunner{name: s.Name}, nil
	}

	return &opened
}

func TestVerify_AllPass(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)

	opened := stubRunners(t, nil)

	var stdout, stderr bytes.Buffer

	err := Verify(VerifyOptions{Bundle: DirBundle(dir), Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Verify: %v\nstderr:\n%s", err, stderr.String())
	}

	if len(*opened) != len(onnx.Graphs) {
		t.Fatalf("opened %v, want all graphs", *opened)
	}

	out := stdout.String()
	for _, want := range []string{"PASS tts.json", "PASS unicode_indexer.json", "PASS vocoder", "PASS voice M1", "PASS voice F5"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestVerify_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "onnx", "tts.json"), []byte(`{"ae":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "voice_styles", "M2.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	stubRunners(t, map[string]bool{onnx.GraphTextEncoder: true})

	var stderr bytes.Buffer

	err := Verify(VerifyOptions{Bundle: DirBundle(dir), Stderr: &stderr})
	if err == nil {
		t.Fatal("expected verify failure")
	}

	for _, want := range []string{"tts.json", "text_encoder", "voice M2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}

		if !strings.Contains(stderr.String(), "FAIL "+want) {
			t.Errorf("stderr missing FAIL %s:\n%s", want, stderr.String())
		}
	}
}

func TestVerify_SkipsAbsentStyles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)

	if err := os.Remove(filepath.Join(dir, "voice_styles", "F3.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	stubRunners(t, nil)

	var stdout bytes.Buffer

	if err := Verify(VerifyOptions{Bundle: DirBundle(dir), Stdout: &stdout}); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if strings.Contains(stdout.String(), "voice F3") {
		t.Errorf("absent style should be skipped:\n%s", stdout.String())
	}
}

func TestVerify_BytesBundleMissingGraph(t *testing.T) {
	stubRunners(t, nil)

	b := BytesBundle(ModelBytes{
		Config:  testutil.ModelConfigJSON(),
		Indexer: testutil.IndexerJSON(),
		Graphs:  map[string][]byte{onnx.GraphVocoder: []byte("g")},
	})

	err := Verify(VerifyOptions{Bundle: b})
	if err == nil || !strings.Contains(err.Error(), "duration_predictor") {
		t.Fatalf("error = %v, want missing duration_predictor", err)
	}
}
