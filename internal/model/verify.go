package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/go-supertonic-tts/internal/asset"
	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
	"github.com/example/go-supertonic-tts/internal/voice"
)

type VerifyOptions struct {
	Bundle        Bundle
	ORTLibrary    string
	ORTAPIVersion uint32
	Stdout        io.Writer
	Stderr        io.Writer
}

// newGraphRunner opens an ORT session; tests replace it.
var newGraphRunner = func(s onnx.Session, cfg onnx.RunnerConfig) (onnx.GraphRunner, error) {
	return onnx.NewRunner(s, cfg)
}

// Verify loads every asset of the bundle the way the pipeline would and
// prints one PASS/FAIL line per item.
func Verify(opts VerifyOptions) error {
	if opts.ORTAPIVersion == 0 {
		opts.ORTAPIVersion = onnx.DefaultAPIVersion
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	b := opts.Bundle

	var failures []string

	check := func(name string, err error) {
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", name, err)
			failures = append(failures, name)

			return
		}

		_, _ = fmt.Fprintf(opts.Stdout, "PASS %s\n", name)
	}

	check("tts.json", func() error {
		if b.Config == nil {
			return errors.New("no source")
		}

		_, err := config.LoadModelConfig(b.Config)

		return err
	}())

	check("unicode_indexer.json", func() error {
		if b.Indexer == nil {
			return errors.New("no source")
		}

		_, err := tokenizer.LoadUnicodeIndexer(b.Indexer)

		return err
	}())

	runnerCfg := onnx.RunnerConfig{LibraryPath: opts.ORTLibrary, APIVersion: opts.ORTAPIVersion}

	for _, g := range onnx.Graphs {
		check(g, func() error {
			src, ok := b.Graphs[g]
			if !ok || src == nil {
				return errors.New("no source")
			}

			r, err := newGraphRunner(onnx.Session{Name: g, Source: src}, runnerCfg)
			if err != nil {
				return err
			}

			r.Close()

			return nil
		}())
	}

	for _, id := range voice.IDs() {
		src, ok := b.Styles[id]
		if !ok || !present(src) {
			continue
		}

		check("voice "+id, func() error {
			_, err := voice.LoadStyle(src)
			return err
		}())
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d item(s): %s", len(failures), strings.Join(failures, ", "))
	}

	return nil
}

// present reports whether a file-backed source exists. Buffer-backed
// sources are always present.
func present(src asset.Source) bool {
	path, ok := asset.Path(src)
	if !ok {
		return true
	}

	_, err := os.Stat(path)

	return err == nil
}
