package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/example/go-supertonic-tts/internal/asset"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// Model-relative paths of the non-graph assets.
const (
	ConfigFile  = "onnx/tts.json"
	IndexerFile = "onnx/unicode_indexer.json"
)

// GraphFile returns the model-relative path of a stage graph.
func GraphFile(name string) string {
	return "onnx/" + name + ".onnx"
}

// Files lists every model-relative file a complete model directory holds.
func Files() []string {
	out := []string{ConfigFile, IndexerFile}
	for _, g := range onnx.Graphs {
		out = append(out, GraphFile(g))
	}

	for _, id := range voice.IDs() {
		out = append(out, voice.StyleFile(id))
	}

	return out
}

// Status reports which model files are present under a directory.
type Status struct {
	Downloaded      bool     `json:"downloaded"`
	ModelsDir       string   `json:"models_dir"`
	Missing         []string `json:"missing_files"`
	Total           int      `json:"total_files"`
	DownloadedCount int      `json:"downloaded_files"`
	Bytes           int64    `json:"bytes"`
}

// CheckStatus stats every file from Files under dir.
func CheckStatus(dir string) (Status, error) {
	files := Files()
	st := Status{
		ModelsDir: dir,
		Total:     len(files),
		Missing:   []string{},
	}

	for _, rel := range files {
		fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		switch {
		case err == nil && !fi.IsDir():
			st.DownloadedCount++
			st.Bytes += fi.Size()
		case err == nil, errors.Is(err, fs.ErrNotExist):
			st.Missing = append(st.Missing, rel)
		default:
			return Status{}, fmt.Errorf("stat %s: %w", rel, err)
		}
	}

	st.Downloaded = len(st.Missing) == 0

	return st, nil
}

// Bundle is the full set of byte sources the pipeline loads from.
type Bundle struct {
	Config  asset.Source
	Indexer asset.Source
	Graphs  map[string]asset.Source
	Styles  map[string]asset.Source
}

// DirBundle points every asset at its file under dir.
func DirBundle(dir string) Bundle {
	file := func(rel string) asset.Source {
		return asset.File(filepath.Join(dir, filepath.FromSlash(rel)))
	}

	b := Bundle{
		Config:  file(ConfigFile),
		Indexer: file(IndexerFile),
		Graphs:  make(map[string]asset.Source, len(onnx.Graphs)),
		Styles:  voice.DirStyles(dir),
	}

	for _, g := range onnx.Graphs {
		b.Graphs[g] = file(GraphFile(g))
	}

	return b
}

// ModelBytes carries an in-memory model, for embedding or tests.
type ModelBytes struct {
	Config  []byte
	Indexer []byte
	Graphs  map[string][]byte
	Styles  map[string][]byte
}

// BytesBundle wraps in-memory model data as a Bundle.
func BytesBundle(m ModelBytes) Bundle {
	b := Bundle{
		Config:  asset.Bytes(ConfigFile, m.Config),
		Indexer: asset.Bytes(IndexerFile, m.Indexer),
		Graphs:  make(map[string]asset.Source, len(m.Graphs)),
		Styles:  make(map[string]asset.Source, len(m.Styles)),
	}

	for name, data := range m.Graphs {
		b.Graphs[name] = asset.Bytes(GraphFile(name), data)
	}

	for id, data := range m.Styles {
		b.Styles[id] = asset.Bytes(voice.StyleFile(id), data)
	}

	return b
}
