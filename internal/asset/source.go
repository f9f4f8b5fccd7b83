// Package asset provides a single byte-source abstraction over path-backed
// and buffer-backed resources, so loaders never branch on where bytes live.
package asset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is anything a loader can read bytes from.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	Open() (io.ReadCloser, error)
}

// File returns a Source backed by a file on disk.
func File(path string) Source {
	return fileSource{path: filepath.Clean(path)}
}

// Bytes returns a Source backed by an in-memory buffer. The buffer is not
// copied; callers must not mutate it afterwards.
func Bytes(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

type fileSource struct {
	path string
}

func (s fileSource) Name() string { return s.path }

func (s fileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}

	return f, nil
}

type bytesSource struct {
	name string
	data []byte
}

func (s bytesSource) Name() string { return s.name }

func (s bytesSource) Open() (io.ReadCloser, error) {
	if s.data == nil {
		return nil, fmt.Errorf("source %q has no data", s.name)
	}

	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// ReadAll reads the full contents of src.
func ReadAll(src Source) ([]byte, error) {
	if src == nil {
		return nil, errors.New("nil source")
	}

	if b, ok := src.(bytesSource); ok {
		if b.data == nil {
			return nil, fmt.Errorf("source %q has no data", b.name)
		}

		return b.data, nil
	}

	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}

	return data, nil
}

// Path reports the filesystem path of a file-backed source.
func Path(src Source) (string, bool) {
	f, ok := src.(fileSource)
	if !ok {
		return "", false
	}

	return f.path, true
}
