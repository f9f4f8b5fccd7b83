// Package audio encodes synthesized waveforms as WAV and keeps per-sentence
// audio files on disk.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// Output format: mono 16-bit PCM at the model's sample rate.
const (
	Channels = 1
	BitDepth = 16
)

// EncodeWAV encodes float32 samples as mono 16-bit PCM WAV at sampleRate.
// Samples are clamped to [-1, 1]; NaN becomes silence.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	clamped := make([]float32, len(samples))
	for i, s := range samples {
		clamped[i] = clamp(s)
	}

	var buf bytes.Buffer

	// wav.NewEncoder needs an io.WriteSeeker to patch the header on Close.
	sw := &seekBuffer{buf: &buf}
	enc := wav.NewEncoder(sw, sampleRate, BitDepth, Channels, 1)

	pcm := &goaudio.Float32Buffer{
		Data:           clamped,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: Channels},
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(pcm); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func clamp(s float32) float32 {
	if s != s {
		return 0
	}

	return float32(math.Max(-1, math.Min(1, float64(s))))
}

// seekBuffer adapts bytes.Buffer to io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n

		return n, err
	}

	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)

	if n < len(p) {
		s.buf.Write(p[n:])
	}

	s.pos += len(p)

	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int

	switch whence {
	case io.SeekStart:
		pos = int(offset)
	case io.SeekCurrent:
		pos = s.pos + int(offset)
	case io.SeekEnd:
		pos = s.buf.Len() + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	if pos < 0 {
		return 0, errors.New("seek before start")
	}

	if pos > s.buf.Len() {
		return 0, fmt.Errorf("seek past end: %d > %d", pos, s.buf.Len())
	}

	s.pos = pos

	return int64(pos), nil
}
