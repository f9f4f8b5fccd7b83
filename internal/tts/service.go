package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/model"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// Request is one synthesis call. Empty Language and Voice fall back to the
// service defaults.
type Request struct {
	Text     string
	Language string
	Voice    string
	Params
}

// ChunkRequest synthesizes a single sentence with no inter-chunk silence.
type ChunkRequest struct {
	Request
	SentenceIndex int
}

// ChunkResult echoes the sentence index of its request.
type ChunkResult struct {
	Result
	SentenceIndex int
}

// Service owns the loaded model and serializes synthesis calls.
type Service struct {
	mu       sync.Mutex
	pipeline *Pipeline
	engine   *onnx.Engine
	voices   *voice.Manager
	modelDir string
	defaults Request
	closed   bool
}

// NewService bootstraps ONNX Runtime and loads the model from
// cfg.Paths.ModelDir.
func NewService(cfg config.Config, opts ...PipelineOption) (*Service, error) {
	info, err := onnx.Bootstrap(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("bootstrap onnx runtime: %w", err)
	}

	b := model.DirBundle(cfg.Paths.ModelDir)

	sm, err := onnx.NewSessionManager(b.Graphs)
	if err != nil {
		return nil, &Error{Kind: KindConfigLoad, Err: err}
	}

	engine, err := onnx.NewEngine(sm, onnx.RunnerConfig{
		LibraryPath: info.LibraryPath,
		APIVersion:  cfg.Runtime.ORTAPIVersion,
	})
	if err != nil {
		return nil, &Error{Kind: KindConfigLoad, Err: err}
	}

	svc, err := NewServiceWithEngine(b, engine, cfg, opts...)
	if err != nil {
		engine.Close()
		return nil, err
	}

	svc.modelDir = cfg.Paths.ModelDir

	slog.Info("tts service ready",
		"model_dir", cfg.Paths.ModelDir,
		"ort_library", info.LibraryPath,
		"sample_rate", svc.SampleRate(),
		"voices", len(svc.voices.ListVoices()),
	)

	return svc, nil
}

// NewServiceWithEngine builds a service around an existing engine. The
// config and indexer come from b; graphs in b are not read.
func NewServiceWithEngine(b model.Bundle, engine *onnx.Engine, cfg config.Config, opts ...PipelineOption) (*Service, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}

	mc, err := config.LoadModelConfig(b.Config)
	if err != nil {
		return nil, classify(err)
	}

	idx, err := tokenizer.LoadUnicodeIndexer(b.Indexer)
	if err != nil {
		return nil, classify(err)
	}

	return &Service{
		pipeline: NewPipeline(engine, idx, mc, opts...),
		engine:   engine,
		voices:   voice.NewManager(b.Styles),
		defaults: Request{
			Language: cfg.TTS.Language,
			Voice:    cfg.TTS.Voice,
			Params: Params{
				TotalSteps:     cfg.TTS.TotalSteps,
				Speed:          cfg.TTS.Speed,
				SilenceSeconds: cfg.TTS.SilenceSeconds,
			},
		},
	}, nil
}

// NewRequest returns a request for text carrying the configured defaults.
func (s *Service) NewRequest(input string) Request {
	req := s.defaults
	req.Text = input

	return req
}

// Synthesize runs the full chunked pipeline for req.
func (s *Service) Synthesize(ctx context.Context, req Request) (Result, error) {
	req = s.fill(req)

	style, err := s.voices.Style(req.Voice)
	if err != nil {
		return Result{}, classify(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, errors.New("tts service is closed")
	}

	// The caller may have given up while waiting for the lock.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return s.pipeline.Synthesize(ctx, req.Text, req.Language, style, req.Params)
}

// SynthesizeChunk synthesizes one sentence with zero silence.
func (s *Service) SynthesizeChunk(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
	r := req.Request
	r.SilenceSeconds = 0

	res, err := s.Synthesize(ctx, r)
	if err != nil {
		return ChunkResult{SentenceIndex: req.SentenceIndex}, err
	}

	return ChunkResult{Result: res, SentenceIndex: req.SentenceIndex}, nil
}

func (s *Service) fill(req Request) Request {
	if req.Language == "" {
		req.Language = s.defaults.Language
	}

	if req.Voice == "" {
		req.Voice = s.defaults.Voice
	}

	return req
}

// SplitSentences splits text the way the chunk endpoints expect.
func (s *Service) SplitSentences(input string) []string {
	return text.SentenceList(input)
}

// Voices lists the built-in voices that have a style file.
func (s *Service) Voices() []voice.Voice {
	return s.voices.ListVoices()
}

// Languages lists the supported languages.
func (s *Service) Languages() []text.Language {
	return text.Languages()
}

// Status reports the model files under the service's model directory.
func (s *Service) Status() (model.Status, error) {
	if s.modelDir == "" {
		return model.Status{}, errors.New("service was not loaded from a model directory")
	}

	return model.CheckStatus(s.modelDir)
}

// SampleRate is the output sample rate of every result.
func (s *Service) SampleRate() int {
	return s.pipeline.SampleRate()
}

// Close releases the ORT sessions. Later calls fail.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.engine.Close()
}
