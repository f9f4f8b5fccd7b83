// Package server exposes the synthesis service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/go-supertonic-tts/internal/audio"
	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tts"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer runs synthesis requests. *tts.Service implements it.
type Synthesizer interface {
	NewRequest(text string) tts.Request
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
	SynthesizeChunk(ctx context.Context, req tts.ChunkRequest) (tts.ChunkResult, error)
	SampleRate() int
}

// Catalog answers the read-only listing endpoints. *tts.Service implements it.
type Catalog interface {
	SplitSentences(text string) []string
	Voices() []voice.Voice
	Languages() []text.Language
}

// Backend is everything the server needs from the service.
type Backend interface {
	Synthesizer
	Catalog
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	cache          *audio.Cache
}

func defaultOptions() options {
	return options{
		maxTextBytes:   8192,
		workers:        1,
		requestTimeout: 120 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the number of synthesis requests admitted at once.
// Zero or less disables admission control.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAudioCache enables saving chunk audio and DELETE /cache.
func WithAudioCache(c *audio.Cache) Option {
	return func(o *options) { o.cache = c }
}

// ---------------------------------------------------------------------------
// Server wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

type Server struct {
	cfg             config.Config
	backend         Backend
	shutdownTimeout time.Duration
}

func New(cfg config.Config, backend Backend) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		backend:         backend,
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Handler builds the HTTP handler from the server config.
func (s *Server) Handler() http.Handler {
	opts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
	}

	if s.cfg.Server.AudioCacheDir != "" {
		opts = append(opts, WithAudioCache(audio.NewCache(s.cfg.Server.AudioCacheDir)))
	}

	return NewHandler(s.backend, opts...)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.backend == nil {
		return errors.New("server: backend is required")
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("http server listening", "addr", s.cfg.Server.ListenAddr, "workers", s.cfg.Server.Workers)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks that a server at addr answers GET /health with 200.
func ProbeHTTP(addr string) error {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(strings.TrimRight(addr, "/") + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
