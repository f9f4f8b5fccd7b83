package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-supertonic-tts/internal/audio"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tts"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	backend Backend
	opts    options
	sem     chan struct{} // admission semaphore; nil when unlimited
	log     *slog.Logger
}

// NewHandler returns an http.Handler serving the synthesis API.
func NewHandler(backend Backend, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		backend: backend,
		opts:    opts,
		log:     opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /voices", h.handleVoices)
	mux.HandleFunc("GET /languages", h.handleLanguages)
	mux.HandleFunc("POST /sentences", h.handleSentences)
	mux.HandleFunc("POST /tts", h.handleTTS)
	mux.HandleFunc("POST /tts/chunk", h.handleChunk)
	mux.HandleFunc("DELETE /cache", h.handleClearCache)

	return withRequestID(mux)
}

// withRequestID reuses an incoming X-Request-ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     buildVersion(),
		"engine":      "ready",
		"sample_rate": h.backend.SampleRate(),
	})
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.backend.Voices()
	if voices == nil {
		voices = []voice.Voice{}
	}

	writeJSON(w, http.StatusOK, voices)
}

func (h *handler) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := h.backend.Languages()
	if langs == nil {
		langs = []text.Language{}
	}

	writeJSON(w, http.StatusOK, langs)
}

type sentencesRequest struct {
	Text string `json:"text"`
}

func (h *handler) handleSentences(w http.ResponseWriter, r *http.Request) {
	var req sentencesRequest
	if !h.decode(w, r, &req) || !h.checkText(w, req.Text) {
		return
	}

	writeJSON(w, http.StatusOK, h.backend.SplitSentences(req.Text))
}

// ttsRequest mirrors tts.Request. Nil numeric fields keep the defaults.
type ttsRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Voice          string   `json:"voice"`
	TotalSteps     *int     `json:"total_steps"`
	Speed          *float64 `json:"speed"`
	SilenceSeconds *float64 `json:"silence_seconds"`
}

func (t ttsRequest) apply(req tts.Request) tts.Request {
	if t.Language != "" {
		req.Language = t.Language
	}

	if t.Voice != "" {
		req.Voice = t.Voice
	}

	if t.TotalSteps != nil {
		req.TotalSteps = *t.TotalSteps
	}

	if t.Speed != nil {
		req.Speed = *t.Speed
	}

	if t.SilenceSeconds != nil {
		req.SilenceSeconds = *t.SilenceSeconds
	}

	return req
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	var body ttsRequest
	if !h.decode(w, r, &body) || !h.checkText(w, body.Text) {
		return
	}

	req := body.apply(h.backend.NewRequest(body.Text))

	ctx, release, ok := h.admit(w, r)
	if !ok {
		return
	}
	defer release()

	start := time.Now()
	res, err := h.backend.Synthesize(ctx, req)
	attrs := h.requestAttrs(r, req, start)

	if err != nil {
		status := statusFor(err)
		h.logFailure(r, status, err, attrs)
		writeError(w, status, errorMessage(status, err))

		return
	}

	wav, err := audio.EncodeWAV(res.Audio, res.SampleRate)
	if err != nil {
		h.logFailure(r, http.StatusInternalServerError, err, attrs)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.log.InfoContext(r.Context(), "synthesis complete",
		append(attrs,
			slog.Float64("audio_seconds", res.Duration),
			slog.Int("wav_bytes", len(wav)),
		)...,
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Audio-Duration", strconv.FormatFloat(res.Duration, 'f', 3, 64))
	w.Header().Set("X-Sample-Rate", strconv.Itoa(res.SampleRate))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

type chunkRequest struct {
	ttsRequest
	SentenceIndex int  `json:"sentence_index"`
	Save          bool `json:"save"`
}

type chunkResponse struct {
	Success       bool    `json:"success"`
	SentenceIndex int     `json:"sentence_index"`
	AudioBase64   string  `json:"audio_base64,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Path          string  `json:"path,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func (h *handler) handleChunk(w http.ResponseWriter, r *http.Request) {
	var body chunkRequest
	if !h.decode(w, r, &body) || !h.checkText(w, body.Text) {
		return
	}

	if body.SentenceIndex < 0 {
		writeJSON(w, http.StatusBadRequest, chunkResponse{SentenceIndex: body.SentenceIndex, Error: "sentence_index must be >= 0"})
		return
	}

	if body.Save && h.opts.cache == nil {
		writeJSON(w, http.StatusBadRequest, chunkResponse{SentenceIndex: body.SentenceIndex, Error: "audio cache is disabled"})
		return
	}

	req := tts.ChunkRequest{
		Request:       body.apply(h.backend.NewRequest(body.Text)),
		SentenceIndex: body.SentenceIndex,
	}

	ctx, release, ok := h.admit(w, r)
	if !ok {
		return
	}
	defer release()

	start := time.Now()
	res, err := h.backend.SynthesizeChunk(ctx, req)
	attrs := append(h.requestAttrs(r, req.Request, start), slog.Int("sentence_index", req.SentenceIndex))

	fail := func(status int, err error) {
		h.logFailure(r, status, err, attrs)
		writeJSON(w, status, chunkResponse{SentenceIndex: req.SentenceIndex, Error: errorMessage(status, err)})
	}

	if err != nil {
		fail(statusFor(err), err)
		return
	}

	wav, err := audio.EncodeWAV(res.Audio, res.SampleRate)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}

	resp := chunkResponse{
		Success:       true,
		SentenceIndex: res.SentenceIndex,
		AudioBase64:   base64.StdEncoding.EncodeToString(wav),
		Duration:      res.Duration,
	}

	if body.Save {
		path, err := h.opts.cache.Save(res.SentenceIndex, wav)
		if err != nil {
			fail(http.StatusInternalServerError, err)
			return
		}

		resp.Path = path
	}

	h.log.InfoContext(r.Context(), "chunk synthesized",
		append(attrs, slog.Float64("audio_seconds", res.Duration), slog.Bool("saved", body.Save))...,
	)

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if h.opts.cache == nil {
		writeError(w, http.StatusNotFound, "audio cache is disabled")
		return
	}

	if err := h.opts.cache.Clear(); err != nil {
		h.log.ErrorContext(r.Context(), "clear audio cache failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}

	return true
}

func (h *handler) checkText(w http.ResponseWriter, s string) bool {
	if s == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return false
	}

	if h.opts.maxTextBytes > 0 && len(s) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))

		return false
	}

	return true
}

// admit waits for a worker slot and applies the request timeout. The
// returned release must be called when synthesis is done.
func (h *handler) admit(w http.ResponseWriter, r *http.Request) (context.Context, func(), bool) {
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return nil, nil, false
		}
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	if h.opts.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(r.Context(), h.opts.requestTimeout)
	} else {
		ctx, cancel = context.WithCancel(r.Context())
	}

	return ctx, func() {
		cancel()

		if h.sem != nil {
			<-h.sem
		}
	}, true
}

func (h *handler) requestAttrs(r *http.Request, req tts.Request, start time.Time) []any {
	return []any{
		slog.String("request_id", RequestID(r.Context())),
		slog.String("voice", req.Voice),
		slog.String("language", req.Language),
		slog.Int("text_len", len(req.Text)),
		slog.Int("total_steps", req.TotalSteps),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
}

func (h *handler) logFailure(r *http.Request, status int, err error, attrs []any) {
	attrs = append(attrs, slog.Int("status", status), slog.String("error", err.Error()))

	if status == http.StatusGatewayTimeout {
		h.log.WarnContext(r.Context(), "synthesis timed out", attrs...)
		return
	}

	h.log.ErrorContext(r.Context(), "synthesis failed", attrs...)
}

// statusFor maps synthesis errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, tts.ErrInvalidLanguage), errors.Is(err, tts.ErrInvalidParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(status int, err error) string {
	if status == http.StatusGatewayTimeout {
		return "synthesis timed out"
	}

	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
