package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/go-supertonic-tts/internal/audio"
	"github.com/example/go-supertonic-tts/internal/tts"
)

// Remote benchmarks a running server through its POST /tts endpoint.
type Remote struct {
	BaseURL string
	Client  *http.Client
}

type remoteRequest struct {
	Text           string  `json:"text"`
	Language       string  `json:"language,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	TotalSteps     int     `json:"total_steps"`
	Speed          float64 `json:"speed"`
	SilenceSeconds float64 `json:"silence_seconds"`
}

// Synthesize posts req and decodes the returned WAV.
func (r Remote) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	body, err := json.Marshal(remoteRequest{
		Text:           req.Text,
		Language:       req.Language,
		Voice:          req.Voice,
		TotalSteps:     req.TotalSteps,
		Speed:          req.Speed,
		SilenceSeconds: req.SilenceSeconds,
	})
	if err != nil {
		return tts.Result{}, err
	}

	url := strings.TrimRight(r.BaseURL, "/") + "/tts"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tts.Result{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return tts.Result{}, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return tts.Result{}, fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return tts.Result{}, fmt.Errorf("decode response: %w", err)
	}

	return tts.Result{Audio: clip.Samples, Duration: clip.Duration(), SampleRate: clip.SampleRate}, nil
}
