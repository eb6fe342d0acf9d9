// Package scorer adapts the pretrained audio-emotion model to the pipeline.
//
// The model runs out of process behind an HTTP inference sidecar. A Scorer is
// created once at startup and shared by every worker; implementations must be
// safe for concurrent Score calls and must not mutate state after creation.
package scorer

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrScorerUnavailable wraps every failure to load or query the model.
var ErrScorerUnavailable = errors.New("scorer unavailable")

// LabelScore is one raw model label and its score in [0, 1].
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Scorer interface {
	// Score returns the label scores and the model that produced them.
	Score(ctx context.Context, samples []float32, sampleRate int) (*ScoreResponse, error)
	// Model identifies the pretrained model behind the scorer.
	Model() string
}

type ScoreResponse struct {
	Model  string       `json:"model"`
	Scores []LabelScore `json:"scores"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model"`
}

// HTTPScorer talks to the inference sidecar.
type HTTPScorer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewHTTPScorer(baseURL, model string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPScorer) Model() string { return s.model }

// Score posts the waveform as little-endian float32 samples.
func (s *HTTPScorer) Score(ctx context.Context, samples []float32, sampleRate int) (*ScoreResponse, error) {
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/classify", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrScorerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Sample-Rate", strconv.Itoa(sampleRate))
	if s.model != "" {
		req.Header.Set("X-Model", s.model)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return nil, fmt.Errorf("%w: scorer returned status %d: %s",
			ErrScorerUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrScorerUnavailable, err)
	}
	for _, ls := range out.Scores {
		if math.IsNaN(ls.Score) || ls.Score < 0 || ls.Score > 1 {
			return nil, fmt.Errorf("%w: score %v for label %q outside [0, 1]", ErrScorerUnavailable, ls.Score, ls.Label)
		}
	}
	// The sidecar is authoritative; the configured name is only a fallback.
	if out.Model == "" {
		out.Model = s.model
	}
	return &out, nil
}

// Health checks that the sidecar is up and has its model loaded.
func (s *HTTPScorer) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: health status %d", ErrScorerUnavailable, resp.StatusCode)
	}

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode health: %v", ErrScorerUnavailable, err)
	}
	if !out.ModelLoaded {
		return &out, fmt.Errorf("%w: model not loaded", ErrScorerUnavailable)
	}
	return &out, nil
}
