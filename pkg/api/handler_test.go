package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-affect/pkg/asr"
	"speech-affect/pkg/audio"
	"speech-affect/pkg/models"
	"speech-affect/pkg/pipeline"
	"speech-affect/pkg/scorer"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRoot(t *testing.T) {
	h := NewRouter(NewHandlers(&stubClassifier{}, Options{}), prometheus.NewRegistry(), nil)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["message"])
}

func TestEmotion(t *testing.T) {
	t.Run("classifies an upload", func(t *testing.T) {
		cl := &stubClassifier{resp: positiveResponse()}
		h := NewRouter(NewHandlers(cl, Options{}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/emotion", "file", "clip.wav", []byte("RIFF....")))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		var got models.EmotionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.Positive, got.Label)
		assert.Equal(t, "stub-model", got.Model)
		assert.Len(t, got.Distribution, 2)
		assert.Equal(t, []byte("RIFF...."), cl.got.Load())
	})

	t.Run("too short answers 200 with a reason", func(t *testing.T) {
		cl := &stubClassifier{resp: models.NewEmotionResponse(models.EmotionDecision{
			Label:  models.Neutral,
			Reason: "audio too short (<0.4s)",
		}, "stub-model")}
		h := NewRouter(NewHandlers(cl, Options{}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/emotion", "file", "clip.wav", []byte("x")))

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Neutral", body["label"])
		assert.Equal(t, "audio too short (<0.4s)", body["reason"])
		assert.NotContains(t, body, "distribution")
	})

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing file field",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, "/emotion", "", "", nil) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/emotion", bytes.NewReader([]byte("raw")))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "empty file",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, "/emotion", "file", "a.wav", nil) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "undecodable audio",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, "/emotion", "file", "a.bin", []byte("x")) },
			err:        fmt.Errorf("all tiers failed: %w", audio.ErrUnsupportedAudio),
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "UNSUPPORTED_AUDIO",
		},
		{
			name:       "scorer down",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, "/emotion", "file", "a.wav", []byte("x")) },
			err:        fmt.Errorf("%w: connection refused", scorer.ErrScorerUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "SCORER_UNAVAILABLE",
		},
		{
			name:       "queue full",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, "/emotion", "file", "a.wav", []byte("x")) },
			err:        pipeline.ErrQueueFull,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "BUSY",
		},
		{
			name:       "unexpected failure",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, "/emotion", "file", "a.wav", []byte("x")) },
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := &stubClassifier{err: tt.err}
			h := NewRouter(NewHandlers(cl, Options{}), prometheus.NewRegistry(), nil)
			req := tt.req(t)
			req.Header.Set("X-Request-ID", "req-1")

			w := serve(h, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, "req-1", body.RequestID)
		})
	}

	t.Run("oversized upload", func(t *testing.T) {
		cl := &stubClassifier{resp: positiveResponse()}
		h := NewRouter(NewHandlers(cl, Options{MaxUploadBytes: 1024}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/emotion", "file", "big.wav", make([]byte, 4096)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, w).Error.Code)
		assert.Equal(t, int32(0), cl.calls.Load())
	})

	t.Run("wrong method", func(t *testing.T) {
		h := NewRouter(NewHandlers(&stubClassifier{}, Options{}), prometheus.NewRegistry(), nil)

		w := serve(h, httptest.NewRequest(http.MethodGet, "/emotion", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		h := NewRouter(NewHandlers(&stubClassifier{}, Options{}), prometheus.NewRegistry(), nil)

		w := serve(h, httptest.NewRequest(http.MethodOptions, "/emotion", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestTranscribe(t *testing.T) {
	t.Run("returns the transcription", func(t *testing.T) {
		tr := &stubTranscriber{text: "hello there"}
		h := NewRouter(NewHandlers(&stubClassifier{}, Options{Transcriber: tr}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/transcribe", "file", "speech.mp3", []byte("ID3...")))

		require.Equal(t, http.StatusOK, w.Code)
		var got asr.TranscribeResp
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "hello there", got.Transcription)
		assert.Equal(t, "speech.mp3", tr.filename)
	})

	t.Run("sidecar failure", func(t *testing.T) {
		tr := &stubTranscriber{err: fmt.Errorf("%w: status 500", asr.ErrTranscriberUnavailable)}
		h := NewRouter(NewHandlers(&stubClassifier{}, Options{Transcriber: tr}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/transcribe", "file", "speech.mp3", []byte("x")))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "TRANSCRIBER_UNAVAILABLE", decodeError(t, w).Error.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		h := NewRouter(NewHandlers(&stubClassifier{}, Options{}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/transcribe", "file", "speech.mp3", []byte("x")))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		h := NewRouter(NewHandlers(&stubClassifier{}, Options{Transcriber: &stubTranscriber{}}), prometheus.NewRegistry(), nil)

		w := serve(h, multipartRequest(t, "/transcribe", "", "", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealth(t *testing.T) {
	loaded := &stubHealth{resp: &scorer.HealthResponse{Status: "ok", ModelLoaded: true, Model: "m"}}

	tests := []struct {
		name           string
		scorer         ScorerHealth
		ffmpeg         func() error
		wantStatus     string
		wantComponents map[string]string
	}{
		{
			name:       "all components ok",
			scorer:     loaded,
			ffmpeg:     func() error { return nil },
			wantStatus: "healthy",
			wantComponents: map[string]string{
				"pipeline": "ok", "scorer": "ok", "ffmpeg": "ok",
			},
		},
		{
			name:       "nothing configured",
			wantStatus: "healthy",
			wantComponents: map[string]string{
				"pipeline": "ok", "scorer": "not configured", "ffmpeg": "not configured",
			},
		},
		{
			name:       "scorer down and ffmpeg missing",
			scorer:     &stubHealth{err: errors.New("refused")},
			ffmpeg:     func() error { return errors.New("not found") },
			wantStatus: "degraded",
			wantComponents: map[string]string{
				"pipeline": "ok", "scorer": "error: refused", "ffmpeg": "error: not found",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{FFmpegCheck: tt.ffmpeg}
			if tt.scorer != nil {
				opts.Scorer = tt.scorer
			}
			h := NewRouter(NewHandlers(&stubClassifier{}, opts), prometheus.NewRegistry(), nil)

			w := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, w.Code)
			var got HealthStatus
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, "stub-model", got.Model)
			assert.Equal(t, tt.wantComponents, got.Components)
		})
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		scorer     *stubHealth
		wantStatus int
	}{
		{"model loaded", &stubHealth{resp: &scorer.HealthResponse{ModelLoaded: true}}, http.StatusOK},
		{"model still loading", &stubHealth{resp: &scorer.HealthResponse{ModelLoaded: false, Model: "m"}}, http.StatusServiceUnavailable},
		{"scorer unreachable", &stubHealth{err: scorer.ErrScorerUnavailable}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(NewHandlers(&stubClassifier{}, Options{Scorer: tt.scorer}), prometheus.NewRegistry(), nil)

			w := serve(h, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)
	metrics.QueueRejections.Inc()
	h := NewRouter(NewHandlers(&stubClassifier{}, Options{}), reg, nil)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "affect_")
}
