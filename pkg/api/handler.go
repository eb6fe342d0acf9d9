package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"speech-affect/pkg/asr"
	"speech-affect/pkg/models"
	"speech-affect/pkg/scorer"
)

const (
	defaultMaxUpload   = 32 << 20
	healthCheckTimeout = 5 * time.Second
)

// Classifier turns one complete recording into an emotion response.
type Classifier interface {
	Submit(ctx context.Context, data []byte) (*models.EmotionResponse, error)
	Model() string
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

type ScorerHealth interface {
	Health(ctx context.Context) (*scorer.HealthResponse, error)
}

// Options carries the optional collaborators of Handlers. Nil fields
// disable the corresponding check or endpoint.
type Options struct {
	MaxUploadBytes int64
	Transcriber    Transcriber
	Scorer         ScorerHealth
	FFmpegCheck    func() error
	Log            *zap.Logger
}

type Handlers struct {
	classifier  Classifier
	transcriber Transcriber
	scorer      ScorerHealth
	ffmpegCheck func() error
	maxUpload   int64
	log         *zap.Logger
}

func NewHandlers(classifier Classifier, opts Options) *Handlers {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Handlers{
		classifier:  classifier,
		transcriber: opts.Transcriber,
		scorer:      opts.Scorer,
		ffmpegCheck: opts.FFmpegCheck,
		maxUpload:   opts.MaxUploadBytes,
		log:         opts.Log,
	}
}

// Root handles GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Speech affect service is running",
	})
}

// Emotion handles POST /emotion
func (h *Handlers) Emotion(w http.ResponseWriter, r *http.Request) {
	data, _, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp, err := h.classifier.Submit(r.Context(), data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.log.Info("emotion classified",
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.String("label", string(resp.Label)),
		zap.String("reason", resp.Reason),
		zap.Int("size", len(data)),
	)
	writeJSON(w, http.StatusOK, resp)
}

// Transcribe handles POST /transcribe
func (h *Handlers) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		h.respondError(w, r, fmt.Errorf("%w: not configured", asr.ErrTranscriberUnavailable))
		return
	}

	data, filename, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	text, err := h.transcriber.Transcribe(r.Context(), filename, data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asr.TranscribeResp{Transcription: text})
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status     string            `json:"status"`
	Model      string            `json:"model"`
	Components map[string]string `json:"components"`
}

// Health handles GET /health. It always answers 200 while the process is
// alive and reports degraded components in the body.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]string{"pipeline": "ok"}
	healthy := true

	if h.scorer != nil {
		if err := h.checkScorer(ctx); err != nil {
			components["scorer"] = "error: " + err.Error()
			healthy = false
		} else {
			components["scorer"] = "ok"
		}
	} else {
		components["scorer"] = "not configured"
	}

	if h.ffmpegCheck != nil {
		if err := h.ffmpegCheck(); err != nil {
			components["ffmpeg"] = "error: " + err.Error()
			healthy = false
		} else {
			components["ffmpeg"] = "ok"
		}
	} else {
		components["ffmpeg"] = "not configured"
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:     status,
		Model:      h.classifier.Model(),
		Components: components,
	})
}

// Ready handles GET /ready: 200 only once the scorer has its model loaded.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if h.scorer != nil {
		if err := h.checkScorer(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handlers) checkScorer(ctx context.Context) error {
	hr, err := h.scorer.Health(ctx)
	if err != nil {
		return err
	}
	if !hr.ModelLoaded {
		return fmt.Errorf("model %q not loaded", hr.Model)
	}
	return nil
}

// readUpload returns the contents and name of the multipart field "file",
// bounded by the upload limit.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if r.ContentLength > h.maxUpload {
		return nil, "", &http.MaxBytesError{Limit: h.maxUpload}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", tooLarge
		}
		return nil, "", fmt.Errorf("%w: %v", errMissingFile, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", errMissingFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errEmptyFile
	}
	return data, hdr.Filename, nil
}
