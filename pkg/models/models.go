package models

import (
	"time"

	"github.com/google/uuid"
)

// CoarseLabel is the only output vocabulary of the service.
type CoarseLabel string

const (
	Positive CoarseLabel = "Positive"
	Negative CoarseLabel = "Negative"
	Neutral  CoarseLabel = "Neutral"
)

// Waveform is a mono buffer of float samples in roughly [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the waveform in seconds.
func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Interval is a half-open [Start, End) sample range of non-silent audio.
type Interval struct {
	Start int
	End   int
}

type ClassificationResult struct {
	Raw    string      `json:"raw"`
	Score  float64     `json:"score"`
	Mapped CoarseLabel `json:"mapped"`
}

// EmotionDecision is the verdict for one utterance. Reason is set only when
// classification was short-circuited.
type EmotionDecision struct {
	Label   CoarseLabel
	Results []ClassificationResult
	Reason  string
}

// EmotionResponse is the wire shape returned to callers.
type EmotionResponse struct {
	Label        CoarseLabel            `json:"label"`
	Distribution []ClassificationResult `json:"distribution,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Model        string                 `json:"model"`
}

// NewEmotionResponse flattens a decision into its wire shape. A decision with a
// reason never carries a distribution.
func NewEmotionResponse(d EmotionDecision, model string) *EmotionResponse {
	resp := &EmotionResponse{
		Label: d.Label,
		Model: model,
	}
	if d.Reason != "" {
		resp.Reason = d.Reason
		return resp
	}
	resp.Distribution = d.Results
	if resp.Distribution == nil {
		resp.Distribution = []ClassificationResult{}
	}
	return resp
}

type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusDecoding    ProcessingStatus = "decoding"
	StatusClassifying ProcessingStatus = "classifying"
	StatusCompleted   ProcessingStatus = "completed"
	StatusFailed      ProcessingStatus = "failed"
)

// Job is one classification request travelling through the worker pool.
type Job struct {
	ID        string
	Data      []byte
	Size      int
	Timestamp time.Time
	Status    ProcessingStatus

	Result *EmotionResponse
	Err    error
	done   chan struct{}
}

func NewJob(data []byte) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Data:      data,
		Size:      len(data),
		Timestamp: time.Now(),
		Status:    StatusPending,
		done:      make(chan struct{}),
	}
}

// Finish records the outcome and releases anyone waiting on Done.
// It must be called exactly once.
func (j *Job) Finish(result *EmotionResponse, err error) {
	j.Result = result
	j.Err = err
	if err != nil {
		j.Status = StatusFailed
	} else {
		j.Status = StatusCompleted
	}
	close(j.done)
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}
