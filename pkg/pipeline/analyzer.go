package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"speech-affect/pkg/audio"
	"speech-affect/pkg/emotion"
	"speech-affect/pkg/models"
	"speech-affect/pkg/scorer"
)

// DefaultMinDuration is the shortest trimmed clip, in seconds, worth scoring.
const DefaultMinDuration = 0.4

const (
	outcomeClassified = "classified"
	outcomeTooShort   = "too_short"
)

// Analyzer runs one upload through the whole pipeline synchronously. It holds
// no per-request state, so one instance serves every worker.
type Analyzer struct {
	loader      *audio.Loader
	scorer      scorer.Scorer
	mapper      *emotion.Mapper
	minDuration float64
	metrics     *Metrics
	log         *zap.Logger
}

func NewAnalyzer(loader *audio.Loader, sc scorer.Scorer, mapper *emotion.Mapper, minDuration float64, metrics *Metrics, log *zap.Logger) *Analyzer {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		loader:      loader,
		scorer:      sc,
		mapper:      mapper,
		minDuration: minDuration,
		metrics:     metrics,
		log:         log,
	}
}

func (a *Analyzer) Model() string { return a.scorer.Model() }

// TooShortReason is reported when a clip is under the minimum duration.
func (a *Analyzer) TooShortReason() string {
	return fmt.Sprintf("audio too short (<%gs)", a.minDuration)
}

func (a *Analyzer) Analyze(ctx context.Context, raw []byte) (*models.EmotionResponse, error) {
	w, err := a.Load(ctx, raw)
	if err != nil {
		return nil, err
	}
	return a.Classify(ctx, w)
}

// Load decodes and cleans raw audio into a mono waveform at the target rate.
func (a *Analyzer) Load(ctx context.Context, raw []byte) (*models.Waveform, error) {
	res, err := a.loader.Load(ctx, raw)
	if err != nil {
		if ctx.Err() == nil {
			a.metrics.DecodeFailures.Inc()
		}
		return nil, err
	}
	a.metrics.DecodeTier.WithLabelValues(res.Tier).Inc()
	return res.Waveform, nil
}

// Classify applies the duration gate, scores the waveform and maps the
// result. Scorer errors are returned as is.
func (a *Analyzer) Classify(ctx context.Context, w *models.Waveform) (*models.EmotionResponse, error) {
	if float64(len(w.Samples)) < a.minDuration*float64(w.SampleRate) {
		a.log.Debug("skipping classification of short clip", zap.Float64("seconds", w.Duration()))
		a.metrics.Decisions.WithLabelValues(string(models.Neutral), outcomeTooShort).Inc()
		decision := models.EmotionDecision{Label: models.Neutral, Reason: a.TooShortReason()}
		return models.NewEmotionResponse(decision, a.Model()), nil
	}

	scored, err := a.scorer.Score(ctx, w.Samples, w.SampleRate)
	if err != nil {
		a.metrics.ScorerFailures.Inc()
		return nil, err
	}

	model := scored.Model
	if model == "" {
		model = a.Model()
	}
	decision := a.mapper.Decide(scored.Scores)
	a.metrics.Decisions.WithLabelValues(string(decision.Label), outcomeClassified).Inc()
	return models.NewEmotionResponse(decision, model), nil
}
