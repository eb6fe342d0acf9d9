package audio

import (
	"context"

	"go.uber.org/zap"

	"speech-affect/pkg/models"
)

// Loader runs decode, resample, normalize and trim in sequence.
type Loader struct {
	Decoder         *Decoder
	TargetRate      int
	TopDB           float64
	ResampleQuality int
	Log             *zap.Logger
}

// LoadResult is the cleaned waveform plus the decode tier that produced it.
type LoadResult struct {
	Waveform       *models.Waveform
	Tier           string
	NativeRate     int
	DecodedSeconds float64
}

func (l *Loader) Load(ctx context.Context, raw []byte) (*LoadResult, error) {
	w, tier, err := l.Decoder.Decode(ctx, raw)
	if err != nil {
		return nil, err
	}
	native := w.SampleRate
	decoded := w.Duration()

	w = Resample(w, l.TargetRate, l.ResampleQuality)
	w = Normalize(w)
	w = Trim(w, l.TopDB)

	if l.Log != nil {
		l.Log.Debug("audio normalized",
			zap.String("tier", tier),
			zap.Int("native_rate", native),
			zap.Float64("decoded_seconds", decoded),
			zap.Float64("trimmed_seconds", w.Duration()),
		)
	}

	return &LoadResult{
		Waveform:       w,
		Tier:           tier,
		NativeRate:     native,
		DecodedSeconds: decoded,
	}, nil
}
