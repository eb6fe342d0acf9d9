// Package audio turns uploaded audio bytes into the canonical mono waveform the
// classifier expects.
//
// Decoding runs through an ordered list of strategies:
//
//  1. container: strict, signature-based decode of WAV, FLAC and Ogg Vorbis
//  2. lenient: heuristic decode that skips leading junk and also handles MP3
//  3. transcode: external ffmpeg conversion to mono PCM WAV, decoded by tier 1
//
// The first strategy to succeed wins; if they all fail the caller receives a
// *DecodeError listing every failure.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"speech-affect/pkg/models"
)

// ErrUnsupportedAudio is matched by every *DecodeError.
var ErrUnsupportedAudio = errors.New("unsupported or corrupt audio")

// Strategy is one decode tier.
type Strategy interface {
	Name() string
	Decode(ctx context.Context, raw []byte) (*models.Waveform, error)
}

type TierFailure struct {
	Tier string
	Err  error
}

// DecodeError reports that no strategy could decode the input.
type DecodeError struct {
	Failures []TierFailure
}

func (e *DecodeError) Error() string {
	if len(e.Failures) == 0 {
		return ErrUnsupportedAudio.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Tier, f.Err))
	}
	return ErrUnsupportedAudio.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrUnsupportedAudio
}

func (e *DecodeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

type Decoder struct {
	strategies []Strategy
	log        *zap.Logger
}

func NewDecoder(log *zap.Logger, strategies ...Strategy) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{strategies: strategies, log: log}
}

// Strategies returns the tier names in attempt order.
func (d *Decoder) Strategies() []string {
	names := make([]string, 0, len(d.strategies))
	for _, s := range d.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Decode returns the waveform at its native sample rate together with the
// name of the tier that produced it.
func (d *Decoder) Decode(ctx context.Context, raw []byte) (*models.Waveform, string, error) {
	if len(raw) == 0 {
		return nil, "", &DecodeError{Failures: []TierFailure{{Tier: "input", Err: errors.New("empty audio data")}}}
	}

	decErr := &DecodeError{}
	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		w, err := s.Decode(ctx, raw)
		if err == nil {
			d.log.Debug("audio decoded",
				zap.String("tier", s.Name()),
				zap.Int("sample_rate", w.SampleRate),
				zap.Int("samples", len(w.Samples)),
			)
			return w, s.Name(), nil
		}

		d.log.Debug("decode tier failed", zap.String("tier", s.Name()), zap.Error(err))
		decErr.Failures = append(decErr.Failures, TierFailure{Tier: s.Name(), Err: err})
	}
	return nil, "", decErr
}
