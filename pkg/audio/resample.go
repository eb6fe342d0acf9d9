package audio

import (
	"math"

	"github.com/gopxl/beep"

	"speech-affect/pkg/models"
)

// sliceStreamer feeds a mono buffer to beep, duplicating it on both channels.
type sliceStreamer struct {
	samples []float32
	pos     int
}

func (s *sliceStreamer) Stream(buf [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(buf) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos])
		buf[n] = [2]float64{v, v}
		n++
		s.pos++
	}
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }

// Resample converts w to target Hz. A waveform already at the target rate is
// returned as is.
func Resample(w *models.Waveform, target, quality int) *models.Waveform {
	if w.SampleRate == target {
		return w
	}
	if len(w.Samples) == 0 {
		return &models.Waveform{Samples: w.Samples, SampleRate: target}
	}
	if quality < 1 {
		quality = 1
	} else if quality > 64 {
		quality = 64
	}

	expected := int(math.Round(float64(len(w.Samples)) * float64(target) / float64(w.SampleRate)))
	r := beep.Resample(quality, beep.SampleRate(w.SampleRate), beep.SampleRate(target), &sliceStreamer{samples: w.Samples})

	out := make([]float32, 0, expected)
	buf := make([][2]float64, 4096)
	for len(out) < expected {
		n, ok := r.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, float32(frame[0]))
		}
		if !ok || n == 0 {
			break
		}
	}

	// beep may overshoot or stop a few frames short near the end of input.
	if len(out) > expected {
		out = out[:expected]
	}
	for len(out) < expected {
		out = append(out, 0)
	}

	return &models.Waveform{Samples: out, SampleRate: target}
}
