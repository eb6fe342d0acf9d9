package audio

import (
	"math"

	"speech-affect/pkg/models"
)

const (
	frameLength = 2048
	hopLength   = 512

	// DefaultTopDB is the silence threshold below peak; higher values trim more.
	DefaultTopDB = 25.0

	powerFloor = 1e-10
	// Smallest normal float32; anything quieter is treated as digital silence.
	minPeak = 1.1754943508222875e-38
)

// Normalize scales w so its largest absolute sample is 1. Silent input is
// returned unchanged.
func Normalize(w *models.Waveform) *models.Waveform {
	var peak float64
	for _, s := range w.Samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak < minPeak {
		return w
	}

	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = float32(float64(s) / peak)
	}
	return &models.Waveform{Samples: out, SampleRate: w.SampleRate}
}

// framePower returns the mean-square energy of centered, zero-padded frames.
// Frame i covers samples [i*hop - frame/2, i*hop + frame/2).
func framePower(samples []float32) []float64 {
	n := len(samples)
	prefix := make([]float64, n+1)
	for i, s := range samples {
		prefix[i+1] = prefix[i] + float64(s)*float64(s)
	}

	frames := 1 + n/hopLength
	power := make([]float64, frames)
	half := frameLength / 2
	for i := range power {
		lo := i*hopLength - half
		hi := i*hopLength + half
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		if hi > lo {
			power[i] = (prefix[hi] - prefix[lo]) / frameLength
		}
	}
	return power
}

// Split returns the non-silent intervals of w, in order. A frame is silent
// when its energy is more than topDB below the loudest frame.
func Split(w *models.Waveform, topDB float64) []models.Interval {
	n := len(w.Samples)
	if n == 0 {
		return nil
	}

	power := framePower(w.Samples)
	ref := powerFloor
	for _, p := range power {
		if p > ref {
			ref = p
		}
	}
	refDB := 10 * math.Log10(ref)

	var (
		out   []models.Interval
		open  bool
		start int
	)
	for i, p := range power {
		db := 10*math.Log10(math.Max(p, powerFloor)) - refDB
		loud := db > -topDB
		switch {
		case loud && !open:
			open = true
			start = i * hopLength
		case !loud && open:
			open = false
			out = appendInterval(out, start, i*hopLength, n)
		}
	}
	if open {
		out = appendInterval(out, start, n, n)
	}
	return out
}

func appendInterval(out []models.Interval, start, end, n int) []models.Interval {
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	if end <= start {
		return out
	}
	return append(out, models.Interval{Start: start, End: end})
}

// Trim drops the silent gaps between the intervals found by Split. When no
// interval is found the waveform is returned unchanged rather than emptied.
func Trim(w *models.Waveform, topDB float64) *models.Waveform {
	intervals := Split(w, topDB)
	if len(intervals) == 0 {
		return w
	}
	if len(intervals) == 1 && intervals[0].Start == 0 && intervals[0].End == len(w.Samples) {
		return w
	}

	total := 0
	for _, iv := range intervals {
		total += iv.End - iv.Start
	}
	out := make([]float32, 0, total)
	for _, iv := range intervals {
		out = append(out, w.Samples[iv.Start:iv.End]...)
	}
	return &models.Waveform{Samples: out, SampleRate: w.SampleRate}
}
