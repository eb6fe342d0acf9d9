// Package audiotest builds synthetic audio fixtures for tests.
package audiotest

import (
	"errors"
	"io"
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Tone returns seconds of a sine at freq Hz with the given amplitude.
func Tone(rate int, seconds, freq, amp float64) []float32 {
	n := int(math.Round(seconds * float64(rate)))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func Silence(rate int, seconds float64) []float32 {
	return make([]float32, int(math.Round(seconds*float64(rate))))
}

func Concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// WAV encodes one or two channels as 16-bit PCM with beep's wav encoder.
// Both channels must have the same length. It panics on bad input, like the
// httptest constructors.
func WAV(rate int, channels ...[]float32) []byte {
	if len(channels) == 0 || len(channels) > 2 {
		panic("audiotest: WAV needs one or two channels")
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(rate),
		NumChannels: len(channels),
		Precision:   2,
	}

	var out memFile
	if err := wav.Encode(&out, &channelStreamer{channels: channels}, format); err != nil {
		panic("audiotest: " + err.Error())
	}
	return out.buf
}

// channelStreamer plays planar channels as beep frames. A mono channel is
// duplicated on both sides.
type channelStreamer struct {
	channels [][]float32
	pos      int
}

func (s *channelStreamer) Stream(buf [][2]float64) (int, bool) {
	left := s.channels[0]
	right := left
	if len(s.channels) == 2 {
		right = s.channels[1]
	}
	if s.pos >= len(left) {
		return 0, false
	}
	n := 0
	for n < len(buf) && s.pos < len(left) {
		buf[n] = [2]float64{float64(left[s.pos]), float64(right[s.pos])}
		n++
		s.pos++
	}
	return n, true
}

func (s *channelStreamer) Err() error { return nil }

// memFile is an in-memory io.WriteSeeker; wav.Encode seeks back to patch the
// header sizes.
type memFile struct {
	buf []byte
	pos int
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.pos + len(p); end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	n := copy(f.buf[f.pos:], p)
	f.pos += n
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(f.pos) + offset
	case io.SeekEnd:
		next = int64(len(f.buf)) + offset
	default:
		return 0, errors.New("audiotest: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("audiotest: negative position")
	}
	f.pos = int(next)
	return next, nil
}
