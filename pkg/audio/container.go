package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"speech-affect/pkg/models"
)

type container int

const (
	containerUnknown container = iota
	containerWAV
	containerFLAC
	containerVorbis
	containerMP3
)

func (c container) String() string {
	switch c {
	case containerWAV:
		return "wav"
	case containerFLAC:
		return "flac"
	case containerVorbis:
		return "vorbis"
	case containerMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// lenientScanWindow bounds how far into the input the lenient tier looks for
// a container signature.
const lenientScanWindow = 4096

var errUnknownContainer = errors.New("unrecognized container signature")

// sniff identifies a self-describing container at the start of b.
func sniff(b []byte) container {
	switch {
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return containerWAV
	case bytes.HasPrefix(b, []byte("fLaC")):
		return containerFLAC
	case bytes.HasPrefix(b, []byte("OggS")):
		return containerVorbis
	default:
		return containerUnknown
	}
}

func isMPEGFrameSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// ContainerStrategy decodes WAV, FLAC and Ogg Vorbis identified by their
// leading signature. Stereo input is averaged down to mono.
type ContainerStrategy struct{}

func (ContainerStrategy) Name() string { return "container" }

func (ContainerStrategy) Decode(_ context.Context, raw []byte) (*models.Waveform, error) {
	return decodeContainer(raw)
}

func decodeContainer(raw []byte) (*models.Waveform, error) {
	c := sniff(raw)
	if c == containerUnknown {
		return nil, errUnknownContainer
	}
	return decodeAs(c, raw)
}

// LenientStrategy infers the format heuristically: it accepts container or
// ID3 signatures anywhere in the first few KiB, and bare MPEG audio frames.
type LenientStrategy struct{}

func (LenientStrategy) Name() string { return "lenient" }

func (LenientStrategy) Decode(_ context.Context, raw []byte) (*models.Waveform, error) {
	candidates := lenientCandidates(raw)
	if len(candidates) == 0 {
		return nil, errors.New("no audio signature found")
	}

	var errs []error
	for _, cand := range candidates {
		w, err := decodeAs(cand.kind, raw[cand.offset:])
		if err == nil {
			return w, nil
		}
		errs = append(errs, fmt.Errorf("%s at offset %d: %w", cand.kind, cand.offset, err))
	}
	return nil, errors.Join(errs...)
}

type candidate struct {
	offset int
	kind   container
}

func lenientCandidates(raw []byte) []candidate {
	window := raw
	if len(window) > lenientScanWindow {
		window = window[:lenientScanWindow]
	}

	var out []candidate
	if isMPEGFrameSync(raw) {
		out = append(out, candidate{offset: 0, kind: containerMP3})
	}

	signatures := []struct {
		magic []byte
		kind  container
	}{
		{[]byte("RIFF"), containerWAV},
		{[]byte("fLaC"), containerFLAC},
		{[]byte("OggS"), containerVorbis},
		{[]byte("ID3"), containerMP3},
	}
	for _, sig := range signatures {
		for from := 0; from < len(window); {
			i := bytes.Index(window[from:], sig.magic)
			if i < 0 {
				break
			}
			off := from + i
			if sig.kind != containerWAV || sniff(raw[off:]) == containerWAV {
				out = append(out, candidate{offset: off, kind: sig.kind})
			}
			from = off + 1
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}

const (
	// maxSampleRate rejects headers claiming rates no recorder produces.
	maxSampleRate = 384000
	// maxDecodedFrames caps decoded length, 20 minutes at 48 kHz, so a small
	// compressed upload cannot expand without bound.
	maxDecodedFrames = 20 * 60 * 48000
)

var errDecodedTooLong = errors.New("decoded audio exceeds the length limit")

func decodeAs(c container, raw []byte) (w *models.Waveform, err error) {
	// The third-party decoders are not hardened against hostile input.
	defer func() {
		if r := recover(); r != nil {
			w, err = nil, fmt.Errorf("%s decoder panic: %v", c, r)
		}
	}()

	if err := preflight(c, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}

	r := bytes.NewReader(raw)
	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch c {
	case containerWAV:
		s, format, err = wav.Decode(r)
	case containerFLAC:
		// Without a seeker the flac reader skips metadata block bodies
		// instead of parsing them.
		s, format, err = flac.Decode(struct{ io.Reader }{r})
	case containerVorbis:
		s, format, err = vorbis.Decode(io.NopCloser(r))
	case containerMP3:
		s, format, err = mp3.Decode(io.NopCloser(r))
	default:
		return nil, errUnknownContainer
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	defer s.Close()

	if format.SampleRate <= 0 || format.SampleRate > maxSampleRate {
		return nil, fmt.Errorf("%s: invalid sample rate %d", c, format.SampleRate)
	}

	gain := 1.0
	if c == containerWAV {
		gain = wavPCMGain(raw, format.Precision)
	}
	return drain(s, format, frameBound(len(raw), format), maxDecodedFrames, gain)
}

var errHeaderSize = errors.New("header claims more data than the input holds")

// preflight rejects header length fields the decoders would allocate
// before reading any data.
func preflight(c container, raw []byte) error {
	switch c {
	case containerWAV:
		return checkWAVChunks(raw)
	case containerMP3:
		return checkID3(raw)
	case containerVorbis:
		return checkVorbisComments(raw)
	}
	return nil
}

// checkWAVChunks walks the chunks ahead of the data chunk.
func checkWAVChunks(raw []byte) error {
	for off := 12; off+8 <= len(raw); {
		if bytes.Equal(raw[off:off+4], []byte("data")) {
			return nil
		}
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		if size > len(raw)-off-8 {
			return fmt.Errorf("%q chunk: %w", raw[off:off+4], errHeaderSize)
		}
		off += 8 + size + size&1
	}
	return nil
}

// checkID3 bounds a leading ID3v2 tag. The size is read the way go-mp3 reads
// it, without masking the synchsafe bytes.
func checkID3(raw []byte) error {
	if len(raw) < 10 || !bytes.HasPrefix(raw, []byte("ID3")) {
		return nil
	}
	size := uint64(raw[6])<<21 | uint64(raw[7])<<14 | uint64(raw[8])<<7 | uint64(raw[9])
	if size > uint64(len(raw)-10) {
		return fmt.Errorf("id3 tag: %w", errHeaderSize)
	}
	return nil
}

// checkVorbisComments bounds the comment header, whose vendor length and
// comment count size allocations directly.
func checkVorbisComments(raw []byte) error {
	i := bytes.Index(raw, []byte("\x03vorbis"))
	if i < 0 {
		return nil
	}
	h := raw[i+7:]
	if len(h) < 4 {
		return nil
	}
	vendor := uint64(binary.LittleEndian.Uint32(h))
	if vendor+4 > uint64(len(h)) {
		return fmt.Errorf("vorbis vendor: %w", errHeaderSize)
	}
	h = h[4+vendor:]
	if len(h) < 4 {
		return nil
	}
	// Every comment carries at least its 4-byte length.
	if n := uint64(binary.LittleEndian.Uint32(h)); n > uint64(len(h)-4)/4 {
		return fmt.Errorf("vorbis comments: %w", errHeaderSize)
	}
	return nil
}

// wavPCMGain undoes the scaling of beep's wav decoder, which divides 16-bit
// PCM by 2^16-1 instead of 2^15 and so peaks at 0.5. Other depths and IEEE
// float data are left as decoded.
func wavPCMGain(raw []byte, precision int) float64 {
	if precision != 2 || wavFormatTag(raw) == wavFormatFloat {
		return 1
	}
	return float64(1<<16-1) / float64(1<<15)
}

const wavFormatFloat = 3

// wavFormatTag returns the audio format field of the fmt chunk, or 0 when it
// cannot be found.
func wavFormatTag(raw []byte) uint16 {
	for off := 12; off+8 <= len(raw); {
		id := raw[off : off+4]
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		if bytes.Equal(id, []byte("fmt ")) {
			if off+10 > len(raw) {
				return 0
			}
			return binary.LittleEndian.Uint16(raw[off+8 : off+10])
		}
		if size < 0 || size > len(raw) {
			return 0
		}
		off += 8 + size + size&1
	}
	return 0
}

// frameBound is the most frames the input could hold as uncompressed PCM. It
// only sizes the first allocation, never the header's claimed length.
func frameBound(n int, format beep.Format) int {
	bytesPerFrame := format.NumChannels * format.Precision
	if bytesPerFrame <= 0 {
		return 0
	}
	return n / bytesPerFrame
}

// drain reads s to the end, collapsing each frame to mono and applying gain.
// It fails once more than limit frames have been produced.
func drain(s beep.Streamer, format beep.Format, sizeHint, limit int, gain float64) (*models.Waveform, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", format.SampleRate)
	}

	capacity := sizeHint
	if l, ok := s.(beep.StreamSeeker); ok && l.Len() >= 0 && l.Len() < capacity {
		capacity = l.Len()
	}
	if capacity > limit {
		capacity = limit
	}
	samples := make([]float32, 0, capacity)

	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		if len(samples)+n > limit {
			return nil, errDecodedTooLong
		}
		for _, frame := range buf[:n] {
			v := frame[0]
			if format.NumChannels != 1 {
				v = (frame[0] + frame[1]) / 2
			}
			v *= gain
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			samples = append(samples, float32(v))
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	return &models.Waveform{Samples: samples, SampleRate: int(format.SampleRate)}, nil
}
