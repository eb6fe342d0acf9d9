package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"speech-affect/pkg/models"
)

// TranscodeStrategy shells out to ffmpeg for containers the in-process
// decoders cannot read (webm, m4a, ...). Every invocation uses its own temp
// files and removes them before returning.
type TranscodeStrategy struct {
	Binary     string
	SampleRate int
	Timeout    time.Duration
	// TempDir is passed to os.CreateTemp; empty means the system default.
	TempDir string
	Log     *zap.Logger
}

func (t *TranscodeStrategy) Name() string { return "transcode" }

func (t *TranscodeStrategy) Decode(ctx context.Context, raw []byte) (*models.Waveform, error) {
	in, err := os.CreateTemp(t.TempDir, "affect-*.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	inPath := in.Name()
	outPath := inPath + ".wav"
	defer t.cleanup(inPath, outPath)

	if _, err := in.Write(raw); err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := t.run(ctx, inPath, outPath); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcoded audio: %w", err)
	}
	w, err := decodeContainer(out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transcoded audio: %w", err)
	}
	return w, nil
}

func (t *TranscodeStrategy) run(ctx context.Context, inPath, outPath string) error {
	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	// Stdout and Stderr stay nil so the child's output goes to the null device.
	cmd := exec.CommandContext(runCtx, t.binary(),
		"-y",
		"-i", inPath,
		"-ac", "1",
		"-ar", strconv.Itoa(t.SampleRate),
		outPath,
	)

	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() != nil:
			return fmt.Errorf("transcode cancelled: %w", ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return fmt.Errorf("transcode timed out after %s", t.Timeout)
		default:
			return fmt.Errorf("transcode failed: %w", err)
		}
	}
	return nil
}

func (t *TranscodeStrategy) binary() string {
	if t.Binary == "" {
		return "ffmpeg"
	}
	return t.Binary
}

// cleanup never fails the request; a leftover file is only worth a warning.
func (t *TranscodeStrategy) cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if t.Log != nil {
				t.Log.Warn("failed to remove temp file", zap.String("path", p), zap.Error(err))
			}
		}
	}
}

// CheckFFmpeg reports whether the transcode binary can be found on PATH.
func CheckFFmpeg(binary string) error {
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s not found in PATH: the transcode fallback tier will fail: %w", binary, err)
	}
	return nil
}
