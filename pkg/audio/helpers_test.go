package audio

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"speech-affect/pkg/audio/audiotest"
)

var (
	tone    = audiotest.Tone
	silence = audiotest.Silence
	concat  = audiotest.Concat
)

func encodeWAV(t *testing.T, rate int, channels ...[]float32) []byte {
	t.Helper()
	require.NotEmpty(t, channels)
	return audiotest.WAV(rate, channels...)
}

// fakeFFmpeg installs an executable shell script that stands in for ffmpeg.
// The script sees the same argv as ffmpeg: -y -i IN -ac 1 -ar RATE OUT.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nin=\"$3\"\nout=\"$8\"\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
