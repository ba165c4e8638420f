package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter turns a compressed container into a waveform file. The returned
// cleanup removes the waveform and is safe to call more than once.
type Converter interface {
	ToWav(ctx context.Context, srcPath string) (wavPath string, cleanup func(), err error)
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stderr.String()), err
}

// FFmpegConverter decodes the whole source file and re-encodes it as
// 16 kHz mono PCM WAV next to the source.
type FFmpegConverter struct {
	path   string
	runner commandRunner
}

// NewFFmpegConverter returns a converter that runs the ffmpeg binary at path
// ("ffmpeg" when empty).
func NewFFmpegConverter(path string) *FFmpegConverter {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegConverter{path: path, runner: execRunner{}}
}

// ToWav writes a hidden sibling ".<base>-*.wav" so an existing wav of the same
// name is never clobbered and directory watchers can skip it.
func (c *FFmpegConverter) ToWav(ctx context.Context, srcPath string) (string, func(), error) {
	noop := func() {}

	dir := filepath.Dir(srcPath)
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	tmp, err := os.CreateTemp(dir, "."+base+"-*"+extWav)
	if err != nil {
		return "", noop, &ConversionError{Path: srcPath, Err: fmt.Errorf("create output: %w", err)}
	}
	outPath := tmp.Name()
	tmp.Close()

	var once bool
	cleanup := func() {
		if once {
			return
		}
		once = true
		os.Remove(outPath)
	}

	stderr, err := c.runner.Run(ctx, c.path, ffmpegArgs(srcPath, outPath)...)
	if err != nil {
		cleanup()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("ffmpeg exited with code %d", exitErr.ExitCode())
		}
		return "", noop, &ConversionError{Path: srcPath, Stderr: stderr, Err: err}
	}
	return outPath, cleanup, nil
}

func ffmpegArgs(inPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outPath,
	}
}
