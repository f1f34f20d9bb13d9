package media

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Format is a conversion target understood by Converter.
type Format string

const (
	// FormatWAV is 16 kHz mono PCM, the input whisper.cpp and LINEAR16 expect.
	FormatWAV Format = "wav"
	// FormatMP3 is a small mono MP3 for upload-size limited providers.
	FormatMP3 Format = "mp3"
)

// ConvertError describes a failed conversion. Missing is set when the
// conversion tool itself is not installed.
type ConvertError struct {
	Missing bool
	Stderr  string
	Err     error
}

func (e *ConvertError) Error() string {
	if e.Missing {
		return fmt.Sprintf("conversion tool not available: %v", e.Err)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("conversion failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("conversion failed: %v", e.Err)
}

func (e *ConvertError) Unwrap() error { return e.Err }

// Converter turns an input file into a temporary file of the target format.
// The caller owns the returned path and must remove it.
type Converter interface {
	Convert(ctx context.Context, inputPath string, format Format) (string, error)
}

// FFmpeg implements Converter with the ffmpeg binary.
type FFmpeg struct {
	bin        string
	runner     Runner
	createTemp func(dir, pattern string) (*os.File, error)
	remove     func(name string) error
}

func NewFFmpeg(bin string, runner Runner) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{
		bin:        bin,
		runner:     runner,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

func (f *FFmpeg) Convert(ctx context.Context, inputPath string, format Format) (string, error) {
	tmp, err := f.createTemp("", "scribeflow-*."+string(format))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	outPath := tmp.Name()
	_ = tmp.Close()

	args, err := buildFFmpegArgs(inputPath, outPath, format)
	if err != nil {
		_ = f.remove(outPath)
		return "", err
	}

	res, runErr := f.runner.Run(ctx, f.bin, args...)
	if runErr != nil {
		_ = f.remove(outPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &ConvertError{
			Missing: IsMissingBinary(runErr),
			Stderr:  lastLine(res.Stderr),
			Err:     runErr,
		}
	}

	return outPath, nil
}

func buildFFmpegArgs(inputPath, outPath string, format Format) ([]string, error) {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
	}

	switch format {
	case FormatWAV:
		args = append(args, "-c:a", "pcm_s16le")
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", "64k")
	default:
		return nil, fmt.Errorf("unsupported conversion format %q", format)
	}

	return append(args, outPath), nil
}

// lastLine keeps the ffmpeg diagnostic short; the interesting part is at the end.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
