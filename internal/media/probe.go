package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNoAudioStream = errors.New("no audio stream found")
	ErrNoDuration    = errors.New("media duration could not be determined")
)

// AudioInfo is the probed metadata of one input file. It is computed once per
// job and is read-only for every adapter.
type AudioInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	FormatName      string  `json:"format_name"`
	SizeBytes       int64   `json:"size_bytes"`
	Bitrate         int     `json:"bitrate"`
	ChannelCount    int     `json:"channel_count"`
	SampleRate      int     `json:"sample_rate"`
}

// Prober extracts AudioInfo from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (AudioInfo, error)
}

// FFProbe implements Prober on top of the ffprobe binary.
type FFProbe struct {
	bin    string
	runner Runner
}

func NewFFProbe(bin string, runner Runner) *FFProbe {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFProbe{bin: bin, runner: runner}
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	Channels   int    `json:"channels"`
	SampleRate string `json:"sample_rate"`
	BitRate    string `json:"bit_rate"`
	Duration   string `json:"duration"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

func (p *FFProbe) Probe(ctx context.Context, path string) (AudioInfo, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	}

	res, err := p.runner.Run(ctx, p.bin, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AudioInfo{}, ctxErr
		}
		return AudioInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(res.Stderr))
	}

	return parseProbeOutput([]byte(res.Stdout))
}

func parseProbeOutput(data []byte) (AudioInfo, error) {
	var ff ffprobeOutput
	if err := json.Unmarshal(data, &ff); err != nil {
		return AudioInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}

	var audio *ffprobeStream
	for i := range ff.Streams {
		if ff.Streams[i].CodecType == "audio" {
			audio = &ff.Streams[i]
			break
		}
	}
	if audio == nil {
		return AudioInfo{}, ErrNoAudioStream
	}

	info := AudioInfo{
		DurationSeconds: parseFloat(ff.Format.Duration),
		FormatName:      ff.Format.FormatName,
		SizeBytes:       int64(parseFloat(ff.Format.Size)),
		Bitrate:         parseInt(ff.Format.BitRate),
		ChannelCount:    audio.Channels,
		SampleRate:      parseInt(audio.SampleRate),
	}
	if info.DurationSeconds <= 0 {
		info.DurationSeconds = parseFloat(audio.Duration)
	}
	if info.Bitrate == 0 {
		info.Bitrate = parseInt(audio.BitRate)
	}
	if info.DurationSeconds <= 0 {
		return AudioInfo{}, ErrNoDuration
	}

	return info, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}
