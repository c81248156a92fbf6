package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// FFprobeProber implements Prober using the ffprobe CLI.
type FFprobeProber struct {
	config FFmpegConfig
}

// Compile-time verification that FFprobeProber implements Prober.
var _ Prober = (*FFprobeProber)(nil)

// NewFFprobeProber creates a new ffprobe-based prober.
func NewFFprobeProber(cfg FFmpegConfig) *FFprobeProber {
	return &FFprobeProber{config: cfg}
}

// Probe runs a single ffprobe JSON call against path.
func (p *FFprobeProber) Probe(ctx context.Context, path string) (model.SourceVideo, error) {
	cmd := exec.CommandContext(ctx, p.config.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return model.SourceVideo{}, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	source, err := ParseProbeJSON(out)
	if err != nil {
		return model.SourceVideo{}, err
	}
	source.Path = path
	if source.SizeBytes <= 0 {
		if info, err := os.Stat(path); err == nil {
			source.SizeBytes = info.Size()
		}
	}
	return source, nil
}

// ParseProbeJSON converts raw ffprobe JSON output into a SourceVideo.
// Exported for testing without a real ffprobe binary.
func ParseProbeJSON(data []byte) (model.SourceVideo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.SourceVideo{}, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	var source model.SourceVideo
	var video *ffprobeStream
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil && s.Disposition["attached_pic"] != 1 {
				video = s
			}
		case "audio":
			source.HasAudio = true
		}
	}
	if video == nil {
		return model.SourceVideo{}, model.ValidationError("source has no video stream")
	}

	source.Width = video.Width
	source.Height = video.Height
	source.VideoCodec = video.CodecName
	source.FrameRate = parseRate(video.AvgFrameRate)
	source.SizeBytes = parseInt64(raw.Format.Size)

	seconds := parseFloat(raw.Format.Duration)
	if seconds <= 0 {
		seconds = parseFloat(video.Duration)
	}
	source.Duration = time.Duration(seconds * float64(time.Second))

	if rotation, ok := displayMatrixRotation(video); ok {
		source.Rotation = rotation
		m := model.PreferredTransform(rotation, video.Width, video.Height)
		source.PreferredTransform = &m
	} else if tag, ok := video.Tags["rotate"]; ok {
		source.Rotation = model.NormalizeRotation(parseInt(tag))
	}

	return source, nil
}

// displayMatrixRotation returns the clockwise display rotation from the
// stream's display matrix side data. ffprobe reports the matrix angle
// counter-clockwise.
func displayMatrixRotation(s *ffprobeStream) (int, bool) {
	for _, sd := range s.SideDataList {
		if sd.SideDataType != "Display Matrix" {
			continue
		}
		deg := int(math.Round(sd.Rotation/90)) * 90
		return model.NormalizeRotation(-deg), true
	}
	return 0, false
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Duration     string            `json:"duration"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
	SideDataList []ffprobeSideData `json:"side_data_list"`
}

type ffprobeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}

// FFmpegProbe answers capability probes by encoding a single synthetic
// frame at the target size into the null muxer.
type FFmpegProbe struct {
	config FFmpegConfig
}

// NewFFmpegProbe creates a new capability probe.
func NewFFmpegProbe(cfg FFmpegConfig) *FFmpegProbe {
	return &FFmpegProbe{config: cfg}
}

// SupportsResolution reports whether the encoder for codec can open a
// session at width×height. A non-zero ffmpeg exit means unsupported; an
// error is returned only when ffmpeg could not be run at all.
func (p *FFmpegProbe) SupportsResolution(ctx context.Context, width, height int, codec model.Codec) (bool, error) {
	if p.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ProbeTimeout)
		defer cancel()
	}

	encoder := NewFFmpegEncoder(p.config).videoEncoder(codec)
	cmd := exec.CommandContext(ctx, p.config.FFmpegPath, probeArgs(width, height, encoder)...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return false, nil
		}
		return false, fmt.Errorf("run capability probe: %w", err)
	}
	return true, nil
}

func probeArgs(width, height int, encoder string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-v", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:d=0.1", width, height),
		"-frames:v", "1",
		"-c:v", encoder,
		"-f", "null",
		"-",
	}
}
