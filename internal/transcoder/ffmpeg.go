package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// FFmpegConfig holds configuration for the FFmpeg encoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FFprobePath is the path to the ffprobe binary.
	// Default: ffprobe
	FFprobePath string

	// H264Encoder and HEVCEncoder name the ffmpeg encoders per codec.
	// Default: libx264, libx265
	H264Encoder string
	HEVCEncoder string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Options: ultrafast, superfast, veryfast, faster, fast, medium, slow, slower, veryslow
	// Default: fast
	VideoPreset string

	// AggressivePreset replaces VideoPreset for aggressive plans.
	// Default: slow
	AggressivePreset string

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// ProbeTimeout bounds capability probes.
	// Default: 15s
	ProbeTimeout time.Duration
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		H264Encoder:      "libx264",
		HEVCEncoder:      "libx265",
		VideoPreset:      "fast",
		AggressivePreset: "slow",
		AudioCodec:       "aac",
		ProbeTimeout:     15 * time.Second,
	}
}

// FFmpegEncoder implements Encoder using the FFmpeg CLI.
type FFmpegEncoder struct {
	config FFmpegConfig
}

// Compile-time verification that FFmpegEncoder implements Encoder.
var _ Encoder = (*FFmpegEncoder)(nil)

// NewFFmpegEncoder creates a new FFmpeg-based encoder.
func NewFFmpegEncoder(cfg FFmpegConfig) *FFmpegEncoder {
	return &FFmpegEncoder{
		config: cfg,
	}
}

// Submit starts ffmpeg as a subprocess. Progress is read from ffmpeg's
// -progress output; stderr is captured for failure classification.
func (e *FFmpegEncoder) Submit(ctx context.Context, attempt model.Attempt, source model.SourceVideo, outputPath string) (Handle, error) {
	if err := e.validateInput(source.Path); err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	if err := e.validateOutputDir(filepath.Dir(outputPath)); err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}

	ctx, cancel := context.WithCancel(ctx)
	args := e.buildArgs(attempt.Plan, source.Path, outputPath)

	cmd := exec.CommandContext(ctx, e.config.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 64 << 10}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("ffmpeg binary %q not found", e.config.FFmpegPath)}
		}
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	h := &ffmpegHandle{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go h.run(ctx, cmd, stdout, stderr, source.Duration)
	return h, nil
}

// validateInput checks if the input file exists and is readable.
func (e *FFmpegEncoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func (e *FFmpegEncoder) validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", outputDir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

// buildArgs constructs the FFmpeg command arguments for a plan.
// Auto-rotation is disabled because the filter chain applies the planned
// rotation explicitly.
func (e *FFmpegEncoder) buildArgs(plan model.CompressionPlan, inputPath, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y", // Overwrite output files without asking
		"-noautorotate",
		"-i", inputPath,
		"-vf", buildFilter(plan),
		"-c:v", e.videoEncoder(plan.Codec),
		"-preset", e.preset(plan),
	}
	args = append(args, rateControlArgs(plan)...)
	args = append(args, "-pix_fmt", "yuv420p")
	if plan.Codec == model.CodecHEVC {
		args = append(args, "-tag:v", "hvc1")
	}
	if plan.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(plan.FrameRate))
	}

	if plan.RemoveAudio {
		args = append(args, "-an")
	} else {
		args = append(args,
			"-c:a", e.config.AudioCodec,
			"-b:a", strconv.Itoa(plan.AudioBitrate),
			"-ac", strconv.Itoa(max(plan.AudioChannels, 1)),
		)
	}

	return append(args,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	)
}

func (e *FFmpegEncoder) videoEncoder(codec model.Codec) string {
	if codec == model.CodecHEVC {
		return e.config.HEVCEncoder
	}
	return e.config.H264Encoder
}

func (e *FFmpegEncoder) preset(plan model.CompressionPlan) string {
	if plan.Aggressive && e.config.AggressivePreset != "" {
		return e.config.AggressivePreset
	}
	return e.config.VideoPreset
}

// rateControlArgs returns constant bitrate settings, or a capped variable
// bitrate when the plan asks for it.
func rateControlArgs(plan model.CompressionPlan) []string {
	b := plan.VideoBitrate
	if plan.VariableBitrate {
		return []string{
			"-b:v", strconv.Itoa(b),
			"-maxrate", strconv.Itoa(b * 3 / 2),
			"-bufsize", strconv.Itoa(b * 2),
		}
	}
	return []string{
		"-b:v", strconv.Itoa(b),
		"-minrate", strconv.Itoa(b),
		"-maxrate", strconv.Itoa(b),
		"-bufsize", strconv.Itoa(b * 2),
	}
}

// buildFilter renders the plan transform as an ffmpeg filter chain:
// rotation, scale to the content size, then crop or pad to the aligned
// render size with the content centered.
func buildFilter(plan model.CompressionPlan) string {
	var filters []string
	switch plan.Transform.RotationDegrees {
	case 90:
		filters = append(filters, "transpose=clock")
	case 180:
		filters = append(filters, "hflip", "vflip")
	case 270:
		filters = append(filters, "transpose=cclock")
	}

	cw, ch := plan.Transform.ContentWidth, plan.Transform.ContentHeight
	if cw <= 0 || ch <= 0 {
		cw, ch = plan.Width, plan.Height
	}
	filters = append(filters, fmt.Sprintf("scale=%d:%d", cw, ch))

	if cw > plan.Width || ch > plan.Height {
		filters = append(filters, fmt.Sprintf("crop=%d:%d", min(cw, plan.Width), min(ch, plan.Height)))
	}
	if cw < plan.Width || ch < plan.Height {
		filters = append(filters, fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", plan.Width, plan.Height))
	}
	return strings.Join(append(filters, "setsar=1"), ",")
}

type ffmpegHandle struct {
	events chan Event
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
}

func (h *ffmpegHandle) Events() <-chan Event {
	return h.events
}

func (h *ffmpegHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

func (h *ffmpegHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *ffmpegHandle) run(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, duration time.Duration) {
	defer close(h.events)
	defer h.cancel()

	parseProgress(stdout, duration, func(p float64) {
		select {
		case h.events <- Event{Type: EventProgress, Progress: p}:
		default:
		}
	})

	err := cmd.Wait()
	switch {
	case err == nil:
		h.events <- Event{Type: EventCompleted, Progress: 1}
	case h.isCancelled() || ctx.Err() != nil:
		h.events <- Event{Type: EventFailed, Err: &Error{Code: CodeCancelled, Message: "encode cancelled"}}
	default:
		out := stderr.String()
		msg := lastLine(out)
		if msg == "" {
			msg = err.Error()
		}
		h.events <- Event{Type: EventFailed, Err: &Error{Code: Classify(out), Message: msg}}
	}
}

// parseProgress reads ffmpeg -progress key=value output and reports the
// fraction of the source duration encoded so far.
func parseProgress(r io.Reader, duration time.Duration, report func(float64)) {
	scanner := bufio.NewScanner(r)
	var last float64
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || duration <= 0 {
			continue
		}
		// out_time_ms is reported in microseconds, like out_time_us.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us <= 0 {
			continue
		}
		p := min(float64(us)/float64(duration.Microseconds()), 1)
		if p > last {
			last = p
			report(p)
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
