// Command compress shrinks a single local video file using the same
// pipeline as the worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hszk-dev/gocompress/internal/capability"
	"github.com/hszk-dev/gocompress/internal/config"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/infrastructure/localfs"
	"github.com/hszk-dev/gocompress/internal/planner"
	"github.com/hszk-dev/gocompress/internal/transcoder"
	"github.com/hszk-dev/gocompress/internal/usecase"
)

type options struct {
	input        string
	output       string
	tier         string
	codec        string
	width        int
	height       int
	bitrate      int
	audioBitrate int
	rotate       int
	aggressive   bool
	vbr          bool
	reduceFPS    int
	mono         bool
	removeAudio  bool
	noAutoOrient bool
	deleteSource bool
	estimateOnly bool
	verbose      bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	req, err := opts.compressRequest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ffmpegCfg := cfg.FFmpeg.Encoder()
	source, err := transcoder.NewFFprobeProber(ffmpegCfg).Probe(ctx, opts.input)
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", opts.input, err)
	}

	orchestratorCfg := cfg.Compression.Orchestrator()
	if opts.estimateOnly {
		return printEstimate(source, req, orchestratorCfg.Planner)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var assessor usecase.CapabilityAssessor
	if cfg.Capability.Enabled {
		assessor = capability.NewAnalyzer(
			cfg.Capability.Analyzer(),
			capability.NewHostInfo(),
			transcoder.NewFFmpegProbe(ffmpegCfg),
		)
	}

	orchestrator := usecase.NewOrchestrator(
		transcoder.NewFFmpegEncoder(ffmpegCfg),
		assessor,
		localfs.New(),
		nil,
		orchestratorCfg,
	)

	// Relay the signal to the orchestrator so the encoder is stopped and
	// the partial output removed.
	go func() {
		<-ctx.Done()
		orchestrator.Cancel()
	}()

	fmt.Fprintf(os.Stderr, "compressing %s (%s, %s) at %s\n",
		opts.input, source.Resolution(), source.Duration, req.Tier)

	result, err := orchestrator.Compress(context.Background(), source, req, usecase.Callbacks{
		OnProgress: func(p float64) {
			fmt.Fprintf(os.Stderr, "\rprogress: %5.1f%%", p*100)
		},
		OnStateChange: func(state model.State, attempt int) {
			slog.Debug("state changed", "state", state, "attempt", attempt)
		},
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if model.IsCancelled(err) {
			return errors.New("compression cancelled")
		}
		return fmt.Errorf("compression failed (%s): %s", model.KindOf(err), model.ReasonOf(err))
	}

	return printJSON(result)
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	fs.StringVar(&o.input, "input", "", "source video `path` (required)")
	fs.StringVar(&o.output, "output", "", "output `path` (default: <input>.compressed.mp4)")
	fs.StringVar(&o.tier, "tier", "MEDIUM", "quality tier: HIGH, MEDIUM, LOW, VERY_LOW, ULTRA_LOW")
	fs.StringVar(&o.codec, "codec", "H264", "video codec: H264 or HEVC")
	fs.IntVar(&o.width, "width", 0, "custom output width")
	fs.IntVar(&o.height, "height", 0, "custom output height")
	fs.IntVar(&o.bitrate, "bitrate", 0, "custom video bitrate in bits per second")
	fs.IntVar(&o.audioBitrate, "audio-bitrate", 0, "custom audio bitrate in bits per second")
	fs.IntVar(&o.rotate, "rotate", -1, "rotation override in degrees (multiple of 90)")
	fs.BoolVar(&o.aggressive, "aggressive", false, "trade encode speed for size")
	fs.BoolVar(&o.vbr, "vbr", false, "use variable bitrate")
	fs.IntVar(&o.reduceFPS, "reduce-fps", 0, "cap the frame rate at `fps`")
	fs.BoolVar(&o.mono, "mono", false, "downmix audio to mono")
	fs.BoolVar(&o.removeAudio, "remove-audio", false, "drop the audio track")
	fs.BoolVar(&o.noAutoOrient, "no-auto-orient", false, "keep the coded orientation")
	fs.BoolVar(&o.deleteSource, "delete-source", false, "remove the source after a successful compression")
	fs.BoolVar(&o.estimateOnly, "estimate", false, "print the size estimate and exit")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.input == "" {
		fs.Usage()
		return options{}, errors.New("-input is required")
	}
	if o.output == "" {
		o.output = strings.TrimSuffix(o.input, filepath.Ext(o.input)) + ".compressed.mp4"
	}
	return o, nil
}

func (o options) compressRequest() (usecase.CompressRequest, error) {
	tier, err := model.ParseQualityTier(o.tier)
	if err != nil {
		return usecase.CompressRequest{}, fmt.Errorf("invalid -tier %q: %w", o.tier, err)
	}
	codec, err := model.ParseCodec(o.codec)
	if err != nil {
		return usecase.CompressRequest{}, fmt.Errorf("invalid -codec %q: %w", o.codec, err)
	}

	modelOpts := model.Options{
		Aggressive:       o.aggressive,
		VariableBitrate:  o.vbr,
		ReduceFrameRate:  o.reduceFPS > 0,
		ReducedFrameRate: o.reduceFPS,
		MonoAudio:        o.mono,
		RemoveAudio:      o.removeAudio,
		AutoOrient:       !o.noAutoOrient,
	}
	if o.rotate >= 0 {
		rotation := o.rotate
		modelOpts.RotationOverride = &rotation
	}

	return usecase.CompressRequest{
		Tier:               tier,
		Codec:              codec,
		CustomWidth:        o.width,
		CustomHeight:       o.height,
		CustomBitrate:      o.bitrate,
		CustomAudioBitrate: o.audioBitrate,
		Options:            modelOpts,
		OutputPath:         o.output,
		DeleteSource:       o.deleteSource,
	}, nil
}

func printEstimate(source model.SourceVideo, req usecase.CompressRequest, cfg planner.Config) error {
	estimate, err := planner.EstimateSize(model.PlanRequest{
		Source:             source,
		Tier:               req.Tier,
		CustomWidth:        req.CustomWidth,
		CustomHeight:       req.CustomHeight,
		CustomBitrate:      req.CustomBitrate,
		CustomAudioBitrate: req.CustomAudioBitrate,
		Codec:              req.Codec,
		Options:            req.Options,
	}, cfg)
	if err != nil {
		return fmt.Errorf("failed to estimate: %w", err)
	}
	return printJSON(estimate)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
