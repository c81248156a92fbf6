package config

import (
	"github.com/hszk-dev/gocompress/internal/capability"
	"github.com/hszk-dev/gocompress/internal/transcoder"
	"github.com/hszk-dev/gocompress/internal/usecase"
)

// Orchestrator returns the orchestrator configuration, starting from the
// package defaults and applying the configured overrides.
func (c CompressionConfig) Orchestrator() usecase.OrchestratorConfig {
	cfg := usecase.DefaultOrchestratorConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.FallbackRatio = c.FallbackRatio
	cfg.DiskHeadroom = c.DiskHeadroom
	cfg.Alignment = c.Alignment

	if c.GraceDelay > 0 {
		cfg.Progress.GraceDelay = c.GraceDelay
	}
	if c.PollInterval > 0 {
		cfg.Progress.PollInterval = c.PollInterval
	}
	if c.MinVideoBitrate > 0 {
		cfg.Planner.MinVideoBitrate = c.MinVideoBitrate
	}
	if c.LargeFramePixels > 0 {
		cfg.Planner.LargeFramePixels = c.LargeFramePixels
	}
	return cfg
}

// Analyzer returns the capability thresholds.
func (c CapabilityConfig) Analyzer() capability.Config {
	cfg := capability.DefaultConfig()
	cfg.MinCores = c.MinCores
	cfg.MinTotalMemory = c.MinTotalMemoryMiB * capability.MiB
	cfg.MinAvailableMemory = c.MinAvailMemoryMiB * capability.MiB
	cfg.MinClockMHz = c.MinClockMHz
	if c.BenchmarkIterations > 0 {
		cfg.BenchmarkIterations = c.BenchmarkIterations
	}
	cfg.MinBenchmarkScore = c.MinBenchmarkScore
	return cfg
}

// Encoder returns the FFmpeg encoder configuration.
func (c FFmpegConfig) Encoder() transcoder.FFmpegConfig {
	cfg := transcoder.DefaultFFmpegConfig()
	if c.FFmpegPath != "" {
		cfg.FFmpegPath = c.FFmpegPath
	}
	if c.FFprobePath != "" {
		cfg.FFprobePath = c.FFprobePath
	}
	if c.H264Encoder != "" {
		cfg.H264Encoder = c.H264Encoder
	}
	if c.HEVCEncoder != "" {
		cfg.HEVCEncoder = c.HEVCEncoder
	}
	if c.Preset != "" {
		cfg.VideoPreset = c.Preset
	}
	return cfg
}
