// Package planner turns a compression request into concrete target
// dimensions and bitrates. Every function in this package is pure.
package planner

import "github.com/hszk-dev/gocompress/internal/domain/model"

// Config holds the tunable constants of the planner.
type Config struct {
	// RatioEpsilon is the maximum aspect-ratio difference for a custom size
	// to be used as given.
	RatioEpsilon float64

	// TierBitrates maps each tier to its base video bitrate in bits per second.
	TierBitrates map[model.QualityTier]int

	// DownscaleOvershoot multiplies the pixel-ratio bitrate scaling to
	// protect perceived quality at reduced resolution.
	DownscaleOvershoot float64

	AggressiveFactor float64
	VBRFactor        float64

	// DefaultFrameRate is the reference rate for frame-rate reduction.
	DefaultFrameRate int
	// ReducedFrameRate is used when frame-rate reduction is requested
	// without an explicit target.
	ReducedFrameRate int

	// MinVideoBitrate is the absolute bitrate floor.
	MinVideoBitrate int

	StandardAudioBitrate int
	LowAudioBitrate      int

	// ContainerOverhead inflates size estimates for muxing overhead.
	ContainerOverhead float64

	// LargeFramePixels marks 4K-class frames for pre-emptive downgrade.
	LargeFramePixels int
}

// DefaultConfig returns the planner defaults.
func DefaultConfig() Config {
	return Config{
		RatioEpsilon: 1e-2,
		TierBitrates: map[model.QualityTier]int{
			model.TierHigh:     6_000_000,
			model.TierMedium:   3_000_000,
			model.TierLow:      1_500_000,
			model.TierVeryLow:  800_000,
			model.TierUltraLow: 400_000,
		},
		DownscaleOvershoot:   1.2,
		AggressiveFactor:     0.7,
		VBRFactor:            0.85,
		DefaultFrameRate:     30,
		ReducedFrameRate:     24,
		MinVideoBitrate:      100_000,
		StandardAudioBitrate: 128_000,
		LowAudioBitrate:      64_000,
		ContainerOverhead:    1.05,
		LargeFramePixels:     3840 * 2160 * 3 / 4,
	}
}

// IsLargeFrame reports whether a w×h frame is 4K-class.
func (c Config) IsLargeFrame(w, h int) bool {
	return w*h >= c.LargeFramePixels
}
