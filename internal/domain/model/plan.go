package model

import (
	"fmt"
	"time"
)

// Options are the optimisation flags of a compression request.
type Options struct {
	Aggressive       bool `json:"aggressive"`
	VariableBitrate  bool `json:"variable_bitrate"`
	ReduceFrameRate  bool `json:"reduce_frame_rate"`
	ReducedFrameRate int  `json:"reduced_frame_rate,omitempty"`
	MonoAudio        bool `json:"mono_audio"`
	RemoveAudio      bool `json:"remove_audio"`
	RotationOverride *int `json:"rotation_override,omitempty"`
	AutoOrient       bool `json:"auto_orient"`
}

// DefaultOptions returns options with auto-orientation enabled.
func DefaultOptions() Options {
	return Options{AutoOrient: true}
}

// PlanRequest is the validated input to the planner.
type PlanRequest struct {
	Source             SourceVideo
	Tier               QualityTier
	CustomWidth        int
	CustomHeight       int
	CustomBitrate      int
	CustomAudioBitrate int
	Codec              Codec
	Options            Options
}

// Validate rejects malformed requests before planning.
func (r PlanRequest) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if !r.Tier.IsValid() {
		return NewError(KindValidation, fmt.Sprintf("invalid tier %q", r.Tier), ErrUnknownQualityTier)
	}
	if r.Codec != "" && !r.Codec.IsValid() {
		return NewError(KindValidation, fmt.Sprintf("invalid codec %q", r.Codec), ErrUnknownCodec)
	}
	if r.CustomWidth < 0 || r.CustomHeight < 0 {
		return ValidationError(fmt.Sprintf("custom dimensions must be positive, got %dx%d", r.CustomWidth, r.CustomHeight))
	}
	if r.CustomBitrate < 0 || r.CustomAudioBitrate < 0 {
		return ValidationError("custom bitrate must be positive")
	}
	if r.Options.ReducedFrameRate < 0 {
		return ValidationError(fmt.Sprintf("reduced frame rate must be positive, got %d", r.Options.ReducedFrameRate))
	}
	if r.Options.RotationOverride != nil && NormalizeRotation(*r.Options.RotationOverride)%90 != 0 {
		return ValidationError(fmt.Sprintf("rotation override must be a multiple of 90, got %d", *r.Options.RotationOverride))
	}
	return nil
}

// Transform is the geometric transform applied while rendering the output.
type Transform struct {
	RotationDegrees int
	Scale           float64
	TranslateX      float64
	TranslateY      float64
	Matrix          Affine
	// ContentWidth and ContentHeight are the scaled content size before padding.
	ContentWidth  int
	ContentHeight int
	// AlignAdjustX and AlignAdjustY record the pixels removed by block alignment.
	AlignAdjustX int
	AlignAdjustY int
}

// CompressionPlan is the fully resolved set of encode parameters for one attempt.
type CompressionPlan struct {
	Tier            QualityTier
	Width           int
	Height          int
	VideoBitrate    int
	AudioBitrate    int
	AudioChannels   int
	RemoveAudio     bool
	Codec           Codec
	Transform       Transform
	FrameRate       int
	VariableBitrate bool
	Aggressive      bool
}

// Resolution formats the plan dimensions as WxH.
func (p CompressionPlan) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// CapabilityDetails carries the facts gathered by a successful assessment.
type CapabilityDetails struct {
	TotalMemory     uint64  `json:"total_memory"`
	AvailableMemory uint64  `json:"available_memory"`
	Cores           int     `json:"cores"`
	Arch            string  `json:"arch"`
	ClockMHz        float64 `json:"clock_mhz"`
	BenchmarkScore  float64 `json:"benchmark_score"`
	CodecSupported  bool    `json:"codec_supported"`
}

// CapabilityResult is the verdict of the capability analyzer.
// Details is only populated when Capable is true.
type CapabilityResult struct {
	Capable bool               `json:"capable"`
	Reason  string             `json:"reason"`
	Details *CapabilityDetails `json:"details,omitempty"`
}

// Attempt is a single plan submitted to the encoder.
type Attempt struct {
	Index int
	Plan  CompressionPlan
}

// CompressionResult describes a successful compression.
type CompressionResult struct {
	SourcePath         string        `json:"source_path"`
	OutputPath         string        `json:"output_path"`
	OriginalSize       int64         `json:"original_size"`
	OutputSize         int64         `json:"output_size"`
	Ratio              float64       `json:"ratio"`
	Elapsed            time.Duration `json:"elapsed"`
	OriginalResolution string        `json:"original_resolution"`
	OutputResolution   string        `json:"output_resolution"`
	Tier               QualityTier   `json:"tier"`
	Attempts           int           `json:"attempts"`
	FellBackToOriginal bool          `json:"fell_back_to_original"`
	SourceDeleted      bool          `json:"source_deleted"`
}
