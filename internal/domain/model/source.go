package model

import (
	"fmt"
	"time"
)

// SourceVideo describes a probed input file. It is built once by the
// prober and never mutated.
type SourceVideo struct {
	Path      string
	SizeBytes int64
	Duration  time.Duration
	// Width and Height are the raw (coded) pixel dimensions.
	Width  int
	Height int
	// Rotation is the display rotation metadata in degrees, one of 0, 90, 180, 270.
	Rotation int
	// PreferredTransform is the container display matrix when one was present.
	PreferredTransform *Affine
	FrameRate          float64
	VideoCodec         string
	HasAudio           bool
}

// Validate rejects sources that cannot be planned.
func (s SourceVideo) Validate() error {
	switch {
	case s.SizeBytes <= 0:
		return ValidationError(fmt.Sprintf("source size must be positive, got %d", s.SizeBytes))
	case s.Duration <= 0:
		return ValidationError(fmt.Sprintf("source duration must be positive, got %s", s.Duration))
	case s.Width <= 0 || s.Height <= 0:
		return ValidationError(fmt.Sprintf("source dimensions must be positive, got %dx%d", s.Width, s.Height))
	}
	switch NormalizeRotation(s.MetadataRotation()) {
	case 0, 90, 180, 270:
	default:
		return ValidationError(fmt.Sprintf("unsupported rotation %d", s.Rotation))
	}
	return nil
}

// MetadataRotation returns the rotation carried by the source, preferring
// the display matrix when one is present.
func (s SourceVideo) MetadataRotation() int {
	if s.PreferredTransform != nil {
		return s.PreferredTransform.RotationDegrees()
	}
	return NormalizeRotation(s.Rotation)
}

// BaseTransform returns the display transform implied by the metadata.
func (s SourceVideo) BaseTransform() Affine {
	if s.PreferredTransform != nil {
		return *s.PreferredTransform
	}
	return PreferredTransform(s.Rotation, s.Width, s.Height)
}

// Resolution formats the raw dimensions as WxH.
func (s SourceVideo) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FinalRotation resolves the rotation applied to the output: an explicit
// override wins, then the metadata rotation when auto-orienting, else zero.
func FinalRotation(s SourceVideo, opts Options) int {
	if opts.RotationOverride != nil {
		return NormalizeRotation(*opts.RotationOverride)
	}
	if opts.AutoOrient {
		return s.MetadataRotation()
	}
	return 0
}

// EffectiveSize returns the source dimensions as displayed after the final
// rotation: width and height swap for 90 and 270 degrees.
func EffectiveSize(s SourceVideo, opts Options) (int, int) {
	switch FinalRotation(s, opts) {
	case 90, 270:
		return s.Height, s.Width
	default:
		return s.Width, s.Height
	}
}
