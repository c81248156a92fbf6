// Package transform computes the orientation, scale and centering applied
// when rendering a source into a target frame. It does no pixel work.
package transform

import (
	"fmt"
	"math"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// DefaultAlignment is the macroblock alignment of render dimensions.
const DefaultAlignment = 16

// Result is the computed render geometry.
type Result struct {
	Transform model.Transform

	// EffectiveWidth and EffectiveHeight are the source dimensions after
	// the final rotation.
	EffectiveWidth  int
	EffectiveHeight int

	// RenderWidth and RenderHeight are the aligned output frame size.
	RenderWidth  int
	RenderHeight int
}

// Compute builds the render transform for placing source into a
// targetW×targetH frame. Render dimensions are aligned down to a multiple
// of alignment; an alignment of 1 or less disables alignment.
func Compute(source model.SourceVideo, opts model.Options, targetW, targetH, alignment int) (Result, error) {
	if err := source.Validate(); err != nil {
		return Result{}, err
	}
	if targetW <= 0 || targetH <= 0 {
		return Result{}, model.ValidationError(fmt.Sprintf("target dimensions must be positive, got %dx%d", targetW, targetH))
	}

	effW, effH := model.EffectiveSize(source, opts)
	final := model.FinalRotation(source, opts)

	m := model.Identity
	baseRotation := 0
	if opts.AutoOrient {
		m = source.BaseTransform()
		baseRotation = source.MetadataRotation()
	}
	if extra := model.NormalizeRotation(final - baseRotation); extra != 0 {
		m = m.Concat(model.Rotation(extra))
	}
	m = toOrigin(m, source.Width, source.Height)

	scale := math.Min(float64(targetW)/float64(effW), float64(targetH)/float64(effH))
	m = m.Concat(model.Scale(scale))

	renderW, renderH := align(targetW, alignment), align(targetH, alignment)

	minX, minY, maxX, maxY := m.Bounds(float64(source.Width), float64(source.Height))
	tx := (float64(renderW)-(maxX-minX))/2 - minX
	ty := (float64(renderH)-(maxY-minY))/2 - minY
	m = m.Concat(model.Translation(tx, ty))

	return Result{
		Transform: model.Transform{
			RotationDegrees: final,
			Scale:           scale,
			TranslateX:      tx,
			TranslateY:      ty,
			Matrix:          m,
			ContentWidth:    evenRound(float64(effW) * scale),
			ContentHeight:   evenRound(float64(effH) * scale),
			AlignAdjustX:    targetW - renderW,
			AlignAdjustY:    targetH - renderH,
		},
		EffectiveWidth:  effW,
		EffectiveHeight: effH,
		RenderWidth:     renderW,
		RenderHeight:    renderH,
	}, nil
}

// toOrigin translates m so the transformed w×h frame starts at (0, 0).
func toOrigin(m model.Affine, w, h int) model.Affine {
	minX, minY, _, _ := m.Bounds(float64(w), float64(h))
	if minX == 0 && minY == 0 {
		return m
	}
	return m.Concat(model.Translation(-minX, -minY))
}

// align rounds n down to a multiple of alignment. Values smaller than the
// alignment are returned unchanged.
func align(n, alignment int) int {
	if alignment <= 1 || n < alignment {
		return n
	}
	return n - n%alignment
}

func evenRound(x float64) int {
	return max(int(math.Round(x/2))*2, 2)
}
