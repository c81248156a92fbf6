package planner

import (
	"math"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// Plan resolves the encode parameters for req. The returned plan carries
// the target frame size; the render transform is filled in by the caller.
func Plan(req model.PlanRequest, capability model.CapabilityResult, cfg Config) (model.CompressionPlan, error) {
	if err := req.Validate(); err != nil {
		return model.CompressionPlan{}, err
	}

	w, h := Dimensions(req, cfg)
	plan := model.CompressionPlan{
		Tier:            req.Tier,
		Width:           w,
		Height:          h,
		VideoBitrate:    VideoBitrate(req, w, h, cfg),
		RemoveAudio:     req.Options.RemoveAudio,
		Codec:           ResolveCodec(req.Codec, capability),
		VariableBitrate: req.Options.VariableBitrate,
		Aggressive:      req.Options.Aggressive,
	}

	plan.AudioBitrate = AudioBitrate(req, cfg)
	switch {
	case plan.RemoveAudio:
		plan.AudioChannels = 0
	case req.Options.MonoAudio:
		plan.AudioChannels = 1
	default:
		plan.AudioChannels = 2
	}

	if req.Options.ReduceFrameRate {
		plan.FrameRate = reducedFrameRate(req.Options, cfg)
	}
	return plan, nil
}

// Dimensions returns the even target size for req.
func Dimensions(req model.PlanRequest, cfg Config) (int, int) {
	srcW, srcH := model.EffectiveSize(req.Source, req.Options)
	ratio := float64(srcW) / float64(srcH)
	cw, ch := req.CustomWidth, req.CustomHeight

	switch {
	case cw > 0 && ch > 0 && math.Abs(float64(cw)/float64(ch)-ratio) <= cfg.RatioEpsilon:
		return floorEven(cw), floorEven(ch)
	case cw > 0:
		w := floorEven(cw)
		return w, roundEven(float64(w) / ratio)
	case ch > 0:
		h := floorEven(ch)
		return roundEven(float64(h) * ratio), h
	}

	box := req.Tier.Bounds()
	boxW, boxH := box.Long, box.Short
	if srcH > srcW {
		boxW, boxH = box.Short, box.Long
	}
	maxW := floorEven(min(srcW, boxW))
	maxH := floorEven(min(srcH, boxH))

	if float64(boxW)/float64(srcW) <= float64(boxH)/float64(srcH) {
		return maxW, min(roundEven(float64(maxW)/ratio), maxH)
	}
	return min(roundEven(float64(maxH)*ratio), maxW), maxH
}

// VideoBitrate returns the video bitrate in bits per second for a w×h target.
func VideoBitrate(req model.PlanRequest, w, h int, cfg Config) int {
	base := req.CustomBitrate
	if base <= 0 {
		base = cfg.TierBitrates[req.Tier]
	}
	bitrate := float64(base)

	sourcePixels := float64(req.Source.Width * req.Source.Height)
	targetPixels := float64(w * h)
	if targetPixels < sourcePixels {
		bitrate *= targetPixels / sourcePixels * cfg.DownscaleOvershoot
	}
	if req.Options.Aggressive {
		bitrate *= cfg.AggressiveFactor
	}
	if req.Options.ReduceFrameRate && cfg.DefaultFrameRate > 0 {
		bitrate *= math.Min(1, float64(reducedFrameRate(req.Options, cfg))/float64(cfg.DefaultFrameRate))
	}
	if req.Options.VariableBitrate {
		bitrate *= cfg.VBRFactor
	}

	return max(int(math.Round(bitrate)), cfg.MinVideoBitrate)
}

// AudioBitrate returns the audio bitrate in bits per second; zero when audio
// is removed.
func AudioBitrate(req model.PlanRequest, cfg Config) int {
	switch {
	case req.Options.RemoveAudio:
		return 0
	case req.CustomAudioBitrate > 0:
		return req.CustomAudioBitrate
	case req.Tier == model.TierUltraLow:
		return cfg.LowAudioBitrate
	default:
		return cfg.StandardAudioBitrate
	}
}

// ResolveCodec returns the codec to encode with. HEVC is only kept when the
// capability verdict confirms the encoder supports it.
func ResolveCodec(requested model.Codec, capability model.CapabilityResult) model.Codec {
	if requested == "" {
		return model.CodecH264
	}
	if requested == model.CodecHEVC {
		if !capability.Capable || capability.Details == nil || !capability.Details.CodecSupported {
			return model.CodecH264
		}
	}
	return requested
}

func reducedFrameRate(opts model.Options, cfg Config) int {
	if opts.ReducedFrameRate > 0 {
		return opts.ReducedFrameRate
	}
	return cfg.ReducedFrameRate
}

// floorEven rounds n down to an even value of at least 2.
func floorEven(n int) int {
	return max(n-n%2, 2)
}

// roundEven rounds x to the nearest even value of at least 2.
func roundEven(x float64) int {
	return max(int(math.Round(x/2))*2, 2)
}
