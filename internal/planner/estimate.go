package planner

import (
	"math"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// Estimate is a predicted output size.
type Estimate struct {
	Bytes       int64   `json:"bytes"`
	Ratio       float64 `json:"ratio"`
	BitrateMbps float64 `json:"bitrate_mbps"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// EstimateSize predicts the output size of req using the same dimension and
// bitrate math as Plan.
func EstimateSize(req model.PlanRequest, cfg Config) (Estimate, error) {
	if err := req.Validate(); err != nil {
		return Estimate{}, err
	}

	w, h := Dimensions(req, cfg)
	total := VideoBitrate(req, w, h, cfg) + AudioBitrate(req, cfg)
	seconds := req.Source.Duration.Seconds()
	bytes := int64(math.Round(float64(total) * seconds / 8 * cfg.ContainerOverhead))

	return Estimate{
		Bytes:       bytes,
		Ratio:       float64(bytes) / float64(req.Source.SizeBytes),
		BitrateMbps: float64(total) / 1e6,
		Width:       w,
		Height:      h,
	}, nil
}
