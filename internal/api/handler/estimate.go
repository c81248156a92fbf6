package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/planner"
)

// SourceRequest describes an already probed source video.
type SourceRequest struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	Rotation        int     `json:"rotation,omitempty"`
	FrameRate       float64 `json:"frame_rate,omitempty"`
	HasAudio        bool    `json:"has_audio"`
}

type EstimateRequest struct {
	Source             SourceRequest  `json:"source"`
	Tier               string         `json:"tier"`
	Codec              string         `json:"codec,omitempty"`
	CustomWidth        int            `json:"custom_width,omitempty"`
	CustomHeight       int            `json:"custom_height,omitempty"`
	CustomBitrate      int            `json:"custom_bitrate,omitempty"`
	CustomAudioBitrate int            `json:"custom_audio_bitrate,omitempty"`
	Options            *model.Options `json:"options,omitempty"`
}

// EstimateHandler predicts output sizes without touching storage.
type EstimateHandler struct {
	cfg planner.Config
}

func NewEstimateHandler(cfg planner.Config) *EstimateHandler {
	return &EstimateHandler{cfg: cfg}
}

// Estimate handles POST /v1/estimates
func (h *EstimateHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	planReq, err := req.planRequest()
	switch {
	case errors.Is(err, model.ErrUnknownQualityTier):
		Error(w, http.StatusBadRequest, "invalid_tier", "Tier must be one of HIGH, MEDIUM, LOW, VERY_LOW, ULTRA_LOW")
		return
	case errors.Is(err, model.ErrUnknownCodec):
		Error(w, http.StatusBadRequest, "invalid_codec", "Codec must be H264 or HEVC")
		return
	}

	estimate, err := planner.EstimateSize(planReq, h.cfg)
	if err != nil {
		var ce *model.CompressionError
		if errors.As(err, &ce) && ce.Kind == model.KindValidation {
			Error(w, http.StatusBadRequest, "invalid_source", ce.Reason)
			return
		}
		slog.Error("estimate failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	JSON(w, http.StatusOK, estimate)
}

func (r EstimateRequest) planRequest() (model.PlanRequest, error) {
	tier, err := model.ParseQualityTier(r.Tier)
	if err != nil {
		return model.PlanRequest{}, err
	}

	codec := model.CodecH264
	if r.Codec != "" {
		if codec, err = model.ParseCodec(r.Codec); err != nil {
			return model.PlanRequest{}, err
		}
	}

	options := model.DefaultOptions()
	if r.Options != nil {
		options = *r.Options
	}

	src := r.Source
	return model.PlanRequest{
		Source: model.SourceVideo{
			SizeBytes: src.SizeBytes,
			Duration:  time.Duration(src.DurationSeconds * float64(time.Second)),
			Width:     src.Width,
			Height:    src.Height,
			Rotation:  src.Rotation,
			FrameRate: src.FrameRate,
			HasAudio:  src.HasAudio,
		},
		Tier:               tier,
		CustomWidth:        r.CustomWidth,
		CustomHeight:       r.CustomHeight,
		CustomBitrate:      r.CustomBitrate,
		CustomAudioBitrate: r.CustomAudioBitrate,
		Codec:              codec,
		Options:            options,
	}, nil
}
