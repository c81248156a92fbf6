package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
	"github.com/hszk-dev/gocompress/internal/usecase"
)

// Request/Response types

type CreateJobRequest struct {
	FileName           string         `json:"file_name"`
	Tier               string         `json:"tier"`
	Codec              string         `json:"codec,omitempty"`
	CustomWidth        int            `json:"custom_width,omitempty"`
	CustomHeight       int            `json:"custom_height,omitempty"`
	CustomBitrate      int            `json:"custom_bitrate,omitempty"`
	CustomAudioBitrate int            `json:"custom_audio_bitrate,omitempty"`
	Options            *model.Options `json:"options,omitempty"`
}

type CreateJobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	UploadURL string `json:"upload_url"`
	CreatedAt string `json:"created_at"`
}

type JobResponse struct {
	ID            string                   `json:"id"`
	Status        string                   `json:"status"`
	Tier          string                   `json:"tier"`
	Codec         string                   `json:"codec"`
	Progress      float64                  `json:"progress"`
	Attempts      int                      `json:"attempts"`
	FailureKind   string                   `json:"failure_kind,omitempty"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Result        *model.CompressionResult `json:"result,omitempty"`
	DownloadURL   string                   `json:"download_url,omitempty"`
	CreatedAt     string                   `json:"created_at"`
	UpdatedAt     string                   `json:"updated_at"`
}

type DownloadResponse struct {
	URL string `json:"url"`
}

// JobHandler handles compression job HTTP requests.
type JobHandler struct {
	svc usecase.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc usecase.JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Routes mounts the job endpoints on r.
func (h *JobHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Cancel)
		r.Post("/start", h.Start)
		r.Get("/download", h.Download)
	})
}

// Create handles POST /v1/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.FileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
		return
	}

	tier, err := model.ParseQualityTier(req.Tier)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_tier", "Tier must be one of HIGH, MEDIUM, LOW, VERY_LOW, ULTRA_LOW")
		return
	}

	codec := model.CodecH264
	if req.Codec != "" {
		if codec, err = model.ParseCodec(req.Codec); err != nil {
			Error(w, http.StatusBadRequest, "invalid_codec", "Codec must be H264 or HEVC")
			return
		}
	}

	options := model.DefaultOptions()
	if req.Options != nil {
		options = *req.Options
	}

	output, err := h.svc.CreateJob(r.Context(), model.JobSpec{
		FileName:           req.FileName,
		Tier:               tier,
		Codec:              codec,
		Options:            options,
		CustomWidth:        req.CustomWidth,
		CustomHeight:       req.CustomHeight,
		CustomBitrate:      req.CustomBitrate,
		CustomAudioBitrate: req.CustomAudioBitrate,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, CreateJobResponse{
		ID:        output.Job.ID.String(),
		Status:    output.Job.Status.String(),
		UploadURL: output.UploadURL,
		CreatedAt: output.Job.CreatedAt.Format(time.RFC3339),
	})
}

// Start handles POST /v1/jobs/{id}/start
func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	if err := h.svc.StartJob(r.Context(), jobID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := toJobResponse(job)
	if job.IsCompleted() {
		url, err := h.svc.GetDownloadURL(r.Context(), jobID)
		if err != nil {
			slog.Warn("failed to presign download URL",
				"job_id", jobID,
				"error", err,
			)
		}
		resp.DownloadURL = url
	}

	JSON(w, http.StatusOK, resp)
}

// Cancel handles DELETE /v1/jobs/{id}
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	if err := h.svc.CancelJob(r.Context(), jobID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Download handles GET /v1/jobs/{id}/download
func (h *JobHandler) Download(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	url, err := h.svc.GetDownloadURL(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, DownloadResponse{URL: url})
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return uuid.Nil, false
	}
	return jobID, true
}

func (h *JobHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		Error(w, http.StatusNotFound, "job_not_found", "Job not found")
	case errors.Is(err, model.ErrEmptyFileName), errors.Is(err, model.ErrFileNameTooLong):
		Error(w, http.StatusBadRequest, "invalid_file_name", err.Error())
	case errors.Is(err, model.ErrUnknownQualityTier):
		Error(w, http.StatusBadRequest, "invalid_tier", err.Error())
	case errors.Is(err, model.ErrUnknownCodec):
		Error(w, http.StatusBadRequest, "invalid_codec", err.Error())
	case errors.Is(err, usecase.ErrSourceNotUploaded):
		Error(w, http.StatusConflict, "source_not_uploaded", "Upload the source video before starting the job")
	case errors.Is(err, usecase.ErrJobAlreadyFinished):
		Error(w, http.StatusConflict, "job_already_finished", "Job has already finished")
	case errors.Is(err, usecase.ErrJobNotCompleted):
		Error(w, http.StatusConflict, "job_not_completed", "Job has not completed")
	case errors.Is(err, model.ErrInvalidTransition):
		Error(w, http.StatusConflict, "invalid_transition", "Job cannot change to the requested status")
	default:
		slog.Error("job request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toJobResponse(j *model.Job) JobResponse {
	return JobResponse{
		ID:            j.ID.String(),
		Status:        j.Status.String(),
		Tier:          j.Tier.String(),
		Codec:         j.Codec.String(),
		Progress:      j.Progress,
		Attempts:      j.Attempts,
		FailureKind:   j.FailureKind.String(),
		FailureReason: j.FailureReason,
		Result:        j.Result,
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     j.UpdatedAt.Format(time.RFC3339),
	}
}
