package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
	"github.com/hszk-dev/gocompress/internal/usecase"
)

// Mock JobService

type mockJobService struct {
	createJobFn      func(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error)
	startJobFn       func(ctx context.Context, jobID uuid.UUID) error
	getJobFn         func(ctx context.Context, jobID uuid.UUID) (*model.Job, error)
	cancelJobFn      func(ctx context.Context, jobID uuid.UUID) error
	getDownloadURLFn func(ctx context.Context, jobID uuid.UUID) (string, error)
}

func (m *mockJobService) CreateJob(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error) {
	if m.createJobFn != nil {
		return m.createJobFn(ctx, spec)
	}
	return nil, nil
}

func (m *mockJobService) StartJob(ctx context.Context, jobID uuid.UUID) error {
	if m.startJobFn != nil {
		return m.startJobFn(ctx, jobID)
	}
	return nil
}

func (m *mockJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	if m.getJobFn != nil {
		return m.getJobFn(ctx, jobID)
	}
	return nil, repository.ErrJobNotFound
}

func (m *mockJobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	if m.cancelJobFn != nil {
		return m.cancelJobFn(ctx, jobID)
	}
	return nil
}

func (m *mockJobService) GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	if m.getDownloadURLFn != nil {
		return m.getDownloadURLFn(ctx, jobID)
	}
	return "", usecase.ErrJobNotCompleted
}

func newTestRouter(svc usecase.JobService) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/jobs", NewJobHandler(svc).Routes)
	return r
}

func TestJobHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(m *mockJobService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:        "successful creation",
			requestBody: CreateJobRequest{FileName: "clip.mov", Tier: "MEDIUM"},
			setupMock: func(m *mockJobService) {
				m.createJobFn = func(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error) {
					if spec.Codec != model.CodecH264 {
						t.Errorf("expected default codec H264, got %s", spec.Codec)
					}
					if !spec.Options.AutoOrient {
						t.Error("expected default options to auto-orient")
					}
					job, err := model.NewJob(spec)
					if err != nil {
						return nil, err
					}
					return &usecase.CreateJobOutput{
						Job:       job,
						UploadURL: "http://minio:9000/videos/sources/clip.mov?signature=xyz",
					}, nil
				}
			},
			wantStatusCode: http.StatusCreated,
			checkResponse: func(t *testing.T, body []byte) {
				var resp CreateJobResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.UploadURL == "" {
					t.Error("expected upload URL to be non-empty")
				}
				if resp.Status != "PENDING_UPLOAD" {
					t.Errorf("expected status PENDING_UPLOAD, got %s", resp.Status)
				}
			},
		},
		{
			name: "explicit codec and options",
			requestBody: CreateJobRequest{
				FileName: "clip.mov",
				Tier:     "LOW",
				Codec:    "HEVC",
				Options:  &model.Options{RemoveAudio: true},
			},
			setupMock: func(m *mockJobService) {
				m.createJobFn = func(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error) {
					if spec.Codec != model.CodecHEVC || !spec.Options.RemoveAudio || spec.Options.AutoOrient {
						t.Errorf("unexpected spec %+v", spec)
					}
					job, _ := model.NewJob(spec)
					return &usecase.CreateJobOutput{Job: job, UploadURL: "http://upload"}, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "custom overrides",
			requestBody: CreateJobRequest{
				FileName:           "clip.mp4",
				Tier:               "MEDIUM",
				CustomWidth:        640,
				CustomHeight:       360,
				CustomBitrate:      500000,
				CustomAudioBitrate: 96000,
			},
			setupMock: func(m *mockJobService) {
				m.createJobFn = func(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error) {
					if spec.CustomWidth != 640 || spec.CustomHeight != 360 || spec.CustomBitrate != 500000 {
						t.Errorf("unexpected video overrides %+v", spec)
					}
					if spec.CustomAudioBitrate != 96000 {
						t.Errorf("CustomAudioBitrate = %d, want 96000", spec.CustomAudioBitrate)
					}
					job, _ := model.NewJob(spec)
					return &usecase.CreateJobOutput{Job: job, UploadURL: "http://upload"}, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "invalid JSON body",
			requestBody:    "invalid json",
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			requestBody:    `{"file_name":"clip.mov","tier":"HIGH","resolution":"4k"}`,
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "trailing data",
			requestBody:    `{"file_name":"clip.mov","tier":"HIGH"} {}`,
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "empty file name",
			requestBody:    CreateJobRequest{Tier: "HIGH"},
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unknown tier",
			requestBody:    CreateJobRequest{FileName: "clip.mov", Tier: "EXTREME"},
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unknown codec",
			requestBody:    CreateJobRequest{FileName: "clip.mov", Tier: "HIGH", Codec: "VP9"},
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:        "service error - file name too long",
			requestBody: CreateJobRequest{FileName: "clip.mov", Tier: "HIGH"},
			setupMock: func(m *mockJobService) {
				m.createJobFn = func(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error) {
					return nil, model.ErrFileNameTooLong
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:        "service error - storage unavailable",
			requestBody: CreateJobRequest{FileName: "clip.mov", Tier: "HIGH"},
			setupMock: func(m *mockJobService) {
				m.createJobFn = func(ctx context.Context, spec model.JobSpec) (*usecase.CreateJobOutput, error) {
					return nil, errors.New("presign: connection refused")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockJobService{}
			tt.setupMock(mock)

			var body []byte
			switch v := tt.requestBody.(type) {
			case string:
				body = []byte(v)
			default:
				var err error
				body, err = json.Marshal(v)
				if err != nil {
					t.Fatalf("failed to marshal request body: %v", err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			newTestRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}

			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestJobHandler_Start(t *testing.T) {
	tests := []struct {
		name           string
		jobID          string
		err            error
		wantStatusCode int
	}{
		{name: "successful start", jobID: uuid.New().String(), wantStatusCode: http.StatusAccepted},
		{name: "invalid job ID", jobID: "not-a-uuid", wantStatusCode: http.StatusBadRequest},
		{name: "job not found", jobID: uuid.New().String(), err: repository.ErrJobNotFound, wantStatusCode: http.StatusNotFound},
		{name: "source not uploaded", jobID: uuid.New().String(), err: usecase.ErrSourceNotUploaded, wantStatusCode: http.StatusConflict},
		{name: "job already finished", jobID: uuid.New().String(), err: usecase.ErrJobAlreadyFinished, wantStatusCode: http.StatusConflict},
		{name: "queue unavailable", jobID: uuid.New().String(), err: errors.New("publish compress task: channel closed"), wantStatusCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockJobService{
				startJobFn: func(ctx context.Context, jobID uuid.UUID) error {
					return tt.err
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+tt.jobID+"/start", nil)
			rec := httptest.NewRecorder()

			newTestRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
		})
	}
}

func TestJobHandler_Get(t *testing.T) {
	newJob := func(status model.Status) *model.Job {
		job, _ := model.NewJob(model.JobSpec{FileName: "clip.mov", Tier: model.TierMedium})
		job.Status = status
		return job
	}

	tests := []struct {
		name           string
		jobID          string
		setupMock      func(m *mockJobService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:  "processing job reports progress",
			jobID: uuid.New().String(),
			setupMock: func(m *mockJobService) {
				m.getJobFn = func(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
					job := newJob(model.StatusProcessing)
					job.Progress = 0.42
					return job, nil
				}
				m.getDownloadURLFn = func(ctx context.Context, jobID uuid.UUID) (string, error) {
					t.Error("download URL must not be requested for a running job")
					return "", nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body []byte) {
				var resp JobResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.Status != "PROCESSING" || resp.Progress != 0.42 {
					t.Errorf("unexpected response %+v", resp)
				}
				if resp.DownloadURL != "" {
					t.Errorf("expected no download URL, got %s", resp.DownloadURL)
				}
			},
		},
		{
			name:  "completed job includes result and download URL",
			jobID: uuid.New().String(),
			setupMock: func(m *mockJobService) {
				m.getJobFn = func(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
					job := newJob(model.StatusCompleted)
					job.Progress = 1
					job.Result = &model.CompressionResult{
						OutputPath:   job.OutputKey,
						OriginalSize: 10 << 20,
						OutputSize:   3 << 20,
						Ratio:        0.3,
						Elapsed:      4 * time.Second,
						Tier:         model.TierMedium,
						Attempts:     1,
					}
					return job, nil
				}
				m.getDownloadURLFn = func(ctx context.Context, jobID uuid.UUID) (string, error) {
					return "http://minio:9000/videos/outputs/clip.mov?signature=abc", nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body []byte) {
				var resp JobResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.Result == nil || resp.Result.Ratio != 0.3 {
					t.Errorf("expected result with ratio 0.3, got %+v", resp.Result)
				}
				if resp.DownloadURL == "" {
					t.Error("expected download URL to be non-empty")
				}
			},
		},
		{
			name:  "completed job with presign failure still succeeds",
			jobID: uuid.New().String(),
			setupMock: func(m *mockJobService) {
				m.getJobFn = func(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
					job := newJob(model.StatusCompleted)
					job.Result = &model.CompressionResult{OutputPath: job.OutputKey}
					return job, nil
				}
				m.getDownloadURLFn = func(ctx context.Context, jobID uuid.UUID) (string, error) {
					return "", errors.New("presign: timeout")
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:  "failed job reports failure",
			jobID: uuid.New().String(),
			setupMock: func(m *mockJobService) {
				m.getJobFn = func(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
					job := newJob(model.StatusFailed)
					job.FailureKind = model.KindResource
					job.FailureReason = "insufficient disk space"
					return job, nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body []byte) {
				var resp JobResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.FailureKind != "RESOURCE" || resp.FailureReason == "" {
					t.Errorf("unexpected failure fields %+v", resp)
				}
			},
		},
		{
			name:           "invalid job ID",
			jobID:          "not-a-uuid",
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "job not found",
			jobID:          uuid.New().String(),
			setupMock:      func(m *mockJobService) {},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockJobService{}
			tt.setupMock(mock)

			req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+tt.jobID, nil)
			rec := httptest.NewRecorder()

			newTestRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}

			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestJobHandler_Cancel(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantStatusCode int
	}{
		{name: "cancel accepted", wantStatusCode: http.StatusAccepted},
		{name: "job not found", err: repository.ErrJobNotFound, wantStatusCode: http.StatusNotFound},
		{name: "job already finished", err: usecase.ErrJobAlreadyFinished, wantStatusCode: http.StatusConflict},
		{name: "progress store unavailable", err: errors.New("request cancel: dial tcp"), wantStatusCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			var gotID uuid.UUID
			mock := &mockJobService{
				cancelJobFn: func(ctx context.Context, jobID uuid.UUID) error {
					gotID = jobID
					return tt.err
				},
			}

			req := httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+id.String(), nil)
			rec := httptest.NewRecorder()

			newTestRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if gotID != id {
				t.Errorf("expected cancel for %s, got %s", id, gotID)
			}
		})
	}
}

func TestJobHandler_Download(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		err            error
		wantStatusCode int
	}{
		{name: "completed job", url: "http://minio:9000/videos/outputs/clip.mov", wantStatusCode: http.StatusOK},
		{name: "job not completed", err: usecase.ErrJobNotCompleted, wantStatusCode: http.StatusConflict},
		{name: "job not found", err: repository.ErrJobNotFound, wantStatusCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockJobService{
				getDownloadURLFn: func(ctx context.Context, jobID uuid.UUID) (string, error) {
					return tt.url, tt.err
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+uuid.New().String()+"/download", nil)
			rec := httptest.NewRecorder()

			newTestRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Fatalf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if tt.err == nil {
				var resp DownloadResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.URL != tt.url {
					t.Errorf("expected URL %s, got %s", tt.url, resp.URL)
				}
			}
		})
	}
}
