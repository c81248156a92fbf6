package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/domain/repository"
)

// mockJobRepository provides a configurable mock for JobRepository.
type mockJobRepository struct {
	createFn       func(ctx context.Context, job *model.Job) error
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*model.Job, error)
	listByStatusFn func(ctx context.Context, status model.Status, limit int) ([]*model.Job, error)
	updateFn       func(ctx context.Context, job *model.Job) error
	updateStatusFn func(ctx context.Context, id uuid.UUID, status model.Status) error

	mu      sync.Mutex
	updates []model.Job
}

func (m *mockJobRepository) Create(ctx context.Context, job *model.Job) error {
	if m.createFn != nil {
		return m.createFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrJobNotFound
}

func (m *mockJobRepository) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Job, error) {
	if m.listByStatusFn != nil {
		return m.listByStatusFn(ctx, status, limit)
	}
	return nil, nil
}

// Update records a copy of every persisted job.
func (m *mockJobRepository) Update(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	m.updates = append(m.updates, *job)
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (m *mockJobRepository) updatedStatuses() []model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Status, len(m.updates))
	for i, j := range m.updates {
		out[i] = j.Status
	}
	return out
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	generatePresignedUploadURLFn   func(ctx context.Context, key string, expiry time.Duration) (string, error)
	generatePresignedDownloadURLFn func(ctx context.Context, key string, expiry time.Duration) (string, error)
	downloadFileFn                 func(ctx context.Context, key, localPath string) error
	uploadFileFn                   func(ctx context.Context, key, localPath, contentType string) (int64, error)
	statFn                         func(ctx context.Context, key string) (*repository.ObjectInfo, error)
	deleteFn                       func(ctx context.Context, key string) error
}

func (m *mockObjectStorage) GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedUploadURLFn != nil {
		return m.generatePresignedUploadURLFn(ctx, key, expiry)
	}
	return "http://example.com/upload", nil
}

func (m *mockObjectStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedDownloadURLFn != nil {
		return m.generatePresignedDownloadURLFn(ctx, key, expiry)
	}
	return "http://example.com/download", nil
}

func (m *mockObjectStorage) DownloadFile(ctx context.Context, key, localPath string) error {
	if m.downloadFileFn != nil {
		return m.downloadFileFn(ctx, key, localPath)
	}
	return nil
}

func (m *mockObjectStorage) UploadFile(ctx context.Context, key, localPath, contentType string) (int64, error) {
	if m.uploadFileFn != nil {
		return m.uploadFileFn(ctx, key, localPath, contentType)
	}
	return 0, nil
}

func (m *mockObjectStorage) Stat(ctx context.Context, key string) (*repository.ObjectInfo, error) {
	if m.statFn != nil {
		return m.statFn(ctx, key)
	}
	return &repository.ObjectInfo{Key: key}, nil
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishCompressTaskFn  func(ctx context.Context, task repository.CompressTask) error
	consumeCompressTasksFn func(ctx context.Context, handler func(task repository.CompressTask) error) error
}

func (m *mockMessageQueue) PublishCompressTask(ctx context.Context, task repository.CompressTask) error {
	if m.publishCompressTaskFn != nil {
		return m.publishCompressTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeCompressTasks(ctx context.Context, handler func(task repository.CompressTask) error) error {
	if m.consumeCompressTasksFn != nil {
		return m.consumeCompressTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockProgressStore is an in-memory ProgressStore.
type mockProgressStore struct {
	mu        sync.Mutex
	progress  map[uuid.UUID]float64
	history   []float64
	cancelled map[uuid.UUID]bool
	cleared   []uuid.UUID
	getErr    error
	cancelErr error
}

func newMockProgressStore() *mockProgressStore {
	return &mockProgressStore{
		progress:  make(map[uuid.UUID]float64),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (m *mockProgressStore) SetProgress(_ context.Context, jobID uuid.UUID, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[jobID] = progress
	m.history = append(m.history, progress)
	return nil
}

func (m *mockProgressStore) GetProgress(_ context.Context, jobID uuid.UUID) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, false, m.getErr
	}
	p, ok := m.progress[jobID]
	return p, ok, nil
}

func (m *mockProgressStore) RequestCancel(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled[jobID] = true
	return nil
}

func (m *mockProgressStore) CancelRequested(_ context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[jobID], nil
}

func (m *mockProgressStore) Clear(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, jobID)
	delete(m.cancelled, jobID)
	m.cleared = append(m.cleared, jobID)
	return nil
}

func (m *mockProgressStore) wasCleared(jobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.cleared {
		if id == jobID {
			return true
		}
	}
	return false
}

// mockProber provides a configurable mock for transcoder.Prober.
type mockProber struct {
	probeFn func(ctx context.Context, path string) (model.SourceVideo, error)
}

func (m *mockProber) Probe(ctx context.Context, path string) (model.SourceVideo, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, path)
	}
	return model.SourceVideo{Path: path, Width: 1280, Height: 720, Duration: 10 * time.Second, SizeBytes: 1 << 20}, nil
}

// mockCompressor provides a configurable mock for Compressor.
type mockCompressor struct {
	compressFn func(ctx context.Context, source model.SourceVideo, req CompressRequest, cb Callbacks) (*model.CompressionResult, error)
	active     atomic.Bool
	cancels    atomic.Int32
	cancelCh   chan struct{}
	once       sync.Once
	lastReq    CompressRequest
}

func newMockCompressor() *mockCompressor {
	return &mockCompressor{cancelCh: make(chan struct{})}
}

func (m *mockCompressor) Compress(ctx context.Context, source model.SourceVideo, req CompressRequest, cb Callbacks) (*model.CompressionResult, error) {
	m.active.Store(true)
	defer m.active.Store(false)
	m.lastReq = req
	if m.compressFn != nil {
		return m.compressFn(ctx, source, req, cb)
	}
	return &model.CompressionResult{OutputPath: req.OutputPath, Tier: req.Tier, Attempts: 1}, nil
}

func (m *mockCompressor) Cancel() {
	m.cancels.Add(1)
	m.once.Do(func() { close(m.cancelCh) })
}

func (m *mockCompressor) IsActive() bool {
	return m.active.Load()
}
