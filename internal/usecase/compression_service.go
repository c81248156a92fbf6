package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hszk-dev/gocompress/internal/capability"
	"github.com/hszk-dev/gocompress/internal/clock"
	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/infrastructure/localfs"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
	"github.com/hszk-dev/gocompress/internal/planner"
	"github.com/hszk-dev/gocompress/internal/progress"
	"github.com/hszk-dev/gocompress/internal/transcoder"
	"github.com/hszk-dev/gocompress/internal/transform"
)

// DefaultMaxRetries is the number of degraded retries after a capacity failure.
const DefaultMaxRetries = 3

// ErrOrchestratorBusy is returned when Compress is called while another
// request is running on the same orchestrator.
var ErrOrchestratorBusy = errors.New("orchestrator is busy with another request")

// CompressRequest carries the caller-chosen parameters of one compression.
type CompressRequest struct {
	Tier               model.QualityTier
	Codec              model.Codec
	CustomWidth        int
	CustomHeight       int
	CustomBitrate      int
	CustomAudioBitrate int
	Options            model.Options

	// OutputPath is where the encoder writes. Its directory must exist.
	OutputPath string
	// DeleteSource removes the source after a successful compression that
	// did not fall back to the original.
	DeleteSource bool
}

// Callbacks receive the outcome of a compression. Every callback runs on
// the goroutine that called Compress. Nil callbacks are skipped.
type Callbacks struct {
	OnProgress    func(progress float64)
	OnComplete    func(result *model.CompressionResult)
	OnError       func(kind model.ErrorKind, reason string)
	OnStateChange func(state model.State, attempt int)
}

// OrchestratorConfig holds configuration for the Orchestrator.
type OrchestratorConfig struct {
	// MaxRetries is the number of degraded retries after the first attempt.
	MaxRetries int
	// FallbackRatio discards outputs at least this fraction of the source size.
	FallbackRatio float64
	// DiskHeadroom multiplies the size estimate in the free-space check.
	DiskHeadroom float64
	// Alignment is the block alignment of render dimensions.
	Alignment int
	// MaxEncoderProgress caps progress until the encoder completes.
	MaxEncoderProgress float64

	Planner  planner.Config
	Progress progress.Config
}

// DefaultOrchestratorConfig returns the default configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRetries:         DefaultMaxRetries,
		FallbackRatio:      0.95,
		DiskHeadroom:       1.1,
		Alignment:          transform.DefaultAlignment,
		MaxEncoderProgress: 0.98,
		Planner:            planner.DefaultConfig(),
		Progress:           progress.DefaultConfig(),
	}
}

// CapabilityAssessor reports whether the host can encode a target.
type CapabilityAssessor interface {
	Assess(ctx context.Context, target capability.Target) model.CapabilityResult
}

// Orchestrator supervises one compression request at a time: planning,
// encoding, degraded retries, fallback to the original and cancellation.
type Orchestrator struct {
	cfg        OrchestratorConfig
	encoder    transcoder.Encoder
	capability CapabilityAssessor
	fs         localfs.FileSystem
	clock      clock.Clock
	estimator  *progress.Estimator

	busy      atomic.Bool
	cancelled atomic.Bool

	mu       sync.Mutex
	cancelCh chan struct{}
	state    model.State
}

// NewOrchestrator creates an Orchestrator. A nil assessor treats the host
// as capable; a nil clock uses the system clock.
func NewOrchestrator(
	encoder transcoder.Encoder,
	assessor CapabilityAssessor,
	fs localfs.FileSystem,
	clk clock.Clock,
	cfg OrchestratorConfig,
) *Orchestrator {
	if clk == nil {
		clk = clock.System()
	}
	return &Orchestrator{
		cfg:        cfg,
		encoder:    encoder,
		capability: assessor,
		fs:         fs,
		clock:      clk,
		estimator:  progress.NewEstimator(cfg.Progress, clk),
		state:      model.StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() model.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsActive reports whether a compression is running.
func (o *Orchestrator) IsActive() bool {
	return o.busy.Load()
}

// Cancel aborts the running compression. It is a no-op when idle.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelCh == nil || o.cancelled.Load() {
		return
	}
	o.cancelled.Store(true)
	close(o.cancelCh)
}

// Compress runs a compression to completion and blocks until a terminal
// state is reached. Exactly one of OnComplete or OnError is called.
func (o *Orchestrator) Compress(ctx context.Context, source model.SourceVideo, req CompressRequest, cb Callbacks) (*model.CompressionResult, error) {
	// busy is published under mu together with cancelCh, so a Cancel that
	// observes IsActive always finds the channel to close.
	o.mu.Lock()
	if o.busy.Load() {
		o.mu.Unlock()
		return nil, ErrOrchestratorBusy
	}
	cancelCh := make(chan struct{})
	o.cancelCh = cancelCh
	o.cancelled.Store(false)
	o.busy.Store(true)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.cancelCh = nil
		o.busy.Store(false)
		o.mu.Unlock()
	}()

	r := &compressionRun{
		o:        o,
		source:   source,
		req:      req,
		cb:       cb,
		cancelCh: cancelCh,
	}
	start := o.clock.Now()
	result, err := r.execute(ctx)
	elapsed := o.clock.Since(start)

	if err != nil {
		kind, reason := model.KindOf(err), model.ReasonOf(err)
		outcome := metrics.ResultFailed
		if kind == model.KindCancelled {
			outcome = metrics.ResultCancelled
		}
		metrics.CompressionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
		slog.Warn("compression failed",
			"source", source.Path,
			"kind", kind,
			"reason", reason,
			"attempts", r.attempt+1,
		)
		if cb.OnError != nil {
			cb.OnError(kind, reason)
		}
		return nil, err
	}

	result.Elapsed = elapsed
	metrics.CompressionDuration.WithLabelValues(metrics.ResultCompleted).Observe(elapsed.Seconds())
	slog.Info("compression completed",
		"source", source.Path,
		"output", result.OutputPath,
		"ratio", result.Ratio,
		"tier", result.Tier,
		"attempts", result.Attempts,
		"fell_back", result.FellBackToOriginal,
	)
	if cb.OnComplete != nil {
		cb.OnComplete(result)
	}
	return result, nil
}

func (o *Orchestrator) setState(next model.State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.CanTransitionTo(next) {
		slog.Error("invalid orchestrator state transition",
			"from", o.state,
			"to", next,
		)
		return false
	}
	o.state = next
	return true
}

// compressionRun is the per-request state of a Compress call.
type compressionRun struct {
	o        *Orchestrator
	source   model.SourceVideo
	req      CompressRequest
	cb       Callbacks
	cancelCh <-chan struct{}

	attempt      int
	lastProgress float64
	capability   model.CapabilityResult
}

func (r *compressionRun) transition(state model.State) {
	if r.o.setState(state) && r.cb.OnStateChange != nil {
		r.cb.OnStateChange(state, r.attempt)
	}
}

func (r *compressionRun) reportProgress(p float64) {
	p = min(p, r.o.cfg.MaxEncoderProgress)
	if p <= r.lastProgress {
		return
	}
	r.lastProgress = p
	if r.cb.OnProgress != nil {
		r.cb.OnProgress(p)
	}
}

func (r *compressionRun) isCancelled() bool {
	return r.o.cancelled.Load()
}

func (r *compressionRun) planRequest(tier model.QualityTier) model.PlanRequest {
	return model.PlanRequest{
		Source:             r.source,
		Tier:               tier,
		CustomWidth:        r.req.CustomWidth,
		CustomHeight:       r.req.CustomHeight,
		CustomBitrate:      r.req.CustomBitrate,
		CustomAudioBitrate: r.req.CustomAudioBitrate,
		Codec:              r.req.Codec,
		Options:            r.req.Options,
	}
}

// fail moves to a terminal state, removes any partial output and returns err.
func (r *compressionRun) fail(err error) error {
	if model.IsCancelled(err) {
		r.transition(model.StateCancelled)
	} else {
		r.transition(model.StateFailed)
	}
	r.removeOutput()
	return err
}

func (r *compressionRun) removeOutput() {
	if r.req.OutputPath == "" {
		return
	}
	if err := r.o.fs.Remove(r.req.OutputPath); err != nil {
		slog.Warn("failed to remove partial output",
			"path", r.req.OutputPath,
			"error", err,
		)
	}
}

func (r *compressionRun) execute(ctx context.Context) (*model.CompressionResult, error) {
	r.transition(model.StatePlanning)

	if err := r.validate(); err != nil {
		r.transition(model.StateFailed)
		return nil, err
	}

	tier := r.req.Tier
	plan, err := r.preflight(ctx, &tier)
	if err != nil {
		return nil, r.fail(err)
	}

	for {
		if r.isCancelled() {
			return nil, r.fail(model.CancelledError("cancelled by user"))
		}

		r.transition(model.StateEncoding)
		slog.Info("compression attempt started",
			"source", r.source.Path,
			"attempt", r.attempt,
			"tier", plan.Tier,
			"resolution", plan.Resolution(),
			"video_bitrate", plan.VideoBitrate,
			"codec", plan.Codec,
		)

		err := r.encode(ctx, plan)
		if err == nil {
			metrics.CompressionAttemptsTotal.WithLabelValues(plan.Tier.String(), metrics.OutcomeSuccess).Inc()
			return r.finish(plan)
		}

		switch {
		case model.IsCancelled(err):
			metrics.CompressionAttemptsTotal.WithLabelValues(plan.Tier.String(), metrics.OutcomeCancelled).Inc()
			return nil, r.fail(err)
		case !model.IsRetryable(err) || r.attempt >= r.o.cfg.MaxRetries || !tier.HasLower():
			metrics.CompressionAttemptsTotal.WithLabelValues(plan.Tier.String(), metrics.OutcomeFailure).Inc()
			return nil, r.fail(err)
		}

		metrics.CompressionAttemptsTotal.WithLabelValues(plan.Tier.String(), metrics.OutcomeRetry).Inc()
		metrics.CompressionRetriesTotal.Inc()
		r.transition(model.StateRetrying)
		r.removeOutput()

		r.attempt++
		tier = tier.Downgrade()
		r.lastProgress = 0
		if r.cb.OnProgress != nil {
			r.cb.OnProgress(0)
		}
		slog.Info("retrying at degraded tier",
			"source", r.source.Path,
			"attempt", r.attempt,
			"tier", tier,
			"reason", model.ReasonOf(err),
		)

		if r.isCancelled() {
			return nil, r.fail(model.CancelledError("cancelled by user"))
		}
		r.transition(model.StatePlanning)
		plan, err = r.o.buildPlan(r.planRequest(tier), r.capability)
		if err != nil {
			return nil, r.fail(err)
		}
	}
}

func (r *compressionRun) validate() error {
	if r.req.OutputPath == "" {
		return model.ValidationError("output path is required")
	}
	if filepath.Clean(r.req.OutputPath) == filepath.Clean(r.source.Path) {
		return model.ValidationError("output path must differ from the source path")
	}
	return r.planRequest(r.req.Tier).Validate()
}

// preflight assesses capability, applies the pre-emptive downgrade for
// large frames and checks free disk space before the first attempt.
func (r *compressionRun) preflight(ctx context.Context, tier *model.QualityTier) (model.CompressionPlan, error) {
	r.capability = model.CapabilityResult{
		Capable: true,
		Reason:  "capability not assessed",
		Details: &model.CapabilityDetails{CodecSupported: true},
	}

	initial, err := planner.Plan(r.planRequest(*tier), r.capability, r.o.cfg.Planner)
	if err != nil {
		return model.CompressionPlan{}, err
	}

	if r.o.capability != nil {
		assessCtx, stop := r.withCancel(ctx)
		r.capability = r.o.capability.Assess(assessCtx, capability.Target{
			Width:  initial.Width,
			Height: initial.Height,
			Codec:  initial.Codec,
		})
		stop()
		if r.isCancelled() {
			return model.CompressionPlan{}, model.CancelledError("cancelled by user")
		}
		if err := ctx.Err(); err != nil {
			return model.CompressionPlan{}, model.NewError(model.KindCancelled, "context cancelled", err)
		}
		large := r.o.cfg.Planner.IsLargeFrame(r.source.Width, r.source.Height) ||
			r.o.cfg.Planner.IsLargeFrame(initial.Width, initial.Height)
		if large && !r.capability.Capable && tier.HasLower() {
			slog.Info("pre-emptive downgrade for large frame",
				"source", r.source.Path,
				"from", *tier,
				"to", tier.Downgrade(),
				"reason", r.capability.Reason,
			)
			*tier = tier.Downgrade()
		}
	}

	if err := r.checkDiskSpace(ctx, *tier); err != nil {
		return model.CompressionPlan{}, err
	}
	if r.isCancelled() {
		return model.CompressionPlan{}, model.CancelledError("cancelled by user")
	}
	return r.o.buildPlan(r.planRequest(*tier), r.capability)
}

// withCancel derives a context that also ends when the user cancels.
func (r *compressionRun) withCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-r.cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (r *compressionRun) checkDiskSpace(ctx context.Context, tier model.QualityTier) error {
	estimate, err := planner.EstimateSize(r.planRequest(tier), r.o.cfg.Planner)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.req.OutputPath)
	free, err := r.o.fs.FreeSpace(ctx, dir)
	if err != nil {
		slog.Warn("free space check skipped",
			"dir", dir,
			"error", err,
		)
		return nil
	}

	required := uint64(float64(estimate.Bytes) * r.o.cfg.DiskHeadroom)
	if free < required {
		return model.ResourceError(fmt.Sprintf("insufficient disk space in %s: %d bytes free, %d required", dir, free, required))
	}
	return nil
}

// buildPlan plans req and attaches the render transform.
func (o *Orchestrator) buildPlan(req model.PlanRequest, capabilityResult model.CapabilityResult) (model.CompressionPlan, error) {
	plan, err := planner.Plan(req, capabilityResult, o.cfg.Planner)
	if err != nil {
		return model.CompressionPlan{}, err
	}

	geometry, err := transform.Compute(req.Source, req.Options, plan.Width, plan.Height, o.cfg.Alignment)
	if err != nil {
		return model.CompressionPlan{}, err
	}
	plan.Width = geometry.RenderWidth
	plan.Height = geometry.RenderHeight
	plan.Transform = geometry.Transform
	return plan, nil
}

// encode runs one attempt and forwards progress until the encoder reports a
// result, the user cancels or ctx ends.
func (r *compressionRun) encode(ctx context.Context, plan model.CompressionPlan) error {
	handle, err := r.o.encoder.Submit(ctx, model.Attempt{Index: r.attempt, Plan: plan}, r.source, r.req.OutputPath)
	if err != nil {
		return encoderError(err)
	}

	outputPath := r.req.OutputPath
	estimates := r.o.estimator.Start(ctx, r.source.Duration, r.source.SizeBytes, func() (int64, error) {
		return r.o.fs.Size(outputPath)
	})
	defer r.o.estimator.Stop()

	events := handle.Events()
	for {
		select {
		case <-r.cancelCh:
			abort(handle)
			return model.CancelledError("cancelled by user")

		case <-ctx.Done():
			abort(handle)
			return model.NewError(model.KindCancelled, "context cancelled", ctx.Err())

		case p, ok := <-estimates:
			if !ok {
				estimates = nil
				continue
			}
			r.reportProgress(p)

		case ev, ok := <-events:
			if !ok {
				return model.NewError(model.KindInternal, "encoder stopped without a result", nil)
			}
			switch ev.Type {
			case transcoder.EventProgress:
				r.reportProgress(ev.Progress)
			case transcoder.EventCompleted:
				return nil
			case transcoder.EventFailed:
				if ev.Err == nil {
					return model.NewError(model.KindInternal, "encoder failed without a reason", nil)
				}
				return encoderError(ev.Err)
			}
		}
	}
}

// abort cancels the encode and waits for it to release the output file.
func abort(h transcoder.Handle) {
	h.Cancel()
	for range h.Events() {
	}
}

// finish builds the result of a successful attempt, falling back to the
// original when the output is not meaningfully smaller.
func (r *compressionRun) finish(plan model.CompressionPlan) (*model.CompressionResult, error) {
	size, err := r.o.fs.Size(r.req.OutputPath)
	if err != nil {
		return nil, r.fail(model.NewError(model.KindInternal, "encoder output missing", err))
	}

	result := &model.CompressionResult{
		SourcePath:         r.source.Path,
		OutputPath:         r.req.OutputPath,
		OriginalSize:       r.source.SizeBytes,
		OutputSize:         size,
		OriginalResolution: r.source.Resolution(),
		OutputResolution:   plan.Resolution(),
		Tier:               plan.Tier,
		Attempts:           r.attempt + 1,
	}

	if float64(size) >= r.o.cfg.FallbackRatio*float64(r.source.SizeBytes) {
		metrics.CompressionFallbacksTotal.Inc()
		slog.Info("output not smaller than original, keeping source",
			"source", r.source.Path,
			"output_size", size,
			"original_size", r.source.SizeBytes,
		)
		r.removeOutput()
		result.FellBackToOriginal = true
		result.OutputPath = r.source.Path
		result.OutputSize = r.source.SizeBytes
		result.OutputResolution = r.source.Resolution()
	} else if r.req.DeleteSource {
		if err := r.o.fs.Remove(r.source.Path); err != nil {
			slog.Warn("failed to delete source",
				"path", r.source.Path,
				"error", err,
			)
		} else {
			result.SourceDeleted = true
		}
	}
	if r.source.SizeBytes > 0 {
		result.Ratio = float64(result.OutputSize) / float64(r.source.SizeBytes)
	}

	r.transition(model.StateCompleted)
	if r.cb.OnProgress != nil {
		r.cb.OnProgress(1)
	}
	return result, nil
}

// encoderError maps encoder failures onto compression error kinds.
func encoderError(err error) error {
	var encErr *transcoder.Error
	if !errors.As(err, &encErr) {
		return model.NewError(model.KindInternal, err.Error(), err)
	}

	var kind model.ErrorKind
	switch encErr.Code {
	case transcoder.CodeCapacity, transcoder.CodeInit:
		kind = model.KindEncoderCapacity
	case transcoder.CodeFormat, transcoder.CodeUnsupported:
		kind = model.KindEncoderFormat
	case transcoder.CodeNotFound:
		kind = model.KindEncoderNotFound
	case transcoder.CodeCancelled:
		kind = model.KindCancelled
	default:
		kind = model.KindInternal
	}
	return model.NewError(kind, encErr.Message, err)
}
