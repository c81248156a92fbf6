// Package progress estimates encode progress from elapsed time and the size
// of the growing output file, for encoders that do not report their own.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/gocompress/internal/clock"
)

// SizeProbe returns the current size of the output file in bytes.
type SizeProbe func() (int64, error)

// Config holds the estimator tunables.
type Config struct {
	// GraceDelay postpones the first sample while the encoder starts up.
	GraceDelay   time.Duration
	PollInterval time.Duration

	// Slowdown stretches the source duration into the expected encode time.
	Slowdown float64
	// CompressionRatio is the expected output size relative to the source.
	CompressionRatio float64
	// SizeCacheTTL bounds how often the output file is measured.
	SizeCacheTTL time.Duration

	TimeCap     float64
	SizeCap     float64
	SizeWeight  float64
	MaxProgress float64
}

// DefaultConfig returns the default estimator tunables.
func DefaultConfig() Config {
	return Config{
		GraceDelay:       time.Second,
		PollInterval:     100 * time.Millisecond,
		Slowdown:         1.5,
		CompressionRatio: 0.5,
		SizeCacheTTL:     500 * time.Millisecond,
		TimeCap:          0.95,
		SizeCap:          0.95,
		SizeWeight:       0.7,
		MaxProgress:      0.98,
	}
}

// Estimator produces a non-decreasing progress signal in [0, MaxProgress].
// It never reports completion; that is left to the encoder.
type Estimator struct {
	cfg   Config
	clock clock.Clock

	active atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEstimator creates an Estimator. A nil clock uses the system clock.
func NewEstimator(cfg Config, clk clock.Clock) *Estimator {
	if clk == nil {
		clk = clock.System()
	}
	return &Estimator{cfg: cfg, clock: clk}
}

// Start begins sampling and returns the progress channel. The channel is
// closed when the estimator stops. Starting an active estimator stops the
// previous run first.
func (e *Estimator) Start(ctx context.Context, duration time.Duration, originalBytes int64, probe SizeProbe) <-chan float64 {
	e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan float64, 1)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.active.Store(true)

	s := &sampler{
		cfg:      e.cfg,
		duration: duration,
		original: originalBytes,
		probe:    probe,
	}
	go e.run(ctx, s, e.clock.Now(), out, done)
	return out
}

// Stop halts sampling and waits for the sampling goroutine to exit. No value
// is sent after Stop returns. Stop is idempotent.
func (e *Estimator) Stop() {
	if !e.active.CompareAndSwap(true, false) {
		return
	}

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// IsActive reports whether the estimator is sampling.
func (e *Estimator) IsActive() bool {
	return e.active.Load()
}

func (e *Estimator) run(ctx context.Context, s *sampler, start time.Time, out chan<- float64, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	if e.cfg.GraceDelay > 0 {
		grace := time.NewTimer(e.cfg.GraceDelay)
		select {
		case <-ctx.Done():
			grace.Stop()
			return
		case <-grace.C:
		}
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var last float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.clock.Now()
			p := s.progress(now.Sub(start), s.size(now))
			if p <= last {
				continue
			}
			last = p
			// Drop the sample when the consumer is behind; a later one supersedes it.
			select {
			case out <- p:
			default:
			}
		}
	}
}

// sampler holds the per-run estimation state.
type sampler struct {
	cfg      Config
	duration time.Duration
	original int64
	probe    SizeProbe

	cachedSize int64
	measuredAt time.Time
}

// size returns the output size, measuring at most once per SizeCacheTTL.
// Probe errors keep the previous measurement.
func (s *sampler) size(now time.Time) int64 {
	if s.probe == nil {
		return 0
	}
	if !s.measuredAt.IsZero() && now.Sub(s.measuredAt) < s.cfg.SizeCacheTTL {
		return s.cachedSize
	}
	if n, err := s.probe(); err == nil {
		s.cachedSize = n
	}
	s.measuredAt = now
	return s.cachedSize
}

// progress combines the time and size signals.
func (s *sampler) progress(elapsed time.Duration, outputBytes int64) float64 {
	var timeP, sizeP float64
	if s.duration > 0 && s.cfg.Slowdown > 0 {
		timeP = min(elapsed.Seconds()/(s.duration.Seconds()*s.cfg.Slowdown), s.cfg.TimeCap)
	}
	if s.original > 0 && s.cfg.CompressionRatio > 0 && outputBytes > 0 {
		sizeP = min(float64(outputBytes)/(float64(s.original)*s.cfg.CompressionRatio), s.cfg.SizeCap)
	}

	p := max(timeP, s.cfg.SizeWeight*sizeP)
	return max(0, min(p, s.cfg.MaxProgress))
}
