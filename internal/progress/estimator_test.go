package progress

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/gocompress/internal/clock"
)

func TestSampler_Progress(t *testing.T) {
	s := &sampler{cfg: DefaultConfig(), duration: 10 * time.Second, original: 1000}

	tests := []struct {
		name    string
		elapsed time.Duration
		size    int64
		want    float64
	}{
		{"start", 0, 0, 0},
		{"time only", 7500 * time.Millisecond, 0, 0.5},
		{"time capped", time.Hour, 0, 0.95},
		{"size weighted", 0, 250, 0.35},
		{"size capped", 0, 10_000, 0.7 * 0.95},
		{"max of both", 1500 * time.Millisecond, 400, 0.56},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.progress(tt.elapsed, tt.size); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("progress(%s, %d) = %f, want %f", tt.elapsed, tt.size, got, tt.want)
			}
		})
	}
}

func TestSampler_ProgressClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeCap = 1.5
	s := &sampler{cfg: cfg, duration: time.Second}

	if got := s.progress(time.Hour, 0); got != 0.98 {
		t.Errorf("progress() = %f, want 0.98", got)
	}
}

func TestSampler_ZeroDuration(t *testing.T) {
	s := &sampler{cfg: DefaultConfig()}
	if got := s.progress(time.Minute, 100); got != 0 {
		t.Errorf("progress() = %f, want 0 without duration or original size", got)
	}
}

func TestSampler_SizeCache(t *testing.T) {
	var calls atomic.Int32
	s := &sampler{
		cfg: DefaultConfig(),
		probe: func() (int64, error) {
			return int64(calls.Add(1)) * 100, nil
		},
	}
	now := time.Unix(0, 0)

	if got := s.size(now); got != 100 {
		t.Fatalf("size() = %d, want 100", got)
	}
	if got := s.size(now.Add(400 * time.Millisecond)); got != 100 {
		t.Errorf("size() within TTL = %d, want cached 100", got)
	}
	if got := s.size(now.Add(500 * time.Millisecond)); got != 200 {
		t.Errorf("size() after TTL = %d, want 200", got)
	}
}

func TestSampler_SizeProbeError(t *testing.T) {
	fail := false
	s := &sampler{
		cfg: DefaultConfig(),
		probe: func() (int64, error) {
			if fail {
				return 0, errors.New("file not found")
			}
			return 300, nil
		},
	}
	now := time.Unix(0, 0)
	s.size(now)
	fail = true
	if got := s.size(now.Add(time.Second)); got != 300 {
		t.Errorf("size() after probe error = %d, want previous 300", got)
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.GraceDelay = 0
	cfg.PollInterval = time.Millisecond
	cfg.SizeCacheTTL = 0
	return cfg
}

func TestEstimator_MonotonicAndBounded(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	var size atomic.Int64
	est := NewEstimator(fastConfig(), clk)

	ch := est.Start(context.Background(), 10*time.Second, 1_000_000, func() (int64, error) {
		return size.Load(), nil
	})

	var values []float64
	deadline := time.After(5 * time.Second)
	for step := 0; len(values) < 5; step++ {
		clk.Advance(time.Second)
		// Shrinking output must not move progress backwards.
		size.Store(int64(step%2) * 400_000)
		select {
		case p := <-ch:
			values = append(values, p)
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("received %d values before deadline", len(values))
		}
	}
	est.Stop()

	for i, p := range values {
		if p < 0 || p > 0.98 {
			t.Errorf("value %d = %f out of range", i, p)
		}
		if i > 0 && p < values[i-1] {
			t.Errorf("value %d = %f decreased from %f", i, p, values[i-1])
		}
	}
}

func TestEstimator_StopClosesChannel(t *testing.T) {
	est := NewEstimator(fastConfig(), clock.NewManual(time.Unix(0, 0)))
	ch := est.Start(context.Background(), time.Second, 100, nil)

	if !est.IsActive() {
		t.Fatal("expected estimator to be active")
	}
	est.Stop()
	est.Stop()
	if est.IsActive() {
		t.Error("expected estimator to be inactive after Stop")
	}

	// Drain at most the single buffered value; the channel must be closed.
	for range 2 {
		if _, ok := <-ch; !ok {
			return
		}
	}
	t.Error("channel not closed after Stop")
}

func TestEstimator_GraceDelay(t *testing.T) {
	cfg := fastConfig()
	cfg.GraceDelay = time.Hour
	clk := clock.NewManual(time.Unix(0, 0))
	est := NewEstimator(cfg, clk)

	ch := est.Start(context.Background(), time.Second, 100, nil)
	clk.Advance(time.Minute)

	select {
	case p := <-ch:
		t.Errorf("received %f during grace delay", p)
	case <-time.After(50 * time.Millisecond):
	}
	est.Stop()
}

func TestEstimator_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	est := NewEstimator(fastConfig(), clock.NewManual(time.Unix(0, 0)))
	ch := est.Start(ctx, time.Second, 100, nil)
	cancel()

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				est.Stop()
				return
			}
		case <-timeout:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestEstimator_Restart(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	est := NewEstimator(fastConfig(), clk)

	first := est.Start(context.Background(), time.Second, 100, nil)
	second := est.Start(context.Background(), time.Second, 100, nil)

	for range 2 {
		if _, ok := <-first; !ok {
			break
		}
	}
	if _, ok := <-first; ok {
		t.Error("first channel should be closed after restart")
	}

	clk.Advance(time.Second)
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Error("second run produced no progress")
	}
	est.Stop()
}
