package capability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

type mockSystemInfo struct {
	os        string
	arch      string
	kernel    string
	kernelErr error
	total     uint64
	available uint64
	memErr    error
	cores     int
	mhz       float64
	cpuErr    error
}

func healthyHost() *mockSystemInfo {
	return &mockSystemInfo{
		os:        "linux",
		arch:      "amd64",
		kernel:    "5.15.0-91-generic",
		total:     16 * GiB,
		available: 8 * GiB,
		cores:     8,
		mhz:       3200,
	}
}

func (m *mockSystemInfo) OS() string   { return m.os }
func (m *mockSystemInfo) Arch() string { return m.arch }

func (m *mockSystemInfo) KernelVersion(ctx context.Context) (string, error) {
	return m.kernel, m.kernelErr
}

func (m *mockSystemInfo) Memory(ctx context.Context) (uint64, uint64, error) {
	return m.total, m.available, m.memErr
}

func (m *mockSystemInfo) CPU(ctx context.Context) (int, float64, error) {
	return m.cores, m.mhz, m.cpuErr
}

type mockProbe struct {
	supportsResolutionFn func(ctx context.Context, w, h int, codec model.Codec) (bool, error)
}

func (m *mockProbe) SupportsResolution(ctx context.Context, w, h int, codec model.Codec) (bool, error) {
	if m.supportsResolutionFn != nil {
		return m.supportsResolutionFn(ctx, w, h, codec)
	}
	return true, nil
}

func fastBenchmark(int) float64 { return 1000 }

func TestAnalyzer_Assess(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(sys *mockSystemInfo, probe *mockProbe)
		benchmark   func(int) float64
		wantCapable bool
		wantReason  string
	}{
		{
			name:        "capable host",
			wantCapable: true,
		},
		{
			name:       "unsupported os",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.os = "plan9" },
			wantReason: "unsupported operating system",
		},
		{
			name:       "old kernel",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.kernel = "3.10.0-1160.el7" },
			wantReason: "kernel 3.10.0-1160.el7 is older than 4.4",
		},
		{
			name:        "unknown kernel passes",
			setup:       func(sys *mockSystemInfo, _ *mockProbe) { sys.kernelErr = errors.New("no uname") },
			wantCapable: true,
		},
		{
			name:       "low total memory",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.total = 1 * GiB },
			wantReason: "insufficient total memory",
		},
		{
			name:       "low available memory",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.available = 256 * MiB },
			wantReason: "insufficient available memory",
		},
		{
			name:       "memory unavailable",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.memErr = errors.New("permission denied") },
			wantReason: "memory information unavailable",
		},
		{
			name:       "few cores",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.cores = 2 },
			wantReason: "insufficient cpu cores: 2 < 4",
		},
		{
			name:       "unapproved arch",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.arch = "386" },
			wantReason: "unsupported cpu architecture",
		},
		{
			name:       "slow clock",
			setup:      func(sys *mockSystemInfo, _ *mockProbe) { sys.mhz = 1000 },
			wantReason: "cpu clock too low",
		},
		{
			name:        "unknown clock passes",
			setup:       func(sys *mockSystemInfo, _ *mockProbe) { sys.mhz = 0 },
			wantCapable: true,
		},
		{
			name: "codec probe rejects",
			setup: func(_ *mockSystemInfo, probe *mockProbe) {
				probe.supportsResolutionFn = func(context.Context, int, int, model.Codec) (bool, error) { return false, nil }
			},
			wantReason: "encoder cannot open H264 session at 3840x2160",
		},
		{
			name: "codec probe error",
			setup: func(_ *mockSystemInfo, probe *mockProbe) {
				probe.supportsResolutionFn = func(context.Context, int, int, model.Codec) (bool, error) {
					return false, errors.New("exit status 1")
				}
			},
			wantReason: "encoder cannot open",
		},
		{
			name: "codec probe panic",
			setup: func(_ *mockSystemInfo, probe *mockProbe) {
				probe.supportsResolutionFn = func(context.Context, int, int, model.Codec) (bool, error) { panic("boom") }
			},
			wantReason: "encoder cannot open",
		},
		{
			name:       "slow benchmark",
			benchmark:  func(int) float64 { return 1 },
			wantReason: "cpu benchmark score too low",
		},
		{
			name:        "benchmark panic passes",
			benchmark:   func(int) float64 { panic("fpu") },
			wantCapable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := healthyHost()
			probe := &mockProbe{}
			if tt.setup != nil {
				tt.setup(sys, probe)
			}
			bench := tt.benchmark
			if bench == nil {
				bench = fastBenchmark
			}

			a := NewAnalyzer(DefaultConfig(), sys, probe, WithBenchmark(bench))
			got := a.Assess(context.Background(), Target{Width: 3840, Height: 2160, Codec: model.CodecH264})

			if got.Capable != tt.wantCapable {
				t.Fatalf("Capable = %v, want %v (reason %q)", got.Capable, tt.wantCapable, got.Reason)
			}
			if tt.wantCapable {
				if got.Details == nil {
					t.Fatal("expected details for a capable verdict")
				}
				if got.Details.Cores != sys.cores || !got.Details.CodecSupported {
					t.Errorf("unexpected details: %+v", got.Details)
				}
				return
			}
			if got.Details != nil {
				t.Errorf("expected no details for an incapable verdict, got %+v", got.Details)
			}
			if !strings.Contains(got.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestAnalyzer_ShortCircuits(t *testing.T) {
	sys := healthyHost()
	sys.total = 1 * GiB
	probeCalled := false
	probe := &mockProbe{
		supportsResolutionFn: func(context.Context, int, int, model.Codec) (bool, error) {
			probeCalled = true
			return true, nil
		},
	}
	benchCalled := false

	a := NewAnalyzer(DefaultConfig(), sys, probe, WithBenchmark(func(int) float64 {
		benchCalled = true
		return 1000
	}))
	got := a.Assess(context.Background(), Target{Width: 1920, Height: 1080})

	if got.Capable {
		t.Fatal("expected incapable verdict")
	}
	if probeCalled || benchCalled {
		t.Errorf("later checks ran after a failure: probe=%v benchmark=%v", probeCalled, benchCalled)
	}
}

func TestAnalyzer_CachesVerdict(t *testing.T) {
	var probes atomic.Int32
	probe := &mockProbe{
		supportsResolutionFn: func(context.Context, int, int, model.Codec) (bool, error) {
			probes.Add(1)
			return true, nil
		},
	}
	a := NewAnalyzer(DefaultConfig(), healthyHost(), probe, WithBenchmark(fastBenchmark))
	target := Target{Width: 1920, Height: 1080, Codec: model.CodecHEVC}

	a.Assess(context.Background(), target)
	a.Assess(context.Background(), target)
	if got := probes.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}

	a.Assess(context.Background(), Target{Width: 1280, Height: 720, Codec: model.CodecHEVC})
	if got := probes.Load(); got != 2 {
		t.Errorf("probe calls after new target = %d, want 2", got)
	}

	a.Reset()
	a.Assess(context.Background(), target)
	if got := probes.Load(); got != 3 {
		t.Errorf("probe calls after Reset = %d, want 3", got)
	}
}

func TestAnalyzer_ConcurrentAssessCollapses(t *testing.T) {
	var probes atomic.Int32
	release := make(chan struct{})
	probe := &mockProbe{
		supportsResolutionFn: func(context.Context, int, int, model.Codec) (bool, error) {
			probes.Add(1)
			<-release
			return true, nil
		},
	}
	a := NewAnalyzer(DefaultConfig(), healthyHost(), probe, WithBenchmark(fastBenchmark))
	target := Target{Width: 1920, Height: 1080}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan model.CapabilityResult, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.Assess(context.Background(), target)
		}()
	}

	// Let every caller reach the in-flight evaluation before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for r := range results {
		if !r.Capable {
			t.Errorf("unexpected verdict %+v", r)
		}
	}
	if got := probes.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}
}

func TestAnalyzer_CancelledAssessNotCached(t *testing.T) {
	var probes atomic.Int32
	probe := &mockProbe{
		supportsResolutionFn: func(ctx context.Context, _, _ int, _ model.Codec) (bool, error) {
			probes.Add(1)
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	a := NewAnalyzer(DefaultConfig(), healthyHost(), probe, WithBenchmark(fastBenchmark))
	target := Target{Width: 3840, Height: 2160, Codec: model.CodecHEVC}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := a.Assess(ctx, target)
	if first.Capable {
		t.Fatalf("cancelled Assess() = %+v, want not capable", first)
	}
	if !strings.Contains(first.Reason, "interrupted") {
		t.Errorf("cancelled Assess() reason = %q, want interruption", first.Reason)
	}

	second := a.Assess(context.Background(), target)
	if !second.Capable {
		t.Errorf("Assess() after cancelled call = %+v, want capable", second)
	}
	if got := probes.Load(); got != 2 {
		t.Errorf("probe calls = %d, want 2", got)
	}

	a.Assess(context.Background(), target)
	if got := probes.Load(); got != 2 {
		t.Errorf("probe calls after live verdict = %d, want 2 (cached)", got)
	}
}

func TestAnalyzer_SharedCancelReevaluates(t *testing.T) {
	var probes atomic.Int32
	started := make(chan struct{}, 2)
	probe := &mockProbe{
		supportsResolutionFn: func(ctx context.Context, _, _ int, _ model.Codec) (bool, error) {
			if probes.Add(1) == 1 {
				started <- struct{}{}
				<-ctx.Done()
				return false, ctx.Err()
			}
			return true, nil
		},
	}
	a := NewAnalyzer(DefaultConfig(), healthyHost(), probe, WithBenchmark(fastBenchmark))
	target := Target{Width: 1920, Height: 1080}

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan model.CapabilityResult, 1)
	go func() { firstDone <- a.Assess(ctx, target) }()
	<-started

	secondDone := make(chan model.CapabilityResult, 1)
	go func() { secondDone <- a.Assess(context.Background(), target) }()

	// Let the second caller join the in-flight evaluation.
	time.Sleep(50 * time.Millisecond)
	cancel()

	if r := <-firstDone; r.Capable {
		t.Errorf("cancelled caller verdict = %+v, want not capable", r)
	}
	select {
	case r := <-secondDone:
		if !r.Capable {
			t.Errorf("live caller verdict = %+v, want capable", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"5.15.0-91-generic", "4.4", 1},
		{"4.4", "4.4", 0},
		{"4.4.0", "4.4", 0},
		{"4.3.99", "4.4", -1},
		{"3.10.0-1160.el7.x86_64", "4.4", -1},
		{"6.1", "6.10", -1},
	}

	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBenchmark(t *testing.T) {
	if score := Benchmark(10_000); score <= 0 {
		t.Errorf("Benchmark() = %f, want positive score", score)
	}
}
