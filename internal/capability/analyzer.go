// Package capability decides whether the host can encode a target frame
// size. Checks run in order and the first failing check decides the verdict.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/hszk-dev/gocompress/internal/domain/model"
	"github.com/hszk-dev/gocompress/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	GiB = 1 << 30
	MiB = 1 << 20
)

// Target is the encode the host is assessed for.
type Target struct {
	Width  int
	Height int
	Codec  model.Codec
}

func (t Target) key() string {
	return fmt.Sprintf("%dx%d/%s", t.Width, t.Height, t.Codec)
}

// Probe asks the encoder whether it can open a session at the given size.
type Probe interface {
	SupportsResolution(ctx context.Context, width, height int, codec model.Codec) (bool, error)
}

// Config holds the capability thresholds.
type Config struct {
	SupportedOS      []string
	MinKernelVersion string

	MinTotalMemory     uint64
	MinAvailableMemory uint64

	MinCores     int
	ApprovedArch []string
	MinClockMHz  float64

	BenchmarkIterations int
	MinBenchmarkScore   float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		SupportedOS:         []string{"linux", "darwin", "windows"},
		MinKernelVersion:    "4.4",
		MinTotalMemory:      2 * GiB,
		MinAvailableMemory:  512 * MiB,
		MinCores:            4,
		ApprovedArch:        []string{"amd64", "arm64"},
		MinClockMHz:         1500,
		BenchmarkIterations: DefaultBenchmarkIterations,
		MinBenchmarkScore:   50,
	}
}

// Analyzer assesses device capability. Verdicts are cached per target and
// concurrent assessments of the same target share a single evaluation.
type Analyzer struct {
	cfg       Config
	sys       SystemInfo
	probe     Probe
	cache     ResultCache
	benchmark func(iterations int) float64

	group singleflight.Group
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache replaces the default in-memory result cache.
func WithCache(c ResultCache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithBenchmark replaces the CPU micro-benchmark.
func WithBenchmark(fn func(iterations int) float64) Option {
	return func(a *Analyzer) { a.benchmark = fn }
}

// NewAnalyzer creates an Analyzer. A nil probe skips the codec check.
func NewAnalyzer(cfg Config, sys SystemInfo, probe Probe, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:       cfg,
		sys:       sys,
		probe:     probe,
		cache:     NewMemoryCache(),
		benchmark: Benchmark,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess returns the capability verdict for target.
func (a *Analyzer) Assess(ctx context.Context, target Target) model.CapabilityResult {
	key := target.key()
	if result, ok := a.cache.Get(key); ok {
		metrics.CapabilityChecksTotal.WithLabelValues(metrics.CapabilityCached).Inc()
		return result
	}

	result, err := a.evaluateShared(ctx, key, target)
	if err != nil && ctx.Err() == nil {
		// The caller that started the shared evaluation was cancelled.
		result, err = a.evaluateShared(ctx, key, target)
	}
	if err != nil {
		return model.CapabilityResult{
			Capable: false,
			Reason:  fmt.Sprintf("capability assessment interrupted: %v", err),
		}
	}

	if result.Capable {
		metrics.CapabilityChecksTotal.WithLabelValues(metrics.CapabilityCapable).Inc()
	} else {
		metrics.CapabilityChecksTotal.WithLabelValues(metrics.CapabilityIncapable).Inc()
	}
	return result
}

// evaluateShared runs one evaluation per key at a time. A verdict reached
// after ctx was cancelled is not cached, since the checks it aborted would
// otherwise be remembered as failures.
func (a *Analyzer) evaluateShared(ctx context.Context, key string, target Target) (model.CapabilityResult, error) {
	v, err, shared := a.group.Do(key, func() (any, error) {
		result := a.evaluate(ctx, target)
		if err := ctx.Err(); err != nil {
			return result, err
		}
		a.cache.Set(key, result)
		return result, nil
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	return v.(model.CapabilityResult), err
}

// Reset discards all cached verdicts.
func (a *Analyzer) Reset() {
	a.cache.Clear()
}

func (a *Analyzer) evaluate(ctx context.Context, target Target) model.CapabilityResult {
	details := &model.CapabilityDetails{Arch: a.sys.Arch()}

	checks := []func(context.Context, Target, *model.CapabilityDetails) string{
		a.checkPlatform,
		a.checkMemory,
		a.checkCPU,
		a.checkCodec,
		a.checkBenchmark,
	}
	for _, check := range checks {
		if reason := check(ctx, target, details); reason != "" {
			slog.Info("device not capable",
				"target", target.key(),
				"reason", reason,
			)
			return model.CapabilityResult{Capable: false, Reason: reason}
		}
	}

	return model.CapabilityResult{Capable: true, Reason: "all checks passed", Details: details}
}

func (a *Analyzer) checkPlatform(ctx context.Context, _ Target, _ *model.CapabilityDetails) string {
	goos := a.sys.OS()
	if !slices.Contains(a.cfg.SupportedOS, goos) {
		return fmt.Sprintf("unsupported operating system %q", goos)
	}
	if goos != "linux" || a.cfg.MinKernelVersion == "" {
		return ""
	}

	version, err := a.sys.KernelVersion(ctx)
	if err != nil || version == "" {
		// Unknown kernel versions are not held against the host.
		return ""
	}
	if compareVersions(version, a.cfg.MinKernelVersion) < 0 {
		return fmt.Sprintf("kernel %s is older than %s", version, a.cfg.MinKernelVersion)
	}
	return ""
}

func (a *Analyzer) checkMemory(ctx context.Context, _ Target, d *model.CapabilityDetails) string {
	total, available, err := a.sys.Memory(ctx)
	if err != nil {
		return fmt.Sprintf("memory information unavailable: %v", err)
	}
	d.TotalMemory, d.AvailableMemory = total, available

	if total < a.cfg.MinTotalMemory {
		return fmt.Sprintf("insufficient total memory: %d MiB < %d MiB", total/MiB, a.cfg.MinTotalMemory/MiB)
	}
	if available < a.cfg.MinAvailableMemory {
		return fmt.Sprintf("insufficient available memory: %d MiB < %d MiB", available/MiB, a.cfg.MinAvailableMemory/MiB)
	}
	return ""
}

func (a *Analyzer) checkCPU(ctx context.Context, _ Target, d *model.CapabilityDetails) string {
	cores, mhz, err := a.sys.CPU(ctx)
	if err != nil {
		return fmt.Sprintf("cpu information unavailable: %v", err)
	}
	d.Cores, d.ClockMHz = cores, mhz

	if cores < a.cfg.MinCores {
		return fmt.Sprintf("insufficient cpu cores: %d < %d", cores, a.cfg.MinCores)
	}
	if !slices.Contains(a.cfg.ApprovedArch, d.Arch) {
		return fmt.Sprintf("unsupported cpu architecture %q", d.Arch)
	}
	// A zero clock means the platform does not report it.
	if mhz > 0 && mhz < a.cfg.MinClockMHz {
		return fmt.Sprintf("cpu clock too low: %.0f MHz < %.0f MHz", mhz, a.cfg.MinClockMHz)
	}
	return ""
}

func (a *Analyzer) checkCodec(ctx context.Context, t Target, d *model.CapabilityDetails) string {
	if a.probe == nil {
		d.CodecSupported = true
		return ""
	}

	codec := t.Codec
	if codec == "" {
		codec = model.CodecH264
	}
	if !a.probeSafely(ctx, t.Width, t.Height, codec) {
		return fmt.Sprintf("encoder cannot open %s session at %dx%d", codec, t.Width, t.Height)
	}
	d.CodecSupported = true
	return ""
}

// probeSafely treats probe errors and panics as unsupported.
func (a *Analyzer) probeSafely(ctx context.Context, w, h int, codec model.Codec) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("capability probe panicked", "panic", r)
			ok = false
		}
	}()

	supported, err := a.probe.SupportsResolution(ctx, w, h, codec)
	if err != nil {
		slog.Warn("capability probe failed", "error", err)
		return false
	}
	return supported
}

func (a *Analyzer) checkBenchmark(_ context.Context, _ Target, d *model.CapabilityDetails) string {
	score := a.runBenchmark()
	d.BenchmarkScore = score
	if score < a.cfg.MinBenchmarkScore {
		return fmt.Sprintf("cpu benchmark score too low: %.1f < %.1f", score, a.cfg.MinBenchmarkScore)
	}
	return ""
}

// runBenchmark falls back to a passing score when the benchmark panics.
func (a *Analyzer) runBenchmark() (score float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("cpu benchmark panicked", "panic", r)
			score = a.cfg.MinBenchmarkScore
		}
	}()
	return a.benchmark(a.cfg.BenchmarkIterations)
}

// compareVersions compares dotted numeric versions, ignoring any suffix
// after the numeric prefix of each component ("5.15.0-91-generic").
func compareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := range max(len(pa), len(pb)) {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	var parts []int
	for _, field := range strings.Split(v, ".") {
		end := 0
		for end < len(field) && field[end] >= '0' && field[end] <= '9' {
			end++
		}
		if end == 0 {
			break
		}
		n, _ := strconv.Atoi(field[:end])
		parts = append(parts, n)
		if end < len(field) {
			break
		}
	}
	return parts
}
