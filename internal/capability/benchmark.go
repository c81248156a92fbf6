package capability

import (
	"math"
	"time"
)

// DefaultBenchmarkIterations is the fixed workload of the CPU micro-benchmark.
const DefaultBenchmarkIterations = 200_000

// benchmarkSink keeps the compiler from eliding the benchmark loop.
var benchmarkSink float64

// Benchmark runs a fixed floating-point workload and returns the number of
// iterations completed per millisecond.
func Benchmark(iterations int) float64 {
	start := time.Now()
	var acc float64
	for i := range iterations {
		x := float64(i) + 1
		acc += math.Sqrt(x) * math.Sin(x) / (1 + math.Abs(math.Cos(x)))
	}
	benchmarkSink = acc

	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	if ms <= 0 {
		return float64(iterations)
	}
	return float64(iterations) / ms
}
