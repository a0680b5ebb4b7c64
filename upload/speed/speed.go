// Package speed measures the wall-clock duration of a transfer and derives throughput samples from it.
package speed

import (
	"math"
	"time"
)

// Unmeasured is reported as throughput when the elapsed time is too small to divide by.
const Unmeasured = 0.0

const bytesPerMB = 1024 * 1024

// Sample is the outcome of one measured transfer.
type Sample struct {
	Bytes   int64
	Elapsed time.Duration
}

// Seconds ...
func (s Sample) Seconds() float64 {
	return s.Elapsed.Seconds()
}

// MBps returns the throughput in MiB per second, rounded to two decimals.
func (s Sample) MBps() float64 {
	return mbps(s.Bytes, s.Elapsed)
}

func mbps(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 || bytes < 0 {
		return Unmeasured
	}
	v := float64(bytes) / elapsed.Seconds() / bytesPerMB
	return math.Round(v*100) / 100
}

// Sampler times units of work with a monotonic clock.
type Sampler struct {
	now func() time.Time
}

// NewSampler creates a Sampler. A nil clock defaults to time.Now, which carries a monotonic reading.
func NewSampler(now func() time.Time) *Sampler {
	if now == nil {
		now = time.Now
	}
	return &Sampler{now: now}
}

// Measure runs fn and returns how long it took to move the given number of bytes.
// The sample is returned even when fn fails.
func (s *Sampler) Measure(bytes int64, fn func() error) (Sample, error) {
	start := s.now()
	err := fn()
	end := s.now()

	return Sample{
		Bytes:   bytes,
		Elapsed: end.Sub(start),
	}, err
}
