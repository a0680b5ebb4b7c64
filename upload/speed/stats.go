package speed

import "time"

// Stats sums the samples of one upload. It is owned by a single upload and not safe for concurrent use.
type Stats struct {
	elapsed time.Duration
	bytes   int64
	count   int
	slowest Sample
}

// Update records an acknowledged partition.
func (s *Stats) Update(sample Sample) {
	s.elapsed += sample.Elapsed
	s.bytes += sample.Bytes
	s.count++
	if sample.Elapsed > s.slowest.Elapsed {
		s.slowest = sample
	}
}

// Average returns the mean round trip of the recorded partitions.
func (s *Stats) Average() time.Duration {
	if s.count == 0 {
		return 0
	}
	return s.elapsed / time.Duration(s.count)
}

// Slowest returns the sample with the longest round trip.
func (s *Stats) Slowest() Sample {
	return s.slowest
}

// AverageMBps returns the throughput over every recorded partition.
func (s *Stats) AverageMBps() float64 {
	return mbps(s.bytes, s.elapsed)
}
