package main

import (
	"fmt"
	"slices"
	"time"
)

type phaseStats struct {
	elapsed  time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func summarize(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	slices.Sort(samples)
	return phaseStats{
		elapsed:  elapsed,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
}

// percentile expects sorted samples and uses the nearest-rank-below rule.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = max(0, min(p, 100))
	return sorted[(len(sorted)-1)*p/100]
}

func (s phaseStats) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.ops) / s.elapsed.Seconds()
}

func (s phaseStats) format(name string) string {
	us := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	return fmt.Sprintf("%s: ops=%d failures=%d elapsed=%s ops/sec=%.0f p50=%s p95=%s p99=%s",
		name, s.ops, s.failures, s.elapsed.Round(time.Millisecond), s.rate(), us(s.p50), us(s.p95), us(s.p99))
}
