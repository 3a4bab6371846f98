// Package report accumulates per-run outcome counters and renders the
// end-of-run summary.
package report

import (
	"sync"

	"github.com/stillgrab/stillgrab/internal/domain"
)

// Stats collects outcome counters for one run. Safe for concurrent jobs.
type Stats struct {
	mu        sync.Mutex
	counts    map[domain.Outcome]int
	sizeSkips []domain.SizeSkip
}

// NewStats returns an empty per-run accumulator.
func NewStats() *Stats {
	return &Stats{counts: make(map[domain.Outcome]int)}
}

// Record counts one candidate outcome.
func (s *Stats) Record(o domain.Outcome) {
	s.mu.Lock()
	s.counts[o]++
	s.mu.Unlock()
}

// RecordSizeSkip counts a size-skip and remembers the path and size for the
// summary listing.
func (s *Stats) RecordSizeSkip(relPath string, sizeBytes int64) {
	s.mu.Lock()
	s.counts[domain.OutcomeSkippedSize]++
	s.sizeSkips = append(s.sizeSkips, domain.SizeSkip{
		RelPath: relPath,
		SizeMB:  float64(sizeBytes) / (1 << 20),
	})
	s.mu.Unlock()
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Uploaded      int
	Failed        int
	SkippedSize   int
	SkippedExists int
	SkippedCache  int
	SizeSkips     []domain.SizeSkip
}

// Snapshot returns a copy of the current counts.
func (s *Stats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	skips := make([]domain.SizeSkip, len(s.sizeSkips))
	copy(skips, s.sizeSkips)
	return Summary{
		Uploaded:      s.counts[domain.OutcomeUploaded],
		Failed:        s.counts[domain.OutcomeFailed],
		SkippedSize:   s.counts[domain.OutcomeSkippedSize],
		SkippedExists: s.counts[domain.OutcomeSkippedExists],
		SkippedCache:  s.counts[domain.OutcomeSkippedCache],
		SizeSkips:     skips,
	}
}

// Total returns the number of candidates that reached a terminal state.
func (s Summary) Total() int {
	return s.Uploaded + s.Failed + s.SkippedSize + s.SkippedExists + s.SkippedCache
}
