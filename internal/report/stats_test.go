package report

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stillgrab/stillgrab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndSnapshot(t *testing.T) {
	s := NewStats()
	s.Record(domain.OutcomeUploaded)
	s.Record(domain.OutcomeUploaded)
	s.Record(domain.OutcomeFailed)
	s.Record(domain.OutcomeSkippedExists)
	s.Record(domain.OutcomeSkippedCache)
	s.RecordSizeSkip("Videos/b.mov", 5000<<20)

	sum := s.Snapshot()
	assert.Equal(t, 2, sum.Uploaded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.SkippedSize)
	assert.Equal(t, 1, sum.SkippedExists)
	assert.Equal(t, 1, sum.SkippedCache)
	assert.Equal(t, 6, sum.Total())

	require.Len(t, sum.SizeSkips, 1)
	assert.Equal(t, "Videos/b.mov", sum.SizeSkips[0].RelPath)
	assert.InDelta(t, 5000, sum.SizeSkips[0].SizeMB, 0.01)
}

func TestConcurrentRecords(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Record(domain.OutcomeUploaded)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, s.Snapshot().Uploaded)
}

func TestRenderListsSizeSkips(t *testing.T) {
	s := NewStats()
	s.Record(domain.OutcomeUploaded)
	s.RecordSizeSkip("Videos/b.mov", 5000<<20)

	out := Render(s.Snapshot(), 90*time.Second)
	assert.True(t, strings.Contains(out, "Videos/b.mov"))
	assert.True(t, strings.Contains(out, "5000 MB"))
}
