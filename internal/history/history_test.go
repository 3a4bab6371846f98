package history

import (
	"testing"
	"time"

	"github.com/stillgrab/stillgrab/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir(), "https://cloud.example.com")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := NewRecord(base.Add(time.Duration(i)*time.Hour), base.Add(time.Duration(i)*time.Hour+time.Minute),
			"/Videos", i == 2, report.Summary{Uploaded: i})
		require.NoError(t, j.Append(rec))
	}

	recs, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	// Newest first.
	assert.Equal(t, 2, recs[0].Uploaded)
	assert.True(t, recs[0].Force)
	assert.Equal(t, 0, recs[2].Uploaded)
	assert.Equal(t, "/Videos", recs[0].Root)
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(RunRecord{Uploaded: i}))
	}

	recs, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 4, recs[0].Uploaded)
	assert.Equal(t, 3, recs[1].Uploaded)
}

func TestSeparateServersSeparateFiles(t *testing.T) {
	dir := t.TempDir()

	a, err := Open(dir, "https://a.example.com")
	require.NoError(t, err)
	require.NoError(t, a.Append(RunRecord{Uploaded: 1}))
	require.NoError(t, a.Close())

	b, err := Open(dir, "https://b.example.com")
	require.NoError(t, err)
	defer b.Close()

	recs, err := b.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHashServerURLNormalizes(t *testing.T) {
	assert.Equal(t, hashServerURL("https://Cloud.Example.com/"), hashServerURL("https://cloud.example.com"))
}
