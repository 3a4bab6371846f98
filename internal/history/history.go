// Package history keeps a per-server journal of completed runs in a
// BoltDB file, so past crawls can be inspected without digging through
// logs.
package history

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stillgrab/stillgrab/internal/report"
	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// RunRecord is one finished crawl.
type RunRecord struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Root       string    `json:"root"`
	Force      bool      `json:"force"`

	Uploaded      int `json:"uploaded"`
	Failed        int `json:"failed"`
	SkippedSize   int `json:"skipped_size"`
	SkippedExists int `json:"skipped_exists"`
	SkippedCache  int `json:"skipped_cache"`
}

// NewRecord builds a record from a finished run's summary.
func NewRecord(started, finished time.Time, root string, force bool, sum report.Summary) RunRecord {
	return RunRecord{
		StartedAt:     started,
		FinishedAt:    finished,
		Root:          root,
		Force:         force,
		Uploaded:      sum.Uploaded,
		Failed:        sum.Failed,
		SkippedSize:   sum.SkippedSize,
		SkippedExists: sum.SkippedExists,
		SkippedCache:  sum.SkippedCache,
	}
}

// Journal persists run records, one database per server.
type Journal struct {
	db *bolt.DB
}

// Open creates or opens the journal under baseDir. Each server gets its
// own subdirectory keyed by a hash of its URL, so pointing the tool at a
// different server never mixes histories.
func Open(baseDir, serverURL string) (*Journal, error) {
	dir := baseDir
	if serverURL != "" {
		dir = filepath.Join(baseDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "history.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Append stores a run record. Keys are the bucket's auto-increment
// sequence, big-endian, so iteration order is insertion order.
func (j *Journal) Append(rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (j *Journal) Recent(n int) ([]RunRecord, error) {
	var out []RunRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
