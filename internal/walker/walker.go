// Package walker descends the remote tree, skipping folders whose
// modification marker and scan age show nothing changed, and dispatches
// new video candidates to the job lanes.
package walker

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/stillgrab/stillgrab/internal/cache"
	"github.com/stillgrab/stillgrab/internal/domain"
	"github.com/stillgrab/stillgrab/internal/report"
	"github.com/stillgrab/stillgrab/internal/sched"
)

// Tree lists and stats the remote file tree.
type Tree interface {
	Stat(path string) (domain.Entry, error)
	List(path string) ([]domain.Entry, error)
}

// Resolver answers thumbnail existence for a batch of relative paths.
type Resolver interface {
	ResolveBatch(ctx context.Context, relPaths []string) map[string]bool
}

// CacheStore is the slice of the cache repository the walker and processor
// use.
type CacheStore interface {
	Folder(path string) (cache.FolderEntry, bool)
	SetFolder(path string, entry cache.FolderEntry) error
	IsDone(rel string) bool
	IsFailed(rel string) bool
	MarkDone(rel string) error
	MarkFailed(rel string) error
}

// JobRunner executes one candidate to a terminal outcome.
type JobRunner interface {
	Process(ctx context.Context, c domain.Candidate)
}

// Walker orchestrates one crawl.
type Walker struct {
	tree     Tree
	repo     CacheStore
	resolver Resolver
	jobs     JobRunner
	ioLane   *sched.Lane
	stats    *report.Stats
	logger   *slog.Logger

	cooldown time.Duration
	force    bool
	exts     map[string]struct{}

	now func() time.Time // test hook
}

// New creates a walker. exts is the recognized extension set (lowercase,
// with dot). force disables every cache read gate while leaving writes on.
func New(tree Tree, repo CacheStore, resolver Resolver, jobs JobRunner, ioLane *sched.Lane, stats *report.Stats, cooldown time.Duration, exts []string, force bool, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = struct{}{}
	}
	return &Walker{
		tree:     tree,
		repo:     repo,
		resolver: resolver,
		jobs:     jobs,
		ioLane:   ioLane,
		stats:    stats,
		logger:   logger,
		cooldown: cooldown,
		force:    force,
		exts:     extSet,
		now:      time.Now,
	}
}

// Scan walks one directory recursively, depth-first and sequential. It
// returns true if the subtree contains at least one recognized video.
// Dispatched jobs are not awaited; the lanes bound how much is in flight.
func (w *Walker) Scan(ctx context.Context, dir string) bool {
	dir = normalize(dir)

	// A transient stat failure must not poison the cache with a false
	// "up to date" signal, so the subtree is abandoned without writes.
	meta, err := w.tree.Stat(dir)
	if err != nil {
		w.logger.Warn("stat failed, skipping subtree", "dir", dir, "error", err)
		return false
	}

	if !w.force {
		if entry, ok := w.repo.Folder(dir); ok && entry.Modified == meta.Modified {
			age := w.now().Sub(time.UnixMilli(entry.ScannedAt))
			if age < w.cooldown {
				w.logger.Debug("folder unchanged, skipping", "dir", dir, "age", age)
				return false
			}
			// Cooldown elapsed: re-validate even though the marker matches,
			// in case the marker does not capture every relevant change.
		}
	}

	entries, err := w.tree.List(dir)
	if err != nil {
		w.logger.Warn("listing failed, skipping subtree", "dir", dir, "error", err)
		return false
	}

	hasMedia := false
	var fresh []domain.Candidate

	for _, e := range entries {
		if e.IsDir {
			if w.Scan(ctx, e.Path) {
				hasMedia = true
			}
			continue
		}

		ext := strings.ToLower(path.Ext(e.Name))
		if _, ok := w.exts[ext]; !ok {
			continue
		}
		hasMedia = true

		c := domain.Candidate{
			AbsPath: e.Path,
			RelPath: strings.TrimPrefix(e.Path, "/"),
			Ext:     ext,
			Size:    e.Size,
		}
		if !w.force && (w.repo.IsDone(c.RelPath) || w.repo.IsFailed(c.RelPath)) {
			w.stats.Record(domain.OutcomeSkippedCache)
			continue
		}
		fresh = append(fresh, c)
	}

	w.dispatch(ctx, fresh)

	// Written only after the listing and all dispatch decisions, though
	// not after job completion: re-runs re-check individual files through
	// the thumb/fail caches, not the folder cache.
	entry := cache.FolderEntry{ScannedAt: w.now().UnixMilli(), Modified: meta.Modified}
	if err := w.repo.SetFolder(dir, entry); err != nil {
		w.logger.Error("failed to persist folder cache entry", "dir", dir, "error", err)
	}

	return hasMedia
}

// dispatch batches the existence check for a directory's new candidates
// and submits the unconfirmed ones to the I/O lane.
func (w *Walker) dispatch(ctx context.Context, fresh []domain.Candidate) {
	if len(fresh) == 0 {
		return
	}

	exists := map[string]bool{}
	if !w.force {
		rels := make([]string, len(fresh))
		for i, c := range fresh {
			rels[i] = c.RelPath
		}
		exists = w.resolver.ResolveBatch(ctx, rels)
	}

	for _, c := range fresh {
		if exists[c.RelPath] {
			// The server already has it; remember that and move on.
			if err := w.repo.MarkDone(c.RelPath); err != nil {
				w.logger.Error("failed to persist thumb cache entry", "path", c.RelPath, "error", err)
			}
			w.stats.Record(domain.OutcomeSkippedExists)
			continue
		}

		c := c
		w.ioLane.Submit(func() {
			w.jobs.Process(ctx, c)
		})
	}
}

// normalize ensures a server-relative absolute path starting with "/".
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "/" {
		p = strings.TrimRight(p, "/")
	}
	return p
}
