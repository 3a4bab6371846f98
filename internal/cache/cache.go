// Package cache persists the three crawl caches: per-folder scan state,
// the set of paths already thumbnailed, and the set of paths that failed.
package cache

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	folderFile = "folders.csv"
	doneFile   = "done.txt"
	failedFile = "failed.txt"
)

// FolderEntry records the last successful scan of one remote folder.
type FolderEntry struct {
	ScannedAt int64  // wall-clock epoch millis of the last full scan
	Modified  string // opaque modification marker observed at that scan
}

// Repository owns the on-disk caches. All mutation goes through a single
// mutex so concurrent jobs never interleave partial lines.
type Repository struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger

	folders map[string]FolderEntry
	done    map[string]struct{}
	failed  map[string]struct{}

	doneW   *os.File
	failedW *os.File
}

// Open loads the caches from dir, creating the directory if needed.
// Missing files are treated as empty; malformed lines are skipped.
func Open(dir string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	r := &Repository{
		dir:     dir,
		logger:  logger,
		folders: make(map[string]FolderEntry),
		done:    make(map[string]struct{}),
		failed:  make(map[string]struct{}),
	}

	if err := r.loadFolders(); err != nil {
		return nil, err
	}
	if err := loadSet(filepath.Join(dir, doneFile), r.done); err != nil {
		return nil, err
	}
	if err := loadSet(filepath.Join(dir, failedFile), r.failed); err != nil {
		return nil, err
	}

	doneW, err := os.OpenFile(filepath.Join(dir, doneFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open done cache: %w", err)
	}
	failedW, err := os.OpenFile(filepath.Join(dir, failedFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		doneW.Close()
		return nil, fmt.Errorf("failed to open failed cache: %w", err)
	}
	r.doneW = doneW
	r.failedW = failedW

	logger.Info("caches loaded",
		"folders", len(r.folders), "done", len(r.done), "failed", len(r.failed))
	return r, nil
}

// Close releases the append handles.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	if r.doneW != nil {
		first = r.doneW.Close()
	}
	if r.failedW != nil {
		if err := r.failedW.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Folder returns the cached entry for an absolute folder path.
func (r *Repository) Folder(path string) (FolderEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.folders[path]
	return e, ok
}

// SetFolder records a folder scan and rewrites the folder cache file.
func (r *Repository) SetFolder(path string, entry FolderEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders[path] = entry
	return r.persistFolders()
}

// IsDone reports whether a relative path already has a thumbnail.
func (r *Repository) IsDone(rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.done[rel]
	return ok
}

// IsFailed reports whether a relative path failed on a previous run.
func (r *Repository) IsFailed(rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[rel]
	return ok
}

// MarkDone adds a relative path to the thumb cache. Idempotent.
func (r *Repository) MarkDone(rel string) error {
	return r.mark(rel, r.done, r.doneW)
}

// MarkFailed adds a relative path to the fail cache. Idempotent.
func (r *Repository) MarkFailed(rel string) error {
	return r.mark(rel, r.failed, r.failedW)
}

func (r *Repository) mark(rel string, set map[string]struct{}, w *os.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := set[rel]; ok {
		return nil
	}
	set[rel] = struct{}{}
	if _, err := fmt.Fprintln(w, rel); err != nil {
		return fmt.Errorf("failed to append cache line: %w", err)
	}
	return nil
}

// persistFolders rewrites folders.csv. Caller holds r.mu.
// The file is written to a temp path and renamed so a crash mid-write never
// truncates the previous cache.
func (r *Repository) persistFolders() error {
	paths := make([]string, 0, len(r.folders))
	for p := range r.folders {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		e := r.folders[p]
		fmt.Fprintf(&b, "%s,%d,%s\n", p, e.ScannedAt, e.Modified)
	}

	target := filepath.Join(r.dir, folderFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write folder cache: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace folder cache: %w", err)
	}
	return nil
}

// loadFolders reads folders.csv. The path itself may contain commas, so the
// line is split from the right: the last two fields are timestamp and marker.
func (r *Repository) loadFolders() error {
	f, err := os.Open(filepath.Join(r.dir, folderFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open folder cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		j := strings.LastIndex(line, ",")
		if j < 0 {
			r.logger.Warn("skipping malformed folder cache line", "line", line)
			continue
		}
		i := strings.LastIndex(line[:j], ",")
		if i < 0 {
			r.logger.Warn("skipping malformed folder cache line", "line", line)
			continue
		}
		ts, err := strconv.ParseInt(line[i+1:j], 10, 64)
		if err != nil {
			r.logger.Warn("skipping malformed folder cache line", "line", line)
			continue
		}
		r.folders[line[:i]] = FolderEntry{ScannedAt: ts, Modified: line[j+1:]}
	}
	return scanner.Err()
}

func loadSet(path string, set map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	return scanner.Err()
}
