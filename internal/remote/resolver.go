package remote

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stillgrab/stillgrab/internal/sched"
)

// ExistenceAPI is the slice of the app API the resolver needs.
type ExistenceAPI interface {
	Exists(ctx context.Context, relPath string) (bool, error)
	BatchExists(ctx context.Context, relPaths []string) (map[string]bool, error)
}

// Resolver answers "does the server already have a thumbnail for this
// path" for a whole directory's worth of candidates at once.
type Resolver struct {
	api    ExistenceAPI
	ioLane *sched.Lane
	batch  bool
	logger *slog.Logger
}

// NewResolver creates a resolver. batch should come from the server's
// advertised capabilities; when false, per-path checks run on the I/O lane.
func NewResolver(api ExistenceAPI, ioLane *sched.Lane, batch bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{api: api, ioLane: ioLane, batch: batch, logger: logger}
}

// ResolveBatch returns existence per path. On a batch request failure the
// map is empty: callers must treat every path as unconfirmed, never as
// existing. Per-path failures in fallback mode resolve to false.
func (r *Resolver) ResolveBatch(ctx context.Context, relPaths []string) map[string]bool {
	out := make(map[string]bool, len(relPaths))
	if len(relPaths) == 0 {
		return out
	}

	if r.batch {
		results, err := r.api.BatchExists(ctx, relPaths)
		if err != nil {
			r.logger.Warn("batch existence check failed", "paths", len(relPaths), "error", err)
			return map[string]bool{}
		}
		return results
	}

	results := make([]bool, len(relPaths))
	var wg sync.WaitGroup
	for i, rel := range relPaths {
		i, rel := i, rel
		wg.Add(1)
		r.ioLane.Submit(func() {
			defer wg.Done()
			exists, err := r.api.Exists(ctx, rel)
			if err != nil {
				// Does not exist is the conservative answer on failure.
				r.logger.Warn("existence check failed", "path", rel, "error", err)
				exists = false
			}
			results[i] = exists
		})
	}
	wg.Wait()

	for i, rel := range relPaths {
		out[rel] = results[i]
	}
	return out
}
