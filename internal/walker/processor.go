package walker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stillgrab/stillgrab/internal/domain"
	"github.com/stillgrab/stillgrab/internal/report"
)

// Fetcher produces a local thumbnail for a candidate.
type Fetcher interface {
	FetchThumbnail(c domain.Candidate) (string, error)
	Cleanup(c domain.Candidate)
}

// Uploader pushes a finished thumbnail to the server.
type Uploader interface {
	Upload(ctx context.Context, relPath, thumbPath string) error
}

// Processor runs one candidate end to end: fetch, upload, record.
type Processor struct {
	fetcher  Fetcher
	uploader Uploader
	repo     CacheStore
	stats    *report.Stats
	logger   *slog.Logger
}

// NewProcessor wires the job body executed for each dispatched candidate.
func NewProcessor(fetcher Fetcher, uploader Uploader, repo CacheStore, stats *report.Stats, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{fetcher: fetcher, uploader: uploader, repo: repo, stats: stats, logger: logger}
}

// Process drives a single candidate to a terminal outcome. Temp files are
// removed on every exit path. Faults never escape: a failed candidate is
// recorded and the run continues.
func (p *Processor) Process(ctx context.Context, c domain.Candidate) {
	defer p.fetcher.Cleanup(c)

	thumb, err := p.fetcher.FetchThumbnail(c)
	if err != nil {
		if errors.Is(err, domain.ErrTooLarge) {
			// Deliberately not persisted: the candidate stays eligible for
			// retry on every run until the size limit allows it.
			p.logger.Info("skipping oversized file", "path", c.RelPath, "bytes", c.Size)
			p.stats.RecordSizeSkip(c.RelPath, c.Size)
			return
		}
		p.fail(c, err)
		return
	}

	if err := p.uploader.Upload(ctx, c.RelPath, thumb); err != nil {
		p.fail(c, err)
		return
	}

	if err := p.repo.MarkDone(c.RelPath); err != nil {
		p.logger.Error("failed to persist thumb cache entry", "path", c.RelPath, "error", err)
	}
	p.stats.Record(domain.OutcomeUploaded)
	p.logger.Info("thumbnail uploaded", "path", c.RelPath)
}

func (p *Processor) fail(c domain.Candidate, err error) {
	p.logger.Error("candidate failed", "path", c.RelPath, "error", err)
	if err := p.repo.MarkFailed(c.RelPath); err != nil {
		p.logger.Error("failed to persist fail cache entry", "path", c.RelPath, "error", err)
	}
	p.stats.Record(domain.OutcomeFailed)
}
