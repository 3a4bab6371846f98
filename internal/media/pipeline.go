package media

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stillgrab/stillgrab/internal/domain"
	"github.com/stillgrab/stillgrab/internal/sched"
)

const (
	// partialBytes is the prefix size for the partial-download stage. Files
	// whose container index lies beyond it fail the local probe and fall
	// through to the full download.
	partialBytes = 100 << 20

	downloadAttempts = 5
	backoffStep      = 5 * time.Second
)

// thumbnailOffsets are the preferred capture points, largest first.
var thumbnailOffsets = []float64{50, 40, 30, 20, 10, 5}

// Source provides authenticated access to remote file content.
type Source interface {
	FileURL(absPath string) string
	AuthHeader() string
	DownloadRange(absPath string, maxBytes int64, dst io.Writer) error
}

// Pipeline turns one candidate into a local thumbnail file. Probe and
// extraction run on the media lane so at most one decode subprocess is ever
// active; downloads run inline in the calling job, which already occupies
// an I/O lane slot.
type Pipeline struct {
	runner    Runner
	source    Source
	mediaLane *sched.Lane
	scratch   string
	maxBytes  int64
	backoff   time.Duration
	logger    *slog.Logger
}

// NewPipeline creates a pipeline writing temp files under scratch. Files
// larger than maxDownloadMB are never fully downloaded.
func NewPipeline(runner Runner, source Source, mediaLane *sched.Lane, scratch string, maxDownloadMB int64, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		runner:    runner,
		source:    source,
		mediaLane: mediaLane,
		scratch:   scratch,
		maxBytes:  maxDownloadMB << 20,
		backoff:   backoffStep,
		logger:    logger,
	}
}

// Fingerprint derives the 8-hex-character temp-file prefix for a remote
// path. Distinct in-flight candidates never collide.
func Fingerprint(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:4])
}

// VideoTemp returns the temp video path for a candidate.
func (p *Pipeline) VideoTemp(c domain.Candidate) string {
	return filepath.Join(p.scratch, "v_"+Fingerprint(c.AbsPath)+c.Ext)
}

// ThumbTemp returns the temp thumbnail path for a candidate.
func (p *Pipeline) ThumbTemp(c domain.Candidate) string {
	return filepath.Join(p.scratch, "t_"+Fingerprint(c.AbsPath)+".jpg")
}

// FetchThumbnail runs the three stages in order and returns the local
// thumbnail path. A domain.ErrTooLarge means the candidate was size-skipped
// before any full download. The caller owns Cleanup.
func (p *Pipeline) FetchThumbnail(c domain.Candidate) (string, error) {
	if err := os.MkdirAll(p.scratch, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	videoPath := p.VideoTemp(c)
	thumbPath := p.ThumbTemp(c)

	// Stage 1: probe and grab straight off the remote URL, no local copy.
	streamURL := p.source.FileURL(c.AbsPath)
	authLine := "Authorization: " + p.source.AuthHeader()
	if err := p.probeAndExtract(streamURL, authLine, thumbPath); err == nil {
		return thumbPath, nil
	} else {
		p.logger.Debug("remote stream stage failed", "path", c.AbsPath, "error", err)
	}

	// Stage 2: probe a downloaded prefix. Containers with trailing metadata
	// fail the probe here; that is the signal to move on, not an error.
	if err := p.downloadWithRetry(c.AbsPath, partialBytes, videoPath); err != nil {
		p.logger.Warn("partial download failed", "path", c.AbsPath, "error", err)
	} else if err := p.probeAndExtract(videoPath, "", thumbPath); err == nil {
		return thumbPath, nil
	} else {
		p.logger.Debug("partial download stage failed", "path", c.AbsPath, "error", err)
	}

	// Stage 3: full download, gated by the size limit.
	if c.Size > p.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", domain.ErrTooLarge, c.Size)
	}
	if err := p.downloadWithRetry(c.AbsPath, 0, videoPath); err != nil {
		return "", err
	}
	if err := p.probeAndExtract(videoPath, "", thumbPath); err != nil {
		return "", err
	}
	return thumbPath, nil
}

// Cleanup removes any temp video and thumbnail for a candidate. Best
// effort: a missing file is not an error.
func (p *Pipeline) Cleanup(c domain.Candidate) {
	for _, path := range []string{p.VideoTemp(c), p.ThumbTemp(c)} {
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				p.logger.Warn("failed to remove temp file", "path", path, "error", err)
			}
		}
	}
}

// probeAndExtract resolves the duration of src and grabs one frame at the
// chosen offset. Both subprocesses run on the media lane.
func (p *Pipeline) probeAndExtract(src, headers, thumbPath string) error {
	var duration float64
	err := p.mediaLane.Run(func() error {
		var err error
		duration, err = p.runner.Probe(src, headers)
		return err
	})
	if err != nil {
		return err
	}

	offset := ThumbnailOffset(duration)
	return p.mediaLane.Run(func() error {
		return p.runner.Extract(src, headers, offset, thumbPath)
	})
}

// ThumbnailOffset picks the capture point for a clip of the given duration:
// the largest preferred offset that still lies inside the clip, or 20% of
// a very short clip.
func ThumbnailOffset(duration float64) float64 {
	for _, t := range thumbnailOffsets {
		if t <= duration {
			return t
		}
	}
	return max(0, 0.2*duration)
}

// downloadWithRetry fetches up to maxBytes (0 for everything) into path,
// retrying with linear backoff. The destination is truncated per attempt.
func (p *Pipeline) downloadWithRetry(absPath string, maxBytes int64, path string) error {
	var lastErr error
	for attempt := 0; attempt < downloadAttempts; attempt++ {
		if attempt > 0 {
			// Linear backoff: 5s before the first retry, then 10s, 15s, 20s.
			time.Sleep(time.Duration(attempt) * p.backoff)
		}

		err := p.downloadOnce(absPath, maxBytes, path)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("download attempt failed",
			"path", absPath, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("download failed after %d attempts: %w", downloadAttempts, lastErr)
}

func (p *Pipeline) downloadOnce(absPath string, maxBytes int64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	err = p.source.DownloadRange(absPath, maxBytes, f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// IsSizeSkip reports whether a pipeline error is the too-large signal.
func IsSizeSkip(err error) bool {
	return errors.Is(err, domain.ErrTooLarge)
}
