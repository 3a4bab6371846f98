// Package sched provides the two bounded FIFO lanes that throttle the run:
// a widable I/O lane for network transfers and a single-slot media lane for
// ffprobe/ffmpeg subprocesses.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Lane is a bounded FIFO worker pool. Submissions start in FIFO order as
// slots free up; once started, work runs to completion. There is no
// cancellation of queued or in-flight work.
type Lane struct {
	name   string
	limit  int
	logger *slog.Logger

	mu      sync.Mutex
	running int
	pending []func()
}

// NewLane creates a lane running at most limit submissions concurrently.
func NewLane(name string, limit int, logger *slog.Logger) *Lane {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lane{name: name, limit: limit, logger: logger}
}

// Submit queues fn and returns immediately.
func (l *Lane) Submit(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.dispatch()
	l.mu.Unlock()
}

// Run queues fn and blocks until it has completed, returning its error.
// A panic in fn surfaces as an error instead of leaving the caller blocked.
func (l *Lane) Run(fn func() error) error {
	done := make(chan error, 1)
	l.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("job panicked: %v", r)
			}
		}()
		done <- fn()
	})
	return <-done
}

// dispatch starts queued work while slots are free. Caller holds l.mu.
func (l *Lane) dispatch() {
	for l.running < l.limit && len(l.pending) > 0 {
		fn := l.pending[0]
		l.pending = l.pending[1:]
		l.running++
		go func() {
			defer func() {
				if r := recover(); r != nil {
					// A panicking job must not wedge the lane; log and move on.
					l.logger.Error("job panicked", "lane", l.name, "panic", r)
				}
				l.mu.Lock()
				l.running--
				l.dispatch()
				l.mu.Unlock()
			}()
			fn()
		}()
	}
}

// Running returns the number of in-flight submissions.
func (l *Lane) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Pending returns the number of queued, not yet started submissions.
func (l *Lane) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Idle reports whether the lane has no running and no pending work.
func (l *Lane) Idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running == 0 && len(l.pending) == 0
}

// WaitIdle polls until every lane is idle or ctx is done. Runs are
// long-lived batch jobs, so a fixed-point poll is deliberate here.
func WaitIdle(ctx context.Context, poll time.Duration, lanes ...*Lane) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		idle := true
		for _, l := range lanes {
			if !l.Idle() {
				idle = false
				break
			}
		}
		if idle {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
