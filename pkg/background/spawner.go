// Package background runs named, detached tasks that outlive the request
// that started them.
package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Task is the body of a background task.
type Task func(ctx context.Context) error

// Spawner starts background tasks. Every task has its own error boundary:
// a returned error or a panic is logged with the task name and never
// reaches the caller.
type Spawner struct {
	logger   hclog.Logger
	wg       sync.WaitGroup
	inFlight atomic.Int64

	// mu orders wg.Add in Go against the start of waiting in Shutdown.
	mu     sync.Mutex
	closed bool
}

// NewSpawner creates a spawner.
func NewSpawner(logger hclog.Logger) *Spawner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Spawner{logger: logger.Named("background")}
}

// Go runs fn in a new goroutine. ctx only contributes its values; the task
// keeps running after ctx is cancelled. Tasks spawned after Shutdown are
// dropped.
func (s *Spawner) Go(ctx context.Context, name string, fn Task) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("spawner closed, dropping task", "task", name)
		return false
	}
	s.wg.Add(1)
	s.inFlight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)

		start := time.Now()
		if err := s.run(detached, fn); err != nil {
			s.logger.Error("background task failed", "task", name, "error", err)
			return
		}
		s.logger.Trace("background task finished", "task", name, "duration", time.Since(start))
	}()
	return true
}

func (s *Spawner) run(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// InFlight returns the number of running tasks.
func (s *Spawner) InFlight() int {
	return int(s.inFlight.Load())
}

// Wait blocks until every spawned task has finished.
func (s *Spawner) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting tasks and waits up to timeout for the running
// ones. It reports whether all of them finished.
func (s *Spawner) Shutdown(timeout time.Duration) bool {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		s.logger.Warn("shutdown timed out with tasks still running", "in_flight", s.InFlight())
		return false
	}
}
