// Package scheduler drives the periodic discovery scan.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scanner runs one full discovery cycle and returns the number of tenants
// it scanned.
type Scanner interface {
	DiscoverAndScanAll(ctx context.Context) int
}

// Status describes the scheduler's progress.
type Status struct {
	Interval       string     `json:"interval"`
	Cycles         int        `json:"cycles"`
	Running        bool       `json:"running"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	LastTenants    int        `json:"last_tenants"`
}

// Scheduler runs a scan cycle, waits for the interval, and repeats. The
// wait starts when a cycle finishes, so cycles never overlap.
type Scheduler struct {
	scanner  Scanner
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
}

// New creates a scheduler.
func New(scanner Scanner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scanner:  scanner,
		interval: interval,
		logger:   logger.With(slog.String("component", "scheduler")),
		status:   Status{Interval: interval.String()},
	}
}

// Run blocks until ctx is canceled. Cancellation is observed only while
// waiting between cycles; a cycle in progress always completes.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scan scheduler started", slog.String("interval", s.interval.String()))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan scheduler stopped")
			return
		case <-timer.C:
		}

		s.cycle(ctx)

		s.logger.Info("scan cycle finished, waiting for next cycle", slog.String("interval", s.interval.String()))
		timer.Reset(s.interval)
	}
}

// Status returns a copy of the scheduler status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) cycle(ctx context.Context) {
	started := time.Now().UTC()
	s.mu.Lock()
	s.status.Running = true
	s.status.LastStartedAt = &started
	s.mu.Unlock()

	tenants := 0
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scan cycle panicked", "panic", r)
		}
		finished := time.Now().UTC()
		s.mu.Lock()
		s.status.Running = false
		s.status.Cycles++
		s.status.LastFinishedAt = &finished
		s.status.LastTenants = tenants
		s.mu.Unlock()
	}()

	s.logger.Info("starting periodic scan cycle")
	tenants = s.scanner.DiscoverAndScanAll(context.WithoutCancel(ctx))
}
