package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/platform/correlation"
	"github.com/robfig/cron/v3"
)

// BatchRefresher is the part of RefreshAgent the scheduler drives.
type BatchRefresher interface {
	RefreshBatch(ctx context.Context, limit int) BatchResult
}

// Scheduler runs refresh batches on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron      *cron.Cron
	agent     BatchRefresher
	batchSize int
	timeout   time.Duration
	metrics   *metrics.RefreshMetrics
}

// NewScheduler validates spec (standard cron or a descriptor like "@every 1h").
func NewScheduler(agent BatchRefresher, spec string, batchSize int, timeout time.Duration, m *metrics.RefreshMetrics) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Scheduler{
		cron:      c,
		agent:     agent,
		batchSize: batchSize,
		timeout:   timeout,
		metrics:   m,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("failed to schedule refresh batch %q: %w", spec, err)
	}
	slog.Info("Refresh batch scheduled", "schedule", spec, "batch_size", batchSize)
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running batch to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("Scheduler: stop timed out waiting for running batch")
	}
}

// RunOnce executes one batch with its own timeout and correlation id.
func (s *Scheduler) RunOnce(ctx context.Context) BatchResult {
	ctx, cancel := context.WithTimeout(correlation.WithID(ctx, correlation.NewID()), s.timeout)
	defer cancel()

	slog.InfoContext(ctx, "Scheduler: starting refresh batch", "limit", s.batchSize)
	result := s.agent.RefreshBatch(ctx, s.batchSize)

	failed := 0
	for _, r := range result.Results {
		if r.Reason == ReasonError {
			failed++
		}
	}

	outcome := "success"
	switch {
	case ctx.Err() != nil:
		outcome = "timeout"
	case failed > 0 && result.Refreshed == 0:
		outcome = "failure"
	}
	s.metrics.BatchRun(outcome)
	return result
}
