package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

// Flusher runs a save function on a fixed interval.
type Flusher struct {
	scheduler gocron.Scheduler
	flush     func() error
	logger    *slog.Logger
}

// NewFlusher schedules flush every interval. Start must be called to begin.
func NewFlusher(interval time.Duration, flush func() error, logger *slog.Logger) (*Flusher, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	f := &Flusher{scheduler: s, flush: flush, logger: observability.OrDefault(logger)}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(f.run),
		gocron.WithName("cache-flush"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create flush job: %w", err)
	}
	return f, nil
}

// Start begins the schedule.
func (f *Flusher) Start(ctx context.Context) {
	f.logger.DebugContext(ctx, "Starting cache flush scheduler")
	f.scheduler.Start()
}

// Stop shuts the scheduler down and runs a final flush.
func (f *Flusher) Stop(ctx context.Context) error {
	f.logger.DebugContext(ctx, "Stopping cache flush scheduler")
	if err := f.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return f.flush()
}

func (f *Flusher) run() {
	start := time.Now()
	if err := f.flush(); err != nil {
		f.logger.Error("Scheduled cache flush failed", logfields.Error(err))
		return
	}
	f.logger.Debug("Cache flushed", logfields.Since(start))
}
