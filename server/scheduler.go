package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/petal-labs/flowstep/engine"
)

const defaultSchedulePollInterval = 5 * time.Second

// SchedulerConfig configures the background schedule runner.
type SchedulerConfig struct {
	Engine       *engine.Engine
	Store        *ScheduleStore
	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Scheduler periodically starts runs for due schedules. Runs started by the
// scheduler go through the same engine path as API-started runs and are
// readable via GET /graph/state/{run_id}.
type Scheduler struct {
	engine       *engine.Engine
	store        *ScheduleStore
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler instance.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("scheduler engine is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("scheduler store is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultSchedulePollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		engine:       cfg.Engine,
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}, nil
}

// Start begins background polling. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(loopCtx)
			}
		}
	}()
}

// Stop halts background polling and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce executes every due schedule synchronously. Each firing advances the
// schedule's NextRun before the run starts, so a slow run cannot double-fire
// its own schedule.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now()
	for _, sched := range s.store.due(now) {
		// The schedule may have been deleted since the due scan.
		current, ok := s.store.Get(sched.ID)
		if !ok || current.NextRun.After(now) {
			continue
		}

		next, err := nextCronRunUTC(current.Cron, now)
		if err != nil {
			s.logger.Error("schedule has invalid cron expression, removing",
				"schedule_id", current.ID, "error", err)
			_ = s.store.Delete(current.ID)
			continue
		}
		current.NextRun = next
		s.store.Put(current)

		snap, err := s.engine.StartRun(ctx, current.GraphID, current.InitialState)
		if err != nil {
			s.logger.Error("scheduled run failed to start",
				"schedule_id", current.ID, "graph_id", current.GraphID, "error", err)
			continue
		}
		s.logger.Info("scheduled run finished",
			"schedule_id", current.ID, "run_id", snap.RunID, "status", snap.Status)
	}
}
