package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CancelFunc stops one scheduled task. Safe to call more than once.
type CancelFunc func()

// Scheduler runs named periodic tasks. A failing iteration is logged and
// the ticker keeps firing; only cancellation stops a task.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger.With(slog.String("component", "scheduler")),
		cancels: make(map[string]CancelFunc),
	}
}

// Schedule starts task on a fixed interval and returns its cancel handle.
// The handle is also retained so StopAll can drain everything on shutdown.
func (s *Scheduler) Schedule(name string, interval time.Duration, task func(ctx context.Context) error) CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.logger.Warn("Schedule called after StopAll; task not started", slog.String("task", name))
		return func() {}
	}

	var once sync.Once
	handle := func() {
		once.Do(func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, name)
			s.mu.Unlock()
		})
	}
	s.cancels[name] = handle
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx, name, task)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Debug("Scheduled periodic task",
		slog.String("task", name),
		slog.Duration("interval", interval),
	)
	return handle
}

func (s *Scheduler) runOnce(ctx context.Context, name string, task func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Periodic task panicked", slog.String("task", name), slog.Any("panic", r))
		}
	}()
	if err := task(ctx); err != nil {
		s.logger.Error("Periodic task iteration failed", slog.String("task", name), slog.Any("error", err))
	}
}

// StopAll cancels every task and waits for the loops to exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.closed = true
	handles := make([]CancelFunc, 0, len(s.cancels))
	for _, h := range s.cancels {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h()
	}
	s.wg.Wait()
}
