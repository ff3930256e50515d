package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler fires nightly and weekly consolidation runs in the
// background. Repeated polling of the same hour causes no duplicate runs;
// the engine's operations are re-entrant either way.
type Scheduler struct {
	engine      *Engine
	nightlyHour int
	weeklyDay   time.Weekday
	logger      *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScheduler creates a scheduler. nightlyHour is the local hour [0,23]
// for the nightly run; the weekly run fires at the same hour on weeklyDay.
func NewScheduler(engine *Engine, nightlyHour int, weeklyDay time.Weekday, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:      engine,
		nightlyHour: nightlyHour,
		weeklyDay:   weeklyDay,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the background worker.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("consolidation scheduler started",
		zap.Int("nightly_hour", s.nightlyHour),
		zap.String("weekly_day", s.weeklyDay.String()))
}

// Stop halts the worker and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	var lastNightly, lastWeekly time.Time
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			if now.Hour() != s.nightlyHour {
				continue
			}
			kind := RunNightly
			last := &lastNightly
			if now.Weekday() == s.weeklyDay {
				kind = RunWeekly
				last = &lastWeekly
			}
			if now.Sub(*last) < 2*time.Hour {
				continue // already ran this slot
			}
			*last = now

			ctx := context.Background()
			if _, err := s.engine.PerformMemoryConsolidation(ctx, kind); err != nil {
				s.logger.Error("scheduled consolidation failed",
					zap.String("kind", string(kind)), zap.Error(err))
			}
		}
	}
}
