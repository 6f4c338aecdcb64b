package jobs

import (
	"context"
	"log"
	"time"
)

// Scheduler drives the sweeps on independent tickers. Each invocation gets
// its own timeout context so a hung provider cannot wedge the ticker loop.
type Scheduler struct {
	jobs *Jobs

	tokenInterval time.Duration
	syncInterval  time.Duration
	alertInterval time.Duration

	stop chan struct{}
}

func NewScheduler(jobs *Jobs, tokenInterval, syncInterval, alertInterval time.Duration) *Scheduler {
	return &Scheduler{
		jobs:          jobs,
		tokenInterval: tokenInterval,
		syncInterval:  syncInterval,
		alertInterval: alertInterval,
		stop:          make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	log.Printf("⏰ Scheduler started (tokens: %s, sync: %s, alerts: %s)",
		s.tokenInterval, s.syncInterval, s.alertInterval)

	go s.run(s.tokenInterval, func(ctx context.Context) {
		s.jobs.RefreshExpiringTokens(ctx)
	})
	go s.run(s.syncInterval, func(ctx context.Context) {
		s.jobs.SyncAll(ctx)
	})
	go s.run(s.alertInterval, func(ctx context.Context) {
		s.jobs.TriggerLowBalanceAlerts(ctx)
	})
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) run(interval time.Duration, sweep func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			sweep(ctx)
			cancel()
		case <-s.stop:
			return
		}
	}
}
