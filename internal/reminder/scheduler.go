package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron and triggers the reminder worker.
type Scheduler struct {
	cron   *cron.Cron
	worker *Worker
	spec   string // cron spec, e.g. "@every 60m"
}

// NewScheduler creates a Scheduler that fires every interval.
func NewScheduler(worker *Worker, interval time.Duration) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		worker: worker,
		spec:   fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the job, starts the cron loop and runs one cycle
// immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	log.Printf("[reminder] Cron started, spec: %s", s.spec)

	go s.run(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[reminder] Cron stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if _, err := s.worker.Run(ctx); err != nil {
		log.Printf("[reminder] Cycle error: %v", err)
	}
}
