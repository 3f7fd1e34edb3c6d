// Package scheduler runs the periodic backup retention job.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"zinga/audit"
	"zinga/db"
	"zinga/logger"
)

const (
	pruneTimeout = 5 * time.Minute
	actor        = "scheduler"
)

// Pruner is the part of the store the scheduler drives.
type Pruner interface {
	Retention() db.RetentionPolicy
	PruneBackups(ctx context.Context, policy db.RetentionPolicy) ([]string, error)
}

// Scheduler prunes old backups on a cron schedule.
type Scheduler struct {
	store Pruner
	audit *audit.Log
	cron  *cron.Cron
	log   *logger.Logger
}

// New creates a scheduler. trail may be nil.
func New(store Pruner, trail *audit.Log, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		audit: trail,
		cron:  cron.New(),
		log:   log.Component("scheduler"),
	}
}

// Start registers the prune job on spec (standard five-field cron or a
// descriptor such as @hourly) and starts the cron loop. An empty spec or a
// retention policy without limits leaves the scheduler idle.
func (s *Scheduler) Start(spec string) error {
	policy := s.store.Retention()
	if spec == "" || (policy.Keep <= 0 && policy.MaxAge <= 0) {
		s.log.Info().Msg("backup pruning disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", spec).Int("keep", policy.Keep).Dur("max_age", policy.MaxAge).Msg("scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunOnce prunes according to the store's retention policy and returns the
// removed file names.
func (s *Scheduler) RunOnce(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	removed, err := s.store.PruneBackups(ctx, s.store.Retention())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to prune backups")
	}
	if len(removed) > 0 {
		s.audit.Record(ctx, audit.ActionPrune, actor, map[string]any{"removed": removed})
	}
	return removed
}
