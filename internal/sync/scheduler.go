package sync

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"clubsync/internal/logging"
	"clubsync/internal/model"
)

// Scheduler periodically runs every active configuration on a cron
// schedule. Runs are sequential; a configuration that fails or is already
// running never blocks the rest of the batch.
type Scheduler struct {
	syncer *Syncer
	cron   *cron.Cron
	log    zerolog.Logger
}

// NewScheduler builds a scheduler around the syncer. The schedule uses the
// standard five-field cron syntax (e.g. "*/15 * * * *").
func NewScheduler(syncer *Syncer, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		syncer: syncer,
		cron:   cron.New(),
		log:    logging.Named("scheduler"),
	}

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.log.Info().Msg("scheduler started")
	s.cron.Start()
}

// Stop halts the cron loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick() {
	results, err := s.syncer.SyncAll(context.Background())
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled sync batch failed to start")
		return
	}

	for _, res := range results {
		if res.Status == model.StatusError {
			s.log.Warn().Str("sync_id", res.SyncID).Str("error", res.Error).Msg("scheduled sync failed")
		}
	}
	if len(results) > 0 {
		s.log.Info().Int("configs", len(results)).Msg("scheduled sync batch finished")
	}
}
