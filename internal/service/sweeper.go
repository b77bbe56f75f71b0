package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

// ExpirySweeper periodically expires pending instances whose current step
// deadline has elapsed. Each expiry goes through the orchestrator's
// compare-and-swap transition, so a sweep racing a human decision on the
// same instance loses without side effects.
type ExpirySweeper struct {
	orchestrator *ApprovalOrchestrator
	instances    InstanceStore
	interval     time.Duration
	batchSize    int
	clock        clockwork.Clock
	log          *logger.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(orchestrator *ApprovalOrchestrator, instances InstanceStore, interval time.Duration, batchSize int, clock clockwork.Clock, log *logger.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		orchestrator: orchestrator,
		instances:    instances,
		interval:     interval,
		batchSize:    batchSize,
		clock:        clock,
		log:          log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("Expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Expiry sweeper stopped")
			return
		case <-ticker.Chan():
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires one batch of overdue instances and returns how many
// expiries were committed.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	overdue, err := s.instances.ListExpired(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list overdue instances")
		return 0
	}

	expired := 0
	for _, inst := range overdue {
		if _, err := s.orchestrator.Expire(ctx, inst.ID); err != nil {
			// A decision landed between the listing and the expiry
			// attempt. That instance no longer needs expiring.
			if errors.IsCode(err, errors.ErrCodeAlreadyDecided) || errors.IsCode(err, errors.ErrCodeConflict) {
				s.log.Debug().Str("instance_id", inst.ID).Msg("Instance decided before expiry, skipping")
				continue
			}
			s.log.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to expire instance")
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("Expired overdue approval instances")
	}
	return expired
}
