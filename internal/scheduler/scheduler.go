// Package scheduler runs the periodic maintenance jobs: reconciling
// signature sessions whose webhook never arrived, sweeping stale
// submitted leads into review, and replaying recent commissionable
// lead events in case a publish was dropped. Jobs are independent;
// one failing does not stop the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/config"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Onboarding onboardingdomain.Service
	Leads      leaddomain.Service
}

type Scheduler struct {
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.SchedulerConfig
	onboarding onboardingdomain.Service
	leads      leaddomain.Service
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		clock:      p.Clock,
		cfg:        p.Config.Scheduler,
		onboarding: p.Onboarding,
		leads:      p.Leads,
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	start := s.clock.Now()
	processed, err := fn(ctx)
	if err != nil {
		s.log.Warn("job failed",
			zap.String("job", name),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", name, err)
	}
	if processed > 0 {
		s.log.Info("job completed",
			zap.String("job", name),
			zap.Int("processed", processed),
			zap.Duration("took", s.clock.Now().Sub(start)),
		)
	}
	return nil
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error

	err = errors.Join(err, s.runJob(ctx, "signature_reconcile", func(ctx context.Context) (int, error) {
		return s.onboarding.ReconcileSignatures(ctx, s.cfg.BatchSize)
	}))
	err = errors.Join(err, s.runJob(ctx, "lead_review_sweep", func(ctx context.Context) (int, error) {
		cutoff := s.clock.Now().Add(-s.cfg.LeadReviewAfter)
		return s.leads.ReviewStale(ctx, cutoff, s.cfg.BatchSize)
	}))
	err = errors.Join(err, s.runJob(ctx, "commission_backfill", func(ctx context.Context) (int, error) {
		since := s.clock.Now().Add(-s.cfg.EventReplayWindow)
		return s.leads.ReplayStatusEvents(ctx, since, s.cfg.BatchSize)
	}))

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
