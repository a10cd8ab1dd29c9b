package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/config"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"go.uber.org/zap"
)

type onboardingStub struct {
	onboardingdomain.Service
	calls  int
	limits []int
	err    error
}

func (s *onboardingStub) ReconcileSignatures(ctx context.Context, limit int) (int, error) {
	s.calls++
	s.limits = append(s.limits, limit)
	return 2, s.err
}

type leadStub struct {
	leaddomain.Service
	calls        int
	cutoffs      []time.Time
	replayCalls  int
	replaySinces []time.Time
}

func (s *leadStub) ReviewStale(ctx context.Context, before time.Time, limit int) (int, error) {
	s.calls++
	s.cutoffs = append(s.cutoffs, before)
	return 1, nil
}

func (s *leadStub) ReplayStatusEvents(ctx context.Context, since time.Time, limit int) (int, error) {
	s.replayCalls++
	s.replaySinces = append(s.replaySinces, since)
	return 0, nil
}

func newTestScheduler(onb *onboardingStub, leads *leadStub, fakeClock *clock.FakeClock) *Scheduler {
	cfg := config.Config{
		Scheduler: config.SchedulerConfig{
			RunInterval:       time.Minute,
			BatchSize:         25,
			LeadReviewAfter:   24 * time.Hour,
			EventReplayWindow: time.Hour,
		},
	}
	return New(Params{
		Log:        zap.NewNop(),
		Clock:      fakeClock,
		Config:     cfg,
		Onboarding: onb,
		Leads:      leads,
	})
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	onb := &onboardingStub{}
	leads := &leadStub{}
	sched := newTestScheduler(onb, leads, clock.NewFakeClock(now))

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if onb.calls != 1 || leads.calls != 1 || leads.replayCalls != 1 {
		t.Fatalf("expected all jobs to run, got %d, %d and %d", onb.calls, leads.calls, leads.replayCalls)
	}
	if onb.limits[0] != 25 {
		t.Fatalf("expected batch size 25, got %d", onb.limits[0])
	}
	if want := now.Add(-24 * time.Hour); !leads.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, leads.cutoffs[0])
	}
	if want := now.Add(-time.Hour); !leads.replaySinces[0].Equal(want) {
		t.Fatalf("expected replay window start %v, got %v", want, leads.replaySinces[0])
	}
}

func TestRunOnceContinuesPastFailingJob(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	onb := &onboardingStub{err: errors.New("vendor down")}
	leads := &leadStub{}
	sched := newTestScheduler(onb, leads, clock.NewFakeClock(now))

	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if leads.calls != 1 {
		t.Fatalf("expected lead sweep to run despite reconcile failure")
	}
}
