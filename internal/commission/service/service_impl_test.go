package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	affiliaterepo "github.com/agnuslink/agnuslink/internal/affiliate/repository"
	affiliateservice "github.com/agnuslink/agnuslink/internal/affiliate/service"
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/commission/repository"
	"github.com/agnuslink/agnuslink/internal/events"
	"github.com/agnuslink/agnuslink/internal/locking"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type engineFixture struct {
	engine     domain.Service
	affiliates affiliatedomain.Service
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(
		&affiliatedomain.Affiliate{},
		&domain.Commission{},
		&domain.PayoutRequest{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	affiliates, err := affiliateservice.New(affiliateservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  affiliaterepo.Provide(),
	})
	if err != nil {
		t.Fatalf("affiliate service: %v", err)
	}

	engine := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Repo:       repository.Provide(),
		Affiliates: affiliates,
		Locker:     locking.NewMemoryLocker(),
	})

	return &engineFixture{
		engine:     engine,
		affiliates: affiliates,
		db:         db,
		node:       node,
		clock:      fakeClock,
	}
}

// referralChain creates affiliates root -> mid -> leaf, each referred by
// the previous one.
func (f *engineFixture) referralChain(t *testing.T) (root, mid, leaf affiliatedomain.Affiliate) {
	t.Helper()
	ctx := context.Background()

	root, err := f.affiliates.Create(ctx, affiliatedomain.CreateAffiliateRequest{Email: "root@example.com"})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	mid, err = f.affiliates.Create(ctx, affiliatedomain.CreateAffiliateRequest{
		Email:        "mid@example.com",
		ReferralCode: root.ReferralCode,
	})
	if err != nil {
		t.Fatalf("create mid: %v", err)
	}
	leaf, err = f.affiliates.Create(ctx, affiliatedomain.CreateAffiliateRequest{
		Email:        "leaf@example.com",
		ReferralCode: mid.ReferralCode,
	})
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	return root, mid, leaf
}

func (f *engineFixture) commissionsFor(t *testing.T, affiliateID snowflake.ID) []domain.Commission {
	t.Helper()
	var commissions []domain.Commission
	err := f.db.
		Where("beneficiary_affiliate_id = ?", affiliateID).
		Order("created_at asc, id asc").
		Find(&commissions).Error
	if err != nil {
		t.Fatalf("load commissions: %v", err)
	}
	return commissions
}

func (f *engineFixture) countCommissions(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&domain.Commission{}).Count(&count).Error; err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	return count
}

func soldEvent(f *engineFixture, ownerID snowflake.ID) events.LeadStatusEvent {
	return events.LeadStatusEvent{
		LeadID:           f.node.Generate(),
		OwnerAffiliateID: ownerID,
		PreviousStatus:   "qualified",
		NewStatus:        "sold",
		OccurredAt:       f.clock.Now(),
	}
}

func TestSoldLeadPaysThreeLevels(t *testing.T) {
	f := setupEngine(t)
	root, mid, leaf := f.referralChain(t)
	ctx := context.Background()

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	direct := f.commissionsFor(t, leaf.ID)
	if len(direct) != 1 || direct[0].AmountCents != 15000 || direct[0].CommissionType != domain.TypeSoldLead || direct[0].Level != 0 {
		t.Fatalf("unexpected direct commission: %+v", direct)
	}
	level1 := f.commissionsFor(t, mid.ID)
	if len(level1) != 1 || level1[0].AmountCents != 1500 || level1[0].CommissionType != domain.TypeReferralLevel1 || level1[0].Level != 1 {
		t.Fatalf("unexpected level 1 commission: %+v", level1)
	}
	level2 := f.commissionsFor(t, root.ID)
	if len(level2) != 1 || level2[0].AmountCents != 750 || level2[0].CommissionType != domain.TypeReferralLevel2 || level2[0].Level != 2 {
		t.Fatalf("unexpected level 2 commission: %+v", level2)
	}
}

func TestEventReplayIsIdempotent(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := context.Background()

	event := soldEvent(f, leaf.ID)
	for i := 0; i < 3; i++ {
		if err := f.engine.HandleLeadStatus(ctx, event); err != nil {
			t.Fatalf("handle event attempt %d: %v", i, err)
		}
	}

	if count := f.countCommissions(t); count != 3 {
		t.Fatalf("expected 3 commissions after replay, got %d", count)
	}
}

func TestQualifiedThenSoldAccrueSeparately(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	solo, err := f.affiliates.Create(ctx, affiliatedomain.CreateAffiliateRequest{Email: "solo@example.com"})
	if err != nil {
		t.Fatalf("create affiliate: %v", err)
	}

	leadID := f.node.Generate()
	qualified := events.LeadStatusEvent{
		LeadID:           leadID,
		OwnerAffiliateID: solo.ID,
		PreviousStatus:   "in_review",
		NewStatus:        "qualified",
		OccurredAt:       f.clock.Now(),
	}
	if err := f.engine.HandleLeadStatus(ctx, qualified); err != nil {
		t.Fatalf("handle qualified: %v", err)
	}
	sold := qualified
	sold.PreviousStatus = "qualified"
	sold.NewStatus = "sold"
	if err := f.engine.HandleLeadStatus(ctx, sold); err != nil {
		t.Fatalf("handle sold: %v", err)
	}

	commissions := f.commissionsFor(t, solo.ID)
	if len(commissions) != 2 {
		t.Fatalf("expected 2 commissions, got %d", len(commissions))
	}
	var total int64
	for _, c := range commissions {
		total += c.AmountCents
	}
	if total != 20000 {
		t.Fatalf("expected 20000 cents total, got %d", total)
	}
}

func TestUnchangedOrIrrelevantStatusAccruesNothing(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := context.Background()

	event := soldEvent(f, leaf.ID)
	event.PreviousStatus = "sold"
	if err := f.engine.HandleLeadStatus(ctx, event); err != nil {
		t.Fatalf("handle no-op event: %v", err)
	}

	rejected := soldEvent(f, leaf.ID)
	rejected.NewStatus = "rejected"
	if err := f.engine.HandleLeadStatus(ctx, rejected); err != nil {
		t.Fatalf("handle rejected event: %v", err)
	}

	if count := f.countCommissions(t); count != 0 {
		t.Fatalf("expected no commissions, got %d", count)
	}
}

func TestRequestPayoutClaimsAllPending(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := affctx.WithAffiliateID(context.Background(), leaf.ID)

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	payout, err := f.engine.RequestPayout(ctx)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if payout.AmountCents != 15000 {
		t.Fatalf("expected payout of 15000 cents, got %d", payout.AmountCents)
	}
	if payout.Status != domain.PayoutRequested {
		t.Fatalf("expected requested status, got %s", payout.Status)
	}

	commissions := f.commissionsFor(t, leaf.ID)
	if commissions[0].Status != domain.StatusProcessing {
		t.Fatalf("expected commission in processing, got %s", commissions[0].Status)
	}
	if commissions[0].PayoutRequestID == nil || *commissions[0].PayoutRequestID != payout.ID {
		t.Fatalf("commission not linked to payout request")
	}

	if _, err := f.engine.RequestPayout(ctx); !errors.Is(err, domain.ErrNoPendingFunds) {
		t.Fatalf("expected ErrNoPendingFunds on second request, got %v", err)
	}
}

func TestRequestPayoutWithoutFunds(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	solo, err := f.affiliates.Create(ctx, affiliatedomain.CreateAffiliateRequest{Email: "broke@example.com"})
	if err != nil {
		t.Fatalf("create affiliate: %v", err)
	}

	_, err = f.engine.RequestPayout(affctx.WithAffiliateID(ctx, solo.ID))
	if !errors.Is(err, domain.ErrNoPendingFunds) {
		t.Fatalf("expected ErrNoPendingFunds, got %v", err)
	}
}

func TestConcurrentPayoutRequestsSingleWinner(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := affctx.WithAffiliateID(context.Background(), leaf.ID)

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RequestPayout(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, domain.ErrNoPendingFunds) && !errors.Is(err, locking.ErrLockHeld) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning payout request, got %d", wins)
	}

	var count int64
	if err := f.db.Model(&domain.PayoutRequest{}).Count(&count).Error; err != nil {
		t.Fatalf("count payouts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 payout request, got %d", count)
	}
}

func TestApprovePayoutSettlesCommissions(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := affctx.WithAffiliateID(context.Background(), leaf.ID)

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	payout, err := f.engine.RequestPayout(ctx)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	approved, err := f.engine.ApprovePayout(ctx, payout.ID)
	if err != nil {
		t.Fatalf("approve payout: %v", err)
	}
	if approved.Status != domain.PayoutApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}

	commissions := f.commissionsFor(t, leaf.ID)
	if commissions[0].Status != domain.StatusPaid {
		t.Fatalf("expected paid commission, got %s", commissions[0].Status)
	}
	if commissions[0].PayoutDate == nil {
		t.Fatalf("expected payout date to be set")
	}

	if _, err := f.engine.ApprovePayout(ctx, payout.ID); !errors.Is(err, domain.ErrPayoutDecided) {
		t.Fatalf("expected ErrPayoutDecided on second approval, got %v", err)
	}
}

func TestRejectPayoutReleasesCommissions(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := affctx.WithAffiliateID(context.Background(), leaf.ID)

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	payout, err := f.engine.RequestPayout(ctx)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	rejected, err := f.engine.RejectPayout(ctx, payout.ID)
	if err != nil {
		t.Fatalf("reject payout: %v", err)
	}
	if rejected.Status != domain.PayoutRejected {
		t.Fatalf("expected rejected status, got %s", rejected.Status)
	}

	commissions := f.commissionsFor(t, leaf.ID)
	if commissions[0].Status != domain.StatusPending {
		t.Fatalf("expected commission back in pending, got %s", commissions[0].Status)
	}
	if commissions[0].PayoutRequestID != nil {
		t.Fatalf("expected payout link cleared")
	}

	// Funds are spendable again.
	if _, err := f.engine.RequestPayout(ctx); err != nil {
		t.Fatalf("request payout after rejection: %v", err)
	}
}

func TestMarkPayoutPaidRequiresApproval(t *testing.T) {
	f := setupEngine(t)
	_, _, leaf := f.referralChain(t)
	ctx := affctx.WithAffiliateID(context.Background(), leaf.ID)

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	payout, err := f.engine.RequestPayout(ctx)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	if _, err := f.engine.MarkPayoutPaid(ctx, payout.ID); !errors.Is(err, domain.ErrPayoutNotApproved) {
		t.Fatalf("expected ErrPayoutNotApproved, got %v", err)
	}

	if _, err := f.engine.ApprovePayout(ctx, payout.ID); err != nil {
		t.Fatalf("approve payout: %v", err)
	}
	paid, err := f.engine.MarkPayoutPaid(ctx, payout.ID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.PayoutPaid {
		t.Fatalf("expected paid status, got %s", paid.Status)
	}
}

func TestSummarizeBuckets(t *testing.T) {
	f := setupEngine(t)
	root, mid, leaf := f.referralChain(t)
	ctx := affctx.WithAffiliateID(context.Background(), leaf.ID)

	if err := f.engine.HandleLeadStatus(ctx, soldEvent(f, leaf.ID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	summary, err := f.engine.Summarize(ctx, mid.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.PendingCents != 1500 || summary.TotalCents != 1500 || summary.ReferralCents != 1500 {
		t.Fatalf("unexpected summary for mid: %+v", summary)
	}

	referral, err := f.engine.ReferralEarnings(ctx, []snowflake.ID{root.ID, mid.ID})
	if err != nil {
		t.Fatalf("referral earnings: %v", err)
	}
	if referral != 2250 {
		t.Fatalf("expected 2250 cents referral earnings, got %d", referral)
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:     "$0.00",
		750:   "$7.50",
		15000: "$150.00",
		-101:  "-$1.01",
	}
	for cents, want := range cases {
		if got := FormatCents(cents); got != want {
			t.Fatalf("FormatCents(%d) = %s, want %s", cents, got, want)
		}
	}
}
