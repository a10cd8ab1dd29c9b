package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/events"
	"github.com/agnuslink/agnuslink/internal/locking"
	"github.com/agnuslink/agnuslink/internal/observability/metrics"
	"github.com/agnuslink/agnuslink/internal/providers/docstore"
	"github.com/agnuslink/agnuslink/internal/providers/email"
	"github.com/agnuslink/agnuslink/internal/providers/pdf"
	"github.com/agnuslink/agnuslink/pkg/db"
	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Affiliates affiliatedomain.Service
	Locker     locking.Locker
	Metrics    *metrics.Metrics        `optional:"true"`
	Email      email.Provider          `optional:"true"`
	PDF        pdf.Provider            `optional:"true"`
	Docstore   docstore.Store          `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	affiliates affiliatedomain.Service
	locker     locking.Locker
	metrics    *metrics.Metrics
	email      email.Provider
	pdf        pdf.Provider
	docstore   docstore.Store
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("commission.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		affiliates: p.Affiliates,
		locker:     p.Locker,
		metrics:    p.Metrics,
		email:      p.Email,
		pdf:        p.PDF,
		docstore:   p.Docstore,
	}
}

// baseFor maps a lead status to the direct commission it triggers.
func baseFor(status string) (int64, domain.Type, bool) {
	switch status {
	case "qualified":
		return domain.QualifiedLeadAmount, domain.TypeQualifiedLead, true
	case "sold":
		return domain.SoldLeadAmount, domain.TypeSoldLead, true
	default:
		return 0, "", false
	}
}

func referralFor(level int, base int64) (int64, domain.Type) {
	if level == 1 {
		return base * domain.Level1Percent / 100, domain.TypeReferralLevel1
	}
	return base * domain.Level2Percent / 100, domain.TypeReferralLevel2
}

// HandleLeadStatus accrues commissions for a lead status transition.
// Inserts hit the unique (lead_id, commission_type, beneficiary) index,
// so a replayed event skips rows it already wrote and fills in any it
// did not. There is deliberately no wrapping transaction: a duplicate
// key inside a transaction would poison it on postgres.
func (s *Service) HandleLeadStatus(ctx context.Context, event events.LeadStatusEvent) error {
	if event.PreviousStatus == event.NewStatus {
		return nil
	}
	base, directType, ok := baseFor(event.NewStatus)
	if !ok {
		return nil
	}

	now := s.clock.Now()
	inserts := []domain.Commission{{
		ID:                     s.genID.Generate(),
		LeadID:                 event.LeadID,
		BeneficiaryAffiliateID: event.OwnerAffiliateID,
		Level:                  0,
		CommissionType:         directType,
		AmountCents:            base,
		Status:                 domain.StatusPending,
		CreatedAt:              now,
	}}

	ancestors, err := s.affiliates.AncestorsOf(ctx, event.OwnerAffiliateID, 2)
	if err != nil {
		return fmt.Errorf("resolve referral chain: %w", err)
	}
	for i, ancestor := range ancestors {
		amount, refType := referralFor(i+1, base)
		inserts = append(inserts, domain.Commission{
			ID:                     s.genID.Generate(),
			LeadID:                 event.LeadID,
			BeneficiaryAffiliateID: ancestor.ID,
			Level:                  i + 1,
			CommissionType:         refType,
			AmountCents:            amount,
			Status:                 domain.StatusPending,
			CreatedAt:              now,
		})
	}

	created := 0
	for i := range inserts {
		err := s.repo.Insert(ctx, s.db, &inserts[i])
		if db.IsDuplicateKeyErr(err) {
			continue
		}
		if err != nil {
			return err
		}
		created++
		s.metrics.RecordCommission(string(inserts[i].CommissionType))
	}

	s.log.Info("commissions accrued",
		zap.String("lead_id", event.LeadID.String()),
		zap.String("lead_status", event.NewStatus),
		zap.Int("created", created),
		zap.Int("replayed", len(inserts)-created),
	)
	return nil
}

func (s *Service) ListOwn(ctx context.Context, req domain.ListCommissionRequest) (domain.ListCommissionResponse, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.ListCommissionResponse{}, domain.ErrInvalidAffiliate
	}
	if req.Status != "" {
		switch req.Status {
		case domain.StatusPending, domain.StatusProcessing, domain.StatusPaid, domain.StatusRejected:
		default:
			return domain.ListCommissionResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListCommissionFilter{
		BeneficiaryAffiliateID: affiliateID,
		Status:                 req.Status,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListCommissionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(c *domain.Commission) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        c.ID.String(),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	commissions := make([]domain.Commission, 0, len(items))
	for _, item := range items {
		commissions = append(commissions, *item)
	}
	return domain.ListCommissionResponse{PageInfo: *pageInfo, Commissions: commissions}, nil
}

func (s *Service) Summarize(ctx context.Context, affiliateID snowflake.ID) (domain.Summary, error) {
	return s.repo.Summarize(ctx, s.db, affiliateID)
}

func (s *Service) ReferralEarnings(ctx context.Context, beneficiaryIDs []snowflake.ID) (int64, error) {
	return s.repo.SumReferralByBeneficiaries(ctx, s.db, beneficiaryIDs)
}

// RequestPayout reserves every pending commission of the caller under a
// new payout request. The per-affiliate lock plus the conditional claim
// make concurrent requests safe: the loser claims zero rows and gets
// ErrNoPendingFunds.
func (s *Service) RequestPayout(ctx context.Context) (domain.PayoutRequest, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.PayoutRequest{}, domain.ErrInvalidAffiliate
	}

	var payout domain.PayoutRequest
	err := locking.WithLock(ctx, s.locker, "payout:"+affiliateID.String(), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			payoutID := s.genID.Generate()
			claimed, total, err := s.repo.ClaimPending(ctx, tx, affiliateID, payoutID)
			if err != nil {
				return err
			}
			if claimed == 0 {
				return domain.ErrNoPendingFunds
			}

			payout = domain.PayoutRequest{
				ID:          payoutID,
				AffiliateID: affiliateID,
				AmountCents: total,
				Status:      domain.PayoutRequested,
				RequestedAt: s.clock.Now(),
			}
			return s.repo.InsertPayout(ctx, tx, &payout)
		})
	})
	if err != nil {
		s.metrics.RecordPayoutRequest("rejected")
		return domain.PayoutRequest{}, err
	}

	s.metrics.RecordPayoutRequest("requested")
	s.log.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("affiliate_id", affiliateID.String()),
		zap.Int64("amount_cents", payout.AmountCents),
	)
	return payout, nil
}

func (s *Service) ListPayouts(ctx context.Context) ([]domain.PayoutRequest, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidAffiliate
	}
	items, err := s.repo.ListPayoutsByAffiliate(ctx, s.db, affiliateID)
	if err != nil {
		return nil, err
	}
	payouts := make([]domain.PayoutRequest, 0, len(items))
	for _, item := range items {
		payouts = append(payouts, *item)
	}
	return payouts, nil
}

// ApprovePayout marks the reserved commissions paid with today's payout
// date. The receipt and the notification are best effort; the ledger
// update is what must not be lost.
func (s *Service) ApprovePayout(ctx context.Context, id snowflake.ID) (domain.PayoutRequest, error) {
	payout, err := s.findRequested(ctx, id)
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.UpdatePayoutStatus(ctx, tx, id, domain.PayoutRequested, domain.PayoutApproved, now)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrPayoutDecided
		}
		return s.repo.SettleByPayout(ctx, tx, id, domain.StatusPaid, &now)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	payout.Status = domain.PayoutApproved
	payout.DecidedAt = &now
	s.metrics.RecordPayoutRequest("approved")
	s.notifyPayoutApproved(ctx, *payout, now)
	return *payout, nil
}

func (s *Service) RejectPayout(ctx context.Context, id snowflake.ID) (domain.PayoutRequest, error) {
	payout, err := s.findRequested(ctx, id)
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.UpdatePayoutStatus(ctx, tx, id, domain.PayoutRequested, domain.PayoutRejected, now)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrPayoutDecided
		}
		// Reserved commissions go back to pending for a future request.
		return s.repo.ReleaseByPayout(ctx, tx, id)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	payout.Status = domain.PayoutRejected
	payout.DecidedAt = &now
	s.metrics.RecordPayoutRequest("rejected")
	return *payout, nil
}

// MarkPayoutPaid records that finance executed the transfer. Commission
// rows were already settled at approval time.
func (s *Service) MarkPayoutPaid(ctx context.Context, id snowflake.ID) (domain.PayoutRequest, error) {
	payout, err := s.repo.FindPayoutByID(ctx, s.db, id)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if payout == nil {
		return domain.PayoutRequest{}, domain.ErrPayoutNotFound
	}
	if payout.Status != domain.PayoutApproved {
		return domain.PayoutRequest{}, domain.ErrPayoutNotApproved
	}

	now := s.clock.Now()
	updated, err := s.repo.UpdatePayoutStatus(ctx, s.db, id, domain.PayoutApproved, domain.PayoutPaid, now)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if !updated {
		return domain.PayoutRequest{}, domain.ErrPayoutNotApproved
	}

	payout.Status = domain.PayoutPaid
	payout.DecidedAt = &now
	return *payout, nil
}

func (s *Service) findRequested(ctx context.Context, id snowflake.ID) (*domain.PayoutRequest, error) {
	payout, err := s.repo.FindPayoutByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	if payout.Status != domain.PayoutRequested {
		return nil, domain.ErrPayoutDecided
	}
	return payout, nil
}

func (s *Service) notifyPayoutApproved(ctx context.Context, payout domain.PayoutRequest, at time.Time) {
	affiliate, err := s.affiliates.GetByID(ctx, payout.AffiliateID)
	if err != nil {
		s.log.Warn("payout notification skipped",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
		return
	}

	if s.pdf != nil && s.docstore != nil {
		receipt, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
			ReceiptNumber: payout.ID.String(),
			AffiliateName: affiliate.Email,
			DatePaid:      at.Format("January 2, 2006"),
			Items: []pdf.ReceiptItem{
				{Description: "Affiliate commission payout", Amount: FormatCents(payout.AmountCents)},
			},
			Total: FormatCents(payout.AmountCents),
		})
		if err != nil {
			s.log.Warn("payout receipt generation failed",
				zap.String("payout_id", payout.ID.String()),
				zap.Error(err),
			)
		} else {
			key := fmt.Sprintf("receipts/%s/%s.pdf", payout.AffiliateID.String(), payout.ID.String())
			if _, err := s.docstore.Put(ctx, key, "application/pdf", receipt); err != nil {
				s.log.Warn("payout receipt store failed",
					zap.String("payout_id", payout.ID.String()),
					zap.Error(err),
				)
			}
		}
	}

	if s.email != nil {
		err := s.email.SendTemplate(ctx, []string{affiliate.Email}, email.TemplatePayoutApproved, map[string]any{
			"amount": FormatCents(payout.AmountCents),
		})
		if err != nil {
			s.log.Warn("payout notification failed",
				zap.String("payout_id", payout.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// FormatCents renders an amount in cents as a dollar string.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
