package service

import (
	"context"
	"strings"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/events"
	"github.com/agnuslink/agnuslink/internal/lead/domain"
	"github.com/agnuslink/agnuslink/internal/observability/metrics"
	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/jaevor/go-nanoid"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lead codes are the external-facing identifier printed in the SPA and
// shared with the sales desk.
const (
	leadCodeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	leadCodeLength   = 12
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	publisher events.Publisher
	metrics   *metrics.Metrics
	genCode   func() string
}

func New(p Params) (domain.Service, error) {
	genCode, err := nanoid.CustomASCII(leadCodeAlphabet, leadCodeLength)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("lead.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		genCode:   genCode,
	}, nil
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitLeadRequest) (domain.Lead, error) {
	ownerID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.Lead{}, domain.ErrInvalidAffiliate
	}

	if !req.LeadType.Valid() {
		return domain.Lead{}, domain.ErrInvalidLeadType
	}
	contactName := strings.TrimSpace(req.ContactName)
	if contactName == "" {
		return domain.Lead{}, domain.ErrInvalidContact
	}

	now := s.clock.Now()
	lead := domain.Lead{
		ID:               s.genID.Generate(),
		LeadCode:         s.genCode(),
		OwnerAffiliateID: ownerID,
		Status:           domain.StatusSubmitted,
		LeadType:         req.LeadType,
		ContactName:      contactName,
		ContactEmail:     strings.TrimSpace(req.ContactEmail),
		ContactPhone:     strings.TrimSpace(req.ContactPhone),
		Notes:            strings.TrimSpace(req.Notes),
		Metadata:         datatypes.JSONMap(req.Metadata),
		Tags:             pq.StringArray(req.Tags),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &lead); err != nil {
		return domain.Lead{}, err
	}

	return lead, nil
}

func (s *Service) ListOwn(ctx context.Context, req domain.ListLeadRequest) (domain.ListLeadResponse, error) {
	ownerID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.ListLeadResponse{}, domain.ErrInvalidAffiliate
	}
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListLeadResponse{}, domain.ErrInvalidStatus
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListLeadFilter{
		OwnerAffiliateID: ownerID,
		Status:           req.Status,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListLeadResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(lead *domain.Lead) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        lead.ID.String(),
			CreatedAt: lead.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	leads := make([]domain.Lead, 0, len(items))
	for _, item := range items {
		leads = append(leads, *item)
	}

	return domain.ListLeadResponse{PageInfo: *pageInfo, Leads: leads}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Lead, error) {
	lead, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if lead == nil {
		return domain.Lead{}, domain.ErrNotFound
	}

	// Affiliates only see their own leads; existence of someone else's
	// lead is not disclosed either.
	if callerID, ok := affctx.AffiliateIDFromContext(ctx); ok && lead.OwnerAffiliateID != callerID {
		switch affctx.RoleFromContext(ctx) {
		case affctx.RoleAdmin, affctx.RoleReviewer:
		default:
			return domain.Lead{}, domain.ErrNotFound
		}
	}
	return *lead, nil
}

func (s *Service) CountByOwners(ctx context.Context, ownerIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	return s.repo.CountByOwners(ctx, s.db, ownerIDs)
}

func (s *Service) ReviewStale(ctx context.Context, before time.Time, limit int) (int, error) {
	stale, err := s.repo.ListStaleSubmitted(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, lead := range stale {
		_, err := s.ChangeStatus(ctx, lead.ID, domain.StatusInReview)
		if err != nil {
			// Raced with an admin decision; the lead already moved on.
			if err == domain.ErrStatusRaced || err == domain.ErrStatusUnchanged {
				continue
			}
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// ReplayStatusEvents re-emits events for qualified or sold leads updated
// since the cutoff. A publish that failed in ChangeStatus would otherwise
// lose the commission accrual for good; the engine's unique commission
// index makes the re-emission idempotent. A replayed event carries no
// previous status, only the current one the engine accrues from.
func (s *Service) ReplayStatusEvents(ctx context.Context, since time.Time, limit int) (int, error) {
	leads, err := s.repo.ListCommissionable(ctx, s.db, since, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, lead := range leads {
		event := events.LeadStatusEvent{
			LeadID:           lead.ID,
			OwnerAffiliateID: lead.OwnerAffiliateID,
			NewStatus:        string(lead.Status),
			OccurredAt:       lead.UpdatedAt,
		}
		if err := s.publisher.PublishLeadStatus(ctx, event); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// ChangeStatus persists the transition with a conditional update, then
// emits the event. The conditional update is what guarantees the
// commission engine sees each transition at most once from this path.
func (s *Service) ChangeStatus(ctx context.Context, id snowflake.ID, next domain.Status) (domain.Lead, error) {
	if !next.Valid() {
		return domain.Lead{}, domain.ErrInvalidStatus
	}

	lead, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if lead == nil {
		return domain.Lead{}, domain.ErrNotFound
	}
	if lead.Status == next {
		return domain.Lead{}, domain.ErrStatusUnchanged
	}

	now := s.clock.Now()
	changed, err := s.repo.UpdateStatus(ctx, s.db, id, lead.Status, next, now)
	if err != nil {
		return domain.Lead{}, err
	}
	if !changed {
		return domain.Lead{}, domain.ErrStatusRaced
	}

	event := events.LeadStatusEvent{
		LeadID:           lead.ID,
		OwnerAffiliateID: lead.OwnerAffiliateID,
		PreviousStatus:   string(lead.Status),
		NewStatus:        string(next),
		OccurredAt:       now,
	}
	if err := s.publisher.PublishLeadStatus(ctx, event); err != nil {
		// The transition is already durable. The commission backfill job
		// re-emits events for commissionable leads, so the dropped event
		// is recovered on the next scheduler run.
		s.log.Error("publish lead status event",
			zap.String("lead_id", lead.ID.String()),
			zap.Error(err),
		)
	}
	s.metrics.RecordLeadEvent(string(next))

	previous := lead.Status
	lead.Status = next
	lead.UpdatedAt = now
	s.log.Info("lead status changed",
		zap.String("lead_id", lead.ID.String()),
		zap.String("previous", string(previous)),
		zap.String("next", string(next)),
	)
	return *lead, nil
}
