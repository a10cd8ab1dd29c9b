package service

import (
	"context"

	"github.com/agnuslink/agnuslink/internal/affctx"
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/dashboard/domain"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Override commissions stop at two levels, so the downline stats do too.
const downlineDepth = 2

type Params struct {
	fx.In

	Log         *zap.Logger
	Affiliates  affiliatedomain.Service
	Onboarding  onboardingdomain.Service
	Commissions commissiondomain.Service
	Leads       leaddomain.Service
}

type Service struct {
	log         *zap.Logger
	affiliates  affiliatedomain.Service
	onboarding  onboardingdomain.Service
	commissions commissiondomain.Service
	leads       leaddomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("dashboard.service"),
		affiliates:  p.Affiliates,
		onboarding:  p.Onboarding,
		commissions: p.Commissions,
		leads:       p.Leads,
	}
}

func (s *Service) Overview(ctx context.Context) (domain.Overview, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.Overview{}, domain.ErrInvalidAffiliate
	}

	affiliate, err := s.affiliates.GetByID(ctx, affiliateID)
	if err != nil {
		return domain.Overview{}, err
	}
	onboardingStatus, err := s.onboarding.Status(ctx)
	if err != nil {
		return domain.Overview{}, err
	}
	summary, err := s.commissions.Summarize(ctx, affiliateID)
	if err != nil {
		return domain.Overview{}, err
	}
	leadCounts, err := s.leads.CountByOwners(ctx, []snowflake.ID{affiliateID})
	if err != nil {
		return domain.Overview{}, err
	}
	referralStats, err := s.referralStats(ctx, affiliateID)
	if err != nil {
		return domain.Overview{}, err
	}

	return domain.Overview{
		Affiliate: domain.AffiliateProfile{
			ID:           affiliate.ID.String(),
			Email:        affiliate.Email,
			ReferralCode: affiliate.ReferralCode,
			MemberSince:  affiliate.CreatedAt,
		},
		Onboarding:  onboardingStatus,
		Commissions: summary,
		Leads:       domain.LeadStats{Total: leadCounts[affiliateID]},
		Referrals:   referralStats,
	}, nil
}

func (s *Service) Referrals(ctx context.Context) ([]domain.Referral, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidAffiliate
	}

	direct, err := s.affiliates.DirectReferrals(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(direct))
	for _, referral := range direct {
		ids = append(ids, referral.ID)
	}
	leadCounts, err := s.leads.CountByOwners(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Referral, 0, len(direct))
	for _, referral := range direct {
		stage, err := s.onboarding.StageOf(ctx, referral.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Referral{
			ID:              referral.ID.String(),
			Email:           referral.Email,
			JoinedAt:        referral.CreatedAt,
			OnboardingStage: stage,
			LeadCount:       leadCounts[referral.ID],
		})
	}
	return out, nil
}

func (s *Service) ReferralStats(ctx context.Context) (domain.ReferralStats, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.ReferralStats{}, domain.ErrInvalidAffiliate
	}
	return s.referralStats(ctx, affiliateID)
}

func (s *Service) referralStats(ctx context.Context, affiliateID snowflake.ID) (domain.ReferralStats, error) {
	stats := domain.ReferralStats{}
	downline := make([]snowflake.ID, 0, 16)
	err := s.affiliates.SubtreeOf(ctx, affiliateID, func(a affiliatedomain.Affiliate, depth int) error {
		if depth > downlineDepth {
			return affiliatedomain.ErrStopWalk
		}
		switch depth {
		case 1:
			stats.DirectCount++
		case 2:
			stats.Level2Count++
		}
		stats.DownlineCount++
		downline = append(downline, a.ID)
		return nil
	})
	if err != nil {
		return domain.ReferralStats{}, err
	}

	if len(downline) > 0 {
		leadCounts, err := s.leads.CountByOwners(ctx, downline)
		if err != nil {
			return domain.ReferralStats{}, err
		}
		for _, count := range leadCounts {
			if count > 0 {
				stats.ActiveCount++
			}
		}
	}

	earnings, err := s.commissions.ReferralEarnings(ctx, []snowflake.ID{affiliateID})
	if err != nil {
		return domain.ReferralStats{}, err
	}
	stats.EarningsCents = earnings
	return stats, nil
}
