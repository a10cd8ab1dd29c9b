// Package domain defines the dashboard projection: a read-only
// composition of the affiliate profile, onboarding status, commission
// totals and referral stats. Nothing here is stored; every response is
// assembled from the owning modules on read.
package domain

import (
	"context"
	"errors"
	"time"

	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
)

type AffiliateProfile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	ReferralCode string    `json:"referral_code"`
	MemberSince  time.Time `json:"member_since"`
}

type LeadStats struct {
	Total int64 `json:"total"`
}

type ReferralStats struct {
	DirectCount   int   `json:"direct_count"`
	Level2Count   int   `json:"level2_count"`
	DownlineCount int   `json:"downline_count"`
	ActiveCount   int   `json:"active_count"`
	EarningsCents int64 `json:"earnings_cents"`
}

type Referral struct {
	ID              string                 `json:"id"`
	Email           string                 `json:"email"`
	JoinedAt        time.Time              `json:"joined_at"`
	OnboardingStage onboardingdomain.Stage `json:"onboarding_stage"`
	LeadCount       int64                  `json:"lead_count"`
}

type Overview struct {
	Affiliate   AffiliateProfile                `json:"affiliate"`
	Onboarding  onboardingdomain.StatusResponse `json:"onboarding"`
	Commissions commissiondomain.Summary        `json:"commissions"`
	Leads       LeadStats                       `json:"leads"`
	Referrals   ReferralStats                   `json:"referrals"`
}

type Service interface {
	Overview(ctx context.Context) (Overview, error)
	// Referrals lists the caller's direct referrals with their lead
	// totals.
	Referrals(ctx context.Context) ([]Referral, error)
	// ReferralStats counts the downline up to the two levels that pay
	// override commissions.
	ReferralStats(ctx context.Context) (ReferralStats, error)
}

var ErrInvalidAffiliate = errors.New("invalid_affiliate")
