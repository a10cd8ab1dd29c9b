package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateAffiliateRequest struct {
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code"` // referrer's code, optional
}

// Visitor receives one descendant per call during a subtree walk.
// Returning ErrStopWalk ends the walk early without error.
type Visitor func(affiliate Affiliate, depth int) error

type Service interface {
	Create(ctx context.Context, req CreateAffiliateRequest) (Affiliate, error)
	GetByID(ctx context.Context, id snowflake.ID) (Affiliate, error)

	// AncestorsOf walks the referral chain upward, nearest-first, at most
	// maxDepth hops. Reaching the root early is not an error.
	AncestorsOf(ctx context.Context, id snowflake.ID, maxDepth int) ([]Affiliate, error)

	// SubtreeOf streams every descendant breadth-first. Depth starts at 1
	// for direct referrals.
	SubtreeOf(ctx context.Context, id snowflake.ID, visit Visitor) error

	// DirectReferrals returns the immediate children only.
	DirectReferrals(ctx context.Context, id snowflake.ID) ([]Affiliate, error)
}

var (
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrEmailTaken          = errors.New("email_taken")
	ErrInvalidReferralCode = errors.New("invalid_referral_code")
	ErrNotFound            = errors.New("affiliate_not_found")

	// ErrStopWalk is a sentinel for Visitor to end a subtree walk early.
	ErrStopWalk = errors.New("stop_walk")
)
