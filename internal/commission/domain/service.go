package domain

import (
	"context"
	"errors"

	"github.com/agnuslink/agnuslink/internal/events"
	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

type ListCommissionRequest struct {
	Status    Status `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type ListCommissionResponse struct {
	pagination.PageInfo
	Commissions []Commission `json:"commissions"`
}

// Service is the commission engine. It is the sole events.Handler in the
// system: every lead status transition lands here, possibly more than
// once, and the engine must converge to the same ledger either way.
type Service interface {
	events.Handler

	ListOwn(ctx context.Context, req ListCommissionRequest) (ListCommissionResponse, error)
	Summarize(ctx context.Context, affiliateID snowflake.ID) (Summary, error)
	ReferralEarnings(ctx context.Context, beneficiaryIDs []snowflake.ID) (int64, error)

	RequestPayout(ctx context.Context) (PayoutRequest, error)
	ListPayouts(ctx context.Context) ([]PayoutRequest, error)
	ApprovePayout(ctx context.Context, id snowflake.ID) (PayoutRequest, error)
	RejectPayout(ctx context.Context, id snowflake.ID) (PayoutRequest, error)
	MarkPayoutPaid(ctx context.Context, id snowflake.ID) (PayoutRequest, error)
}

var (
	ErrInvalidAffiliate  = errors.New("invalid_affiliate")
	ErrInvalidStatus     = errors.New("invalid_commission_status")
	ErrNoPendingFunds    = errors.New("no_pending_funds")
	ErrPayoutNotFound    = errors.New("payout_not_found")
	ErrPayoutDecided     = errors.New("payout_already_decided")
	ErrPayoutNotApproved = errors.New("payout_not_approved")
)
