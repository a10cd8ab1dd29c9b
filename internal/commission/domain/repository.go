package domain

import (
	"context"
	"time"

	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListCommissionFilter struct {
	BeneficiaryAffiliateID snowflake.ID
	Status                 Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, commission *Commission) error
	List(ctx context.Context, db *gorm.DB, filter ListCommissionFilter, page pagination.Pagination) ([]*Commission, error)
	Summarize(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (Summary, error)
	SumReferralByBeneficiaries(ctx context.Context, db *gorm.DB, beneficiaryIDs []snowflake.ID) (int64, error)

	// ClaimPending moves every pending commission of the affiliate into
	// processing under the payout request, returning how many rows were
	// claimed and their summed amount. The conditional UPDATE is the
	// exactly-once reservation.
	ClaimPending(ctx context.Context, db *gorm.DB, affiliateID, payoutID snowflake.ID) (int64, int64, error)
	SettleByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, next Status, payoutDate *time.Time) error
	ReleaseByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) error

	InsertPayout(ctx context.Context, db *gorm.DB, payout *PayoutRequest) error
	FindPayoutByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutRequest, error)
	ListPayoutsByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]*PayoutRequest, error)
	// UpdatePayoutStatus succeeds only when the request is still in the
	// expected status.
	UpdatePayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next PayoutStatus, at time.Time) (bool, error)
}
