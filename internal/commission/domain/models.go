package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeQualifiedLead  Type = "qualified_lead"
	TypeSoldLead       Type = "sold_lead"
	TypeReferralLevel1 Type = "referral_level1"
	TypeReferralLevel2 Type = "referral_level2"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusRejected   Status = "rejected"
)

// Rate table. Amounts are cents; referral levels are percentages of the
// triggering commission's base amount.
const (
	QualifiedLeadAmount int64 = 5000
	SoldLeadAmount      int64 = 15000
	Level1Percent       int64 = 10
	Level2Percent       int64 = 5
)

// Commission is a monetary credit owed to an affiliate for a lead event.
// The unique index over (lead_id, commission_type, beneficiary) is the
// replay guard: the engine inserts blindly and treats duplicate-key as
// already-processed.
type Commission struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	LeadID                 snowflake.ID  `gorm:"not null;uniqueIndex:ux_commissions_lead_type_beneficiary,priority:1" json:"lead_id"`
	BeneficiaryAffiliateID snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_commissions_lead_type_beneficiary,priority:3" json:"beneficiary_affiliate_id"`
	Level                  int           `gorm:"not null" json:"level"`
	CommissionType         Type          `gorm:"not null;uniqueIndex:ux_commissions_lead_type_beneficiary,priority:2" json:"commission_type"`
	AmountCents            int64         `gorm:"not null" json:"amount_cents"`
	Status                 Status        `gorm:"not null;default:pending;index" json:"status"`
	PayoutRequestID        *snowflake.ID `gorm:"index" json:"payout_request_id,omitempty"`
	PayoutDate             *time.Time    `json:"payout_date,omitempty"`
	CreatedAt              time.Time     `gorm:"not null" json:"created_at"`
}

func (Commission) TableName() string {
	return "commissions"
}

type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "requested"
	PayoutApproved  PayoutStatus = "approved"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutPaid      PayoutStatus = "paid"
)

// PayoutRequest reserves an affiliate's pending commissions. Creation
// and reservation happen in one transaction so two requests can never
// claim the same rows.
type PayoutRequest struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	AmountCents int64        `gorm:"not null" json:"amount_cents"`
	Status      PayoutStatus `gorm:"not null;default:requested" json:"status"`
	RequestedAt time.Time    `gorm:"not null" json:"requested_at"`
	DecidedAt   *time.Time   `json:"decided_at,omitempty"`
}

func (PayoutRequest) TableName() string {
	return "payout_requests"
}

// Summary aggregates an affiliate's commissions for the dashboard.
type Summary struct {
	PendingCents    int64 `json:"pending_cents"`
	ProcessingCents int64 `json:"processing_cents"`
	PaidCents       int64 `json:"paid_cents"`
	TotalCents      int64 `json:"total_cents"`
	ReferralCents   int64 `json:"referral_cents"`
}
