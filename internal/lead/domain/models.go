package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusQualified Status = "qualified"
	StatusSold      Status = "sold"
	StatusRejected  Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInReview, StatusQualified, StatusSold, StatusRejected:
		return true
	default:
		return false
	}
}

type LeadType string

const (
	LeadTypeResidential LeadType = "residential"
	LeadTypeCommercial  LeadType = "commercial"
	LeadTypeReferral    LeadType = "referral"
)

func (t LeadType) Valid() bool {
	switch t {
	case LeadTypeResidential, LeadTypeCommercial, LeadTypeReferral:
		return true
	default:
		return false
	}
}

// Lead is a prospective customer record owned by exactly one affiliate.
// Status changes come from the admin surface or the automated
// qualification rule; the commission engine only reacts to them.
type Lead struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	LeadCode         string       `gorm:"not null;uniqueIndex" json:"lead_id"`
	OwnerAffiliateID snowflake.ID `gorm:"not null;index" json:"owner_affiliate_id"`
	Status           Status       `gorm:"not null;default:submitted" json:"status"`
	LeadType         LeadType     `gorm:"not null" json:"lead_type"`
	ContactName      string       `gorm:"not null" json:"contact_name"`
	ContactEmail     string       `json:"contact_email,omitempty"`
	ContactPhone     string       `json:"contact_phone,omitempty"`
	Notes            string       `json:"notes,omitempty"`

	// Free-form attribution from the submission form (utm fields,
	// campaign ids). Never interpreted by the engine.
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	Tags     pq.StringArray    `gorm:"type:text[]" json:"tags,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Lead) TableName() string {
	return "leads"
}
