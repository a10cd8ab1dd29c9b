package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Affiliate is a participant who submits leads and refers other
// affiliates. ReferrerID is a weak back-reference set once at creation;
// the referral graph is a forest because each affiliate has at most one
// referrer.
type Affiliate struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email        string        `gorm:"not null;uniqueIndex" json:"email"`
	ReferralCode string        `gorm:"not null;uniqueIndex" json:"referral_code"`
	ReferrerID   *snowflake.ID `gorm:"index" json:"referrer_id,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}
