package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliate, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*Affiliate, error)
	// ListByReferrer returns the direct children of the given affiliates,
	// one BFS frontier at a time.
	ListByReferrer(ctx context.Context, db *gorm.DB, referrerIDs []snowflake.ID) ([]*Affiliate, error)
}
