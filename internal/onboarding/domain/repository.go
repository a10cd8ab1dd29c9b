package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	FindByAffiliateID(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (*Record, error)
	FindBySignatureSession(ctx context.Context, db *gorm.DB, sessionID string) (*Record, error)
	Update(ctx context.Context, db *gorm.DB, record *Record) error
	// ListPendingSignatures returns records stuck in the signature stage
	// with an open vendor session, oldest first.
	ListPendingSignatures(ctx context.Context, db *gorm.DB, limit int) ([]*Record, error)
	CountByStage(ctx context.Context, db *gorm.DB) (map[Stage]int64, error)
}
