package domain

import (
	"context"
	"time"

	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListLeadFilter struct {
	OwnerAffiliateID snowflake.ID
	Status           Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, lead *Lead) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lead, error)
	List(ctx context.Context, db *gorm.DB, filter ListLeadFilter, page pagination.Pagination) ([]*Lead, error)
	// UpdateStatus moves the lead out of expected into next and reports
	// whether a row actually changed, so a concurrent admin action cannot
	// apply the same transition twice.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next Status, at time.Time) (bool, error)
	CountByOwners(ctx context.Context, db *gorm.DB, ownerIDs []snowflake.ID) (map[snowflake.ID]int64, error)
	ListStaleSubmitted(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Lead, error)
	// ListCommissionable returns qualified or sold leads whose status
	// changed at or after since.
	ListCommissionable(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]*Lead, error)
}
