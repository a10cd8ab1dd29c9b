package repository

import (
	"context"
	"errors"
	"time"

	"github.com/agnuslink/agnuslink/internal/lead/domain"
	"github.com/agnuslink/agnuslink/pkg/db/option"
	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Create(lead).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).First(&lead, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListLeadFilter, page pagination.Pagination) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	stmt := db.WithContext(ctx).Model(&domain.Lead{})
	if filter.OwnerAffiliateID != 0 {
		stmt = stmt.Where("owner_affiliate_id = ?", filter.OwnerAffiliateID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next domain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Lead{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status":     next,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountByOwners(ctx context.Context, db *gorm.DB, ownerIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	if len(ownerIDs) == 0 {
		return map[snowflake.ID]int64{}, nil
	}

	type row struct {
		OwnerAffiliateID snowflake.ID
		Total            int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&domain.Lead{}).
		Select("owner_affiliate_id, COUNT(*) AS total").
		Where("owner_affiliate_id IN ?", ownerIDs).
		Group("owner_affiliate_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[snowflake.ID]int64, len(rows))
	for _, r := range rows {
		out[r.OwnerAffiliateID] = r.Total
	}
	return out, nil
}

func (r *repo) ListStaleSubmitted(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusSubmitted, before).
		Order("created_at asc").
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *repo) ListCommissionable(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	err := db.WithContext(ctx).
		Where("status IN ? AND updated_at >= ?", []domain.Status{domain.StatusQualified, domain.StatusSold}, since).
		Order("updated_at asc").
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}
