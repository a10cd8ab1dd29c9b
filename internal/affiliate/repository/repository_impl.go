package repository

import (
	"context"
	"errors"

	"github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).Create(affiliate).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).First(&affiliate, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).First(&affiliate, "referral_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repo) ListByReferrer(ctx context.Context, db *gorm.DB, referrerIDs []snowflake.ID) ([]*domain.Affiliate, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}
	var affiliates []*domain.Affiliate
	err := db.WithContext(ctx).
		Where("referrer_id IN ?", referrerIDs).
		Order("created_at asc, id asc").
		Find(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}
