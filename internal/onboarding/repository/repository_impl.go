package repository

import (
	"context"
	"errors"

	"github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByAffiliateID(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).First(&record, "affiliate_id = ?", affiliateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) FindBySignatureSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).First(&record, "signature_session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Save(record).Error
}

func (r *repo) ListPendingSignatures(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Record, error) {
	var records []*domain.Record
	err := db.WithContext(ctx).
		Where("current_stage = ? AND signature_session_id <> ''", domain.StageSignature).
		Order("updated_at asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) CountByStage(ctx context.Context, db *gorm.DB) (map[domain.Stage]int64, error) {
	type row struct {
		CurrentStage domain.Stage
		Total        int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&domain.Record{}).
		Select("current_stage, COUNT(*) AS total").
		Group("current_stage").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Stage]int64, len(rows))
	for _, r := range rows {
		out[r.CurrentStage] = r.Total
	}
	return out, nil
}
