package repository

import (
	"context"
	"errors"
	"time"

	"github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/pkg/db/option"
	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, commission *domain.Commission) error {
	return db.WithContext(ctx).Create(commission).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCommissionFilter, page pagination.Pagination) ([]*domain.Commission, error) {
	var commissions []*domain.Commission
	stmt := db.WithContext(ctx).Model(&domain.Commission{})
	if filter.BeneficiaryAffiliateID != 0 {
		stmt = stmt.Where("beneficiary_affiliate_id = ?", filter.BeneficiaryAffiliateID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) Summarize(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (domain.Summary, error) {
	type row struct {
		Status domain.Status
		Total  int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&domain.Commission{}).
		Select("status, COALESCE(SUM(amount_cents), 0) AS total").
		Where("beneficiary_affiliate_id = ?", affiliateID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return domain.Summary{}, err
	}

	var summary domain.Summary
	for _, r := range rows {
		switch r.Status {
		case domain.StatusPending:
			summary.PendingCents = r.Total
		case domain.StatusProcessing:
			summary.ProcessingCents = r.Total
		case domain.StatusPaid:
			summary.PaidCents = r.Total
		}
		if r.Status != domain.StatusRejected {
			summary.TotalCents += r.Total
		}
	}

	referral, err := r.SumReferralByBeneficiaries(ctx, db, []snowflake.ID{affiliateID})
	if err != nil {
		return domain.Summary{}, err
	}
	summary.ReferralCents = referral
	return summary, nil
}

func (r *repo) SumReferralByBeneficiaries(ctx context.Context, db *gorm.DB, beneficiaryIDs []snowflake.ID) (int64, error) {
	if len(beneficiaryIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := db.WithContext(ctx).Model(&domain.Commission{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("beneficiary_affiliate_id IN ?", beneficiaryIDs).
		Where("commission_type IN ?", []domain.Type{domain.TypeReferralLevel1, domain.TypeReferralLevel2}).
		Where("status <> ?", domain.StatusRejected).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ClaimPending(ctx context.Context, db *gorm.DB, affiliateID, payoutID snowflake.ID) (int64, int64, error) {
	res := db.WithContext(ctx).Model(&domain.Commission{}).
		Where("beneficiary_affiliate_id = ? AND status = ?", affiliateID, domain.StatusPending).
		Updates(map[string]any{
			"status":            domain.StatusProcessing,
			"payout_request_id": payoutID,
		})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, 0, nil
	}

	var total int64
	err := db.WithContext(ctx).Model(&domain.Commission{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("payout_request_id = ?", payoutID).
		Scan(&total).Error
	if err != nil {
		return 0, 0, err
	}
	return res.RowsAffected, total, nil
}

func (r *repo) SettleByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, next domain.Status, payoutDate *time.Time) error {
	return db.WithContext(ctx).Model(&domain.Commission{}).
		Where("payout_request_id = ? AND status = ?", payoutID, domain.StatusProcessing).
		Updates(map[string]any{
			"status":      next,
			"payout_date": payoutDate,
		}).Error
}

func (r *repo) ReleaseByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) error {
	return db.WithContext(ctx).Model(&domain.Commission{}).
		Where("payout_request_id = ? AND status = ?", payoutID, domain.StatusProcessing).
		Updates(map[string]any{
			"status":            domain.StatusPending,
			"payout_request_id": nil,
		}).Error
}

func (r *repo) InsertPayout(ctx context.Context, db *gorm.DB, payout *domain.PayoutRequest) error {
	return db.WithContext(ctx).Create(payout).Error
}

func (r *repo) FindPayoutByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PayoutRequest, error) {
	var payout domain.PayoutRequest
	err := db.WithContext(ctx).First(&payout, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repo) ListPayoutsByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]*domain.PayoutRequest, error) {
	var payouts []*domain.PayoutRequest
	err := db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("requested_at desc, id desc").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) UpdatePayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next domain.PayoutStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.PayoutRequest{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status":     next,
			"decided_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
