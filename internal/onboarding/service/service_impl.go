package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agnuslink/agnuslink/internal/affctx"
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/locking"
	"github.com/agnuslink/agnuslink/internal/observability/metrics"
	"github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/agnuslink/agnuslink/internal/providers/docstore"
	"github.com/agnuslink/agnuslink/internal/providers/email"
	"github.com/agnuslink/agnuslink/internal/providers/esign"
	"github.com/agnuslink/agnuslink/internal/providers/pdf"
	"github.com/agnuslink/agnuslink/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var allowedKycMedia = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Affiliates affiliatedomain.Service
	Locker     locking.Locker
	Esign      esign.Provider
	Docstore   docstore.Store
	PDF        pdf.Provider
	Email      email.Provider   `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	affiliates affiliatedomain.Service
	locker     locking.Locker
	esign      esign.Provider
	docstore   docstore.Store
	pdf        pdf.Provider
	email      email.Provider
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("onboarding.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		affiliates: p.Affiliates,
		locker:     p.Locker,
		esign:      p.Esign,
		docstore:   p.Docstore,
		pdf:        p.PDF,
		email:      p.Email,
		metrics:    p.Metrics,
	}
}

func lockKey(affiliateID snowflake.ID) string {
	return "onboarding:" + affiliateID.String()
}

// getOrCreate returns the affiliate's record, creating it at the welcome
// stage on first contact. A concurrent first contact loses the insert on
// the unique affiliate index and re-reads.
func (s *Service) getOrCreate(ctx context.Context, affiliateID snowflake.ID) (*domain.Record, error) {
	record, err := s.repo.FindByAffiliateID(ctx, s.db, affiliateID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	now := s.clock.Now()
	record = &domain.Record{
		ID:           s.genID.Generate(),
		AffiliateID:  affiliateID,
		CurrentStage: domain.StageWelcome,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.repo.Insert(ctx, s.db, record)
	if db.IsDuplicateKeyErr(err) {
		return s.repo.FindByAffiliateID(ctx, s.db, affiliateID)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func project(record *domain.Record) domain.StatusResponse {
	return domain.StatusResponse{
		Stage:         record.CurrentStage,
		NextAction:    domain.ActionFor(record.CurrentStage),
		Progress:      domain.ProgressFor(record.CurrentStage),
		PersonalInfo:  record.Info(),
		SignedAt:      record.SignedAt,
		KycUploadedAt: record.KycUploadedAt,
		ReviewNote:    record.ReviewNote,
		CompletedAt:   record.CompletedAt,
	}
}

func (s *Service) Status(ctx context.Context) (domain.StatusResponse, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.StatusResponse{}, domain.ErrInvalidAffiliate
	}
	record, err := s.getOrCreate(ctx, affiliateID)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	return project(record), nil
}

func (s *Service) Gate(ctx context.Context) (bool, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return false, domain.ErrInvalidAffiliate
	}
	record, err := s.repo.FindByAffiliateID(ctx, s.db, affiliateID)
	if err != nil {
		return false, err
	}
	return record != nil && record.CurrentStage == domain.StageComplete, nil
}

func (s *Service) StageOf(ctx context.Context, affiliateID snowflake.ID) (domain.Stage, error) {
	record, err := s.repo.FindByAffiliateID(ctx, s.db, affiliateID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return domain.StageWelcome, nil
	}
	return record.CurrentStage, nil
}

func (s *Service) SubmitPersonalInfo(ctx context.Context, req domain.PersonalInfoRequest) (domain.StatusResponse, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.StatusResponse{}, domain.ErrInvalidAffiliate
	}
	info := domain.PersonalInfo{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		City:      strings.TrimSpace(req.City),
		State:     strings.TrimSpace(req.State),
		Zip:       strings.TrimSpace(req.Zip),
	}
	if info.FirstName == "" || info.LastName == "" || info.Phone == "" ||
		info.Address == "" || info.City == "" || info.State == "" || info.Zip == "" {
		return domain.StatusResponse{}, domain.ErrInvalidPersonalInfo
	}

	var out domain.StatusResponse
	err := locking.WithLock(ctx, s.locker, lockKey(affiliateID), func(ctx context.Context) error {
		record, err := s.getOrCreate(ctx, affiliateID)
		if err != nil {
			return err
		}

		// Personal info is mutable only while it is still being
		// collected; once the agreement stage begins it is frozen.
		switch record.CurrentStage {
		case domain.StageWelcome, domain.StagePersonalInfo:
		default:
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		record.FirstName = info.FirstName
		record.LastName = info.LastName
		record.Phone = info.Phone
		record.Address = info.Address
		record.City = info.City
		record.State = info.State
		record.Zip = info.Zip
		record.PersonalInfoAt = &now
		record.CurrentStage = domain.StageSignature
		record.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, record); err != nil {
			return err
		}
		s.metrics.RecordOnboardingTransition(string(domain.StageSignature))
		out = project(record)
		return nil
	})
	if err != nil {
		return domain.StatusResponse{}, err
	}
	return out, nil
}

func (s *Service) StartSignature(ctx context.Context) (domain.SignatureSession, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.SignatureSession{}, domain.ErrInvalidAffiliate
	}

	var out domain.SignatureSession
	err := locking.WithLock(ctx, s.locker, lockKey(affiliateID), func(ctx context.Context) error {
		record, err := s.getOrCreate(ctx, affiliateID)
		if err != nil {
			return err
		}
		if record.CurrentStage != domain.StageSignature {
			return domain.ErrInvalidTransition
		}

		// Reuse an open session rather than littering the vendor with
		// abandoned ones. An expired session is replaced.
		if record.SignatureSessionID != "" {
			status, err := s.esign.SessionStatus(ctx, record.SignatureSessionID)
			if err != nil {
				return domain.ErrProviderUnavailable
			}
			switch status {
			case esign.SessionPending:
				out = domain.SignatureSession{
					SessionID:   record.SignatureSessionID,
					RedirectURL: record.SignatureRedirectURL,
				}
				return nil
			case esign.SessionCompleted:
				// Webhook lost; advance now. The caller did sign, so this
				// is reported as success, not a transition error.
				if _, err := s.resolveLocked(ctx, record); err != nil {
					return err
				}
				return domain.ErrAlreadySigned
			}
		}

		affiliate, err := s.affiliates.GetByID(ctx, affiliateID)
		if err != nil {
			return err
		}
		session, err := s.esign.CreateSession(ctx, esign.CreateSessionRequest{
			SignerName:  strings.TrimSpace(record.FirstName + " " + record.LastName),
			SignerEmail: affiliate.Email,
		})
		if err != nil {
			return domain.ErrProviderUnavailable
		}

		record.SignatureSessionID = session.ID
		record.SignatureRedirectURL = session.RedirectURL
		record.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, s.db, record); err != nil {
			return err
		}
		out = domain.SignatureSession{SessionID: session.ID, RedirectURL: session.RedirectURL}
		return nil
	})
	if err != nil {
		return domain.SignatureSession{}, err
	}
	return out, nil
}

func (s *Service) ResolveSignature(ctx context.Context, sessionID string) error {
	record, err := s.repo.FindBySignatureSession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.ErrSessionNotFound
	}

	return locking.WithLock(ctx, s.locker, lockKey(record.AffiliateID), func(ctx context.Context) error {
		// Re-read under the lock; the webhook and the reconciler race.
		record, err := s.repo.FindByAffiliateID(ctx, s.db, record.AffiliateID)
		if err != nil {
			return err
		}
		if record == nil || record.CurrentStage != domain.StageSignature || record.SignatureSessionID != sessionID {
			return nil
		}
		_, err = s.resolveLocked(ctx, record)
		return err
	})
}

// resolveLocked asks the vendor for the session verdict and advances the
// record on completion. Caller holds the affiliate lock.
func (s *Service) resolveLocked(ctx context.Context, record *domain.Record) (bool, error) {
	status, err := s.esign.SessionStatus(ctx, record.SignatureSessionID)
	if err != nil {
		return false, domain.ErrProviderUnavailable
	}

	now := s.clock.Now()
	switch status {
	case esign.SessionCompleted:
		affiliate, err := s.affiliates.GetByID(ctx, record.AffiliateID)
		if err != nil {
			return false, err
		}
		ref, err := s.storeAgreement(ctx, record, affiliate)
		if err != nil {
			return false, err
		}
		record.AgreementRef = ref
		record.SignedAt = &now
		record.CurrentStage = domain.StageKycUpload
		record.SignatureRedirectURL = ""
		record.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, record); err != nil {
			return false, err
		}
		s.metrics.RecordOnboardingTransition(string(domain.StageKycUpload))
		s.log.Info("signature completed",
			zap.String("affiliate_id", record.AffiliateID.String()),
			zap.String("session_id", record.SignatureSessionID),
		)
		return true, nil
	case esign.SessionExpired:
		record.SignatureSessionID = ""
		record.SignatureRedirectURL = ""
		record.UpdatedAt = now
		return false, s.repo.Update(ctx, s.db, record)
	default:
		return false, nil
	}
}

func (s *Service) storeAgreement(ctx context.Context, record *domain.Record, affiliate affiliatedomain.Affiliate) (string, error) {
	doc, err := s.pdf.GenerateAgreement(ctx, pdf.AgreementData{
		AffiliateName: strings.TrimSpace(record.FirstName + " " + record.LastName),
		Email:         affiliate.Email,
		ReferralCode:  affiliate.ReferralCode,
		Date:          s.clock.Now().Format("January 2, 2006"),
	})
	if err != nil {
		return "", fmt.Errorf("generate agreement: %w", err)
	}
	key := fmt.Sprintf("agreements/%s/%s.pdf", record.AffiliateID.String(), record.ID.String())
	if _, err := s.docstore.Put(ctx, key, "application/pdf", doc); err != nil {
		return "", fmt.Errorf("store agreement: %w", err)
	}
	return key, nil
}

func (s *Service) UploadKycDocument(ctx context.Context, req domain.UploadKycRequest) (domain.StatusResponse, error) {
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		return domain.StatusResponse{}, domain.ErrInvalidAffiliate
	}
	if !req.DocumentType.Valid() {
		return domain.StatusResponse{}, domain.ErrInvalidDocumentType
	}
	ext, ok := allowedKycMedia[req.ContentType]
	if !ok {
		return domain.StatusResponse{}, domain.ErrUnsupportedMedia
	}
	if req.Size <= 0 || req.Size > domain.MaxKycDocumentSize {
		return domain.StatusResponse{}, domain.ErrDocumentTooLarge
	}

	var out domain.StatusResponse
	err := locking.WithLock(ctx, s.locker, lockKey(affiliateID), func(ctx context.Context) error {
		record, err := s.getOrCreate(ctx, affiliateID)
		if err != nil {
			return err
		}
		if record.CurrentStage != domain.StageKycUpload {
			return domain.ErrInvalidTransition
		}

		// The declared size is client input; cap the actual bytes too.
		key := fmt.Sprintf("kyc/%s/%s%s", affiliateID.String(), s.genID.Generate().String(), ext)
		doc, err := s.docstore.Put(ctx, key, req.ContentType, io.LimitReader(req.Content, domain.MaxKycDocumentSize+1))
		if err != nil {
			return err
		}
		if doc.Size > domain.MaxKycDocumentSize {
			_ = s.docstore.Delete(ctx, key)
			return domain.ErrDocumentTooLarge
		}

		now := s.clock.Now()
		record.KycDocumentType = req.DocumentType
		record.KycDocumentRef = key
		record.KycUploadedAt = &now
		record.ReviewNote = ""
		record.CurrentStage = domain.StageReview
		record.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, record); err != nil {
			return err
		}
		s.metrics.RecordOnboardingTransition(string(domain.StageReview))
		out = project(record)
		return nil
	})
	if err != nil {
		return domain.StatusResponse{}, err
	}
	return out, nil
}

func (s *Service) CompleteReview(ctx context.Context, affiliateID snowflake.ID, req domain.ReviewRequest) (domain.StatusResponse, error) {
	var out domain.StatusResponse
	err := locking.WithLock(ctx, s.locker, lockKey(affiliateID), func(ctx context.Context) error {
		record, err := s.repo.FindByAffiliateID(ctx, s.db, affiliateID)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrInvalidAffiliate
		}
		// Complete is sticky: a late decision neither completes twice nor
		// reverts the affiliate.
		if record.CurrentStage == domain.StageComplete {
			out = project(record)
			return nil
		}
		if record.CurrentStage != domain.StageReview {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		record.ReviewedAt = &now
		record.UpdatedAt = now
		if req.Approve {
			record.CompletedAt = &now
			record.ReviewNote = ""
			record.CurrentStage = domain.StageComplete
		} else {
			record.ReviewNote = strings.TrimSpace(req.Note)
			record.CurrentStage = domain.StageKycUpload
		}
		if err := s.repo.Update(ctx, s.db, record); err != nil {
			return err
		}
		s.metrics.RecordOnboardingTransition(string(record.CurrentStage))
		s.notifyReview(ctx, record, req.Approve)
		out = project(record)
		return nil
	})
	if err != nil {
		return domain.StatusResponse{}, err
	}
	return out, nil
}

func (s *Service) notifyReview(ctx context.Context, record *domain.Record, approved bool) {
	if s.email == nil {
		return
	}
	affiliate, err := s.affiliates.GetByID(ctx, record.AffiliateID)
	if err != nil {
		s.log.Warn("review notification skipped",
			zap.String("affiliate_id", record.AffiliateID.String()),
			zap.Error(err),
		)
		return
	}

	if approved {
		err = s.email.SendTemplate(ctx, []string{affiliate.Email}, email.TemplateWelcome, map[string]any{
			"first_name":    record.FirstName,
			"referral_code": affiliate.ReferralCode,
		})
	} else {
		err = s.email.SendTemplate(ctx, []string{affiliate.Email}, email.TemplateKycRejected, map[string]any{
			"reason": record.ReviewNote,
		})
	}
	if err != nil {
		s.log.Warn("review notification failed",
			zap.String("affiliate_id", record.AffiliateID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) ReconcileSignatures(ctx context.Context, limit int) (int, error) {
	records, err := s.repo.ListPendingSignatures(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, record := range records {
		sessionID := record.SignatureSessionID
		err := locking.WithLock(ctx, s.locker, lockKey(record.AffiliateID), func(ctx context.Context) error {
			current, err := s.repo.FindByAffiliateID(ctx, s.db, record.AffiliateID)
			if err != nil {
				return err
			}
			if current == nil || current.CurrentStage != domain.StageSignature || current.SignatureSessionID != sessionID {
				return nil
			}
			ok, err := s.resolveLocked(ctx, current)
			if ok {
				advanced++
			}
			return err
		})
		if err != nil {
			s.log.Warn("signature reconcile failed",
				zap.String("affiliate_id", record.AffiliateID.String()),
				zap.Error(err),
			)
		}
	}
	return advanced, nil
}

func (s *Service) CountByStage(ctx context.Context) (map[domain.Stage]int64, error) {
	return s.repo.CountByStage(ctx, s.db)
}
