package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	affiliaterepo "github.com/agnuslink/agnuslink/internal/affiliate/repository"
	affiliateservice "github.com/agnuslink/agnuslink/internal/affiliate/service"
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/internal/locking"
	"github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/agnuslink/agnuslink/internal/onboarding/repository"
	"github.com/agnuslink/agnuslink/internal/providers/docstore"
	"github.com/agnuslink/agnuslink/internal/providers/esign"
	"github.com/agnuslink/agnuslink/internal/providers/pdf"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type onboardingFixture struct {
	svc   domain.Service
	esign *esign.MemoryProvider
	docs  *docstore.MemoryStore
	clock *clock.FakeClock
	ctx   context.Context
	affID snowflake.ID
}

func setupOnboarding(t *testing.T) *onboardingFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&affiliatedomain.Affiliate{}, &domain.Record{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	affiliates, err := affiliateservice.New(affiliateservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  affiliaterepo.Provide(),
	})
	if err != nil {
		t.Fatalf("affiliate service: %v", err)
	}

	affiliate, err := affiliates.Create(context.Background(), affiliatedomain.CreateAffiliateRequest{
		Email: "new.affiliate@example.com",
	})
	if err != nil {
		t.Fatalf("create affiliate: %v", err)
	}

	vendor := esign.NewMemory()
	docs := docstore.NewMemory()

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Repo:       repository.Provide(),
		Affiliates: affiliates,
		Locker:     locking.NewMemoryLocker(),
		Esign:      vendor,
		Docstore:   docs,
		PDF:        pdf.New(),
	})

	return &onboardingFixture{
		svc:   svc,
		esign: vendor,
		docs:  docs,
		clock: fakeClock,
		ctx:   affctx.WithAffiliateID(context.Background(), affiliate.ID),
		affID: affiliate.ID,
	}
}

func validPersonalInfo() domain.PersonalInfoRequest {
	return domain.PersonalInfoRequest{
		FirstName: "Ada",
		LastName:  "Quinn",
		Phone:     "555-0100",
		Address:   "12 Vine St",
		City:      "Springfield",
		State:     "IL",
		Zip:       "62704",
	}
}

func (f *onboardingFixture) advanceToKycUpload(t *testing.T) {
	t.Helper()
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); err != nil {
		t.Fatalf("submit personal info: %v", err)
	}
	session, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("start signature: %v", err)
	}
	f.esign.Complete(session.SessionID)
	if err := f.svc.ResolveSignature(f.ctx, session.SessionID); err != nil {
		t.Fatalf("resolve signature: %v", err)
	}
}

func (f *onboardingFixture) uploadKyc(t *testing.T) {
	t.Helper()
	content := []byte("%PDF-1.4 fake document")
	_, err := f.svc.UploadKycDocument(f.ctx, domain.UploadKycRequest{
		DocumentType: domain.DocDriversLicense,
		ContentType:  "application/pdf",
		Size:         int64(len(content)),
		Content:      bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("upload kyc: %v", err)
	}
}

func TestStatusCreatesWelcomeRecord(t *testing.T) {
	f := setupOnboarding(t)

	status, err := f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stage != domain.StageWelcome {
		t.Fatalf("expected welcome stage, got %s", status.Stage)
	}
	if status.NextAction != domain.ActionFillPersonalInfo {
		t.Fatalf("expected fill_personal_info action, got %s", status.NextAction)
	}
	if status.PersonalInfo != nil {
		t.Fatalf("expected no personal info yet")
	}
}

func TestFullOnboardingFlow(t *testing.T) {
	f := setupOnboarding(t)

	status, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo())
	if err != nil {
		t.Fatalf("submit personal info: %v", err)
	}
	if status.Stage != domain.StageSignature || status.NextAction != domain.ActionSignAgreement {
		t.Fatalf("expected signature stage after personal info, got %+v", status)
	}

	session, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("start signature: %v", err)
	}
	if session.SessionID == "" || session.RedirectURL == "" {
		t.Fatalf("expected a vendor session, got %+v", session)
	}

	f.esign.Complete(session.SessionID)
	if err := f.svc.ResolveSignature(f.ctx, session.SessionID); err != nil {
		t.Fatalf("resolve signature: %v", err)
	}
	status, err = f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status after signing: %v", err)
	}
	if status.Stage != domain.StageKycUpload || status.SignedAt == nil {
		t.Fatalf("expected kyc_upload stage with signed timestamp, got %+v", status)
	}
	if f.docs.Len() != 1 {
		t.Fatalf("expected stored agreement, got %d documents", f.docs.Len())
	}

	f.uploadKyc(t)
	status, err = f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status after upload: %v", err)
	}
	if status.Stage != domain.StageReview || status.NextAction != domain.ActionAwaitReview {
		t.Fatalf("expected review stage, got %+v", status)
	}

	status, err = f.svc.CompleteReview(f.ctx, f.affID, domain.ReviewRequest{Approve: true})
	if err != nil {
		t.Fatalf("approve review: %v", err)
	}
	if status.Stage != domain.StageComplete || status.CompletedAt == nil {
		t.Fatalf("expected complete stage, got %+v", status)
	}

	gate, err := f.svc.Gate(f.ctx)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !gate {
		t.Fatalf("expected gate open after completion")
	}
}

func TestPersonalInfoValidation(t *testing.T) {
	f := setupOnboarding(t)

	req := validPersonalInfo()
	req.Phone = "   "
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, req); !errors.Is(err, domain.ErrInvalidPersonalInfo) {
		t.Fatalf("expected ErrInvalidPersonalInfo, got %v", err)
	}
}

func TestPersonalInfoFrozenOnceSignatureStageBegins(t *testing.T) {
	f := setupOnboarding(t)

	status, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if status.Stage != domain.StageSignature {
		t.Fatalf("expected signature stage after submit, got %s", status.Stage)
	}

	update := validPersonalInfo()
	update.City = "Chicago"
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, update); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	status, err = f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PersonalInfo == nil || status.PersonalInfo.City == "Chicago" {
		t.Fatalf("expected original personal info kept, got %+v", status.PersonalInfo)
	}
}

func TestPersonalInfoRejectedAfterSigning(t *testing.T) {
	f := setupOnboarding(t)
	f.advanceToKycUpload(t)

	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUploadKycGuards(t *testing.T) {
	f := setupOnboarding(t)

	content := []byte("data")
	req := domain.UploadKycRequest{
		DocumentType: domain.DocPassport,
		ContentType:  "application/pdf",
		Size:         int64(len(content)),
		Content:      bytes.NewReader(content),
	}
	if _, err := f.svc.UploadKycDocument(f.ctx, req); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before signing, got %v", err)
	}

	f.advanceToKycUpload(t)

	bad := req
	bad.ContentType = "image/gif"
	bad.Content = bytes.NewReader(content)
	if _, err := f.svc.UploadKycDocument(f.ctx, bad); !errors.Is(err, domain.ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}

	huge := req
	huge.Size = domain.MaxKycDocumentSize + 1
	huge.Content = bytes.NewReader(content)
	if _, err := f.svc.UploadKycDocument(f.ctx, huge); !errors.Is(err, domain.ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}

	wrongType := req
	wrongType.DocumentType = "library_card"
	wrongType.Content = bytes.NewReader(content)
	if _, err := f.svc.UploadKycDocument(f.ctx, wrongType); !errors.Is(err, domain.ErrInvalidDocumentType) {
		t.Fatalf("expected ErrInvalidDocumentType, got %v", err)
	}
}

func TestReviewRejectionReturnsToKycUpload(t *testing.T) {
	f := setupOnboarding(t)
	f.advanceToKycUpload(t)
	f.uploadKyc(t)

	status, err := f.svc.CompleteReview(f.ctx, f.affID, domain.ReviewRequest{
		Approve: false,
		Note:    "document is blurry",
	})
	if err != nil {
		t.Fatalf("reject review: %v", err)
	}
	if status.Stage != domain.StageKycUpload {
		t.Fatalf("expected kyc_upload after rejection, got %s", status.Stage)
	}
	if status.ReviewNote != "document is blurry" {
		t.Fatalf("expected review note, got %q", status.ReviewNote)
	}

	// A fresh upload clears the note and re-enters review.
	f.uploadKyc(t)
	status, err = f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stage != domain.StageReview || status.ReviewNote != "" {
		t.Fatalf("expected clean review stage, got %+v", status)
	}

	if _, err := f.svc.CompleteReview(f.ctx, f.affID, domain.ReviewRequest{Approve: true}); err != nil {
		t.Fatalf("approve after resubmission: %v", err)
	}
}

func TestCompletionIsSticky(t *testing.T) {
	f := setupOnboarding(t)
	f.advanceToKycUpload(t)
	f.uploadKyc(t)
	if _, err := f.svc.CompleteReview(f.ctx, f.affID, domain.ReviewRequest{Approve: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	status, err := f.svc.CompleteReview(f.ctx, f.affID, domain.ReviewRequest{Approve: false, Note: "oops"})
	if err != nil {
		t.Fatalf("late decision: %v", err)
	}
	if status.Stage != domain.StageComplete {
		t.Fatalf("expected completion to stick, got %s", status.Stage)
	}
}

func TestStartSignatureReusesPendingSession(t *testing.T) {
	f := setupOnboarding(t)
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); err != nil {
		t.Fatalf("submit personal info: %v", err)
	}

	first, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Fatalf("expected session reuse, got %s then %s", first.SessionID, second.SessionID)
	}
}

func TestStartSignatureReplacesExpiredSession(t *testing.T) {
	f := setupOnboarding(t)
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); err != nil {
		t.Fatalf("submit personal info: %v", err)
	}

	first, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	f.esign.Expire(first.SessionID)

	second, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatalf("expected a replacement session")
	}
}

func TestStartSignatureAdvancesAlreadySignedSession(t *testing.T) {
	f := setupOnboarding(t)
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); err != nil {
		t.Fatalf("submit personal info: %v", err)
	}
	session, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("start signature: %v", err)
	}

	// Vendor finished but the webhook never arrived.
	f.esign.Complete(session.SessionID)

	if _, err := f.svc.StartSignature(f.ctx); !errors.Is(err, domain.ErrAlreadySigned) {
		t.Fatalf("expected ErrAlreadySigned, got %v", err)
	}

	status, err := f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stage != domain.StageKycUpload || status.SignedAt == nil {
		t.Fatalf("expected kyc_upload after catching up, got %+v", status)
	}
}

func TestReconcileAdvancesLostWebhook(t *testing.T) {
	f := setupOnboarding(t)
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); err != nil {
		t.Fatalf("submit personal info: %v", err)
	}
	session, err := f.svc.StartSignature(f.ctx)
	if err != nil {
		t.Fatalf("start signature: %v", err)
	}

	// Vendor finished but the webhook never arrived.
	f.esign.Complete(session.SessionID)

	advanced, err := f.svc.ReconcileSignatures(f.ctx, 10)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if advanced != 1 {
		t.Fatalf("expected 1 record advanced, got %d", advanced)
	}

	status, err := f.svc.Status(f.ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stage != domain.StageKycUpload {
		t.Fatalf("expected kyc_upload after reconcile, got %s", status.Stage)
	}
}

func TestSignatureProviderUnavailable(t *testing.T) {
	f := setupOnboarding(t)
	if _, err := f.svc.SubmitPersonalInfo(f.ctx, validPersonalInfo()); err != nil {
		t.Fatalf("submit personal info: %v", err)
	}

	f.esign.SetFailing(true)
	if _, err := f.svc.StartSignature(f.ctx); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	f.esign.SetFailing(false)
	if _, err := f.svc.StartSignature(f.ctx); err != nil {
		t.Fatalf("start after recovery: %v", err)
	}
}

func TestResolveUnknownSession(t *testing.T) {
	f := setupOnboarding(t)
	if err := f.svc.ResolveSignature(f.ctx, "sess_missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
