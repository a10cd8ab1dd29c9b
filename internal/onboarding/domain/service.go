package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

type PersonalInfoRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}

type UploadKycRequest struct {
	DocumentType DocumentType
	ContentType  string
	Size         int64
	Content      io.Reader
}

type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

type SignatureSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// StatusResponse is the projection the SPA polls. Everything here is
// derived from the record on read.
type StatusResponse struct {
	Stage         Stage         `json:"stage"`
	NextAction    NextAction    `json:"next_action"`
	Progress      int           `json:"progress"`
	PersonalInfo  *PersonalInfo `json:"personal_info,omitempty"`
	SignedAt      *time.Time    `json:"signed_at,omitempty"`
	KycUploadedAt *time.Time    `json:"kyc_uploaded_at,omitempty"`
	ReviewNote    string        `json:"review_note,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

type Service interface {
	// Status lazily creates the record on first read and projects it.
	Status(ctx context.Context) (StatusResponse, error)
	SubmitPersonalInfo(ctx context.Context, req PersonalInfoRequest) (StatusResponse, error)
	// StartSignature returns the open vendor session, creating one if
	// needed. If the vendor reports the session already signed (the
	// webhook was lost) it advances the record and returns
	// ErrAlreadySigned so the caller can re-read the status.
	StartSignature(ctx context.Context) (SignatureSession, error)
	// ResolveSignature checks the vendor's verdict for the session and
	// advances the owning record when it is signed. Called from the
	// vendor webhook and from the reconciler.
	ResolveSignature(ctx context.Context, sessionID string) error
	UploadKycDocument(ctx context.Context, req UploadKycRequest) (StatusResponse, error)
	// CompleteReview is the admin decision: approval completes
	// onboarding, rejection returns the affiliate to the KYC upload
	// stage with the note attached.
	CompleteReview(ctx context.Context, affiliateID snowflake.ID, req ReviewRequest) (StatusResponse, error)
	// Gate reports whether the caller may use the affiliate dashboard.
	Gate(ctx context.Context) (bool, error)
	// StageOf reads another affiliate's current stage without creating a
	// record. Used by projections over the referral graph.
	StageOf(ctx context.Context, affiliateID snowflake.ID) (Stage, error)
	// ReconcileSignatures sweeps open signature sessions whose webhook
	// never arrived. Returns how many records advanced.
	ReconcileSignatures(ctx context.Context, limit int) (int, error)
	CountByStage(ctx context.Context) (map[Stage]int64, error)
}

const MaxKycDocumentSize = 10 << 20

var (
	ErrInvalidAffiliate    = errors.New("invalid_affiliate")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrAlreadySigned       = errors.New("agreement_already_signed")
	ErrInvalidPersonalInfo = errors.New("invalid_personal_info")
	ErrInvalidDocumentType = errors.New("invalid_document_type")
	ErrUnsupportedMedia    = errors.New("unsupported_document_media")
	ErrDocumentTooLarge    = errors.New("document_too_large")
	ErrSessionNotFound     = errors.New("signature_session_not_found")
	ErrProviderUnavailable = errors.New("signature_provider_unavailable")
)
