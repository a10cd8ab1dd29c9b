package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Stage is the affiliate's position in the onboarding flow. Stages only
// move forward, with one exception: a rejected review sends the
// affiliate back to the KYC upload stage. Complete is terminal.
type Stage string

const (
	StageWelcome      Stage = "welcome"
	StagePersonalInfo Stage = "personal_info"
	StageSignature    Stage = "signature"
	StageKycUpload    Stage = "kyc_upload"
	StageReview       Stage = "review"
	StageComplete     Stage = "complete"
)

// NextAction tells the client what to render for the current stage.
type NextAction string

const (
	ActionFillPersonalInfo NextAction = "fill_personal_info"
	ActionSignAgreement    NextAction = "sign_agreement"
	ActionUploadKyc        NextAction = "upload_kyc"
	ActionAwaitReview      NextAction = "await_review"
	ActionNone             NextAction = "none"
)

// ActionFor derives the client action from a stage. The projection is
// pure: everything the status endpoint returns is computed from the
// record, never stored separately.
func ActionFor(stage Stage) NextAction {
	switch stage {
	case StageWelcome, StagePersonalInfo:
		return ActionFillPersonalInfo
	case StageSignature:
		return ActionSignAgreement
	case StageKycUpload:
		return ActionUploadKyc
	case StageReview:
		return ActionAwaitReview
	default:
		return ActionNone
	}
}

// ProgressFor maps a stage to the percentage shown by the SPA's
// progress bar.
func ProgressFor(stage Stage) int {
	switch stage {
	case StagePersonalInfo:
		return 20
	case StageSignature:
		return 40
	case StageKycUpload:
		return 60
	case StageReview:
		return 80
	case StageComplete:
		return 100
	default:
		return 0
	}
}

type DocumentType string

const (
	DocDriversLicense DocumentType = "drivers_license"
	DocPassport       DocumentType = "passport"
	DocStateID        DocumentType = "state_id"
	DocOther          DocumentType = "other"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocDriversLicense, DocPassport, DocStateID, DocOther:
		return true
	}
	return false
}

type PersonalInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}

// Record is the single onboarding row per affiliate. Per-stage
// timestamps are kept for support tooling and are never used to derive
// the stage.
type Record struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID `gorm:"not null;uniqueIndex" json:"affiliate_id"`

	CurrentStage Stage `gorm:"not null;default:welcome;index" json:"current_stage"`

	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Phone          string     `json:"phone"`
	Address        string     `json:"address"`
	City           string     `json:"city"`
	State          string     `json:"state"`
	Zip            string     `json:"zip"`
	PersonalInfoAt *time.Time `json:"personal_info_at,omitempty"`

	SignatureSessionID   string     `gorm:"index" json:"-"`
	SignatureRedirectURL string     `json:"-"`
	AgreementRef         string     `json:"-"`
	SignedAt             *time.Time `json:"signed_at,omitempty"`

	KycDocumentType DocumentType `json:"kyc_document_type,omitempty"`
	KycDocumentRef  string       `json:"-"`
	KycUploadedAt   *time.Time   `json:"kyc_uploaded_at,omitempty"`

	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote  string     `json:"review_note,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Record) TableName() string {
	return "onboarding_records"
}

// Info returns the submitted personal details, or nil before the
// personal info stage is done.
func (r *Record) Info() *PersonalInfo {
	if r.PersonalInfoAt == nil {
		return nil
	}
	return &PersonalInfo{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		Address:   r.Address,
		City:      r.City,
		State:     r.State,
		Zip:       r.Zip,
	}
}
