package domain

import (
	"context"
	"errors"
	"time"

	"github.com/agnuslink/agnuslink/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

type SubmitLeadRequest struct {
	LeadType     LeadType       `json:"lead_type"`
	ContactName  string         `json:"contact_name"`
	ContactEmail string         `json:"contact_email"`
	ContactPhone string         `json:"contact_phone"`
	Notes        string         `json:"notes"`
	Metadata     map[string]any `json:"metadata"`
	Tags         []string       `json:"tags"`
}

type ListLeadRequest struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    Status `form:"status"`
}

type ListLeadResponse struct {
	pagination.PageInfo
	Leads []Lead `json:"leads"`
}

type Service interface {
	// Submit creates a lead owned by the authenticated affiliate.
	Submit(ctx context.Context, req SubmitLeadRequest) (Lead, error)
	ListOwn(ctx context.Context, req ListLeadRequest) (ListLeadResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (Lead, error)

	// ChangeStatus applies an admin-driven status transition and emits the
	// lead-status event the commission engine consumes.
	ChangeStatus(ctx context.Context, id snowflake.ID, next Status) (Lead, error)

	// CountByOwners returns per-affiliate lead totals for the dashboard.
	CountByOwners(ctx context.Context, ownerIDs []snowflake.ID) (map[snowflake.ID]int64, error)

	// ReviewStale moves leads still submitted before the cutoff into
	// in_review so the sales desk queue never silently drops them.
	ReviewStale(ctx context.Context, before time.Time, limit int) (int, error)

	// ReplayStatusEvents re-emits status events for commissionable leads
	// updated since the cutoff, so an event dropped between the durable
	// status update and delivery still reaches the commission engine.
	ReplayStatusEvents(ctx context.Context, since time.Time, limit int) (int, error)
}

var (
	ErrInvalidAffiliate = errors.New("invalid_affiliate")
	ErrInvalidLeadType  = errors.New("invalid_lead_type")
	ErrInvalidContact   = errors.New("invalid_contact")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrNotFound         = errors.New("lead_not_found")
	ErrStatusUnchanged  = errors.New("status_unchanged")
	ErrStatusRaced      = errors.New("status_raced")
)
