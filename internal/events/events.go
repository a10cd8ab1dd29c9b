// Package events carries lead-status change events from the lead service
// to the commission engine. Delivery is ordered per lead: kafka messages
// are keyed by lead id, and the in-process dispatcher drains a single
// FIFO queue.
package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type LeadStatusEvent struct {
	LeadID           snowflake.ID `json:"lead_id"`
	OwnerAffiliateID snowflake.ID `json:"owner_affiliate_id"`
	PreviousStatus   string       `json:"previous_status"`
	NewStatus        string       `json:"new_status"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

type Publisher interface {
	PublishLeadStatus(ctx context.Context, event LeadStatusEvent) error
}

// Handler processes one lead-status event. The commission engine is the
// sole handler; it must be idempotent because both kafka and the
// dispatcher deliver at-least-once.
type Handler interface {
	HandleLeadStatus(ctx context.Context, event LeadStatusEvent) error
}
