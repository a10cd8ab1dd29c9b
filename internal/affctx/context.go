// Package affctx carries the authenticated affiliate identity through
// request contexts. The auth layer sets it; core services read it.
package affctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type contextKey string

const (
	affiliateIDKey contextKey = "affiliate_id"
	requestIDKey   contextKey = "request_id"
	roleKey        contextKey = "role"
)

const (
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"
	RoleReviewer  = "reviewer"
)

func WithAffiliateID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, affiliateIDKey, id)
}

func AffiliateIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(affiliateIDKey).(snowflake.ID)
	return id, ok && id != 0
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}
