// Package esign integrates the electronic signature vendor used for the
// affiliate agreement. The vendor is an external system of record; local
// state only mirrors it, and the reconciler heals any divergence.
package esign

import (
	"context"
	"errors"

	"github.com/agnuslink/agnuslink/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("esign_unavailable")

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

type CreateSessionRequest struct {
	SignerName  string
	SignerEmail string
	// ReturnURL is where the vendor redirects the signer afterwards.
	ReturnURL string
}

type Session struct {
	ID          string
	RedirectURL string
	Status      SessionStatus
}

type Provider interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error)
	SessionStatus(ctx context.Context, id string) (SessionStatus, error)
}

var Module = fx.Module("providers.esign",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns the HTTP provider when a vendor base URL is
// configured, and an in-memory stand-in otherwise so onboarding can be
// exercised without vendor credentials.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Esign.BaseURL == "" {
		return NewMemory(WithAutoComplete())
	}
	return NewHTTP(cfg.Esign, log)
}
