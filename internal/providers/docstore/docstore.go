// Package docstore persists affiliate documents: KYC uploads, signed
// agreements and payout receipts. Keys are opaque to callers; the store
// returns the canonical reference to save on the owning record.
package docstore

import (
	"context"
	"errors"
	"io"

	"github.com/agnuslink/agnuslink/internal/config"
	"go.uber.org/fx"
)

var ErrNotFound = errors.New("document_not_found")

type Document struct {
	Key         string
	ContentType string
	Size        int64
}

type Store interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (Document, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var Module = fx.Module("providers.docstore",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) (Store, error) {
	return NewLocal(cfg.DocstoreDir)
}
