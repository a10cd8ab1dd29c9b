// Package pdf renders affiliate-facing documents with maroto.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type ReceiptData struct {
	ReceiptNumber string
	AffiliateName string
	DatePaid      string
	Items         []ReceiptItem
	Total         string
}

type ReceiptItem struct {
	Description string
	Amount      string
}

type AgreementData struct {
	AffiliateName string
	Email         string
	Date          string
	ReferralCode  string
}

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
	GenerateAgreement(ctx context.Context, data AgreementData) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}
