package email

import (
	"context"

	"go.uber.org/zap"
)

// NoopProvider logs instead of sending. Used when SMTP is not configured.
type NoopProvider struct {
	log *zap.Logger
}

func NewNoop(log *zap.Logger) *NoopProvider {
	return &NoopProvider{log: log.Named("email.noop")}
}

func (p *NoopProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Info("email suppressed",
		zap.Strings("to", to),
		zap.String("subject", subject),
	)
	return nil
}

func (p *NoopProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	p.log.Info("email suppressed",
		zap.Strings("to", to),
		zap.String("template", templateName),
	)
	return nil
}
