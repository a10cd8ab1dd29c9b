package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Template names accepted by SendTemplate.
const (
	TemplateWelcome        = "welcome"
	TemplatePayoutApproved = "payout_approved"
	TemplateKycRejected    = "kyc_rejected"
)

var subjects = map[string]string{
	TemplateWelcome:        "Welcome aboard",
	TemplatePayoutApproved: "Your payout has been approved",
	TemplateKycRejected:    "Action needed on your documents",
}

func render(name string, data map[string]any) (subject string, body string, err error) {
	subject, ok := subjects[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	if s, ok := data["subject"].(string); ok && s != "" {
		subject = s
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", "", fmt.Errorf("render email template %q: %w", name, err)
	}
	return subject, buf.String(), nil
}
