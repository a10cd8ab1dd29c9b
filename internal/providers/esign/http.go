package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agnuslink/agnuslink/internal/config"
	"go.uber.org/zap"
)

// HTTPProvider talks to the signature vendor's REST API.
type HTTPProvider struct {
	cfg    config.EsignConfig
	client *http.Client
	log    *zap.Logger
}

func NewHTTP(cfg config.EsignConfig, log *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.Named("esign.http"),
	}
}

func (p *HTTPProvider) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	payload, err := json.Marshal(map[string]string{
		"signer_name":  req.SignerName,
		"signer_email": req.SignerEmail,
		"return_url":   req.ReturnURL,
	})
	if err != nil {
		return Session{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return Session{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Warn("esign create session failed", zap.Error(err))
		return Session{}, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Session{}, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Session{}, fmt.Errorf("esign create session: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		ID          string `json:"id"`
		RedirectURL string `json:"redirect_url"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Session{}, err
	}
	return Session{
		ID:          body.ID,
		RedirectURL: body.RedirectURL,
		Status:      SessionStatus(body.Status),
	}, nil
}

func (p *HTTPProvider) SessionStatus(ctx context.Context, id string) (SessionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/sessions/"+id, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Warn("esign session status failed", zap.String("session_id", id), zap.Error(err))
		return "", ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", ErrUnavailable
	}
	if resp.StatusCode == http.StatusNotFound {
		return SessionExpired, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("esign session status: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return SessionStatus(body.Status), nil
}
