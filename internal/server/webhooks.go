package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/gin-gonic/gin"
)

const (
	esignSignatureHeader = "X-Esign-Signature"
	maxWebhookBody       = 1 << 20
)

type esignWebhookPayload struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
}

// HandleEsignWebhook receives signature verdicts from the e-sign
// vendor. Unknown sessions are acknowledged rather than failed so the
// vendor stops retrying deliveries we can never apply.
func (s *Server) HandleEsignWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if !s.verifyEsignSignature(c.GetHeader(esignSignatureHeader), body) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var payload esignWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.SessionID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.onboardingSvc.ResolveSignature(c.Request.Context(), payload.SessionID)
	switch {
	case errors.Is(err, onboardingdomain.ErrSessionNotFound):
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case err != nil:
		AbortWithError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) verifyEsignSignature(header string, body []byte) bool {
	secret := s.cfg.Esign.WebhookSecret
	if secret == "" {
		// No secret configured means a local install talking to the
		// in-memory provider.
		return true
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}
