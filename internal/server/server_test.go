package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	"github.com/agnuslink/agnuslink/internal/auth"
	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/config"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type fakeOnboardingService struct {
	onboardingdomain.Service

	status     onboardingdomain.StatusResponse
	statusErr  error
	gate       bool
	gateErr    error
	session    onboardingdomain.SignatureSession
	startErr   error
	resolved   []string
	resolveErr error
}

func (f *fakeOnboardingService) Status(ctx context.Context) (onboardingdomain.StatusResponse, error) {
	_ = ctx
	return f.status, f.statusErr
}

func (f *fakeOnboardingService) Gate(ctx context.Context) (bool, error) {
	_ = ctx
	return f.gate, f.gateErr
}

func (f *fakeOnboardingService) StartSignature(ctx context.Context) (onboardingdomain.SignatureSession, error) {
	_ = ctx
	return f.session, f.startErr
}

func (f *fakeOnboardingService) ResolveSignature(ctx context.Context, sessionID string) error {
	_ = ctx
	f.resolved = append(f.resolved, sessionID)
	return f.resolveErr
}

type fakeLeadService struct {
	leaddomain.Service

	lastID     snowflake.ID
	lastStatus leaddomain.Status
	changeErr  error
}

func (f *fakeLeadService) ChangeStatus(ctx context.Context, id snowflake.ID, next leaddomain.Status) (leaddomain.Lead, error) {
	_ = ctx
	f.lastID = id
	f.lastStatus = next
	if f.changeErr != nil {
		return leaddomain.Lead{}, f.changeErr
	}
	return leaddomain.Lead{ID: id, Status: next}, nil
}

type fakeCommissionService struct {
	commissiondomain.Service

	payoutErr error
}

func (f *fakeCommissionService) RequestPayout(ctx context.Context) (commissiondomain.PayoutRequest, error) {
	_ = ctx
	if f.payoutErr != nil {
		return commissiondomain.PayoutRequest{}, f.payoutErr
	}
	return commissiondomain.PayoutRequest{ID: snowflake.ID(1), AmountCents: 15000}, nil
}

func newTestVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	verifier, err := auth.NewVerifier(config.Config{AuthJWTSecret: "test-secret"})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return verifier
}

func signToken(t *testing.T, verifier *auth.Verifier, id snowflake.ID, role string) string {
	t.Helper()
	token, err := verifier.Sign(auth.Claims{AffiliateID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return token
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv := &Server{verifier: newTestVerifier(t)}
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/onboarding/status", srv.AuthRequired(), srv.GetOnboardingStatus)

	req := httptest.NewRequest(http.MethodGet, "/api/onboarding/status", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthRequiredPropagatesIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	verifier := newTestVerifier(t)
	srv := &Server{verifier: verifier}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/whoami", srv.AuthRequired(), func(c *gin.Context) {
		id, ok := affctx.AffiliateIDFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "role": affctx.RoleFromContext(c.Request.Context())})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, verifier, snowflake.ID(42), affctx.RoleAffiliate))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"id":"42"`) {
		t.Fatalf("expected affiliate id in response, got %s", resp.Body.String())
	}
}

func TestAuthRequiredRejectsForgedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv := &Server{verifier: newTestVerifier(t)}
	other, err := auth.NewVerifier(config.Config{AuthJWTSecret: "other-secret"})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/whoami", srv.AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, other, snowflake.ID(42), affctx.RoleAffiliate))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestRequireOnboardedBlocksIncompleteAffiliate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	verifier := newTestVerifier(t)
	onboardingSvc := &fakeOnboardingService{gate: false}
	commissionSvc := &fakeCommissionService{}
	srv := &Server{verifier: verifier, onboardingSvc: onboardingSvc, commissionSvc: commissionSvc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/payouts", srv.AuthRequired(), srv.RequireOnboarded(), srv.RequestPayout)

	req := httptest.NewRequest(http.MethodPost, "/api/payouts", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, verifier, snowflake.ID(7), affctx.RoleAffiliate))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}

	onboardingSvc.gate = true
	req = httptest.NewRequest(http.MethodPost, "/api/payouts", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, verifier, snowflake.ID(7), affctx.RoleAffiliate))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201 after completion, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRequireRoleBlocksAffiliateFromAdminRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	verifier := newTestVerifier(t)
	leadSvc := &fakeLeadService{}
	srv := &Server{verifier: verifier, leadSvc: leadSvc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/admin/leads/:id/status", srv.AuthRequired(), srv.RequireRole(affctx.RoleAdmin), srv.ChangeLeadStatus)

	body := bytes.NewBufferString(`{"status":"qualified"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/leads/99/status", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, verifier, snowflake.ID(7), affctx.RoleAffiliate))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
	if leadSvc.lastID != 0 {
		t.Fatal("expected lead service not to be called")
	}

	body = bytes.NewBufferString(`{"status":"qualified"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/admin/leads/99/status", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, verifier, snowflake.ID(8), affctx.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if leadSvc.lastID != snowflake.ID(99) || leadSvc.lastStatus != leaddomain.StatusQualified {
		t.Fatalf("unexpected change status call: id=%d status=%s", leadSvc.lastID, leadSvc.lastStatus)
	}
}

func TestErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid transition conflicts", onboardingdomain.ErrInvalidTransition, http.StatusConflict},
		{"lead race conflicts", leaddomain.ErrStatusRaced, http.StatusConflict},
		{"no pending funds unprocessable", commissiondomain.ErrNoPendingFunds, http.StatusUnprocessableEntity},
		{"provider outage unavailable", onboardingdomain.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{"payout missing not found", commissiondomain.ErrPayoutNotFound, http.StatusNotFound},
		{"bad personal info validation", onboardingdomain.ErrInvalidPersonalInfo, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandlingMiddleware())
			router.GET("/boom", func(c *gin.Context) {
				AbortWithError(c, tc.err)
			})

			req := httptest.NewRequest(http.MethodGet, "/boom", nil)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func esignSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestStartSignatureReturnsStatusWhenAlreadySigned(t *testing.T) {
	gin.SetMode(gin.TestMode)

	verifier := newTestVerifier(t)
	onboardingSvc := &fakeOnboardingService{
		startErr: onboardingdomain.ErrAlreadySigned,
		status:   onboardingdomain.StatusResponse{Stage: onboardingdomain.StageKycUpload},
	}
	srv := &Server{verifier: verifier, onboardingSvc: onboardingSvc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/onboarding/signature/start", srv.AuthRequired(), srv.StartSignature)

	req := httptest.NewRequest(http.MethodPost, "/api/onboarding/signature/start", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, verifier, snowflake.ID(42), affctx.RoleAffiliate))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), string(onboardingdomain.StageKycUpload)) {
		t.Fatalf("expected refreshed status in response, got %s", resp.Body.String())
	}
}

func TestEsignWebhookVerifiesSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)

	onboardingSvc := &fakeOnboardingService{}
	srv := &Server{
		cfg:           config.Config{Esign: config.EsignConfig{WebhookSecret: "hook-secret"}},
		onboardingSvc: onboardingSvc,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/webhooks/esign", srv.HandleEsignWebhook)

	body := []byte(`{"session_id":"sess-1","event":"completed"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/esign", bytes.NewReader(body))
	req.Header.Set(esignSignatureHeader, "not-the-signature")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for bad signature, got %d", resp.Code)
	}
	if len(onboardingSvc.resolved) != 0 {
		t.Fatal("expected no resolution on bad signature")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/esign", bytes.NewReader(body))
	req.Header.Set(esignSignatureHeader, esignSignature("hook-secret", body))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(onboardingSvc.resolved) != 1 || onboardingSvc.resolved[0] != "sess-1" {
		t.Fatalf("unexpected resolutions: %v", onboardingSvc.resolved)
	}
}

func TestEsignWebhookIgnoresUnknownSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	onboardingSvc := &fakeOnboardingService{resolveErr: onboardingdomain.ErrSessionNotFound}
	srv := &Server{
		cfg:           config.Config{Esign: config.EsignConfig{WebhookSecret: "hook-secret"}},
		onboardingSvc: onboardingSvc,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/webhooks/esign", srv.HandleEsignWebhook)

	body := []byte(`{"session_id":"sess-gone","event":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/esign", bytes.NewReader(body))
	req.Header.Set(esignSignatureHeader, esignSignature("hook-secret", body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown session, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "ignored") {
		t.Fatalf("expected ignored ack, got %s", resp.Body.String())
	}
}
