package server

import (
	"context"
	"net/http"
	"time"

	"github.com/agnuslink/agnuslink/internal/affctx"
	"github.com/agnuslink/agnuslink/internal/affiliate"
	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/agnuslink/agnuslink/internal/auth"
	"github.com/agnuslink/agnuslink/internal/commission"
	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/agnuslink/agnuslink/internal/config"
	"github.com/agnuslink/agnuslink/internal/dashboard"
	dashboarddomain "github.com/agnuslink/agnuslink/internal/dashboard/domain"
	"github.com/agnuslink/agnuslink/internal/events"
	"github.com/agnuslink/agnuslink/internal/lead"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	"github.com/agnuslink/agnuslink/internal/observability"
	obsmiddleware "github.com/agnuslink/agnuslink/internal/observability/logger"
	obsmetrics "github.com/agnuslink/agnuslink/internal/observability/metrics"
	obstracing "github.com/agnuslink/agnuslink/internal/observability/tracing"
	"github.com/agnuslink/agnuslink/internal/onboarding"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/agnuslink/agnuslink/internal/providers/docstore"
	"github.com/agnuslink/agnuslink/internal/providers/email"
	"github.com/agnuslink/agnuslink/internal/providers/esign"
	"github.com/agnuslink/agnuslink/internal/providers/pdf"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	auth.Module,
	events.Module,
	email.Module,
	pdf.Module,
	docstore.Module,
	esign.Module,
	affiliate.Module,
	lead.Module,
	commission.Module,
	onboarding.Module,
	dashboard.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	genID         *snowflake.Node
	verifier      *auth.Verifier
	affiliateSvc  affiliatedomain.Service
	leadSvc       leaddomain.Service
	commissionSvc commissiondomain.Service
	onboardingSvc onboardingdomain.Service
	dashboardSvc  dashboarddomain.Service
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	GenID         *snowflake.Node
	Verifier      *auth.Verifier
	AffiliateSvc  affiliatedomain.Service
	LeadSvc       leaddomain.Service
	CommissionSvc commissiondomain.Service
	OnboardingSvc onboardingdomain.Service
	DashboardSvc  dashboarddomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		genID:         p.GenID,
		verifier:      p.Verifier,
		affiliateSvc:  p.AffiliateSvc,
		leadSvc:       p.LeadSvc,
		commissionSvc: p.CommissionSvc,
		onboardingSvc: p.OnboardingSvc,
		dashboardSvc:  p.DashboardSvc,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Onboarding --------
	// Open to every authenticated affiliate regardless of stage; the
	// SPA drives the workflow through these four endpoints.
	api.GET("/onboarding/status", s.GetOnboardingStatus)
	api.POST("/onboarding/personal-info", s.SubmitPersonalInfo)
	api.POST("/onboarding/signature/start", s.StartSignature)
	api.POST("/onboarding/kyc", s.UploadKycDocument)

	// -------- Dashboard --------
	api.GET("/dashboard/gate", s.GetDashboardGate)
	api.GET("/dashboard", s.RequireOnboarded(), s.GetDashboard)

	// -------- Leads --------
	api.POST("/leads", s.RequireOnboarded(), s.SubmitLead)
	api.GET("/leads", s.RequireOnboarded(), s.ListLeads)
	api.GET("/leads/:id", s.RequireOnboarded(), s.GetLeadByID)

	// -------- Commissions --------
	api.GET("/commissions", s.RequireOnboarded(), s.ListCommissions)
	api.GET("/commissions/summary", s.RequireOnboarded(), s.GetCommissionSummary)

	// -------- Payouts --------
	api.POST("/payouts", s.RequireOnboarded(), s.RequestPayout)
	api.GET("/payouts", s.RequireOnboarded(), s.ListPayouts)

	// -------- Referrals --------
	api.GET("/referrals", s.RequireOnboarded(), s.ListReferrals)
	api.GET("/referrals/stats", s.RequireOnboarded(), s.GetReferralStats)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.Use(s.AuthRequired())
	admin.Use(s.RequireRole(affctx.RoleAdmin, affctx.RoleReviewer))

	admin.POST("/affiliates", s.RequireRole(affctx.RoleAdmin), s.ProvisionAffiliate)
	admin.GET("/affiliates/:id", s.GetAffiliateByID)

	admin.POST("/onboarding/:affiliateId/review", s.CompleteReview)
	admin.POST("/leads/:id/status", s.ChangeLeadStatus)

	// Payout money movement stays admin-only.
	admin.POST("/payouts/:id/approve", s.RequireRole(affctx.RoleAdmin), s.ApprovePayout)
	admin.POST("/payouts/:id/reject", s.RequireRole(affctx.RoleAdmin), s.RejectPayout)
	admin.POST("/payouts/:id/paid", s.RequireRole(affctx.RoleAdmin), s.MarkPayoutPaid)
}

func (s *Server) registerWebhookRoutes() {
	// Authenticated by HMAC signature, not bearer tokens.
	s.engine.POST("/api/webhooks/esign", s.HandleEsignWebhook)
}
