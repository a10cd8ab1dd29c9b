package server

import (
	"strings"

	"github.com/agnuslink/agnuslink/internal/affctx"
	"github.com/gin-gonic/gin"
)

const contextAffiliateIDKey = "affiliate_id"

// AuthRequired verifies the bearer token and stamps the affiliate
// identity onto the request context for the service layer.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.verifier.Verify(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := affctx.WithAffiliateID(c.Request.Context(), claims.AffiliateID)
		ctx = affctx.WithRole(ctx, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextAffiliateIDKey, claims.AffiliateID.String())
		c.Next()
	}
}

func (s *Server) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := affctx.RoleFromContext(c.Request.Context())
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

// RequireOnboarded blocks dashboard features until onboarding is
// complete. Admin and reviewer tokens pass through so the back office
// can inspect any account.
func (s *Server) RequireOnboarded() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch affctx.RoleFromContext(c.Request.Context()) {
		case affctx.RoleAdmin, affctx.RoleReviewer:
			c.Next()
			return
		}

		ok, err := s.onboardingSvc.Gate(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}
