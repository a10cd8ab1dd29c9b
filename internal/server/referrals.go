package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListReferrals(c *gin.Context) {
	referrals, err := s.dashboardSvc.Referrals(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referrals": referrals})
}

func (s *Server) GetReferralStats(c *gin.Context) {
	stats, err := s.dashboardSvc.ReferralStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
