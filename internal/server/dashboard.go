package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetDashboard(c *gin.Context) {
	overview, err := s.dashboardSvc.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GetDashboardGate tells the SPA whether to render the dashboard or
// route the affiliate back into onboarding.
func (s *Server) GetDashboardGate(c *gin.Context) {
	ok, err := s.onboardingSvc.Gate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complete": ok})
}
