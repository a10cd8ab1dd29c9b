package server

import (
	"net/http"

	"github.com/agnuslink/agnuslink/internal/affctx"
	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListCommissions(c *gin.Context) {
	var req commissiondomain.ListCommissionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.ListOwn(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCommissionSummary(c *gin.Context) {
	affiliateID, ok := affctx.AffiliateIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.commissionSvc.Summarize(c.Request.Context(), affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
