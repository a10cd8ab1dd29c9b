package server

import (
	"net/http"

	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// ProvisionAffiliate creates the affiliate record for a new signup. The
// identity provider calls this during registration and embeds the
// returned id in the tokens it mints.
func (s *Server) ProvisionAffiliate(c *gin.Context) {
	var req affiliatedomain.CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.affiliateSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) GetAffiliateByID(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	found, err := s.affiliateSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}
