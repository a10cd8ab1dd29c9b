package server

import (
	"errors"
	"net/http"

	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetOnboardingStatus(c *gin.Context) {
	status, err := s.onboardingSvc.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) SubmitPersonalInfo(c *gin.Context) {
	var req onboardingdomain.PersonalInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status, err := s.onboardingSvc.SubmitPersonalInfo(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) StartSignature(c *gin.Context) {
	session, err := s.onboardingSvc.StartSignature(c.Request.Context())
	if errors.Is(err, onboardingdomain.ErrAlreadySigned) {
		// The vendor already has the signature; the polling SPA just
		// needs the refreshed status to move on.
		status, err := s.onboardingSvc.Status(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// UploadKycDocument accepts a multipart form with a "document" file and
// a "document_type" field. The size cap is enforced again in the
// service; the request limit here just fails oversized bodies fast.
func (s *Server) UploadKycDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, onboardingdomain.MaxKycDocumentSize+4096)

	fileHeader, err := c.FormFile("document")
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer file.Close()

	status, err := s.onboardingSvc.UploadKycDocument(c.Request.Context(), onboardingdomain.UploadKycRequest{
		DocumentType: onboardingdomain.DocumentType(c.PostForm("document_type")),
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Size:         fileHeader.Size,
		Content:      file,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) CompleteReview(c *gin.Context) {
	affiliateID, err := snowflake.ParseString(c.Param("affiliateId"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req onboardingdomain.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if !req.Approve && req.Note == "" {
		AbortWithError(c, newValidationError("note", "note_required", "a rejection needs a note for the affiliate"))
		return
	}

	status, err := s.onboardingSvc.CompleteReview(c.Request.Context(), affiliateID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
