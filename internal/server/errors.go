package server

import (
	"errors"
	"net/http"
	"strings"

	affiliatedomain "github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/agnuslink/agnuslink/internal/auth"
	commissiondomain "github.com/agnuslink/agnuslink/internal/commission/domain"
	dashboarddomain "github.com/agnuslink/agnuslink/internal/dashboard/domain"
	leaddomain "github.com/agnuslink/agnuslink/internal/lead/domain"
	"github.com/agnuslink/agnuslink/internal/locking"
	onboardingdomain "github.com/agnuslink/agnuslink/internal/onboarding/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, commissiondomain.ErrNoPendingFunds):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: "no pending funds to pay out",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, onboardingdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, affiliatedomain.ErrInvalidEmail),
		errors.Is(err, affiliatedomain.ErrInvalidReferralCode),
		errors.Is(err, leaddomain.ErrInvalidLeadType),
		errors.Is(err, leaddomain.ErrInvalidContact),
		errors.Is(err, leaddomain.ErrInvalidStatus),
		errors.Is(err, commissiondomain.ErrInvalidStatus),
		errors.Is(err, onboardingdomain.ErrInvalidPersonalInfo),
		errors.Is(err, onboardingdomain.ErrInvalidDocumentType),
		errors.Is(err, onboardingdomain.ErrUnsupportedMedia),
		errors.Is(err, onboardingdomain.ErrDocumentTooLarge):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, leaddomain.ErrInvalidAffiliate),
		errors.Is(err, commissiondomain.ErrInvalidAffiliate),
		errors.Is(err, onboardingdomain.ErrInvalidAffiliate),
		errors.Is(err, dashboarddomain.ErrInvalidAffiliate):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, affiliatedomain.ErrEmailTaken),
		errors.Is(err, leaddomain.ErrStatusUnchanged),
		errors.Is(err, leaddomain.ErrStatusRaced),
		errors.Is(err, commissiondomain.ErrPayoutDecided),
		errors.Is(err, commissiondomain.ErrPayoutNotApproved),
		errors.Is(err, onboardingdomain.ErrInvalidTransition),
		errors.Is(err, onboardingdomain.ErrAlreadySigned),
		errors.Is(err, locking.ErrLockHeld):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, affiliatedomain.ErrNotFound),
		errors.Is(err, leaddomain.ErrNotFound),
		errors.Is(err, commissiondomain.ErrPayoutNotFound),
		errors.Is(err, onboardingdomain.ErrSessionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unsupported_document_media", "document_too_large":
		return "document"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "document_too_large":
		return "document exceeds the size limit"
	case "unsupported_document_media":
		return "unsupported document media type"
	default:
		return "invalid value"
	}
}
