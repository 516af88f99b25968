package server

import (
	"errors"
	"net/http"

	accountdomain "github.com/cvforge/cvforge/internal/account/domain"
	"github.com/cvforge/cvforge/internal/entitlement"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	subscriptiondomain "github.com/cvforge/cvforge/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

type errorResponse struct {
	Error           string `json:"error"`
	RequiresAuth    bool   `json:"requiresAuth,omitempty"`
	RequiresPayment bool   `json:"requiresPayment,omitempty"`
}

// ErrorHandlingMiddleware maps the last recorded error to one JSON body.
// Handlers record errors with AbortWithError and never shape error JSON
// themselves.
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
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, paymentdomain.ErrAuthRequired),
		errors.Is(err, accountdomain.ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{
			Error:        "authentication required",
			RequiresAuth: true,
		}
	case errors.Is(err, entitlement.ErrNotEntitled):
		return http.StatusBadRequest, errorResponse{
			Error:           "no downloads remaining",
			RequiresPayment: true,
		}
	case errors.Is(err, paymentdomain.ErrInvalidProduct):
		return http.StatusBadRequest, errorResponse{Error: "unknown product"}
	case errors.Is(err, paymentdomain.ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidReference),
		errors.Is(err, accountdomain.ErrInvalidEmail),
		errors.Is(err, accountdomain.ErrInvalidPassword),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: "invalid request"}
	case errors.Is(err, accountdomain.ErrEmailTaken):
		return http.StatusConflict, errorResponse{Error: "email already registered"}
	case errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: "too many requests"}
	case errors.Is(err, paymentdomain.ErrProcessorUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "payment processor unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

// classifyErrorForLog labels request errors for the access log.
func classifyErrorForLog(err error) (string, string) {
	status, _ := mapError(err)
	switch {
	case status == http.StatusUnauthorized:
		return "auth", "unauthorized"
	case status == http.StatusTooManyRequests:
		return "ratelimit", "rate_limited"
	case status == http.StatusServiceUnavailable:
		return "upstream", "processor_unavailable"
	case status >= 500:
		return "internal", "internal_error"
	default:
		return "client", "bad_request"
	}
}
