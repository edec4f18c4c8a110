package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	merchantdomain "github.com/smallbiznis/payflow/internal/merchant/domain"
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

// APIError is the wire shape of every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

var (
	ErrUnauthorized = &APIError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "unauthorized"}
	ErrNotFound     = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
)

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "invalid request body"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

// AbortWithError maps service errors onto the HTTP taxonomy and writes
// the JSON error body. Unknown errors become an opaque 500.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
		return
	}

	var adapterErr *domain.AdapterError
	if errors.As(err, &adapterErr) {
		c.AbortWithStatusJSON(http.StatusBadGateway, &APIError{
			Code:    "channel_unavailable",
			Message: "payment channel did not accept the request",
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrRefundNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, &APIError{Code: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicateOrder),
		errors.Is(err, domain.ErrInvalidOrderStatus),
		errors.Is(err, domain.ErrRefundExceedsPaid):
		c.AbortWithStatusJSON(http.StatusConflict, &APIError{Code: err.Error(), Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnsupportedChannel),
		errors.Is(err, domain.ErrInvalidPayload):
		c.AbortWithStatusJSON(http.StatusBadRequest, &APIError{Code: err.Error(), Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidSignature), errors.Is(err, merchantdomain.ErrInvalidKey):
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrUnauthorized)
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, &APIError{
			Code:    "internal_error",
			Message: "internal server error",
		})
	}
}
