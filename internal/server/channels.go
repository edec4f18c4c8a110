package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payflow/internal/money"
)

// ListChannels returns the channels this deployment can dispatch to,
// optionally filtered by settlement currency.
func (s *Server) ListChannels(c *gin.Context) {
	currency := money.Currency(strings.ToUpper(strings.TrimSpace(c.Query("currency"))))
	if currency != "" {
		if _, err := money.ParseCurrency(string(currency)); err != nil {
			AbortWithError(c, newValidationError("currency", "invalid_currency", "invalid currency code"))
			return
		}
	}

	channels := s.paymentSvc.ListChannels(c.Request.Context(), currency)
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}
