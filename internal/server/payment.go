package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payflow/internal/money"
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

type createPaymentRequest struct {
	MerchantOrderID string         `json:"merchant_order_id"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Channel         string         `json:"channel"`
	Method          string         `json:"method"`
	Subject         string         `json:"subject"`
	Description     string         `json:"description"`
	NotifyURL       string         `json:"notify_url"`
	ReturnURL       string         `json:"return_url"`
	Metadata        map[string]any `json:"metadata"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.MerchantOrderID) == "" {
		AbortWithError(c, newValidationError("merchant_order_id", "required", "merchant_order_id is required"))
		return
	}

	resp, err := s.paymentSvc.CreatePayment(c.Request.Context(), domain.CreatePaymentRequest{
		MerchantID:      merchantID(c),
		MerchantOrderID: strings.TrimSpace(req.MerchantOrderID),
		Amount:          req.Amount,
		Currency:        money.Currency(strings.ToUpper(strings.TrimSpace(req.Currency))),
		Channel:         domain.Channel(strings.ToLower(strings.TrimSpace(req.Channel))),
		Method:          domain.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		Subject:         strings.TrimSpace(req.Subject),
		Description:     strings.TrimSpace(req.Description),
		NotifyURL:       strings.TrimSpace(req.NotifyURL),
		ReturnURL:       strings.TrimSpace(req.ReturnURL),
		ClientIP:        c.ClientIP(),
		Metadata:        req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetPayment(c *gin.Context) {
	orderID, err := snowflake.ParseString(c.Param("order_id"))
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}

	order, err := s.paymentSvc.QueryPayment(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.MerchantID != merchantID(c) {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetPaymentEvents exposes the order's event log for dispute resolution.
func (s *Server) GetPaymentEvents(c *gin.Context) {
	orderID, err := snowflake.ParseString(c.Param("order_id"))
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}

	order, records, err := s.paymentSvc.ListOrderEvents(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.MerchantID != merchantID(c) {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": order.ID.String(),
		"events":   records,
	})
}

// GetPaymentStatus is a slim variant of GetPayment for status polling.
func (s *Server) GetPaymentStatus(c *gin.Context) {
	orderID, err := snowflake.ParseString(c.Param("order_id"))
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}

	order, err := s.paymentSvc.QueryPayment(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.MerchantID != merchantID(c) {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": order.ID.String(),
		"status":   order.Status,
		"amount":   order.Amount,
		"currency": order.Currency,
		"paid_at":  order.PaidAt,
	})
}
