package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

type createRefundRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

func (s *Server) CreateRefund(c *gin.Context) {
	var req createRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}

	resp, err := s.paymentSvc.CreateRefund(c.Request.Context(), domain.CreateRefundRequest{
		MerchantID: merchantID(c),
		OrderID:    orderID,
		Amount:     req.Amount,
		Reason:     req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetRefund(c *gin.Context) {
	refundID, err := snowflake.ParseString(c.Param("refund_id"))
	if err != nil {
		AbortWithError(c, newValidationError("refund_id", "invalid_refund_id", "invalid refund id"))
		return
	}

	refund, err := s.paymentSvc.QueryRefund(c.Request.Context(), refundID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if refund.MerchantID != merchantID(c) {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, refund)
}

// GetRefundStatus is a slim variant of GetRefund for status polling.
func (s *Server) GetRefundStatus(c *gin.Context) {
	refundID, err := snowflake.ParseString(c.Param("refund_id"))
	if err != nil {
		AbortWithError(c, newValidationError("refund_id", "invalid_refund_id", "invalid refund id"))
		return
	}

	refund, err := s.paymentSvc.QueryRefund(c.Request.Context(), refundID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if refund.MerchantID != merchantID(c) {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund_id":   refund.ID.String(),
		"order_id":    refund.OrderID.String(),
		"status":      refund.Status,
		"amount":      refund.Amount,
		"currency":    refund.Currency,
		"refunded_at": refund.RefundedAt,
	})
}
