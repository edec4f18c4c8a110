package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes merchants created by integration tests, keyed by
// a name prefix. Disabled in production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Env == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	merchantIDs, err := s.loadMerchantIDsByPrefix(ctx, prefix)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.deleteMerchantData(ctx, merchantIDs); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) loadMerchantIDsByPrefix(ctx context.Context, prefix string) ([]int64, error) {
	like := strings.TrimSpace(prefix) + "%"
	var merchantIDs []int64
	if err := s.db.WithContext(ctx).
		Table("merchants").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&merchantIDs).Error; err != nil {
		return nil, err
	}
	return merchantIDs, nil
}

func (s *Server) deleteMerchantData(ctx context.Context, merchantIDs []int64) error {
	if len(merchantIDs) == 0 {
		return nil
	}
	queries := []string{
		`DELETE FROM payment_events WHERE order_id IN (SELECT id FROM payment_orders WHERE merchant_id IN ?)`,
		`DELETE FROM payment_transactions WHERE order_id IN (SELECT id FROM payment_orders WHERE merchant_id IN ?)`,
		`DELETE FROM payment_refunds WHERE merchant_id IN ?`,
		`DELETE FROM payment_orders WHERE merchant_id IN ?`,
		`DELETE FROM merchant_events WHERE merchant_id IN ?`,
		`DELETE FROM merchant_api_keys WHERE merchant_id IN ?`,
		`DELETE FROM audit_logs WHERE merchant_id IN ?`,
		`DELETE FROM merchants WHERE id IN ?`,
	}
	for _, query := range queries {
		if err := s.db.WithContext(ctx).Exec(query, merchantIDs).Error; err != nil {
			return err
		}
	}
	return nil
}
