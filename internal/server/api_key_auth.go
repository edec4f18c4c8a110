package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payflow/internal/auditcontext"
)

const contextMerchantIDKey = "merchant_id"

// APIKeyRequired authenticates merchant API calls with a bearer
// credential of the form "keyID.secret". Merchant identity comes
// solely from the key record; callers cannot assert it themselves.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		merchantID, err := s.merchantSvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if !s.limiter.Allow(merchantID.String()) {
			AbortWithError(c, &APIError{Status: 429, Code: "rate_limited", Message: "too many requests"})
			return
		}

		ctx := auditcontext.WithMerchantID(c.Request.Context(), merchantID.String())
		ctx = auditcontext.WithActor(ctx, "merchant", merchantID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextMerchantIDKey, merchantID)
		c.Next()
	}
}

// merchantID returns the authenticated merchant for the request, or 0
// on unauthenticated routes.
func merchantID(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextMerchantIDKey)
	if !ok {
		return 0
	}
	id, ok := value.(snowflake.ID)
	if !ok {
		return 0
	}
	return id
}
