package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/zap"
)

// maxNotificationBody bounds webhook payloads; real channel callbacks
// are a few KB.
const maxNotificationBody = 1 << 20

// HandleNotification is the channel webhook endpoint. The response body
// is whatever acknowledgement the channel protocol expects; anything
// else makes the channel redeliver.
func (s *Server) HandleNotification(c *gin.Context) {
	channel := domain.Channel(strings.ToLower(strings.TrimSpace(c.Param("channel"))))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.HandleNotification(c.Request.Context(), channel, payload)
	if err != nil {
		s.log.Warn("notification rejected",
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, ackContentType(channel), []byte(result.ResponseData))
}

// ackContentType matches each channel's acknowledgement format.
func ackContentType(channel domain.Channel) string {
	switch channel {
	case domain.ChannelWechat:
		return "application/xml; charset=utf-8"
	case domain.ChannelAlipay:
		return "text/plain; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}
