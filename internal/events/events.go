package events

// Outbox event types consumed by downstream merchant notifiers.
const (
	EventPaymentSettled = "payment.settled"
	EventPaymentFailed  = "payment.failed"
	EventPaymentExpired = "payment.expired"
	EventRefundCreated  = "refund.created"
	EventRefundSettled  = "refund.settled"
	EventRefundFailed   = "refund.failed"
)

// PaymentPayload is the minimal settlement record pushed to merchants.
type PaymentPayload struct {
	OrderID         string `json:"order_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	Channel         string `json:"channel"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ChannelTxnID    string `json:"channel_txn_id,omitempty"`
	PaidAt          string `json:"paid_at,omitempty"`
}

func (p PaymentPayload) ToMap() map[string]any {
	payload := map[string]any{
		"order_id":          p.OrderID,
		"merchant_order_id": p.MerchantOrderID,
		"channel":           p.Channel,
		"amount":            p.Amount,
		"currency":          p.Currency,
	}
	if p.ChannelTxnID != "" {
		payload["channel_txn_id"] = p.ChannelTxnID
	}
	if p.PaidAt != "" {
		payload["paid_at"] = p.PaidAt
	}
	return payload
}

// RefundPayload mirrors PaymentPayload for reversals.
type RefundPayload struct {
	RefundID   string `json:"refund_id"`
	OrderID    string `json:"order_id"`
	Channel    string `json:"channel"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	RefundedAt string `json:"refunded_at,omitempty"`
}

func (p RefundPayload) ToMap() map[string]any {
	payload := map[string]any{
		"refund_id": p.RefundID,
		"order_id":  p.OrderID,
		"channel":   p.Channel,
		"amount":    p.Amount,
		"currency":  p.Currency,
	}
	if p.RefundedAt != "" {
		payload["refunded_at"] = p.RefundedAt
	}
	return payload
}
