package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

// Adapter is the uniform capability set implemented once per external
// channel. Implementations are stateless, shared, and never persist;
// channel-specific types stay below this boundary.
type Adapter interface {
	Name() string

	// CreatePayment opens a payment intent on the channel.
	CreatePayment(ctx context.Context, order *PaymentOrder) (*PaymentResponse, error)

	// QueryPayment reconciles an order against the channel's view.
	QueryPayment(ctx context.Context, order *PaymentOrder) (*PaymentStatusResponse, error)

	// HandleNotification verifies an inbound webhook's authenticity before
	// trusting any field, then normalizes it.
	HandleNotification(ctx context.Context, payload []byte) (*NotificationResponse, error)

	// CreateRefund asks the channel to reverse a settled transaction.
	CreateRefund(ctx context.Context, refund *Refund, order *PaymentOrder) (*RefundResponse, error)

	// QueryRefund reconciles a refund against the channel's view.
	QueryRefund(ctx context.Context, refund *Refund, order *PaymentOrder) (*RefundStatusResponse, error)
}

// AdapterConfig carries the per-channel credentials an adapter signs with.
type AdapterConfig struct {
	Channel    Channel
	MerchantNo string
	AppID      string
	Secret     string
	Endpoint   string
	Timeout    time.Duration
}

// PaymentResponse is the channel-agnostic create_payment result.
type PaymentResponse struct {
	ChannelTxnID string
	PaymentURL   string
	QRCode       string
	HTMLForm     string
	SDKParams    map[string]string
	RawResponse  datatypes.JSON
}

// PaymentStatusResponse is the channel-agnostic query_payment result.
type PaymentStatusResponse struct {
	IsPaid       bool
	ChannelTxnID string
	PaidAmount   int64
	PaidAt       *time.Time
	RawResponse  datatypes.JSON
}

// RefundResponse is the channel-agnostic create_refund result.
type RefundResponse struct {
	ChannelRefundID string
	IsAccepted      bool
	RawResponse     datatypes.JSON
}

// RefundStatusResponse is the channel-agnostic query_refund result.
type RefundStatusResponse struct {
	IsSuccess       bool
	ChannelRefundID string
	RefundedAmount  int64
	RefundedAt      *time.Time
	RawResponse     datatypes.JSON
}

// NotificationResponse is the normalized webhook payload. OrderRef is the
// order reference we handed the channel at create time. ResponseData is
// returned verbatim to the channel as the acknowledgement body; channels
// retry the notification until they receive it.
type NotificationResponse struct {
	OrderRef     string
	ChannelTxnID string
	IsSuccessful bool
	Amount       int64
	PaidAt       *time.Time
	RawData      datatypes.JSON
	ResponseData string
}
