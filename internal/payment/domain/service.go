package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
)

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrUnsupportedChannel = errors.New("unsupported_channel")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrRefundNotFound     = errors.New("refund_not_found")
	ErrInvalidOrderStatus = errors.New("invalid_order_status")
	ErrRefundExceedsPaid  = errors.New("refund_exceeds_paid_amount")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrDuplicateOrder     = errors.New("duplicate_merchant_order")
)

// AdapterError wraps an upstream channel failure, tagged with the channel
// and operation for observability. Retryable marks unknown outcomes
// (timeouts) the caller may safely retry.
type AdapterError struct {
	Channel   Channel
	Operation string
	Retryable bool
	Err       error
}

func (e *AdapterError) Error() string {
	return "adapter " + string(e.Channel) + "/" + e.Operation + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// CreatePaymentRequest is the validated payment intake.
type CreatePaymentRequest struct {
	MerchantID      snowflake.ID
	MerchantOrderID string
	Amount          int64
	Currency        money.Currency
	Channel         Channel
	Method          Method
	Subject         string
	Description     string
	NotifyURL       string
	ReturnURL       string
	ClientIP        string
	Metadata        map[string]any
}

// CreatePaymentResponse carries the order id plus whatever redirect
// material the channel handed back.
type CreatePaymentResponse struct {
	OrderID    snowflake.ID      `json:"order_id"`
	Status     OrderStatus       `json:"status"`
	PaymentURL string            `json:"payment_url,omitempty"`
	QRCode     string            `json:"qr_code,omitempty"`
	HTMLForm   string            `json:"html_form,omitempty"`
	SDKParams  map[string]string `json:"sdk_params,omitempty"`
}

// CreateRefundRequest opens a refund against a settled order.
type CreateRefundRequest struct {
	MerchantID snowflake.ID
	OrderID    snowflake.ID
	Amount     int64
	Reason     string
}

type CreateRefundResponse struct {
	RefundID snowflake.ID `json:"refund_id"`
	OrderID  snowflake.ID `json:"order_id"`
	Status   RefundStatus `json:"status"`
}

// NotificationResult is what the HTTP boundary writes back to the channel.
type NotificationResult struct {
	OrderID      snowflake.ID
	Status       OrderStatus
	ResponseData string
}

// Service is the payment orchestration surface.
type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	QueryPayment(ctx context.Context, orderID snowflake.ID) (*PaymentOrder, error)
	ListOrderEvents(ctx context.Context, orderID snowflake.ID) (*PaymentOrder, []EventRecord, error)
	HandleNotification(ctx context.Context, channel Channel, payload []byte) (*NotificationResult, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*CreateRefundResponse, error)
	QueryRefund(ctx context.Context, refundID snowflake.ID) (*Refund, error)
	ListChannels(ctx context.Context, currency money.Currency) []ChannelInfo
}
