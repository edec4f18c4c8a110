package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"gorm.io/datatypes"
)

// PaymentOrder is the merchant-facing payment intent. MerchantOrderID is
// unique per merchant so replayed create requests land on the same row.
type PaymentOrder struct {
	ID              snowflake.ID       `gorm:"primaryKey" json:"id"`
	MerchantID      snowflake.ID       `gorm:"index;uniqueIndex:idx_orders_merchant_ref" json:"merchant_id"`
	MerchantOrderID string             `gorm:"uniqueIndex:idx_orders_merchant_ref" json:"merchant_order_id"`
	Channel         Channel            `json:"channel"`
	Method          Method             `json:"method"`
	Amount          int64              `json:"amount"`
	Currency        money.Currency     `json:"currency"`
	Status          OrderStatus        `gorm:"index" json:"status"`
	Subject         string             `json:"subject"`
	Description     string             `json:"description,omitempty"`
	ChannelTxnID    string             `gorm:"index" json:"channel_txn_id,omitempty"`
	NotifyURL       string             `json:"notify_url,omitempty"`
	ReturnURL       string             `json:"return_url,omitempty"`
	ClientIP        string             `json:"client_ip,omitempty"`
	Metadata        datatypes.JSONMap  `json:"metadata,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }

func (o *PaymentOrder) Money() money.Money {
	return money.New(o.Amount, o.Currency)
}

func (o *PaymentOrder) IsPaid() bool       { return o.Status == OrderStatusSuccess }
func (o *PaymentOrder) IsProcessing() bool { return o.Status == OrderStatusProcessing }
func (o *PaymentOrder) IsClosed() bool     { return o.Status == OrderStatusClosed }

// CanRefund: only settled orders may be refunded.
func (o *PaymentOrder) CanRefund() bool { return o.Status == OrderStatusSuccess }

// IsExpired reports whether the payment window has lapsed. Orders without
// a deadline never expire.
func (o *PaymentOrder) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// UpdateStatus moves the order and stamps UpdatedAt. Callers go through
// ApplyEvent first; this only records the outcome.
func (o *PaymentOrder) UpdateStatus(status OrderStatus, now time.Time) {
	o.Status = status
	o.UpdatedAt = now
}

// Initiate marks the order handed off to the channel.
func (o *PaymentOrder) Initiate(now time.Time) {
	o.UpdateStatus(OrderStatusProcessing, now)
}

// Complete settles the order with the channel's transaction id.
func (o *PaymentOrder) Complete(channelTxnID string, paidAt time.Time) {
	o.ChannelTxnID = channelTxnID
	o.PaidAt = &paidAt
	o.UpdateStatus(OrderStatusSuccess, paidAt)
}

func (o *PaymentOrder) Fail(now time.Time) {
	o.UpdateStatus(OrderStatusFailed, now)
}

func (o *PaymentOrder) Expire(now time.Time) {
	o.UpdateStatus(OrderStatusExpired, now)
}

func (o *PaymentOrder) Close(now time.Time) {
	o.UpdateStatus(OrderStatusClosed, now)
}
