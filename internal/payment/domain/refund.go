package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"gorm.io/datatypes"
)

// Refund is a reversal request against a settled order. Refund state lives
// here; the parent order keeps its settled status throughout.
type Refund struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID         snowflake.ID   `gorm:"index" json:"order_id"`
	MerchantID      snowflake.ID   `gorm:"index" json:"merchant_id"`
	Channel         Channel        `json:"channel"`
	Amount          int64          `json:"amount"`
	Currency        money.Currency `json:"currency"`
	Status          RefundStatus   `gorm:"index" json:"status"`
	Reason          string         `json:"reason,omitempty"`
	ChannelRefundID string         `gorm:"index" json:"channel_refund_id,omitempty"`
	GatewayResponse datatypes.JSON `json:"gateway_response,omitempty"`
	RefundedAt      *time.Time     `json:"refunded_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Refund) TableName() string { return "payment_refunds" }

func (r *Refund) IsPending() bool    { return r.Status == RefundStatusPending }
func (r *Refund) IsSuccessful() bool { return r.Status == RefundStatusSuccess }

func (r *Refund) UpdateStatus(status RefundStatus, now time.Time) {
	r.Status = status
	r.UpdatedAt = now
}

func (r *Refund) SetChannelRefundID(id string, now time.Time) {
	r.ChannelRefundID = id
	r.UpdatedAt = now
}

// Complete settles the refund with the channel's confirmation time.
func (r *Refund) Complete(refundedAt time.Time) {
	r.RefundedAt = &refundedAt
	r.UpdateStatus(RefundStatusSuccess, refundedAt)
}

func (r *Refund) Fail(now time.Time) {
	r.UpdateStatus(RefundStatusFailed, now)
}
