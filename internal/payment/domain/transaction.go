package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"gorm.io/datatypes"
)

// Transaction records a single attempt against a channel, forward or
// reverse. An order accrues at most one successful payment transaction.
type Transaction struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderID         snowflake.ID      `gorm:"index" json:"order_id"`
	Type            TransactionType   `json:"type"`
	Channel         Channel           `json:"channel"`
	Amount          int64             `json:"amount"`
	Currency        money.Currency    `json:"currency"`
	Status          TransactionStatus `gorm:"index" json:"status"`
	ChannelTxnID    string            `gorm:"index" json:"channel_txn_id,omitempty"`
	GatewayCode     string            `json:"gateway_code,omitempty"`
	GatewayMessage  string            `json:"gateway_message,omitempty"`
	GatewayResponse datatypes.JSON    `json:"gateway_response,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string { return "payment_transactions" }

func (t *Transaction) IsSuccessful() bool { return t.Status == TransactionStatusSuccess }

func (t *Transaction) UpdateStatus(status TransactionStatus, now time.Time) {
	t.Status = status
	t.UpdatedAt = now
}

func (t *Transaction) SetChannelTxnID(id string, now time.Time) {
	t.ChannelTxnID = id
	t.UpdatedAt = now
}

// SetGatewayResponse keeps the channel's verbatim reply alongside the
// normalized code and message for later disputes.
func (t *Transaction) SetGatewayResponse(code, message string, raw datatypes.JSON, now time.Time) {
	t.GatewayCode = code
	t.GatewayMessage = message
	t.GatewayResponse = raw
	t.UpdatedAt = now
}
