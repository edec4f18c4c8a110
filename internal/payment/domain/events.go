package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventType names the payment lifecycle events.
type EventType string

const (
	EventOrderCreated     EventType = "order_created"
	EventPaymentInitiated EventType = "payment_initiated"
	EventPaymentCompleted EventType = "payment_completed"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentExpired   EventType = "payment_expired"
	EventRefundRequested  EventType = "refund_requested"
	EventRefundCompleted  EventType = "refund_completed"
)

// Event is a lifecycle occurrence applied to an order.
type Event struct {
	Type         EventType
	ChannelTxnID string
	Amount       int64
	OccurredAt   time.Time
}

// InvalidTransitionError reports a (status, event) pairing the state
// machine does not accept.
type InvalidTransitionError struct {
	From  OrderStatus
	Event EventType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s + %s", e.From, e.Event)
}

type transitionKey struct {
	from  OrderStatus
	event EventType
}

// Refund events are accepted on settled orders but never move them:
// refund progress is tracked on the Refund rows alone.
var transitions = map[transitionKey]OrderStatus{
	{OrderStatusCreated, EventOrderCreated}:        OrderStatusCreated,
	{OrderStatusCreated, EventPaymentInitiated}:    OrderStatusProcessing,
	{OrderStatusProcessing, EventPaymentCompleted}: OrderStatusSuccess,
	{OrderStatusProcessing, EventPaymentFailed}:    OrderStatusFailed,
	{OrderStatusProcessing, EventPaymentExpired}:   OrderStatusExpired,
	{OrderStatusCreated, EventPaymentExpired}:      OrderStatusExpired,
	{OrderStatusSuccess, EventRefundRequested}:     OrderStatusSuccess,
	{OrderStatusSuccess, EventRefundCompleted}:     OrderStatusSuccess,
}

// ApplyEvent is total: every (status, event) pairing either yields the
// next status or an InvalidTransitionError carrying the rejected pair.
// Rejected events leave the status unchanged.
func ApplyEvent(status OrderStatus, event Event) (OrderStatus, error) {
	next, ok := transitions[transitionKey{status, event.Type}]
	if !ok {
		return status, &InvalidTransitionError{From: status, Event: event.Type}
	}
	return next, nil
}

// EventRecord is the durable per-order event log row. The unique index
// over (order_id, event_type, channel_txn_id) makes webhook replays
// idempotent at the storage layer.
type EventRecord struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID      snowflake.ID   `gorm:"index;uniqueIndex:idx_events_dedup" json:"order_id"`
	EventType    EventType      `gorm:"uniqueIndex:idx_events_dedup" json:"event_type"`
	ChannelTxnID string         `gorm:"uniqueIndex:idx_events_dedup" json:"channel_txn_id"`
	FromStatus   OrderStatus    `json:"from_status"`
	ToStatus     OrderStatus    `json:"to_status"`
	Amount       int64          `json:"amount,omitempty"`
	Payload      datatypes.JSON `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (EventRecord) TableName() string { return "payment_events" }
