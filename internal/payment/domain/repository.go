package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// OrderRepository owns durable writes for payment orders. ForUpdate
// variants take a row lock and must run inside a transaction.
type OrderRepository interface {
	Insert(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	Update(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentOrder, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentOrder, error)
	FindByMerchantOrderID(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, merchantOrderID string) (*PaymentOrder, error)
	LockProcessingBatch(ctx context.Context, db *gorm.DB, olderThanSeconds int, limit int) ([]PaymentOrder, error)
}

type TransactionRepository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	Update(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Transaction, error)
	CountByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
}

type RefundRepository interface {
	Insert(ctx context.Context, db *gorm.DB, refund *Refund) error
	Update(ctx context.Context, db *gorm.DB, refund *Refund) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Refund, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Refund, error)
	SumOpenOrSucceededByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
	ListOpenBatch(ctx context.Context, db *gorm.DB, olderThanSeconds int, limit int) ([]Refund, error)
}

// EventRepository appends to the per-order event log. InsertDedup reports
// false when an identical event was already recorded.
type EventRepository interface {
	Insert(ctx context.Context, db *gorm.DB, record *EventRecord) error
	InsertDedup(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	ListByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]EventRecord, error)
}
