// Package repository holds the gorm-backed persistence for payment
// orders, transactions, refunds and the event log.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate takes a row lock on dialects that support it. SQLite
// serializes writers on its own, so the clause is skipped there.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func lockSkipLocked(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return db
}

type orderRepository struct{}

func NewOrderRepository() domain.OrderRepository {
	return &orderRepository{}
}

func (r *orderRepository) Insert(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder) error {
	err := db.WithContext(ctx).Create(order).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateOrder
	}
	return err
}

func (r *orderRepository) Update(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder) error {
	return db.WithContext(ctx).Save(order).Error
}

func (r *orderRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	err := db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	err := lockForUpdate(db.WithContext(ctx)).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByMerchantOrderID(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, merchantOrderID string) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	err := db.WithContext(ctx).
		First(&order, "merchant_id = ? AND merchant_order_id = ?", merchantID, merchantOrderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockProcessingBatch claims a batch of stale in-flight orders for
// reconciliation. SKIP LOCKED lets concurrent workers partition the
// backlog instead of queueing on each other.
func (r *orderRepository) LockProcessingBatch(ctx context.Context, db *gorm.DB, olderThanSeconds int, limit int) ([]domain.PaymentOrder, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanSeconds) * time.Second)
	var orders []domain.PaymentOrder
	err := lockSkipLocked(db.WithContext(ctx)).
		Where("status = ? AND updated_at < ?", domain.OrderStatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

type transactionRepository struct{}

func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepository{}
}

func (r *transactionRepository) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *transactionRepository) Update(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Save(txn).Error
}

func (r *transactionRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) CountByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

type refundRepository struct{}

func NewRefundRepository() domain.RefundRepository {
	return &refundRepository{}
}

func (r *refundRepository) Insert(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	return db.WithContext(ctx).Create(refund).Error
}

func (r *refundRepository) Update(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	return db.WithContext(ctx).Save(refund).Error
}

func (r *refundRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Refund, error) {
	var refund domain.Refund
	err := db.WithContext(ctx).First(&refund, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Refund, error) {
	var refund domain.Refund
	err := lockForUpdate(db.WithContext(ctx)).First(&refund, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// SumOpenOrSucceededByOrderID is the refundable-balance guard: open
// refunds reserve their amount until the channel settles or rejects them.
func (r *refundRepository) SumOpenOrSucceededByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payment_refunds
		 WHERE order_id = ? AND status IN (?, ?, ?)`,
		orderID,
		domain.RefundStatusPending,
		domain.RefundStatusProcessing,
		domain.RefundStatusSuccess,
	).Scan(&total).Error
	return total, err
}

// ListOpenBatch returns stale non-terminal refunds for reconciliation.
func (r *refundRepository) ListOpenBatch(ctx context.Context, db *gorm.DB, olderThanSeconds int, limit int) ([]domain.Refund, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanSeconds) * time.Second)
	var refunds []domain.Refund
	err := db.WithContext(ctx).
		Where("status IN (?, ?) AND updated_at < ?",
			domain.RefundStatusPending, domain.RefundStatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

type eventRepository struct{}

func NewEventRepository() domain.EventRepository {
	return &eventRepository{}
}

func (r *eventRepository) Insert(ctx context.Context, db *gorm.DB, record *domain.EventRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

// InsertDedup reports false when the (order, event, channel txn) triple was
// already recorded, making webhook replays no-ops.
func (r *eventRepository) InsertDedup(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *eventRepository) ListByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
