package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingService struct {
	domain.Service
	queriedOrders  []snowflake.ID
	queriedRefunds []snowflake.ID
}

func (r *recordingService) QueryPayment(_ context.Context, orderID snowflake.ID) (*domain.PaymentOrder, error) {
	r.queriedOrders = append(r.queriedOrders, orderID)
	return &domain.PaymentOrder{ID: orderID}, nil
}

func (r *recordingService) QueryRefund(_ context.Context, refundID snowflake.ID) (*domain.Refund, error) {
	r.queriedRefunds = append(r.queriedRefunds, refundID)
	return &domain.Refund{ID: refundID}, nil
}

func setupWorker(t *testing.T) (*Worker, *recordingService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.PaymentOrder{}, &domain.Refund{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := &recordingService{}
	worker := NewWorker(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Svc:     svc,
		Orders:  repository.NewOrderRepository(),
		Refunds: repository.NewRefundRepository(),
		Config:  Config{BatchSize: 10, PollInterval: time.Minute, StaleAfter: time.Minute},
	})
	return worker, svc, db
}

func TestRunOnceReconcilesStaleWork(t *testing.T) {
	worker, svc, db := setupWorker(t)
	stale := time.Now().UTC().Add(-5 * time.Minute)
	fresh := time.Now().UTC()

	orders := []domain.PaymentOrder{
		{ID: 1, MerchantID: 100, MerchantOrderID: "a", Channel: domain.ChannelWechat, Amount: 100, Currency: money.CNY, Status: domain.OrderStatusProcessing, CreatedAt: stale, UpdatedAt: stale},
		{ID: 2, MerchantID: 100, MerchantOrderID: "b", Channel: domain.ChannelWechat, Amount: 100, Currency: money.CNY, Status: domain.OrderStatusProcessing, CreatedAt: fresh, UpdatedAt: fresh},
		{ID: 3, MerchantID: 100, MerchantOrderID: "c", Channel: domain.ChannelWechat, Amount: 100, Currency: money.CNY, Status: domain.OrderStatusSuccess, CreatedAt: stale, UpdatedAt: stale},
	}
	if err := db.Create(&orders).Error; err != nil {
		t.Fatalf("seed orders: %v", err)
	}
	refunds := []domain.Refund{
		{ID: 10, OrderID: 3, MerchantID: 100, Channel: domain.ChannelWechat, Amount: 50, Currency: money.CNY, Status: domain.RefundStatusProcessing, CreatedAt: stale, UpdatedAt: stale},
		{ID: 11, OrderID: 3, MerchantID: 100, Channel: domain.ChannelWechat, Amount: 50, Currency: money.CNY, Status: domain.RefundStatusSuccess, CreatedAt: stale, UpdatedAt: stale},
	}
	if err := db.Create(&refunds).Error; err != nil {
		t.Fatalf("seed refunds: %v", err)
	}

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(svc.queriedOrders) != 1 || svc.queriedOrders[0] != snowflake.ID(1) {
		t.Fatalf("expected only the stale processing order, got %v", svc.queriedOrders)
	}
	if len(svc.queriedRefunds) != 1 || svc.queriedRefunds[0] != snowflake.ID(10) {
		t.Fatalf("expected only the open refund, got %v", svc.queriedRefunds)
	}
}

func TestRunOnceEmptyBacklog(t *testing.T) {
	worker, svc, _ := setupWorker(t)

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(svc.queriedOrders) != 0 || len(svc.queriedRefunds) != 0 {
		t.Fatalf("nothing should be claimed: %v %v", svc.queriedOrders, svc.queriedRefunds)
	}
}
