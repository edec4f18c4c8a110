package domain

import (
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/money"
)

func TestOrderTransitionsStampUpdatedAt(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	order := &PaymentOrder{
		Status:    OrderStatusCreated,
		Amount:    10000,
		Currency:  money.CNY,
		CreatedAt: created,
		UpdatedAt: created,
	}

	later := created.Add(time.Minute)
	order.Initiate(later)
	if order.Status != OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", order.Status)
	}
	if !order.UpdatedAt.Equal(later) {
		t.Fatalf("expected UpdatedAt stamped, got %v", order.UpdatedAt)
	}

	paidAt := later.Add(time.Minute)
	order.Complete("wx-txn-1", paidAt)
	if !order.IsPaid() {
		t.Fatalf("expected paid")
	}
	if order.ChannelTxnID != "wx-txn-1" {
		t.Fatalf("expected channel txn id recorded")
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(paidAt) {
		t.Fatalf("expected PaidAt %v, got %v", paidAt, order.PaidAt)
	}
}

func TestOrderCanRefundOnlyWhenPaid(t *testing.T) {
	order := &PaymentOrder{Status: OrderStatusProcessing}
	if order.CanRefund() {
		t.Fatalf("processing order must not be refundable")
	}
	order.Complete("txn", time.Now())
	if !order.CanRefund() {
		t.Fatalf("paid order must be refundable")
	}
	order.Close(time.Now())
	if order.CanRefund() {
		t.Fatalf("closed order must not be refundable")
	}
}

func TestOrderIsExpired(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(-time.Minute)
	order := &PaymentOrder{ExpiresAt: &deadline}
	if !order.IsExpired(now) {
		t.Fatalf("expected expired")
	}
	order.ExpiresAt = nil
	if order.IsExpired(now) {
		t.Fatalf("order without deadline never expires")
	}
}

func TestTransactionGatewayResponse(t *testing.T) {
	now := time.Now().UTC()
	txn := &Transaction{Status: TransactionStatusPending}
	txn.SetGatewayResponse("SUCCESS", "OK", []byte(`{"return_code":"SUCCESS"}`), now)
	txn.SetChannelTxnID("ch-1", now)
	txn.UpdateStatus(TransactionStatusSuccess, now)

	if txn.GatewayCode != "SUCCESS" || txn.ChannelTxnID != "ch-1" {
		t.Fatalf("gateway fields not recorded: %+v", txn)
	}
	if !txn.IsSuccessful() {
		t.Fatalf("expected successful transaction")
	}
}

func TestRefundStatusHelpers(t *testing.T) {
	refund := &Refund{Status: RefundStatusPending}
	if !refund.IsPending() {
		t.Fatalf("expected pending")
	}
	refund.UpdateStatus(RefundStatusSuccess, time.Now())
	if !refund.IsSuccessful() {
		t.Fatalf("expected successful")
	}
	if !refund.Status.IsTerminal() {
		t.Fatalf("success must be terminal")
	}
}

func TestParseChannelAndCurrencySupport(t *testing.T) {
	channel, err := ParseChannel(" Wechat ")
	if err != nil {
		t.Fatalf("parse channel: %v", err)
	}
	if channel != ChannelWechat {
		t.Fatalf("expected wechat, got %s", channel)
	}

	if _, err := ParseChannel("cashapp"); err == nil {
		t.Fatalf("expected unsupported channel")
	}

	if !ChannelSupports(ChannelBoost, money.MYR) {
		t.Fatalf("boost should settle MYR")
	}
	if ChannelSupports(ChannelBoost, money.CNY) {
		t.Fatalf("boost should not settle CNY")
	}
}
