package alipay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/signature"
	"go.uber.org/zap"
)

const testSecret = "alipay-test-secret"

func newAdapter(endpoint string) *Adapter {
	return New(domain.AdapterConfig{
		Channel:  domain.ChannelAlipay,
		AppID:    "app-2021",
		Secret:   testSecret,
		Endpoint: endpoint,
		Timeout:  2 * time.Second,
	}, zap.NewNop())
}

func testOrder(method domain.Method) *domain.PaymentOrder {
	return &domain.PaymentOrder{
		ID:        snowflake.ID(7123456789),
		Channel:   domain.ChannelAlipay,
		Method:    method,
		Amount:    12345,
		Currency:  money.CNY,
		Subject:   "Test order",
		NotifyURL: "https://merchant.example.com/notify",
		ReturnURL: "https://merchant.example.com/return",
	}
}

func TestAmountRoundTrip(t *testing.T) {
	cases := []struct {
		minor int64
		text  string
	}{
		{12345, "123.45"},
		{100, "1.00"},
		{5, "0.05"},
		{0, "0.00"},
	}
	for _, tc := range cases {
		if got := formatAmount(tc.minor); got != tc.text {
			t.Fatalf("formatAmount(%d) = %q, want %q", tc.minor, got, tc.text)
		}
		back, err := parseAmount(tc.text)
		if err != nil {
			t.Fatalf("parseAmount(%q): %v", tc.text, err)
		}
		if back != tc.minor {
			t.Fatalf("parseAmount(%q) = %d, want %d", tc.text, back, tc.minor)
		}
	}
}

func TestParseAmountLooseForms(t *testing.T) {
	if got, err := parseAmount("10"); err != nil || got != 1000 {
		t.Fatalf("expected 1000, got %d (%v)", got, err)
	}
	if got, err := parseAmount("10.5"); err != nil || got != 1050 {
		t.Fatalf("expected 1050, got %d (%v)", got, err)
	}
	if _, err := parseAmount(""); err == nil {
		t.Fatalf("expected error for empty amount")
	}
}

func TestCreatePaymentWebReturnsSignedGatewayURL(t *testing.T) {
	adapter := newAdapter("https://openapi.alipay.com/gateway.do")
	resp, err := adapter.CreatePayment(context.Background(), testOrder(domain.MethodWeb))
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	parsed, err := url.Parse(resp.PaymentURL)
	if err != nil {
		t.Fatalf("parse payment url: %v", err)
	}
	query := parsed.Query()
	fields := make(map[string]string, len(query))
	for key := range query {
		fields[key] = query.Get(key)
	}
	if err := signature.VerifyHMAC(fields, testSecret); err != nil {
		t.Fatalf("payment url must carry a valid signature: %v", err)
	}
	if fields["out_trade_no"] != "7123456789" {
		t.Fatalf("expected order id as out_trade_no, got %q", fields["out_trade_no"])
	}
	if fields["total_amount"] != "123.45" {
		t.Fatalf("expected decimal amount, got %q", fields["total_amount"])
	}
}

func TestCreatePaymentQRCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(body))
		if err != nil {
			t.Fatalf("request must be form encoded: %v", err)
		}
		fields := make(map[string]string, len(values))
		for key := range values {
			fields[key] = values.Get(key)
		}
		if err := signature.VerifyHMAC(fields, testSecret); err != nil {
			t.Fatalf("request must be signed: %v", err)
		}
		if fields["method"] != "alipay.trade.precreate" {
			t.Fatalf("expected precreate, got %q", fields["method"])
		}
		w.Write([]byte(`{"code":"10000","trade_no":"ali-txn-1","qr_code":"https://qr.alipay.com/abc"}`))
	}))
	defer srv.Close()

	adapter := newAdapter(srv.URL)
	resp, err := adapter.CreatePayment(context.Background(), testOrder(domain.MethodQRCode))
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if resp.QRCode != "https://qr.alipay.com/abc" {
		t.Fatalf("expected qr code, got %q", resp.QRCode)
	}
	if resp.ChannelTxnID != "ali-txn-1" {
		t.Fatalf("expected channel txn id, got %q", resp.ChannelTxnID)
	}
}

func TestCreatePaymentChannelRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":"40004","sub_msg":"trade status error"}`))
	}))
	defer srv.Close()

	adapter := newAdapter(srv.URL)
	_, err := adapter.CreatePayment(context.Background(), testOrder(domain.MethodQRCode))
	if err == nil {
		t.Fatalf("expected rejection")
	}
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %T", err)
	}
	if adapterErr.Channel != domain.ChannelAlipay || adapterErr.Operation != "create_payment" {
		t.Fatalf("error should be tagged, got %+v", adapterErr)
	}
	if adapterErr.Retryable {
		t.Fatalf("channel rejection is not retryable")
	}
}

func TestHandleNotificationValid(t *testing.T) {
	fields := map[string]string{
		"out_trade_no": "7123456789",
		"trade_no":     "ali-txn-9",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "123.45",
		"gmt_payment":  "2025-06-01 10:30:00",
	}
	fields[signature.SignKey] = signature.SignHMAC(fields, testSecret)
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}

	adapter := newAdapter("")
	resp, err := adapter.HandleNotification(context.Background(), []byte(values.Encode()))
	if err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if resp.OrderRef != "7123456789" || resp.ChannelTxnID != "ali-txn-9" {
		t.Fatalf("identifiers not extracted: %+v", resp)
	}
	if !resp.IsSuccessful || resp.Amount != 12345 {
		t.Fatalf("expected settled 12345, got %+v", resp)
	}
	want := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if resp.PaidAt == nil || !resp.PaidAt.Equal(want) {
		t.Fatalf("expected PaidAt %v, got %v", want, resp.PaidAt)
	}
	if resp.ResponseData != "success" {
		t.Fatalf("expected literal ack, got %q", resp.ResponseData)
	}
}

func TestHandleNotificationTamperedAmount(t *testing.T) {
	fields := map[string]string{
		"out_trade_no": "7123456789",
		"trade_no":     "ali-txn-9",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "123.45",
	}
	fields[signature.SignKey] = signature.SignHMAC(fields, testSecret)
	fields["total_amount"] = "999.99"
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}

	adapter := newAdapter("")
	if _, err := adapter.HandleNotification(context.Background(), []byte(values.Encode())); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandleNotificationMissingSignature(t *testing.T) {
	adapter := newAdapter("")
	payload := []byte("out_trade_no=7123456789&trade_no=ali-txn-9&trade_status=TRADE_SUCCESS&total_amount=1.00")
	if _, err := adapter.HandleNotification(context.Background(), payload); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
