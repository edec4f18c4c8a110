package boost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/signature"
	"go.uber.org/zap"
)

const testSecret = "boost-test-secret"

func newAdapter(endpoint string) *Adapter {
	return New(domain.AdapterConfig{
		Channel:    domain.ChannelBoost,
		MerchantNo: "BOOST-M1",
		Secret:     testSecret,
		Endpoint:   endpoint,
		Timeout:    2 * time.Second,
	}, zap.NewNop())
}

func testOrder() *domain.PaymentOrder {
	return &domain.PaymentOrder{
		ID:        snowflake.ID(5501),
		Channel:   domain.ChannelBoost,
		Method:    domain.MethodQRCode,
		Amount:    8800,
		Currency:  money.MYR,
		Subject:   "Nasi lemak set",
		NotifyURL: "https://merchant.example.my/notify",
	}
}

func TestCreatePaymentQR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var fields map[string]string
		if err := json.Unmarshal(body, &fields); err != nil {
			t.Fatalf("request must be JSON: %v", err)
		}
		if err := signature.VerifyHMAC(fields, testSecret); err != nil {
			t.Fatalf("request must be signed: %v", err)
		}
		if fields["merchantOrderNo"] != "5501" || fields["paymentType"] != "QR" {
			t.Fatalf("unexpected request: %+v", fields)
		}
		reply, _ := json.Marshal(map[string]string{
			"resultCode":   "0",
			"onlineRefNum": "boost-ref-1",
			"qrCode":       "boost://pay/abcdef",
		})
		w.Write(reply)
	}))
	defer srv.Close()

	adapter := newAdapter(srv.URL)
	resp, err := adapter.CreatePayment(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if resp.QRCode != "boost://pay/abcdef" || resp.ChannelTxnID != "boost-ref-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreatePaymentChannelRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"resultCode":"1001","resultMsg":"MERCHANT SUSPENDED"}`))
	}))
	defer srv.Close()

	adapter := newAdapter(srv.URL)
	_, err := adapter.CreatePayment(context.Background(), testOrder())
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if adapterErr.Channel != domain.ChannelBoost || adapterErr.Retryable {
		t.Fatalf("rejection must be tagged and non-retryable: %+v", adapterErr)
	}
}

func TestHandleNotificationValid(t *testing.T) {
	fields := map[string]string{
		"merchantOrderNo":     "5501",
		"onlineRefNum":        "boost-ref-1",
		"transactionStatus":   "SUCCESS",
		"amount":              "8800",
		"transactionDateTime": "2025-06-01T18:30:00+08:00",
	}
	fields[signature.SignKey] = signature.SignHMAC(fields, testSecret)
	payload, _ := json.Marshal(fields)

	adapter := newAdapter("")
	resp, err := adapter.HandleNotification(context.Background(), payload)
	if err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if resp.OrderRef != "5501" || resp.ChannelTxnID != "boost-ref-1" {
		t.Fatalf("identifiers not extracted: %+v", resp)
	}
	if !resp.IsSuccessful || resp.Amount != 8800 {
		t.Fatalf("expected settled 8800: %+v", resp)
	}
	want := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if resp.PaidAt == nil || !resp.PaidAt.Equal(want) {
		t.Fatalf("expected PaidAt %v, got %v", want, resp.PaidAt)
	}
	if resp.ResponseData != ack {
		t.Fatalf("expected ack body, got %q", resp.ResponseData)
	}
}

func TestHandleNotificationTampered(t *testing.T) {
	fields := map[string]string{
		"merchantOrderNo":   "5501",
		"onlineRefNum":      "boost-ref-1",
		"transactionStatus": "FAILED",
		"amount":            "8800",
	}
	fields[signature.SignKey] = signature.SignHMAC(fields, testSecret)
	fields["transactionStatus"] = "SUCCESS"
	payload, _ := json.Marshal(fields)

	adapter := newAdapter("")
	if _, err := adapter.HandleNotification(context.Background(), payload); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCreateRefundCarriesChannelReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var fields map[string]string
		if err := json.Unmarshal(body, &fields); err != nil {
			t.Fatalf("request must be JSON: %v", err)
		}
		if fields["onlineRefNum"] != "boost-ref-1" || fields["merchantRefundNo"] != "6601" {
			t.Fatalf("unexpected refund request: %+v", fields)
		}
		reply, _ := json.Marshal(map[string]string{
			"resultCode":   "0",
			"refundRefNum": "boost-rf-1",
			"refundStatus": "PENDING",
		})
		w.Write(reply)
	}))
	defer srv.Close()

	order := testOrder()
	order.ChannelTxnID = "boost-ref-1"
	refund := &domain.Refund{
		ID:       snowflake.ID(6601),
		OrderID:  order.ID,
		Channel:  domain.ChannelBoost,
		Amount:   4400,
		Currency: money.MYR,
		Reason:   "partial return",
	}

	adapter := newAdapter(srv.URL)
	resp, err := adapter.CreateRefund(context.Background(), refund, order)
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	if !resp.IsAccepted || resp.ChannelRefundID != "boost-rf-1" {
		t.Fatalf("unexpected refund response: %+v", resp)
	}
}
