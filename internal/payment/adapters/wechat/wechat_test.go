package wechat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/signature"
	"go.uber.org/zap"
)

const testSecret = "wx_test_secret"

func testAdapter(endpoint string) *Adapter {
	return New(domain.AdapterConfig{
		Channel:    domain.ChannelWechat,
		MerchantNo: "1900000109",
		AppID:      "wx2421b1c4370ec43b",
		Secret:     testSecret,
		Endpoint:   endpoint,
		Timeout:    2 * time.Second,
	}, zap.NewNop())
}

func signedNotification(t *testing.T, overrides map[string]string) []byte {
	t.Helper()
	fields := map[string]string{
		"return_code":    "SUCCESS",
		"result_code":    "SUCCESS",
		"out_trade_no":   "1234567890",
		"transaction_id": "4200000001",
		"total_fee":      "10000",
		"time_end":       "20250601120000",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	fields[signature.SignKey] = signature.Sign(fields, testSecret)
	return encodeXML(fields)
}

func TestXMLRoundTrip(t *testing.T) {
	fields := map[string]string{"return_code": "SUCCESS", "total_fee": "100"}
	parsed, err := parseXML(encodeXML(fields))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed["return_code"] != "SUCCESS" || parsed["total_fee"] != "100" {
		t.Fatalf("unexpected fields: %v", parsed)
	}
}

func TestParseXMLRejectsGarbage(t *testing.T) {
	if _, err := parseXML([]byte("not xml at all")); err == nil {
		t.Fatalf("expected parse failure")
	}
	if _, err := parseXML([]byte("<other><a>1</a></other>")); !errors.Is(err, errNotXML) {
		t.Fatalf("expected errNotXML, got %v", err)
	}
}

func TestHandleNotificationValidSignature(t *testing.T) {
	adapter := testAdapter("")
	resp, err := adapter.HandleNotification(context.Background(), signedNotification(t, nil))
	if err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if resp.OrderRef != "1234567890" || resp.ChannelTxnID != "4200000001" {
		t.Fatalf("unexpected identifiers: %+v", resp)
	}
	if !resp.IsSuccessful || resp.Amount != 10000 {
		t.Fatalf("unexpected result: %+v", resp)
	}
	if resp.PaidAt == nil || resp.PaidAt.Format("20060102150405") != "20250601120000" {
		t.Fatalf("unexpected paid time: %v", resp.PaidAt)
	}
	if resp.ResponseData != ackSuccess {
		t.Fatalf("unexpected ack body: %s", resp.ResponseData)
	}
}

func TestHandleNotificationTamperedAmount(t *testing.T) {
	adapter := testAdapter("")
	payload := signedNotification(t, nil)
	// Re-encode with a tampered amount but the original signature.
	fields, _ := parseXML(payload)
	fields["total_fee"] = "99999"
	_, err := adapter.HandleNotification(context.Background(), encodeXML(fields))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestHandleNotificationMissingSignature(t *testing.T) {
	adapter := testAdapter("")
	fields := map[string]string{"return_code": "SUCCESS", "out_trade_no": "1"}
	_, err := adapter.HandleNotification(context.Background(), encodeXML(fields))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestCreatePaymentQRCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := parseXML(mustRead(t, r))
		if err != nil {
			t.Errorf("request body: %v", err)
		}
		if err := signature.Verify(body, testSecret); err != nil {
			t.Errorf("request must be signed: %v", err)
		}
		if body["trade_type"] != "NATIVE" {
			t.Errorf("expected NATIVE trade type, got %s", body["trade_type"])
		}
		w.Write(encodeXML(map[string]string{
			"return_code": "SUCCESS",
			"result_code": "SUCCESS",
			"prepay_id":   "wx20250601",
			"code_url":    "weixin://wxpay/bizpayurl?pr=abc",
		}))
	}))
	defer server.Close()

	adapter := testAdapter(server.URL)
	order := &domain.PaymentOrder{
		ID:       1234567890,
		Amount:   10000,
		Subject:  "demo order",
		Method:   domain.MethodQRCode,
		NotifyURL: "https://pay.example.com/notify/wechat",
	}
	resp, err := adapter.CreatePayment(context.Background(), order)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if resp.QRCode != "weixin://wxpay/bizpayurl?pr=abc" {
		t.Fatalf("unexpected qr code: %s", resp.QRCode)
	}
}

func TestCreatePaymentChannelRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encodeXML(map[string]string{
			"return_code": "FAIL",
			"return_msg":  "INVALID_REQUEST",
		}))
	}))
	defer server.Close()

	adapter := testAdapter(server.URL)
	_, err := adapter.CreatePayment(context.Background(), &domain.PaymentOrder{ID: 1, Method: domain.MethodQRCode})
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if adapterErr.Channel != domain.ChannelWechat || adapterErr.Operation != "create_payment" {
		t.Fatalf("error should be tagged with channel and operation: %+v", adapterErr)
	}
}

func TestQueryPaymentPaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encodeXML(map[string]string{
			"return_code":    "SUCCESS",
			"result_code":    "SUCCESS",
			"trade_state":    "SUCCESS",
			"transaction_id": "4200000042",
			"total_fee":      "10000",
			"time_end":       "20250601130000",
		}))
	}))
	defer server.Close()

	adapter := testAdapter(server.URL)
	resp, err := adapter.QueryPayment(context.Background(), &domain.PaymentOrder{ID: 42})
	if err != nil {
		t.Fatalf("query payment: %v", err)
	}
	if !resp.IsPaid || resp.ChannelTxnID != "4200000042" || resp.PaidAmount != 10000 {
		t.Fatalf("unexpected status response: %+v", resp)
	}
}

func mustRead(t *testing.T, r *http.Request) []byte {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}
