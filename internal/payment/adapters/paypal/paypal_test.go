package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/money"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/signature"
	"go.uber.org/zap"
)

const testSecret = "paypal-test-secret"

// newStubServer decodes the JSON request, hands it to respond, and writes
// the returned fields back as JSON.
func newStubServer(t *testing.T, respond func(map[string]string) map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var fields map[string]string
		if err := json.Unmarshal(body, &fields); err != nil {
			t.Fatalf("request must be JSON: %v", err)
		}
		reply, _ := json.Marshal(respond(fields))
		w.Write(reply)
	}))
}

func newAdapter(now time.Time) *Adapter {
	adapter := New(domain.AdapterConfig{
		Channel:    domain.ChannelPaypal,
		MerchantNo: "M-001",
		Secret:     testSecret,
		Timeout:    2 * time.Second,
	}, zap.NewNop())
	adapter.now = func() time.Time { return now }
	return adapter
}

func signedNotification(t *testing.T, now time.Time, mutate func(map[string]string)) []byte {
	t.Helper()
	fields := map[string]string{
		"id":           "pp-txn-1",
		"reference_id": snowflake.ID(9001).String(),
		"status":       "COMPLETED",
		"amount":       "2500",
		"timestamp":    strconv.FormatInt(now.Unix(), 10),
		"update_time":  now.Format(time.RFC3339),
	}
	fields[signature.SignKey] = signature.SignHMAC(fields, testSecret)
	if mutate != nil {
		mutate(fields)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func TestHandleNotificationValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)

	resp, err := adapter.HandleNotification(context.Background(), signedNotification(t, now, nil))
	if err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if resp.OrderRef != "9001" || resp.ChannelTxnID != "pp-txn-1" {
		t.Fatalf("identifiers not extracted: %+v", resp)
	}
	if !resp.IsSuccessful || resp.Amount != 2500 {
		t.Fatalf("expected settled 2500: %+v", resp)
	}
	if resp.ResponseData != ackSuccess {
		t.Fatalf("expected ack %q, got %q", ackSuccess, resp.ResponseData)
	}
}

func TestHandleNotificationRejectsStaleTimestamp(t *testing.T) {
	signedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	adapter := newAdapter(signedAt.Add(timestampWindow + time.Minute))

	if _, err := adapter.HandleNotification(context.Background(), signedNotification(t, signedAt, nil)); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected stale notification rejected, got %v", err)
	}
}

func TestHandleNotificationRejectsTamperedStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)

	payload := signedNotification(t, now, func(fields map[string]string) {
		fields["amount"] = "999999"
	})
	if _, err := adapter.HandleNotification(context.Background(), payload); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandleNotificationRejectsGarbage(t *testing.T) {
	adapter := newAdapter(time.Now())
	if _, err := adapter.HandleNotification(context.Background(), []byte("not-json")); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestFailedStatusStillAcknowledged(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)

	fields := map[string]string{
		"id":           "pp-txn-2",
		"reference_id": "9002",
		"status":       "DENIED",
		"amount":       "100",
		"timestamp":    strconv.FormatInt(now.Unix(), 10),
	}
	fields[signature.SignKey] = signature.SignHMAC(fields, testSecret)
	payload, _ := json.Marshal(fields)

	resp, err := adapter.HandleNotification(context.Background(), payload)
	if err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if resp.IsSuccessful {
		t.Fatalf("denied payment must not be successful")
	}
	if resp.ResponseData != ackSuccess {
		t.Fatalf("failure notifications are still acknowledged")
	}
}

func TestCreatePayment(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	order := &domain.PaymentOrder{
		ID:       snowflake.ID(9001),
		Channel:  domain.ChannelPaypal,
		Method:   domain.MethodWeb,
		Amount:   2500,
		Currency: money.USD,
		Subject:  "Test order",
	}

	srv := newStubServer(t, func(fields map[string]string) map[string]string {
		if err := signature.VerifyHMAC(fields, testSecret); err != nil {
			t.Fatalf("request must be signed: %v", err)
		}
		if fields["reference_id"] != "9001" || fields["amount"] != "2500" {
			t.Fatalf("unexpected request: %+v", fields)
		}
		return map[string]string{
			"id":          "pp-txn-1",
			"status":      "CREATED",
			"approve_url": "https://paypal.example.com/approve/pp-txn-1",
		}
	})
	defer srv.Close()

	adapter := newAdapter(now)
	adapter.cfg.Endpoint = srv.URL

	resp, err := adapter.CreatePayment(context.Background(), order)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if resp.PaymentURL != "https://paypal.example.com/approve/pp-txn-1" {
		t.Fatalf("expected approve url, got %q", resp.PaymentURL)
	}
	if resp.ChannelTxnID != "pp-txn-1" {
		t.Fatalf("expected channel txn id, got %q", resp.ChannelTxnID)
	}
}
