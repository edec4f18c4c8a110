// Package paypal implements the PayPal adapter: JSON wire format with a
// top-level HMAC signature plus a timestamp freshness check on inbound
// notifications.
package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/signature"
	"go.uber.org/zap"
)

const (
	defaultEndpoint = "https://api.paypal.example.com/v2"
	contentType     = "application/json"

	// Notifications older than this are rejected outright.
	timestampWindow = 5 * time.Minute

	ackSuccess = `{"status":"SUCCESS"}`
)

var errChannelRejected = errors.New("channel_rejected")

type Adapter struct {
	cfg    domain.AdapterConfig
	client *adapters.Client
	log    *zap.Logger
	now    func() time.Time
}

func New(cfg domain.AdapterConfig, log *zap.Logger) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Adapter{
		cfg:    cfg,
		client: adapters.NewClient(domain.ChannelPaypal, cfg.Timeout),
		log:    log.Named("adapter.paypal"),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return "paypal" }

func (a *Adapter) CreatePayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentResponse, error) {
	params := map[string]string{
		"merchant_id":  a.cfg.MerchantNo,
		"reference_id": order.ID.String(),
		"amount":       strconv.FormatInt(order.Amount, 10),
		"currency":     string(order.Currency),
		"description":  order.Subject,
		"notify_url":   order.NotifyURL,
		"return_url":   order.ReturnURL,
		"timestamp":    strconv.FormatInt(a.now().Unix(), 10),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_payment", a.cfg.Endpoint+"/checkout/orders", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_payment", err)
	}

	return &domain.PaymentResponse{
		ChannelTxnID: fields["id"],
		PaymentURL:   fields["approve_url"],
		RawResponse:  raw,
	}, nil
}

func (a *Adapter) QueryPayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentStatusResponse, error) {
	params := map[string]string{
		"merchant_id":  a.cfg.MerchantNo,
		"reference_id": order.ID.String(),
		"timestamp":    strconv.FormatInt(a.now().Unix(), 10),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_payment", a.cfg.Endpoint+"/checkout/orders/status", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_payment", err)
	}

	resp := &domain.PaymentStatusResponse{
		IsPaid:       fields["status"] == "COMPLETED",
		ChannelTxnID: fields["id"],
		RawResponse:  raw,
	}
	if amount, err := strconv.ParseInt(fields["amount"], 10, 64); err == nil {
		resp.PaidAmount = amount
	}
	if paidAt, ok := parseTime(fields["update_time"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) HandleNotification(_ context.Context, payload []byte) (*domain.NotificationResponse, error) {
	var fields map[string]string
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if err := signature.VerifyHMAC(fields, a.cfg.Secret); err != nil {
		return nil, domain.ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp", domain.ErrInvalidPayload)
	}
	if err := signature.VerifyTimestamp(ts, timestampWindow, a.now()); err != nil {
		return nil, domain.ErrInvalidSignature
	}

	orderRef := fields["reference_id"]
	txnID := fields["id"]
	if orderRef == "" || txnID == "" {
		return nil, fmt.Errorf("%w: reference_id/id", domain.ErrInvalidPayload)
	}
	amount, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount", domain.ErrInvalidPayload)
	}

	resp := &domain.NotificationResponse{
		OrderRef:     orderRef,
		ChannelTxnID: txnID,
		IsSuccessful: fields["status"] == "COMPLETED",
		Amount:       amount,
		RawData:      payload,
		ResponseData: ackSuccess,
	}
	if paidAt, ok := parseTime(fields["update_time"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) CreateRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundResponse, error) {
	params := map[string]string{
		"merchant_id":  a.cfg.MerchantNo,
		"reference_id": order.ID.String(),
		"refund_id":    refund.ID.String(),
		"amount":       strconv.FormatInt(refund.Amount, 10),
		"currency":     string(refund.Currency),
		"note":         refund.Reason,
		"timestamp":    strconv.FormatInt(a.now().Unix(), 10),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_refund", a.cfg.Endpoint+"/payments/refunds", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_refund", err)
	}

	status := fields["status"]
	return &domain.RefundResponse{
		ChannelRefundID: fields["id"],
		IsAccepted:      status == "PENDING" || status == "COMPLETED",
		RawResponse:     raw,
	}, nil
}

func (a *Adapter) QueryRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundStatusResponse, error) {
	params := map[string]string{
		"merchant_id": a.cfg.MerchantNo,
		"refund_id":   refund.ID.String(),
		"timestamp":   strconv.FormatInt(a.now().Unix(), 10),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_refund", a.cfg.Endpoint+"/payments/refunds/status", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_refund", err)
	}

	resp := &domain.RefundStatusResponse{
		IsSuccess:       fields["status"] == "COMPLETED",
		ChannelRefundID: fields["id"],
		RawResponse:     raw,
	}
	if amount, err := strconv.ParseInt(fields["amount"], 10, 64); err == nil {
		resp.RefundedAmount = amount
	}
	if refundedAt, ok := parseTime(fields["update_time"]); ok {
		resp.RefundedAt = &refundedAt
	}
	return resp, nil
}

func parseResponse(raw []byte) (map[string]string, error) {
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields["status"] == "ERROR" || fields["error"] != "" {
		return nil, fmt.Errorf("%w: %s %s", errChannelRejected, fields["error"], fields["error_description"])
	}
	return fields, nil
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func mustJSON(fields map[string]string) []byte {
	raw, _ := json.Marshal(fields)
	return raw
}
