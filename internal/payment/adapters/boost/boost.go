// Package boost implements the Boost eWallet adapter (Malaysia). JSON
// wire format, amounts in sen, HMAC-signed requests and notifications.
package boost

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
	defaultEndpoint = "https://api.boost.example.my/v1"
	contentType     = "application/json"
	timeLayout      = "2006-01-02T15:04:05Z07:00"

	ack = `{"resultCode":"0","resultMsg":"ACKNOWLEDGED"}`
)

var errChannelRejected = errors.New("channel_rejected")

type Adapter struct {
	cfg    domain.AdapterConfig
	client *adapters.Client
	log    *zap.Logger
}

func New(cfg domain.AdapterConfig, log *zap.Logger) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Adapter{
		cfg:    cfg,
		client: adapters.NewClient(domain.ChannelBoost, cfg.Timeout),
		log:    log.Named("adapter.boost"),
	}
}

func (a *Adapter) Name() string { return "boost" }

func (a *Adapter) CreatePayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentResponse, error) {
	params := map[string]string{
		"merchantId":      a.cfg.MerchantNo,
		"merchantOrderNo": order.ID.String(),
		"amount":          strconv.FormatInt(order.Amount, 10),
		"currency":        string(order.Currency),
		"description":     order.Subject,
		"notifyUrl":       order.NotifyURL,
	}
	if order.Method == domain.MethodQRCode {
		params["paymentType"] = "QR"
	} else {
		params["paymentType"] = "APP"
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_payment", a.cfg.Endpoint+"/payments", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_payment", err)
	}

	resp := &domain.PaymentResponse{
		ChannelTxnID: fields["onlineRefNum"],
		RawResponse:  raw,
	}
	if order.Method == domain.MethodQRCode {
		resp.QRCode = fields["qrCode"]
	} else {
		resp.SDKParams = map[string]string{
			"onlineRefNum": fields["onlineRefNum"],
			"deeplink":     fields["deeplink"],
		}
	}
	return resp, nil
}

func (a *Adapter) QueryPayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentStatusResponse, error) {
	params := map[string]string{
		"merchantId":      a.cfg.MerchantNo,
		"merchantOrderNo": order.ID.String(),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_payment", a.cfg.Endpoint+"/payments/status", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_payment", err)
	}

	resp := &domain.PaymentStatusResponse{
		IsPaid:       fields["transactionStatus"] == "SUCCESS",
		ChannelTxnID: fields["onlineRefNum"],
		RawResponse:  raw,
	}
	if amount, err := strconv.ParseInt(fields["amount"], 10, 64); err == nil {
		resp.PaidAmount = amount
	}
	if paidAt, ok := parseTime(fields["transactionDateTime"]); ok {
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

	orderRef := fields["merchantOrderNo"]
	txnID := fields["onlineRefNum"]
	if orderRef == "" || txnID == "" {
		return nil, fmt.Errorf("%w: merchantOrderNo/onlineRefNum", domain.ErrInvalidPayload)
	}
	amount, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount", domain.ErrInvalidPayload)
	}

	resp := &domain.NotificationResponse{
		OrderRef:     orderRef,
		ChannelTxnID: txnID,
		IsSuccessful: fields["transactionStatus"] == "SUCCESS",
		Amount:       amount,
		RawData:      payload,
		ResponseData: ack,
	}
	if paidAt, ok := parseTime(fields["transactionDateTime"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) CreateRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundResponse, error) {
	params := map[string]string{
		"merchantId":       a.cfg.MerchantNo,
		"merchantOrderNo":  order.ID.String(),
		"merchantRefundNo": refund.ID.String(),
		"onlineRefNum":     order.ChannelTxnID,
		"amount":           strconv.FormatInt(refund.Amount, 10),
		"reason":           refund.Reason,
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_refund", a.cfg.Endpoint+"/refunds", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_refund", err)
	}

	status := fields["refundStatus"]
	return &domain.RefundResponse{
		ChannelRefundID: fields["refundRefNum"],
		IsAccepted:      status == "PENDING" || status == "SUCCESS",
		RawResponse:     raw,
	}, nil
}

func (a *Adapter) QueryRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundStatusResponse, error) {
	params := map[string]string{
		"merchantId":       a.cfg.MerchantNo,
		"merchantRefundNo": refund.ID.String(),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_refund", a.cfg.Endpoint+"/refunds/status", contentType, mustJSON(params))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_refund", err)
	}

	resp := &domain.RefundStatusResponse{
		IsSuccess:       fields["refundStatus"] == "SUCCESS",
		ChannelRefundID: fields["refundRefNum"],
		RawResponse:     raw,
	}
	if amount, err := strconv.ParseInt(fields["amount"], 10, 64); err == nil {
		resp.RefundedAmount = amount
	}
	if refundedAt, ok := parseTime(fields["refundDateTime"]); ok {
		resp.RefundedAt = &refundedAt
	}
	return resp, nil
}

func parseResponse(raw []byte) (map[string]string, error) {
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if code := fields["resultCode"]; code != "" && code != "0" {
		return nil, fmt.Errorf("%w: %s %s", errChannelRejected, code, fields["resultMsg"])
	}
	return fields, nil
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func mustJSON(fields map[string]string) []byte {
	raw, _ := json.Marshal(fields)
	return raw
}
