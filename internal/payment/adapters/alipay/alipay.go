// Package alipay implements the Alipay adapter: form-encoded wire format
// with a canonical-parameter HMAC-SHA256 signature. The production RSA2
// scheme is channel-specific and pluggable behind the same canonical
// string construction.
package alipay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/signature"
	"go.uber.org/zap"
)

const (
	defaultEndpoint = "https://openapi.alipay.com/gateway.do"
	timeLayout      = "2006-01-02 15:04:05"

	// Alipay expects the literal string "success" to stop redelivery.
	ackSuccess = "success"
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
		client: adapters.NewClient(domain.ChannelAlipay, cfg.Timeout),
		log:    log.Named("adapter.alipay"),
	}
}

func (a *Adapter) Name() string { return "alipay" }

func (a *Adapter) CreatePayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentResponse, error) {
	params := map[string]string{
		"app_id":       a.cfg.AppID,
		"method":       createMethod(order.Method),
		"charset":      "utf-8",
		"timestamp":    time.Now().UTC().Format(timeLayout),
		"out_trade_no": order.ID.String(),
		"total_amount": formatAmount(order.Amount),
		"subject":      order.Subject,
		"notify_url":   order.NotifyURL,
	}
	if order.ReturnURL != "" {
		params["return_url"] = order.ReturnURL
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	switch order.Method {
	case domain.MethodWeb, domain.MethodH5:
		// Redirect flows hand the payer a signed gateway URL; no upstream
		// call happens until the payer follows it.
		return &domain.PaymentResponse{
			PaymentURL:  a.cfg.Endpoint + "?" + encodeForm(params),
			RawResponse: mustJSON(params),
		}, nil
	}

	raw, err := a.client.Post(ctx, "create_payment", a.cfg.Endpoint, "application/x-www-form-urlencoded", []byte(encodeForm(params)))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_payment", err)
	}

	return &domain.PaymentResponse{
		ChannelTxnID: fields["trade_no"],
		QRCode:       fields["qr_code"],
		RawResponse:  mustJSON(fields),
	}, nil
}

func (a *Adapter) QueryPayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentStatusResponse, error) {
	params := map[string]string{
		"app_id":       a.cfg.AppID,
		"method":       "alipay.trade.query",
		"timestamp":    time.Now().UTC().Format(timeLayout),
		"out_trade_no": order.ID.String(),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_payment", a.cfg.Endpoint, "application/x-www-form-urlencoded", []byte(encodeForm(params)))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_payment", err)
	}

	resp := &domain.PaymentStatusResponse{
		IsPaid:       fields["trade_status"] == "TRADE_SUCCESS" || fields["trade_status"] == "TRADE_FINISHED",
		ChannelTxnID: fields["trade_no"],
		RawResponse:  mustJSON(fields),
	}
	if amount, err := parseAmount(fields["total_amount"]); err == nil {
		resp.PaidAmount = amount
	}
	if paidAt, ok := parseTime(fields["send_pay_date"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) HandleNotification(_ context.Context, payload []byte) (*domain.NotificationResponse, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	fields := make(map[string]string, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}

	if err := signature.VerifyHMAC(fields, a.cfg.Secret); err != nil {
		return nil, domain.ErrInvalidSignature
	}

	orderRef := fields["out_trade_no"]
	txnID := fields["trade_no"]
	if orderRef == "" || txnID == "" {
		return nil, fmt.Errorf("%w: out_trade_no/trade_no", domain.ErrInvalidPayload)
	}
	amount, err := parseAmount(fields["total_amount"])
	if err != nil {
		return nil, fmt.Errorf("%w: total_amount", domain.ErrInvalidPayload)
	}

	status := fields["trade_status"]
	resp := &domain.NotificationResponse{
		OrderRef:     orderRef,
		ChannelTxnID: txnID,
		IsSuccessful: status == "TRADE_SUCCESS" || status == "TRADE_FINISHED",
		Amount:       amount,
		RawData:      mustJSON(fields),
		ResponseData: ackSuccess,
	}
	if paidAt, ok := parseTime(fields["gmt_payment"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) CreateRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundResponse, error) {
	params := map[string]string{
		"app_id":         a.cfg.AppID,
		"method":         "alipay.trade.refund",
		"timestamp":      time.Now().UTC().Format(timeLayout),
		"out_trade_no":   order.ID.String(),
		"out_request_no": refund.ID.String(),
		"refund_amount":  formatAmount(refund.Amount),
		"refund_reason":  refund.Reason,
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_refund", a.cfg.Endpoint, "application/x-www-form-urlencoded", []byte(encodeForm(params)))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_refund", err)
	}

	return &domain.RefundResponse{
		ChannelRefundID: fields["trade_no"],
		IsAccepted:      fields["fund_change"] == "Y" || fields["code"] == "10000",
		RawResponse:     mustJSON(fields),
	}, nil
}

func (a *Adapter) QueryRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundStatusResponse, error) {
	params := map[string]string{
		"app_id":         a.cfg.AppID,
		"method":         "alipay.trade.fastpay.refund.query",
		"timestamp":      time.Now().UTC().Format(timeLayout),
		"out_trade_no":   order.ID.String(),
		"out_request_no": refund.ID.String(),
	}
	params[signature.SignKey] = signature.SignHMAC(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_refund", a.cfg.Endpoint, "application/x-www-form-urlencoded", []byte(encodeForm(params)))
	if err != nil {
		return nil, err
	}
	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_refund", err)
	}

	resp := &domain.RefundStatusResponse{
		IsSuccess:       fields["refund_status"] == "REFUND_SUCCESS",
		ChannelRefundID: fields["trade_no"],
		RawResponse:     mustJSON(fields),
	}
	if amount, err := parseAmount(fields["refund_amount"]); err == nil {
		resp.RefundedAmount = amount
	}
	if refundedAt, ok := parseTime(fields["gmt_refund_pay"]); ok {
		resp.RefundedAt = &refundedAt
	}
	return resp, nil
}

func parseResponse(raw []byte) (map[string]string, error) {
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if code := fields["code"]; code != "" && code != "10000" {
		return nil, fmt.Errorf("%w: %s %s", errChannelRejected, code, fields["sub_msg"])
	}
	return fields, nil
}

func createMethod(method domain.Method) string {
	switch method {
	case domain.MethodWeb:
		return "alipay.trade.page.pay"
	case domain.MethodH5:
		return "alipay.trade.wap.pay"
	case domain.MethodApp:
		return "alipay.trade.app.pay"
	default:
		return "alipay.trade.precreate"
	}
}

func encodeForm(params map[string]string) string {
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return values.Encode()
}

// formatAmount renders minor units as the decimal string Alipay expects.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// parseAmount converts a decimal amount string back into minor units.
func parseAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty_amount")
	}
	whole, frac, _ := strings.Cut(value, ".")
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if frac == "" {
		return major * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	return major*100 + minor, nil
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func mustJSON(fields map[string]string) []byte {
	raw, _ := json.Marshal(fields)
	return raw
}
