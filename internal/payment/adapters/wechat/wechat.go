// Package wechat implements the WeChat Pay adapter: flat XML wire format
// with a canonical-parameter SHA-256 signature.
package wechat

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
	defaultEndpoint = "https://api.mch.weixin.qq.com"
	timeLayout      = "20060102150405"

	ackSuccess = `<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>`
)

var (
	errChannelRejected = errors.New("channel_rejected")
	errMissingField    = errors.New("missing_field")
)

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
		client: adapters.NewClient(domain.ChannelWechat, cfg.Timeout),
		log:    log.Named("adapter.wechat"),
	}
}

func (a *Adapter) Name() string { return "wechat_pay" }

func (a *Adapter) CreatePayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentResponse, error) {
	params := map[string]string{
		"appid":        a.cfg.AppID,
		"mch_id":       a.cfg.MerchantNo,
		"nonce_str":    signature.Nonce(32),
		"body":         order.Subject,
		"out_trade_no": order.ID.String(),
		"total_fee":    strconv.FormatInt(order.Amount, 10),
		"fee_type":     string(order.Currency),
		"notify_url":   order.NotifyURL,
		"trade_type":   tradeType(order.Method),
	}
	if order.ClientIP != "" {
		params["spbill_create_ip"] = order.ClientIP
	}
	params[signature.SignKey] = signature.Sign(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_payment", a.cfg.Endpoint+"/pay/unifiedorder", "text/xml", encodeXML(params))
	if err != nil {
		return nil, err
	}

	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_payment", err)
	}

	resp := &domain.PaymentResponse{
		RawResponse: mustJSON(fields),
	}
	switch order.Method {
	case domain.MethodQRCode:
		resp.QRCode = fields["code_url"]
	case domain.MethodH5:
		resp.PaymentURL = fields["mweb_url"]
	default:
		resp.SDKParams = map[string]string{
			"appid":     a.cfg.AppID,
			"partnerid": a.cfg.MerchantNo,
			"prepayid":  fields["prepay_id"],
			"noncestr":  signature.Nonce(32),
			"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		}
	}
	return resp, nil
}

func (a *Adapter) QueryPayment(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentStatusResponse, error) {
	params := map[string]string{
		"appid":        a.cfg.AppID,
		"mch_id":       a.cfg.MerchantNo,
		"out_trade_no": order.ID.String(),
		"nonce_str":    signature.Nonce(32),
	}
	params[signature.SignKey] = signature.Sign(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_payment", a.cfg.Endpoint+"/pay/orderquery", "text/xml", encodeXML(params))
	if err != nil {
		return nil, err
	}

	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_payment", err)
	}

	resp := &domain.PaymentStatusResponse{
		IsPaid:       fields["trade_state"] == "SUCCESS",
		ChannelTxnID: fields["transaction_id"],
		RawResponse:  mustJSON(fields),
	}
	if fee := fields["total_fee"]; fee != "" {
		resp.PaidAmount, _ = strconv.ParseInt(fee, 10, 64)
	}
	if paidAt, ok := parseTime(fields["time_end"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) HandleNotification(_ context.Context, payload []byte) (*domain.NotificationResponse, error) {
	fields, err := parseXML(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if err := signature.Verify(fields, a.cfg.Secret); err != nil {
		return nil, domain.ErrInvalidSignature
	}
	if fields["return_code"] != "SUCCESS" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPayload, fields["return_msg"])
	}

	orderRef := fields["out_trade_no"]
	txnID := fields["transaction_id"]
	if orderRef == "" || txnID == "" {
		return nil, fmt.Errorf("%w: out_trade_no/transaction_id", errMissingField)
	}
	amount, err := strconv.ParseInt(fields["total_fee"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: total_fee", errMissingField)
	}

	resp := &domain.NotificationResponse{
		OrderRef:     orderRef,
		ChannelTxnID: txnID,
		IsSuccessful: fields["result_code"] == "SUCCESS",
		Amount:       amount,
		RawData:      mustJSON(fields),
		ResponseData: ackSuccess,
	}
	if paidAt, ok := parseTime(fields["time_end"]); ok {
		resp.PaidAt = &paidAt
	}
	return resp, nil
}

func (a *Adapter) CreateRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundResponse, error) {
	params := map[string]string{
		"appid":         a.cfg.AppID,
		"mch_id":        a.cfg.MerchantNo,
		"nonce_str":     signature.Nonce(32),
		"out_trade_no":  order.ID.String(),
		"out_refund_no": refund.ID.String(),
		"total_fee":     strconv.FormatInt(order.Amount, 10),
		"refund_fee":    strconv.FormatInt(refund.Amount, 10),
	}
	params[signature.SignKey] = signature.Sign(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "create_refund", a.cfg.Endpoint+"/secapi/pay/refund", "text/xml", encodeXML(params))
	if err != nil {
		return nil, err
	}

	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("create_refund", err)
	}

	return &domain.RefundResponse{
		ChannelRefundID: fields["refund_id"],
		IsAccepted:      true,
		RawResponse:     mustJSON(fields),
	}, nil
}

func (a *Adapter) QueryRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder) (*domain.RefundStatusResponse, error) {
	params := map[string]string{
		"appid":         a.cfg.AppID,
		"mch_id":        a.cfg.MerchantNo,
		"nonce_str":     signature.Nonce(32),
		"out_refund_no": refund.ID.String(),
	}
	params[signature.SignKey] = signature.Sign(params, a.cfg.Secret)

	raw, err := a.client.Post(ctx, "query_refund", a.cfg.Endpoint+"/pay/refundquery", "text/xml", encodeXML(params))
	if err != nil {
		return nil, err
	}

	fields, err := parseResponse(raw)
	if err != nil {
		return nil, a.client.Fail("query_refund", err)
	}

	resp := &domain.RefundStatusResponse{
		IsSuccess:       fields["refund_status_0"] == "SUCCESS",
		ChannelRefundID: fields["refund_id_0"],
		RawResponse:     mustJSON(fields),
	}
	if fee := fields["refund_fee_0"]; fee != "" {
		resp.RefundedAmount, _ = strconv.ParseInt(fee, 10, 64)
	}
	if refundedAt, ok := parseTime(fields["refund_success_time_0"]); ok {
		resp.RefundedAt = &refundedAt
	}
	return resp, nil
}

// parseResponse decodes a channel reply and lifts protocol failures into
// errors.
func parseResponse(raw []byte) (map[string]string, error) {
	fields, err := parseXML(raw)
	if err != nil {
		return nil, err
	}
	if fields["return_code"] != "SUCCESS" || fields["result_code"] != "SUCCESS" {
		msg := fields["return_msg"]
		if msg == "" {
			msg = fields["err_code_des"]
		}
		return nil, fmt.Errorf("%w: %s", errChannelRejected, msg)
	}
	return fields, nil
}

func tradeType(method domain.Method) string {
	switch method {
	case domain.MethodH5:
		return "MWEB"
	case domain.MethodApp:
		return "APP"
	case domain.MethodMiniProgram:
		return "JSAPI"
	default:
		return "NATIVE"
	}
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
