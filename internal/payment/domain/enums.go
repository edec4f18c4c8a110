package domain

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/payflow/internal/money"
)

// Channel identifies an external payment provider.
type Channel string

const (
	ChannelWechat   Channel = "wechat"
	ChannelAlipay   Channel = "alipay"
	ChannelUnionpay Channel = "unionpay"
	ChannelPaypal   Channel = "paypal"
	ChannelStripe   Channel = "stripe"
	ChannelBoost    Channel = "boost"
	ChannelGrabpay  Channel = "grabpay"
	ChannelTouchNGo Channel = "touchngo"
	ChannelPaynow   Channel = "paynow"
)

// Method is how the payer reaches the channel.
type Method string

const (
	MethodWeb         Method = "web"
	MethodH5          Method = "h5"
	MethodApp         Method = "app"
	MethodMiniProgram Method = "mini_program"
	MethodQRCode      Method = "qr_code"
	MethodOffline     Method = "offline"
)

// OrderStatus is the payment order lifecycle state.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusSuccess    OrderStatus = "success"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusExpired    OrderStatus = "expired"
	OrderStatusClosed     OrderStatus = "closed"
)

// IsTerminal reports whether no further payment event can move the order.
// Success is terminal for payment purposes; refunds are tracked on the
// refund records and never rewrite the order's settled status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusSuccess, OrderStatusFailed, OrderStatusExpired, OrderStatusClosed:
		return true
	}
	return false
}

// TransactionStatus tracks an individual channel attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccess    TransactionStatus = "success"
	TransactionStatusFailed     TransactionStatus = "failed"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// TransactionType distinguishes forward payments from reversals.
type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
)

// RefundStatus tracks a refund request through the channel.
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSuccess    RefundStatus = "success"
	RefundStatusFailed     RefundStatus = "failed"
)

func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusSuccess || s == RefundStatusFailed
}

// ChannelInfo is the static capability record surfaced to merchants.
type ChannelInfo struct {
	Channel    Channel          `json:"channel"`
	Name       string           `json:"name"`
	Region     string           `json:"region"`
	Currencies []money.Currency `json:"currencies"`
	Methods    []Method         `json:"methods"`
}

// ChannelTable lists every channel the platform can route to. Whether a
// given deployment accepts a channel still depends on adapter registration.
var ChannelTable = []ChannelInfo{
	{
		Channel:    ChannelWechat,
		Name:       "WeChat Pay",
		Region:     "CN",
		Currencies: []money.Currency{money.CNY},
		Methods:    []Method{MethodWeb, MethodH5, MethodApp, MethodMiniProgram, MethodQRCode},
	},
	{
		Channel:    ChannelAlipay,
		Name:       "Alipay",
		Region:     "CN",
		Currencies: []money.Currency{money.CNY, money.USD},
		Methods:    []Method{MethodWeb, MethodH5, MethodApp, MethodQRCode},
	},
	{
		Channel:    ChannelUnionpay,
		Name:       "UnionPay",
		Region:     "CN",
		Currencies: []money.Currency{money.CNY},
		Methods:    []Method{MethodWeb, MethodApp},
	},
	{
		Channel:    ChannelPaypal,
		Name:       "PayPal",
		Region:     "GLOBAL",
		Currencies: []money.Currency{money.USD, money.EUR, money.GBP, money.SGD, money.HKD},
		Methods:    []Method{MethodWeb, MethodApp},
	},
	{
		Channel:    ChannelStripe,
		Name:       "Stripe",
		Region:     "GLOBAL",
		Currencies: []money.Currency{money.USD, money.EUR, money.GBP, money.SGD},
		Methods:    []Method{MethodWeb, MethodApp},
	},
	{
		Channel:    ChannelBoost,
		Name:       "Boost",
		Region:     "MY",
		Currencies: []money.Currency{money.MYR},
		Methods:    []Method{MethodApp, MethodQRCode},
	},
	{
		Channel:    ChannelGrabpay,
		Name:       "GrabPay",
		Region:     "SEA",
		Currencies: []money.Currency{money.MYR, money.SGD},
		Methods:    []Method{MethodApp, MethodQRCode},
	},
	{
		Channel:    ChannelTouchNGo,
		Name:       "Touch 'n Go eWallet",
		Region:     "MY",
		Currencies: []money.Currency{money.MYR},
		Methods:    []Method{MethodApp, MethodQRCode},
	},
	{
		Channel:    ChannelPaynow,
		Name:       "PayNow",
		Region:     "SG",
		Currencies: []money.Currency{money.SGD},
		Methods:    []Method{MethodQRCode},
	},
}

var channelIndex = func() map[Channel]ChannelInfo {
	index := make(map[Channel]ChannelInfo, len(ChannelTable))
	for _, info := range ChannelTable {
		index[info.Channel] = info
	}
	return index
}()

// ParseChannel normalizes and validates a channel code.
func ParseChannel(code string) (Channel, error) {
	channel := Channel(strings.ToLower(strings.TrimSpace(code)))
	if _, ok := channelIndex[channel]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, code)
	}
	return channel, nil
}

// ChannelSupports reports whether a channel settles the given currency.
func ChannelSupports(channel Channel, currency money.Currency) bool {
	info, ok := channelIndex[channel]
	if !ok {
		return false
	}
	for _, c := range info.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}
