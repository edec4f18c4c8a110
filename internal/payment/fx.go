// Package payment wires the payment engine: repositories, channel
// adapters, the orchestration service, and the event outbox.
package payment

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/events"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/adapters/alipay"
	"github.com/smallbiznis/payflow/internal/payment/adapters/boost"
	"github.com/smallbiznis/payflow/internal/payment/adapters/paypal"
	"github.com/smallbiznis/payflow/internal/payment/adapters/wechat"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	"github.com/smallbiznis/payflow/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.NewOrderRepository),
	fx.Provide(repository.NewTransactionRepository),
	fx.Provide(repository.NewRefundRepository),
	fx.Provide(repository.NewEventRepository),
	fx.Provide(newOutbox),
	fx.Provide(newRegistry),
	fx.Provide(service.NewService),
)

func newOutbox(db *gorm.DB, genID *snowflake.Node) *events.Outbox {
	return events.NewOutbox(db, genID)
}

// newRegistry builds one adapter per channel that has credentials
// configured. Channels without credentials simply stay unregistered and
// surface as unsupported_channel at request time.
func newRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	registry := adapters.NewRegistry()

	if creds := cfg.Wechat; creds.Secret != "" {
		registry.Register(domain.ChannelWechat, wechat.New(adapterConfig(domain.ChannelWechat, creds, cfg), log))
	}
	if creds := cfg.Alipay; creds.Secret != "" {
		registry.Register(domain.ChannelAlipay, alipay.New(adapterConfig(domain.ChannelAlipay, creds, cfg), log))
	}
	if creds := cfg.Paypal; creds.Secret != "" {
		registry.Register(domain.ChannelPaypal, paypal.New(adapterConfig(domain.ChannelPaypal, creds, cfg), log))
	}
	if creds := cfg.Boost; creds.Secret != "" {
		registry.Register(domain.ChannelBoost, boost.New(adapterConfig(domain.ChannelBoost, creds, cfg), log))
	}

	return registry
}

func adapterConfig(channel domain.Channel, creds config.ChannelCredentials, cfg config.Config) domain.AdapterConfig {
	return domain.AdapterConfig{
		Channel:    channel,
		MerchantNo: creds.MerchantNo,
		AppID:      creds.AppID,
		Secret:     creds.Secret,
		Endpoint:   creds.Endpoint,
		Timeout:    cfg.ChannelTimeout,
	}
}
