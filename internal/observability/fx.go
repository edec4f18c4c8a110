// Package observability wires logging, tracing and metrics into one fx
// module configured from the environment.
package observability

import (
	"os"
	"strconv"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/observability/logger"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "payflow"

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		ServiceName: serviceName,
	})
}

func newTracingConfig(cfg config.Config) tracing.Config {
	ratio, _ := strconv.ParseFloat(os.Getenv("OTEL_SAMPLING_RATIO"), 64)
	return tracing.Config{
		Enabled:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		ServiceName:      serviceName,
		Environment:      cfg.Env,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExporterProtocol: os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
		SamplingRatio:    ratio,
	}
}

func newMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:     true,
		ServiceName: serviceName,
		Environment: cfg.Env,
	}
}

func newPaymentMetrics(cfg metrics.Config) *metrics.PaymentMetrics {
	return metrics.PaymentWithConfig(cfg)
}

var Module = fx.Module("observability",
	fx.Provide(newLogger),
	fx.Provide(newTracingConfig),
	fx.Provide(newMetricsConfig),
	fx.Provide(tracing.NewProvider),
	fx.Provide(metrics.NewMeterProvider),
	fx.Provide(metrics.NewHTTPMetrics),
	fx.Provide(newPaymentMetrics),
)
