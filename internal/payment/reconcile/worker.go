// Package reconcile runs the background loop that drives in-flight
// payments and refunds to a terminal state when webhooks go missing:
// stale processing orders are re-queried against their channel, expired
// ones are closed out, and open refunds are checked for settlement.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Svc     domain.Service
	Orders  domain.OrderRepository
	Refunds domain.RefundRepository
	Config  Config                  `optional:"true"`
	Metrics *metrics.PaymentMetrics `optional:"true"`
}

type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	svc     domain.Service
	orders  domain.OrderRepository
	refunds domain.RefundRepository
	cfg     Config
	metrics *metrics.PaymentMetrics
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:      p.DB,
		log:     p.Log.Named("payment.reconcile"),
		svc:     p.Svc,
		orders:  p.Orders,
		refunds: p.Refunds,
		cfg:     p.Config.withDefaults(),
		metrics: p.Metrics,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("reconcile run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) error {
	if w.db == nil || w.svc == nil {
		return errors.New("reconcile_worker_unavailable")
	}

	orderErr := w.reconcileOrders(ctx)
	refundErr := w.reconcileRefunds(ctx)
	return errors.Join(orderErr, refundErr)
}

// reconcileOrders claims a batch of stale in-flight orders and replays
// each through the query path, which settles or expires as needed. The
// claim transaction only collects ids; the per-order work runs in its
// own transaction so one bad order cannot roll back the batch.
func (w *Worker) reconcileOrders(ctx context.Context) error {
	staleSeconds := int(w.cfg.StaleAfter / time.Second)

	var ids []snowflake.ID
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := w.orders.LockProcessingBatch(ctx, tx, staleSeconds, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, order := range batch {
			ids = append(ids, order.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	w.metrics.AddReconcileClaimed(len(ids))

	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.svc.QueryPayment(ctx, id); err != nil {
			w.log.Warn("order reconcile failed",
				zap.String("order_id", id.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) reconcileRefunds(ctx context.Context) error {
	staleSeconds := int(w.cfg.StaleAfter / time.Second)

	refunds, err := w.refunds.ListOpenBatch(ctx, w.db, staleSeconds, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	var errs []error
	for _, refund := range refunds {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.svc.QueryRefund(ctx, refund.ID); err != nil {
			w.log.Warn("refund reconcile failed",
				zap.String("refund_id", refund.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
