package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payflow/internal/audit/domain"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/events"
	"github.com/smallbiznis/payflow/internal/money"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Cfg      config.Config
	Clock    clock.Clock
	Orders   domain.OrderRepository
	Txns     domain.TransactionRepository
	Refunds  domain.RefundRepository
	Events   domain.EventRepository
	Adapters *adapters.Registry
	Outbox   *events.Outbox
	AuditSvc auditdomain.Service
	Metrics  *metrics.PaymentMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	orderTTL time.Duration
	orders   domain.OrderRepository
	txns     domain.TransactionRepository
	refunds  domain.RefundRepository
	events   domain.EventRepository
	adapters *adapters.Registry
	outbox   *events.Outbox
	auditSvc auditdomain.Service
	metrics  *metrics.PaymentMetrics
	tracer   trace.Tracer
}

func NewService(p Params) domain.Service {
	ttl := p.Cfg.OrderTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		orderTTL: ttl,
		orders:   p.Orders,
		txns:     p.Txns,
		refunds:  p.Refunds,
		events:   p.Events,
		adapters: p.Adapters,
		outbox:   p.Outbox,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("payflow/payment"),
	}
}

// CreatePayment validates the request, persists the order, asks the
// channel to open a payment intent, and records the handoff. A channel
// failure leaves the order in created so the merchant can retry.
func (s *Service) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "payment.create",
		trace.WithAttributes(attribute.String("channel", string(req.Channel))))
	defer span.End()

	if err := s.validateCreate(&req); err != nil {
		return nil, err
	}

	adapter, err := s.adapters.Resolve(req.MerchantID, req.Channel)
	if err != nil {
		return nil, err
	}

	if existing, err := s.orders.FindByMerchantOrderID(ctx, s.db, req.MerchantID, req.MerchantOrderID); err == nil {
		// Same merchant reference replayed: hand back the existing order
		// instead of double-charging.
		if existing.Amount != req.Amount || existing.Channel != req.Channel {
			return nil, domain.ErrDuplicateOrder
		}
		return &domain.CreatePaymentResponse{OrderID: existing.ID, Status: existing.Status}, nil
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.orderTTL)
	order := &domain.PaymentOrder{
		ID:              s.genID.Generate(),
		MerchantID:      req.MerchantID,
		MerchantOrderID: req.MerchantOrderID,
		Channel:         req.Channel,
		Method:          req.Method,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          domain.OrderStatusCreated,
		Subject:         req.Subject,
		Description:     req.Description,
		NotifyURL:       req.NotifyURL,
		ReturnURL:       req.ReturnURL,
		ClientIP:        req.ClientIP,
		Metadata:        datatypes.JSONMap(req.Metadata),
		ExpiresAt:       &expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.Insert(ctx, tx, order); err != nil {
			return err
		}
		return s.events.Insert(ctx, tx, &domain.EventRecord{
			ID:         s.genID.Generate(),
			OrderID:    order.ID,
			EventType:  domain.EventOrderCreated,
			FromStatus: domain.OrderStatusCreated,
			ToStatus:   domain.OrderStatusCreated,
			Amount:     order.Amount,
			CreatedAt:  now,
		})
	}); err != nil {
		return nil, err
	}
	s.metrics.IncOrderCreated(string(order.Channel))

	channelResp, err := adapter.CreatePayment(ctx, order)
	if err != nil {
		s.log.Warn("channel create failed",
			zap.String("order_id", order.ID.String()),
			zap.String("channel", string(order.Channel)),
			zap.Error(err),
		)
		// Order stays in created; reconcile or a retry picks it up.
		return nil, err
	}

	if err := s.recordInitiation(ctx, order, channelResp); err != nil {
		return nil, err
	}

	s.writeAudit(ctx, order.MerchantID, "payment.created", order.ID.String(), map[string]any{
		"channel":           string(order.Channel),
		"amount":            order.Amount,
		"currency":          string(order.Currency),
		"merchant_order_id": order.MerchantOrderID,
	})

	return &domain.CreatePaymentResponse{
		OrderID:    order.ID,
		Status:     order.Status,
		PaymentURL: channelResp.PaymentURL,
		QRCode:     channelResp.QRCode,
		HTMLForm:   channelResp.HTMLForm,
		SDKParams:  channelResp.SDKParams,
	}, nil
}

func (s *Service) validateCreate(req *domain.CreatePaymentRequest) error {
	if req.MerchantID == 0 || strings.TrimSpace(req.MerchantOrderID) == "" {
		return domain.ErrInvalidRequest
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if _, err := money.ParseCurrency(string(req.Currency)); err != nil {
		return domain.ErrInvalidCurrency
	}
	if _, err := domain.ParseChannel(string(req.Channel)); err != nil {
		return err
	}
	if !domain.ChannelSupports(req.Channel, req.Currency) {
		return domain.ErrInvalidCurrency
	}
	if req.Method == "" {
		req.Method = domain.MethodWeb
	}
	if strings.TrimSpace(req.Subject) == "" {
		return domain.ErrInvalidRequest
	}
	return nil
}

func (s *Service) recordInitiation(ctx context.Context, order *domain.PaymentOrder, channelResp *domain.PaymentResponse) error {
	now := s.clock.Now()
	next, err := domain.ApplyEvent(order.Status, domain.Event{Type: domain.EventPaymentInitiated, OccurredAt: now})
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from := order.Status
		order.UpdateStatus(next, now)
		if channelResp.ChannelTxnID != "" {
			order.ChannelTxnID = channelResp.ChannelTxnID
		}
		if err := s.orders.Update(ctx, tx, order); err != nil {
			return err
		}

		txn := &domain.Transaction{
			ID:              s.genID.Generate(),
			OrderID:         order.ID,
			Type:            domain.TransactionTypePayment,
			Channel:         order.Channel,
			Amount:          order.Amount,
			Currency:        order.Currency,
			Status:          domain.TransactionStatusPending,
			ChannelTxnID:    channelResp.ChannelTxnID,
			GatewayResponse: channelResp.RawResponse,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.txns.Insert(ctx, tx, txn); err != nil {
			return err
		}

		return s.events.Insert(ctx, tx, &domain.EventRecord{
			ID:           s.genID.Generate(),
			OrderID:      order.ID,
			EventType:    domain.EventPaymentInitiated,
			ChannelTxnID: channelResp.ChannelTxnID,
			FromStatus:   from,
			ToStatus:     next,
			Amount:       order.Amount,
			CreatedAt:    now,
		})
	})
}

// QueryPayment returns the order, reconciling in-flight ones against the
// channel first so a missed webhook does not leave the merchant blind.
func (s *Service) QueryPayment(ctx context.Context, orderID snowflake.ID) (*domain.PaymentOrder, error) {
	ctx, span := s.tracer.Start(ctx, "payment.query")
	defer span.End()

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsProcessing() && order.Status != domain.OrderStatusCreated {
		return order, nil
	}

	now := s.clock.Now()
	if order.IsExpired(now) {
		if err := s.expireOrder(ctx, order, now); err != nil {
			return nil, err
		}
		return order, nil
	}
	if !order.IsProcessing() {
		return order, nil
	}

	adapter, err := s.adapters.Resolve(order.MerchantID, order.Channel)
	if err != nil {
		return order, nil
	}
	status, err := adapter.QueryPayment(ctx, order)
	if err != nil {
		// Channel unknown: report our own view rather than failing the read.
		s.log.Warn("channel query failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return order, nil
	}
	if status.IsPaid {
		paidAt := now
		if status.PaidAt != nil {
			paidAt = *status.PaidAt
		}
		if err := s.settleOrder(ctx, order, status.ChannelTxnID, status.PaidAmount, paidAt, status.RawResponse); err != nil && !errors.Is(err, errReplay) {
			return nil, err
		}
	}
	return order, nil
}

// ListOrderEvents returns the order's append-only event log, oldest first.
// The order is returned alongside so the caller can check ownership.
func (s *Service) ListOrderEvents(ctx context.Context, orderID snowflake.ID) (*domain.PaymentOrder, []domain.EventRecord, error) {
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.events.ListByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, records, nil
}

// errReplay marks a settlement that was already recorded. Callers treat it
// as success.
var errReplay = errors.New("event_replayed")

// settleOrder applies payment_completed inside one transaction: row lock,
// event dedup, order update, transaction update, outbox publish.
func (s *Service) settleOrder(ctx context.Context, order *domain.PaymentOrder, channelTxnID string, paidAmount int64, paidAt time.Time, raw datatypes.JSON) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.FindByIDForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.IsPaid() {
			*order = *locked
			return errReplay
		}

		from := locked.Status
		next, err := domain.ApplyEvent(locked.Status, domain.Event{
			Type:         domain.EventPaymentCompleted,
			ChannelTxnID: channelTxnID,
			Amount:       paidAmount,
			OccurredAt:   paidAt,
		})
		if err != nil {
			return err
		}

		inserted, err := s.events.InsertDedup(ctx, tx, &domain.EventRecord{
			ID:           s.genID.Generate(),
			OrderID:      locked.ID,
			EventType:    domain.EventPaymentCompleted,
			ChannelTxnID: channelTxnID,
			FromStatus:   from,
			ToStatus:     next,
			Amount:       paidAmount,
			Payload:      raw,
			CreatedAt:    s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			*order = *locked
			return errReplay
		}

		locked.Complete(channelTxnID, paidAt)
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}

		if err := s.completePaymentTransaction(ctx, tx, locked, channelTxnID, raw); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			MerchantID: locked.MerchantID,
			Type:       events.EventPaymentSettled,
			DedupeKey:  locked.ID.String() + ":" + channelTxnID,
			Payload: events.PaymentPayload{
				OrderID:         locked.ID.String(),
				MerchantOrderID: locked.MerchantOrderID,
				Channel:         string(locked.Channel),
				Amount:          locked.Amount,
				Currency:        string(locked.Currency),
				ChannelTxnID:    channelTxnID,
				PaidAt:          paidAt.UTC().Format(time.RFC3339),
			}.ToMap(),
		}); err != nil {
			return err
		}

		*order = *locked
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncOrderSettled(string(order.Channel), string(order.Status))
	s.metrics.ObserveSettlementLag(paidAt.Sub(order.CreatedAt))
	s.writeAudit(ctx, order.MerchantID, "payment.settled", order.ID.String(), map[string]any{
		"channel":        string(order.Channel),
		"amount":         order.Amount,
		"currency":       string(order.Currency),
		"channel_txn_id": channelTxnID,
	})
	return nil
}

func (s *Service) completePaymentTransaction(ctx context.Context, tx *gorm.DB, order *domain.PaymentOrder, channelTxnID string, raw datatypes.JSON) error {
	now := s.clock.Now()
	txns, err := s.txns.FindByOrderID(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	for i := range txns {
		txn := &txns[i]
		if txn.Type != domain.TransactionTypePayment || txn.Status.IsTerminal() {
			continue
		}
		txn.SetChannelTxnID(channelTxnID, now)
		txn.SetGatewayResponse("SUCCESS", "", raw, now)
		txn.UpdateStatus(domain.TransactionStatusSuccess, now)
		return s.txns.Update(ctx, tx, txn)
	}

	// No pending attempt on record (settlement arrived before our create
	// call returned): record the channel's view directly.
	return s.txns.Insert(ctx, tx, &domain.Transaction{
		ID:              s.genID.Generate(),
		OrderID:         order.ID,
		Type:            domain.TransactionTypePayment,
		Channel:         order.Channel,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Status:          domain.TransactionStatusSuccess,
		ChannelTxnID:    channelTxnID,
		GatewayResponse: raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (s *Service) expireOrder(ctx context.Context, order *domain.PaymentOrder, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.FindByIDForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		from := locked.Status
		next, err := domain.ApplyEvent(locked.Status, domain.Event{Type: domain.EventPaymentExpired, OccurredAt: now})
		if err != nil {
			// Settled while we looked: keep the winning state.
			*order = *locked
			return nil
		}

		locked.UpdateStatus(next, now)
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		if err := s.events.Insert(ctx, tx, &domain.EventRecord{
			ID:         s.genID.Generate(),
			OrderID:    locked.ID,
			EventType:  domain.EventPaymentExpired,
			FromStatus: from,
			ToStatus:   next,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			MerchantID: locked.MerchantID,
			Type:       events.EventPaymentExpired,
			DedupeKey:  locked.ID.String() + ":expired",
			Payload: events.PaymentPayload{
				OrderID:         locked.ID.String(),
				MerchantOrderID: locked.MerchantOrderID,
				Channel:         string(locked.Channel),
				Amount:          locked.Amount,
				Currency:        string(locked.Currency),
			}.ToMap(),
		}); err != nil {
			return err
		}
		*order = *locked
		return nil
	})
	if err != nil {
		return err
	}
	if order.Status == domain.OrderStatusExpired {
		s.metrics.IncOrderSettled(string(order.Channel), string(order.Status))
	}
	return nil
}

// HandleNotification is the webhook entry point: verify first, then apply
// exactly once. Replays and already-terminal orders still return the
// channel's acknowledgement body so redelivery stops.
func (s *Service) HandleNotification(ctx context.Context, channel domain.Channel, payload []byte) (*domain.NotificationResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.notification",
		trace.WithAttributes(attribute.String("channel", string(channel))))
	defer span.End()

	if _, err := domain.ParseChannel(string(channel)); err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Resolve(0, channel)
	if err != nil {
		return nil, err
	}

	note, err := adapter.HandleNotification(ctx, payload)
	if err != nil {
		s.metrics.IncNotification(string(channel), "rejected")
		return nil, err
	}

	orderID, err := snowflake.ParseString(note.OrderRef)
	if err != nil {
		s.metrics.IncNotification(string(channel), "rejected")
		return nil, domain.ErrOrderNotFound
	}
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		s.metrics.IncNotification(string(channel), "rejected")
		return nil, err
	}
	if order.Channel != channel {
		s.metrics.IncNotification(string(channel), "rejected")
		return nil, domain.ErrInvalidPayload
	}

	if !note.IsSuccessful {
		switch err := s.failOrder(ctx, order, note); {
		case errors.Is(err, errReplay):
			s.metrics.IncNotification(string(channel), "replay")
		case err != nil:
			return nil, err
		default:
			s.metrics.IncNotification(string(channel), "applied")
		}
		return &domain.NotificationResult{
			OrderID:      order.ID,
			Status:       order.Status,
			ResponseData: note.ResponseData,
		}, nil
	}

	if note.Amount != order.Amount {
		s.log.Warn("notification amount mismatch",
			zap.String("order_id", order.ID.String()),
			zap.Int64("expected", order.Amount),
			zap.Int64("got", note.Amount),
		)
		s.metrics.IncNotification(string(channel), "rejected")
		return nil, domain.ErrInvalidPayload
	}

	paidAt := s.clock.Now()
	if note.PaidAt != nil {
		paidAt = *note.PaidAt
	}
	err = s.settleOrder(ctx, order, note.ChannelTxnID, note.Amount, paidAt, note.RawData)
	switch {
	case errors.Is(err, errReplay):
		s.metrics.IncNotification(string(channel), "replay")
	case err != nil:
		return nil, err
	default:
		s.metrics.IncNotification(string(channel), "applied")
	}

	return &domain.NotificationResult{
		OrderID:      order.ID,
		Status:       order.Status,
		ResponseData: note.ResponseData,
	}, nil
}

func (s *Service) failOrder(ctx context.Context, order *domain.PaymentOrder, note *domain.NotificationResponse) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.FindByIDForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status == domain.OrderStatusFailed {
			*order = *locked
			return errReplay
		}
		from := locked.Status
		next, err := domain.ApplyEvent(locked.Status, domain.Event{Type: domain.EventPaymentFailed, OccurredAt: now})
		if err != nil {
			// A success already won; the late failure is a no-op.
			*order = *locked
			return errReplay
		}

		inserted, err := s.events.InsertDedup(ctx, tx, &domain.EventRecord{
			ID:           s.genID.Generate(),
			OrderID:      locked.ID,
			EventType:    domain.EventPaymentFailed,
			ChannelTxnID: note.ChannelTxnID,
			FromStatus:   from,
			ToStatus:     next,
			Payload:      note.RawData,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			*order = *locked
			return errReplay
		}

		locked.UpdateStatus(next, now)
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			MerchantID: locked.MerchantID,
			Type:       events.EventPaymentFailed,
			DedupeKey:  locked.ID.String() + ":failed:" + note.ChannelTxnID,
			Payload: events.PaymentPayload{
				OrderID:         locked.ID.String(),
				MerchantOrderID: locked.MerchantOrderID,
				Channel:         string(locked.Channel),
				Amount:          locked.Amount,
				Currency:        string(locked.Currency),
			}.ToMap(),
		}); err != nil {
			return err
		}
		*order = *locked
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncOrderSettled(string(order.Channel), string(order.Status))
	return nil
}

// CreateRefund opens a refund against a settled order. The refundable
// balance counts open refunds too, so concurrent requests cannot
// collectively exceed the paid amount.
func (s *Service) CreateRefund(ctx context.Context, req domain.CreateRefundRequest) (*domain.CreateRefundResponse, error) {
	ctx, span := s.tracer.Start(ctx, "payment.refund")
	defer span.End()

	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var refund *domain.Refund
	var order *domain.PaymentOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.FindByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if req.MerchantID != 0 && locked.MerchantID != req.MerchantID {
			return domain.ErrOrderNotFound
		}
		if !locked.CanRefund() {
			return domain.ErrInvalidOrderStatus
		}

		reserved, err := s.refunds.SumOpenOrSucceededByOrderID(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		if reserved+req.Amount > locked.Amount {
			return domain.ErrRefundExceedsPaid
		}

		now := s.clock.Now()
		refund = &domain.Refund{
			ID:         s.genID.Generate(),
			OrderID:    locked.ID,
			MerchantID: locked.MerchantID,
			Channel:    locked.Channel,
			Amount:     req.Amount,
			Currency:   locked.Currency,
			Status:     domain.RefundStatusPending,
			Reason:     strings.TrimSpace(req.Reason),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.refunds.Insert(ctx, tx, refund); err != nil {
			return err
		}
		if err := s.events.Insert(ctx, tx, &domain.EventRecord{
			ID:         s.genID.Generate(),
			OrderID:    locked.ID,
			EventType:  domain.EventRefundRequested,
			FromStatus: locked.Status,
			ToStatus:   locked.Status,
			Amount:     req.Amount,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			MerchantID: locked.MerchantID,
			Type:       events.EventRefundCreated,
			DedupeKey:  refund.ID.String() + ":created",
			Payload: events.RefundPayload{
				RefundID: refund.ID.String(),
				OrderID:  locked.ID.String(),
				Channel:  string(locked.Channel),
				Amount:   refund.Amount,
				Currency: string(refund.Currency),
			}.ToMap(),
		}); err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapters.Resolve(order.MerchantID, order.Channel)
	if err != nil {
		return nil, err
	}
	channelResp, err := adapter.CreateRefund(ctx, refund, order)
	now := s.clock.Now()
	switch {
	case err != nil:
		var adapterErr *domain.AdapterError
		if errors.As(err, &adapterErr) && adapterErr.Retryable {
			// Outcome unknown; leave the refund pending for reconcile.
			s.metrics.IncRefund(string(order.Channel), "accepted")
			break
		}
		refund.Fail(now)
		if updateErr := s.refunds.Update(ctx, s.db, refund); updateErr != nil {
			return nil, updateErr
		}
		s.metrics.IncRefund(string(order.Channel), "rejected")
		return nil, err
	case channelResp.IsAccepted:
		refund.SetChannelRefundID(channelResp.ChannelRefundID, now)
		refund.GatewayResponse = channelResp.RawResponse
		refund.UpdateStatus(domain.RefundStatusProcessing, now)
		if err := s.refunds.Update(ctx, s.db, refund); err != nil {
			return nil, err
		}
		s.metrics.IncRefund(string(order.Channel), "accepted")
	default:
		refund.GatewayResponse = channelResp.RawResponse
		refund.Fail(now)
		if err := s.refunds.Update(ctx, s.db, refund); err != nil {
			return nil, err
		}
		s.metrics.IncRefund(string(order.Channel), "rejected")
	}

	s.writeAudit(ctx, order.MerchantID, "refund.requested", refund.ID.String(), map[string]any{
		"order_id": order.ID.String(),
		"amount":   refund.Amount,
		"currency": string(refund.Currency),
		"status":   string(refund.Status),
	})

	return &domain.CreateRefundResponse{
		RefundID: refund.ID,
		OrderID:  order.ID,
		Status:   refund.Status,
	}, nil
}

// QueryRefund returns the refund, reconciling open ones against the
// channel.
func (s *Service) QueryRefund(ctx context.Context, refundID snowflake.ID) (*domain.Refund, error) {
	refund, err := s.refunds.FindByID(ctx, s.db, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status.IsTerminal() {
		return refund, nil
	}

	order, err := s.orders.FindByID(ctx, s.db, refund.OrderID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Resolve(order.MerchantID, order.Channel)
	if err != nil {
		return refund, nil
	}
	status, err := adapter.QueryRefund(ctx, refund, order)
	if err != nil {
		s.log.Warn("channel refund query failed",
			zap.String("refund_id", refund.ID.String()),
			zap.Error(err),
		)
		return refund, nil
	}
	if !status.IsSuccess {
		return refund, nil
	}

	refundedAt := s.clock.Now()
	if status.RefundedAt != nil {
		refundedAt = *status.RefundedAt
	}
	if err := s.completeRefund(ctx, refund, order, status.ChannelRefundID, refundedAt, status.RawResponse); err != nil && !errors.Is(err, errReplay) {
		return nil, err
	}
	return refund, nil
}

func (s *Service) completeRefund(ctx context.Context, refund *domain.Refund, order *domain.PaymentOrder, channelRefundID string, refundedAt time.Time, raw datatypes.JSON) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.refunds.FindByIDForUpdate(ctx, tx, refund.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			*refund = *locked
			return errReplay
		}

		inserted, err := s.events.InsertDedup(ctx, tx, &domain.EventRecord{
			ID:           s.genID.Generate(),
			OrderID:      locked.OrderID,
			EventType:    domain.EventRefundCompleted,
			ChannelTxnID: channelRefundID,
			FromStatus:   order.Status,
			ToStatus:     order.Status,
			Amount:       locked.Amount,
			Payload:      raw,
			CreatedAt:    s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			*refund = *locked
			return errReplay
		}

		if channelRefundID != "" {
			locked.ChannelRefundID = channelRefundID
		}
		locked.GatewayResponse = raw
		locked.Complete(refundedAt)
		if err := s.refunds.Update(ctx, tx, locked); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.txns.Insert(ctx, tx, &domain.Transaction{
			ID:              s.genID.Generate(),
			OrderID:         locked.OrderID,
			Type:            domain.TransactionTypeRefund,
			Channel:         locked.Channel,
			Amount:          locked.Amount,
			Currency:        locked.Currency,
			Status:          domain.TransactionStatusSuccess,
			ChannelTxnID:    channelRefundID,
			GatewayResponse: raw,
			CreatedAt:       now,
			UpdatedAt:       now,
		}); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			MerchantID: locked.MerchantID,
			Type:       events.EventRefundSettled,
			DedupeKey:  locked.ID.String() + ":settled",
			Payload: events.RefundPayload{
				RefundID:   locked.ID.String(),
				OrderID:    locked.OrderID.String(),
				Channel:    string(locked.Channel),
				Amount:     locked.Amount,
				Currency:   string(locked.Currency),
				RefundedAt: refundedAt.UTC().Format(time.RFC3339),
			}.ToMap(),
		}); err != nil {
			return err
		}
		*refund = *locked
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncRefund(string(refund.Channel), "settled")
	s.writeAudit(ctx, refund.MerchantID, "refund.settled", refund.ID.String(), map[string]any{
		"order_id": refund.OrderID.String(),
		"amount":   refund.Amount,
		"currency": string(refund.Currency),
	})
	return nil
}

// ListChannels returns registered channels, optionally narrowed to those
// settling the given currency.
func (s *Service) ListChannels(_ context.Context, currency money.Currency) []domain.ChannelInfo {
	infos := make([]domain.ChannelInfo, 0, len(domain.ChannelTable))
	for _, info := range domain.ChannelTable {
		if !s.adapters.Supports(info.Channel) {
			continue
		}
		if currency != "" && !domain.ChannelSupports(info.Channel, currency) {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

func (s *Service) writeAudit(ctx context.Context, merchantID snowflake.ID, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := merchantID
	_ = s.auditSvc.AuditLog(ctx, &id, "", nil, action, "payment_order", &targetID, metadata)
}
