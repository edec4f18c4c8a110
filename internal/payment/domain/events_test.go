package domain

import (
	"errors"
	"testing"
	"time"
)

func TestApplyEventValidTransitions(t *testing.T) {
	cases := []struct {
		from  OrderStatus
		event EventType
		want  OrderStatus
	}{
		{OrderStatusCreated, EventOrderCreated, OrderStatusCreated},
		{OrderStatusCreated, EventPaymentInitiated, OrderStatusProcessing},
		{OrderStatusProcessing, EventPaymentCompleted, OrderStatusSuccess},
		{OrderStatusProcessing, EventPaymentFailed, OrderStatusFailed},
		{OrderStatusProcessing, EventPaymentExpired, OrderStatusExpired},
		{OrderStatusCreated, EventPaymentExpired, OrderStatusExpired},
		{OrderStatusSuccess, EventRefundRequested, OrderStatusSuccess},
		{OrderStatusSuccess, EventRefundCompleted, OrderStatusSuccess},
	}

	for _, tc := range cases {
		got, err := ApplyEvent(tc.from, Event{Type: tc.event, OccurredAt: time.Now()})
		if err != nil {
			t.Fatalf("%s + %s: unexpected error %v", tc.from, tc.event, err)
		}
		if got != tc.want {
			t.Fatalf("%s + %s: expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}

func TestApplyEventIsTotal(t *testing.T) {
	statuses := []OrderStatus{
		OrderStatusCreated, OrderStatusProcessing, OrderStatusSuccess,
		OrderStatusFailed, OrderStatusExpired, OrderStatusClosed,
	}
	events := []EventType{
		EventOrderCreated, EventPaymentInitiated, EventPaymentCompleted,
		EventPaymentFailed, EventPaymentExpired, EventRefundRequested,
		EventRefundCompleted,
	}

	for _, status := range statuses {
		for _, event := range events {
			got, err := ApplyEvent(status, Event{Type: event})
			if err == nil {
				continue
			}
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Fatalf("%s + %s: expected InvalidTransitionError, got %T", status, event, err)
			}
			if invalid.From != status || invalid.Event != event {
				t.Fatalf("error should carry the rejected pairing, got %+v", invalid)
			}
			if got != status {
				t.Fatalf("rejected event must not move status, got %s", got)
			}
		}
	}
}

func TestTerminalStatesRejectPaymentEvents(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusFailed, OrderStatusExpired, OrderStatusClosed} {
		for _, event := range []EventType{EventPaymentInitiated, EventPaymentCompleted, EventRefundRequested} {
			if _, err := ApplyEvent(status, Event{Type: event}); err == nil {
				t.Fatalf("%s + %s: expected rejection", status, event)
			}
		}
	}
}

func TestFailedOrderCannotBeRefunded(t *testing.T) {
	if _, err := ApplyEvent(OrderStatusFailed, Event{Type: EventRefundRequested}); err == nil {
		t.Fatalf("expected rejection for refund on failed order")
	}
}
