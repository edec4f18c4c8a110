package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestClientPostPropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	var gotTraceparent, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent = r.Header.Get("traceparent")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	client := NewClient(domain.ChannelWechat, time.Second)
	raw, err := client.Post(ctx, "create_payment", srv.URL, "application/xml", []byte("<xml/>"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if string(raw) != "ok" {
		t.Fatalf("unexpected body %q", raw)
	}
	if gotContentType != "application/xml" {
		t.Fatalf("expected content type to be forwarded, got %q", gotContentType)
	}
	if gotTraceparent == "" {
		t.Fatalf("expected traceparent header on the outbound channel call")
	}
}
