package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/futorumeshi/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextIncludesTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	orig := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(orig)

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	FromContext(ctx).Info("hello")
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != traceID.String() {
		t.Fatalf("expected trace_id %q, got %q", traceID.String(), fields["trace_id"])
	}
	if fields["span_id"] != spanID.String() {
		t.Fatalf("expected span_id %q, got %q", spanID.String(), fields["span_id"])
	}
}

func TestFromContextIncludesActorOnlyWhenSet(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	orig := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(orig)

	FromContext(context.Background()).Info("anonymous")
	ctx := obscontext.WithActor(context.Background(), "admin", "ops@futorumeshi.jp")
	FromContext(ctx).Info("admin")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["actor_type"]; ok {
		t.Fatalf("expected no actor fields for anonymous context")
	}
	if got := entries[1].ContextMap()["actor_type"]; got != "admin" {
		t.Fatalf("expected actor_type admin, got %v", got)
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM orders":                                       "SELECT",
		"WITH x AS (SELECT 1) UPDATE subscriptions SET status = 'x'": "SELECT",
		"INSERT INTO referrers (code) VALUES ($1)":                   "INSERT",
		"":                                                           "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		`SELECT * FROM "orders" WHERE id = $1`:             "orders",
		"INSERT INTO `referrers` (code) VALUES (?)":        "referrers",
		"UPDATE subscription_deliveries SET status = 'x'":  "subscription_deliveries",
		"DELETE FROM payment_events WHERE id = 1":          "payment_events",
		"SELECT 1":                                         "",
	}
	for sql, want := range cases {
		if got := tableFromSQL(sql); got != want {
			t.Fatalf("tableFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
