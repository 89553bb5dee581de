package telemetry

import (
	"context"
	"testing"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "argonath-test", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "argonath-test", "http://localhost:4318", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// 到達不能なアドレスを使い、実際のエクスポートは発生させない
	shutdown, err := Setup(context.Background(), "argonath-test", "http://192.0.2.1:4318", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "test")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span after Setup")
	}
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// キャンセル済みのコンテキストでも停止処理は戻ってくる
	_ = shutdown(ctx)
}

func TestTracer_ReturnsNonNil(t *testing.T) {
	if Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
}
