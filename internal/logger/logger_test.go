package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentAddsField(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := logger{zap: zap.New(core)}

	Component(base, "settlement").Info("order settled", Int64("amount", 10000))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "settlement" {
		t.Errorf("component = %v, want settlement", ctx["component"])
	}
	if ctx["amount"] != int64(10000) {
		t.Errorf("amount = %v, want 10000", ctx["amount"])
	}
}

func TestComponentNilFallsBackToNop(t *testing.T) {
	l := Component(nil, "geo")
	l.Warning("ignored")
}

func TestNewBadLevel(t *testing.T) {
	l := New("tawsil", "not-a-level")
	l.Info("still works")
}
