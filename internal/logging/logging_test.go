package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	defer func() {
		store(zap.NewNop())
		Debug = false
	}()

	if err := Init(true, "json"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !Debug {
		t.Fatalf("expected debug flag to be set")
	}
	if !L().Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level to be enabled")
	}

	if err := Init(false, "console"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if L().Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level to be disabled")
	}
}

func TestDefaultLoggerIsSafe(t *testing.T) {
	Debugf("before init %d", 1)
	Infof("before init %d", 2)
	With("match", "m1").Infow("child logger")
}
