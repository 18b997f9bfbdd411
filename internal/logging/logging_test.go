package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Error("info message should be logged")
	}
	if !strings.HasPrefix(buf.String(), "INFO ") {
		t.Errorf("expected line to start with level, got %q", buf.String())
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("sweeper")
	logger.SetOutput(&buf)

	logger.Info("test message")

	if !strings.Contains(buf.String(), "[sweeper]") {
		t.Errorf("expected component tag, got %q", buf.String())
	}
}

func TestLogger_WithTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithTraceID("run-123")
	logger.SetOutput(&buf)

	logger.Info("test message")

	if !strings.Contains(buf.String(), "run_id=run-123") {
		t.Errorf("expected run_id field, got %q", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("retry_scheduled", map[string]interface{}{
		"attempt": 1,
	})

	if !strings.Contains(buf.String(), "attempt=1") {
		t.Errorf("expected attempt field, got %q", buf.String())
	}
}

func TestLogger_RetryDispatched(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.RetryDispatched("run-1", "run-1-retry-1", nil)
	if !strings.Contains(buf.String(), "retry_dispatched") {
		t.Error("expected retry_dispatched message")
	}
	if strings.Contains(buf.String(), "WARN") {
		t.Error("successful dispatch should not log at WARN")
	}

	buf.Reset()
	logger.RetryDispatched("run-1", "run-1-retry-1", errFake{})
	if !strings.HasPrefix(buf.String(), "WARN ") {
		t.Errorf("failed dispatch should log at WARN, got %q", buf.String())
	}
}

func TestLogger_CleanupFinalized(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.CleanupFinalized("run-1", true, true)
	if !strings.Contains(buf.String(), "deleted=true") {
		t.Errorf("expected deleted field, got %q", buf.String())
	}
}

type errFake struct{}

func (errFake) Error() string { return "boom" }
