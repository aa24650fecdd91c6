package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogrusLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusWithOutput(&buf)
	logger.Info("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected log to contain 'test message', got: %s", buf.String())
	}
}

func TestLogrusLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusWithOutput(&buf)
	logger.Error("persist failed", errors.New("disk full"))

	output := buf.String()
	if !strings.Contains(output, "persist failed") || !strings.Contains(output, "disk full") {
		t.Errorf("Expected error log to contain message and error, got: %s", output)
	}
}

func TestLogrusLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusWithOutput(&buf)
	logger.Configure("info", "json")

	logger.WithFields(map[string]interface{}{
		"namespace": "location_cache_",
		"key":       "cep:01310100",
	}).Warn("persist failed")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["namespace"] != "location_cache_" || line["key"] != "cep:01310100" {
		t.Errorf("Expected fields in log line, got: %v", line)
	}
	if line["level"] != "warning" {
		t.Errorf("Expected warning level, got: %v", line["level"])
	}
}

func TestLogrusLogger_ConfigureLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusWithOutput(&buf)
	logger.Configure("warn", "text")

	logger.Info("hidden")
	logger.Debug("hidden too")
	if buf.Len() != 0 {
		t.Errorf("Expected info/debug to be filtered at warn level, got: %s", buf.String())
	}

	logger.Configure("not-a-level", "text")
	logger.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected fallback to info level, got: %s", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	l.WithField("a", 1).WithFields(map[string]interface{}{"b": 2}).Info("ignored")
	l.Error("ignored", errors.New("x"))
}
