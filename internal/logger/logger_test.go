package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matchengine.log")
	log, err := New(Config{Level: "debug", JSON: true, File: path, Rotation: RotationConfig{MaxSize: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Debug("run finished", zap.String(FieldBuyerID, "b-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"run finished"`) || !strings.Contains(line, `"buyer_id":"b-1"`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if fields[0].Key != "provider" || fields[0].String != "gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}
}

func TestWithRun(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithRun(zap.New(core), "run-1", "buyer-1", "").Info("started")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx[FieldRunID] != "run-1" || ctx[FieldBuyerID] != "buyer-1" {
		t.Fatalf("unexpected context: %v", ctx)
	}
	if _, ok := ctx[FieldTrigger]; ok {
		t.Fatalf("empty trigger must be omitted")
	}
}

func TestWithFieldsNilLogger(t *testing.T) {
	if WithFields(nil) == nil {
		t.Fatalf("expected no-op logger")
	}
	WithOracle(nil, "openai", "gpt").Info("does not panic")
}
