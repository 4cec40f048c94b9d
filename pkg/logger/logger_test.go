package logger_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/cwrk-planet/collab-client/pkg/logger"
)

func captureStdOut(fn func()) string {
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() {
		os.Stdout = orig
	}()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := logger.DetectEnv(); got != logger.EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}

	t.Setenv("APP_ENV", "prod")
	if got := logger.DetectEnv(); got != logger.EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}
}

func TestInit_ZapBackendEmitsJSON(t *testing.T) {
	out := captureStdOut(func() {
		logger.Init(logger.Config{
			Service: "collab-client",
			Version: "v0.1.0",
			Env:     logger.EnvProd,
			Backend: logger.BackendZap,
			Level:   slog.LevelInfo,
		})
		slog.Info("session opened", slog.String("room", "r-1"))
	})

	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", out, err)
	}
	if m["msg"] != "session opened" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "collab-client" || m["env"] != "prod" || m["version"] != "v0.1.0" {
		t.Fatalf("attrs missing: service=%v env=%v version=%v", m["service"], m["env"], m["version"])
	}
	if m["level"] != "INFO" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["room"] != "r-1" {
		t.Fatalf("custom field missing: %v", m["room"])
	}
}

func TestInit_StdBackendIsText(t *testing.T) {
	out := captureStdOut(func() {
		logger.Init(logger.Config{
			Service: "collab-client",
			Env:     logger.EnvDev,
			Backend: logger.BackendStd,
		})
		slog.Info("dev mode")
	})

	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err == nil {
		t.Fatalf("dev backend should not emit JSON: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("dev mode")) {
		t.Fatalf("message missing from output: %s", out)
	}
}
