package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestInit(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	cfg, log, logBuffer, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if cfg.ServerPort != "9999" {
		t.Errorf("ServerPort = %q, want 9999", cfg.ServerPort)
	}

	// ロガーがJSON構造化ログを出力すること
	log.Info("test message", slog.String("key", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (output=%s)", err, buf.String())
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want test message", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}

	// 直近ログバッファにも同じレコードが入ること
	entries := logBuffer.Recent(1)
	if len(entries) != 1 || entries[0].Message != "test message" {
		t.Errorf("log buffer entries = %v, want the logged record", entries)
	}
}

func TestRunHealthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Setenv("SERVER_PORT", serverPort(t, server.URL))

	if err := Run(io.Discard, []string{"healthcheck"}); err != nil {
		t.Errorf("Run(healthcheck) error = %v", err)
	}
}

func TestRunHealthcheck_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	t.Setenv("SERVER_PORT", serverPort(t, server.URL))

	if err := Run(io.Discard, []string{"healthcheck"}); err == nil {
		t.Error("Run(healthcheck) should fail for a 503 response")
	}
}

func TestRunHealthcheck_NoServer(t *testing.T) {
	// 接続先が存在しないポート
	t.Setenv("SERVER_PORT", "1")

	if err := Run(io.Discard, []string{"healthcheck"}); err == nil {
		t.Error("Run(healthcheck) should fail when no server is listening")
	}
}

// serverPort はhttptestサーバーのURLからポート番号を取り出す。
func serverPort(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	_, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	return port
}
