package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ijara.yaml")
	logger := zerolog.Nop()

	cfg, resolved, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Client.TypingStopDelay != time.Second {
		t.Fatalf("typing delay = %v", cfg.Client.TypingStopDelay)
	}
	if cfg.Client.RemoteTypingTimeout != 5*time.Second {
		t.Fatalf("remote typing timeout = %v", cfg.Client.RemoteTypingTimeout)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ijara.yaml")
	body := []byte(`log_level: debug
client:
  api_url: http://api.example.test
  ack_timeout: 3s
  remote_typing_timeout: 8s
server:
  addr: ":9090"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("IJARA_CLIENT_TOKEN", "tok-123")
	t.Setenv("IJARA_SERVER_ADDR", ":7070")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Client.APIURL != "http://api.example.test" || cfg.Client.AckTimeout != 3*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Client)
	}
	if cfg.Client.RemoteTypingTimeout != 8*time.Second {
		t.Fatalf("remote typing timeout from file = %v", cfg.Client.RemoteTypingTimeout)
	}
	if cfg.Client.Token != "tok-123" {
		t.Fatalf("env token not applied: %q", cfg.Client.Token)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env should override file, addr = %q", cfg.Server.Addr)
	}
	if cfg.Client.ReconnectMax != 30*time.Second {
		t.Fatalf("default lost: %v", cfg.Client.ReconnectMax)
	}
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{
		Client: ClientConfig{Token: "abc"},
		Server: ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
	})
	if cfg.Client.Token != "abc" || cfg.Client.APIURL == "" {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
}
