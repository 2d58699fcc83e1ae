package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q, want :8080", c.Server.ListenAddr)
	}
	if c.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %s, want 10s", c.Server.ReadTimeout)
	}
	if c.Broker.Mode != "nats" {
		t.Errorf("broker mode = %q, want nats", c.Broker.Mode)
	}
	if key, err := c.CodecKey(); err != nil || key != nil {
		t.Errorf("CodecKey() = %v, %v, want nil key by default", key, err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHAT_SERVER_LISTENADDR", ":9999")
	t.Setenv("CHAT_BROKER_MODE", "local")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q, want :9999", c.Server.ListenAddr)
	}
	if c.Broker.Mode != "local" {
		t.Errorf("broker mode = %q, want local", c.Broker.Mode)
	}
}

func TestLoadRejectsBadBrokerMode(t *testing.T) {
	t.Setenv("CHAT_BROKER_MODE", "kafka")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unsupported broker mode")
	}
}

func TestCodecKey(t *testing.T) {
	t.Setenv("CHAT_CODEC_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	key, err := c.CodecKey()
	if err != nil {
		t.Fatalf("CodecKey: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("key length = %d, want 32", len(key))
	}
}

func TestCodecKeyRejectsShortKey(t *testing.T) {
	t.Setenv("CHAT_CODEC_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for 16-byte key")
	}
}
