package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadClient_Defaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	os.Unsetenv("SERVER_URL")
	os.Unsetenv("CREDENTIALS_DIR")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8000" {
		t.Errorf("expected default server url, got %s", cfg.ServerURL)
	}
	if cfg.OnlineCheckInterval != 5*time.Second {
		t.Errorf("expected 5s online check interval, got %s", cfg.OnlineCheckInterval)
	}
	if cfg.RequestTimeout != 0 {
		t.Errorf("expected no request timeout by default, got %s", cfg.RequestTimeout)
	}
	if want := filepath.Join(tmp, "medcabinet"); cfg.CredentialsDir != want {
		t.Errorf("expected credentials dir %s, got %s", want, cfg.CredentialsDir)
	}
}

func TestLoadClient_CredentialsDirOverride(t *testing.T) {
	t.Setenv("CREDENTIALS_DIR", "/tmp/creds")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CredentialsDir != "/tmp/creds" {
		t.Errorf("expected /tmp/creds, got %s", cfg.CredentialsDir)
	}
}

func TestClientConfig_Origin(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://localhost:8000", "http://localhost:8000"},
		{"http://LOCALHOST:8000/some/path", "http://localhost:8000"},
		{"https://cabinet.example.org/", "https://cabinet.example.org"},
	}
	for _, tt := range tests {
		c := &ClientConfig{ServerURL: tt.url}
		if got := c.Origin(); got != tt.want {
			t.Errorf("Origin(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestClientConfig_Validate(t *testing.T) {
	valid := &ClientConfig{ServerURL: "http://localhost:8000", OnlineCheckInterval: time.Second}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, bad := range []string{"localhost:8000", "ftp://host", "http://"} {
		c := &ClientConfig{ServerURL: bad}
		if err := c.Validate(); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}

	neg := &ClientConfig{ServerURL: "http://localhost", RequestTimeout: -time.Second}
	if err := neg.Validate(); err == nil {
		t.Error("expected error for negative REQUEST_TIMEOUT")
	}
}
