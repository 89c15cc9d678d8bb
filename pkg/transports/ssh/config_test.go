package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_test")
	if err := os.WriteFile(path, []byte("not a real key"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{Host: "203.0.113.10", PrivateKeyPath: writeTestKey(t)}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.User != DefaultUser {
		t.Errorf("User = %q, want %q", cfg.User, DefaultUser)
	}
	if cfg.Wait.Timeout != engine.DefaultWaitTimeout {
		t.Errorf("Wait.Timeout = %s, want %s", cfg.Wait.Timeout, engine.DefaultWaitTimeout)
	}
	if got, want := cfg.Address(), "203.0.113.10:22"; got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}
}

func TestNormalizeRequiresHost(t *testing.T) {
	cfg := &Config{PrivateKeyPath: writeTestKey(t)}
	if err := cfg.Normalize(); !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeRejectsBadPort(t *testing.T) {
	cfg := &Config{Host: "h", Port: 70000, PrivateKeyPath: writeTestKey(t)}
	if err := cfg.Normalize(); !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeRejectsMissingKeyFile(t *testing.T) {
	cfg := &Config{Host: "h", PrivateKeyPath: filepath.Join(t.TempDir(), "nope")}
	if err := cfg.Normalize(); !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeRejectsBadWait(t *testing.T) {
	cfg := &Config{
		Host:           "h",
		PrivateKeyPath: writeTestKey(t),
		Wait:           engine.WaitConfig{Timeout: time.Second, SleepInterval: -1},
	}
	if err := cfg.Normalize(); !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
