package config

import (
	"testing"
	"time"
)

func TestUpdateFromOverridesOnlyNonZeroValues(t *testing.T) {
	cfg := Default()

	cfg.UpdateFrom(Config{
		Addr:     ":9999",
		LogLevel: "debug",
	})

	if cfg.Addr != ":9999" {
		t.Fatalf("addr override lost: %q", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level override lost: %q", cfg.LogLevel)
	}

	// Untouched fields keep their previous values.
	if cfg.DatabasePath != Default().DatabasePath {
		t.Fatalf("database path changed unexpectedly: %q", cfg.DatabasePath)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("shutdown timeout changed unexpectedly: %v", cfg.ShutdownTimeout)
	}
}

func TestUpdateFromIgnoresZeroValues(t *testing.T) {
	cfg := Default()
	cfg.Addr = ":7070"
	cfg.RecentHistoryLimit = 50

	cfg.UpdateFrom(Config{})

	if cfg.Addr != ":7070" {
		t.Fatalf("empty override must not clear addr: %q", cfg.Addr)
	}
	if cfg.RecentHistoryLimit != 50 {
		t.Fatalf("empty override must not clear history limit: %d", cfg.RecentHistoryLimit)
	}
}
