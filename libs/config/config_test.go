package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTypedGetters(t *testing.T) {
	t.Setenv("APPT_INT", "42")
	t.Setenv("APPT_BAD_INT", "-3")
	t.Setenv("APPT_BOOL", "false")
	t.Setenv("APPT_DURATION", "90s")
	t.Setenv("APPT_LIST", " a, ,b ")

	if got := Int("APPT_INT", 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := Int("APPT_BAD_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	if Bool("APPT_BOOL", true) {
		t.Fatal("expected false")
	}
	if got := Duration("APPT_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	if got := List("APPT_LIST"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("APPT_PORT", "70000")
	if _, err := Port("APPT_PORT", "8080"); err == nil {
		t.Fatal("expected invalid port error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("APPT_FROM_FILE=yes\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("APPT_FROM_FILE") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if String("APPT_FROM_FILE", "") != "yes" {
		t.Fatal("expected value loaded from file")
	}
}
