package config

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestGetConfigPathEnvOverride(t *testing.T) {
	t.Setenv(ConfigEnvVar, "/tmp/custom-config")

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath returned error: %v", err)
	}
	if got != "/tmp/custom-config" {
		t.Fatalf("expected override path, got %q", got)
	}
}

func TestGetConfigPathDefault(t *testing.T) {
	dir := t.TempDir()
	homeVar := "HOME"
	if runtime.GOOS == "windows" {
		homeVar = "USERPROFILE"
	}
	t.Setenv(homeVar, dir)
	t.Setenv(ConfigEnvVar, "")

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath returned error: %v", err)
	}
	if want := filepath.Join(dir, ".rnhost", "config"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
