package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestInitConfigWithoutFlagIsNoOp(t *testing.T) {
	cfgFile = ""
	if err := initConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInitConfigSurfacesMissingExplicitFile(t *testing.T) {
	cfgFile = filepath.Join(t.TempDir(), "absent.yaml")
	defer func() { cfgFile = "" }()

	if err := initConfig(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestInitConfigReadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	cfgFile = path
	defer func() { cfgFile = "" }()

	if err := initConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := viper.GetString("log.level"); got != "debug" {
		t.Fatalf("expected config value to load, got %q", got)
	}
}
