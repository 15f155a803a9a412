package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GRPCPort != 50051 {
		t.Fatalf("grpc_port = %d", cfg.GRPCPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
}

func TestLoadFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
paths = ["/music/sets"]
grpc_port = 6000
log_level = "debug"
max_cover_art_size_mb = 20
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GRPCPort != 6000 {
		t.Fatalf("grpc_port = %d", cfg.GRPCPort)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	if len(cfg.Paths) != 1 || cfg.Paths[0] != "/music/sets" {
		t.Fatalf("paths = %+v", cfg.Paths)
	}
	if cfg.MaxCoverArtSizeMB != 20 {
		t.Fatalf("max_cover_art_size_mb = %d", cfg.MaxCoverArtSizeMB)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("expected missing config file to fall back to defaults, got %v", err)
	}
	if cfg.GRPCPort != 50051 {
		t.Fatalf("grpc_port = %d", cfg.GRPCPort)
	}
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("STUDIO_PROJECT_MANAGER_GRPC_PORT", "7777")
	t.Setenv("STUDIO_PROJECT_MANAGER_LOG_LEVEL", "trace")
	t.Setenv("STUDIO_PROJECT_MANAGER_PATHS", "/a, /b ,/c")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GRPCPort != 7777 {
		t.Fatalf("grpc_port = %d", cfg.GRPCPort)
	}
	if cfg.LogLevel != "trace" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	want := []string{"/a", "/b", "/c"}
	if len(cfg.Paths) != len(want) {
		t.Fatalf("paths = %+v", cfg.Paths)
	}
	for i, w := range want {
		if cfg.Paths[i] != w {
			t.Fatalf("paths[%d] = %q, want %q", i, cfg.Paths[i], w)
		}
	}
}

func TestUserHomeSubstitution(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `database_path = "{USER_HOME}/catalog.db"` + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := "/home/tester/catalog.db"
	if cfg.DatabasePath != want {
		t.Fatalf("database_path = %q, want %q", cfg.DatabasePath, want)
	}
}

func TestValidateRejectsBadGRPCPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("grpc_port = 70000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for out-of-range grpc_port")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`log_level = "verbose"`+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unrecognized log_level")
	}
}

func TestValidateRejectsOverlongPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	longPath := "/a"
	for len(longPath) <= 260 {
		longPath += "aaaaaaaaaa"
	}
	body := `paths = ["` + longPath + `"]` + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for overlong path")
	}
}

func TestAdaptiveThrottlingDefaultsOnAndIsConfigurable(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Performance.EnableAdaptiveThrottling {
		t.Fatal("expected adaptive throttling to default to enabled")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "[performance]\nenable_adaptive_throttling = false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Performance.EnableAdaptiveThrottling {
		t.Fatal("expected TOML override to disable adaptive throttling")
	}

	t.Setenv("STUDIO_PROJECT_MANAGER_ENABLE_ADAPTIVE_THROTTLING", "true")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Performance.EnableAdaptiveThrottling {
		t.Fatal("expected env override to re-enable adaptive throttling")
	}
}

func TestCanWriteToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	if err := CanWriteToDirectory(dir); err != nil {
		t.Fatalf("expected writable nested dir to succeed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".catalogd-write-probe")); !os.IsNotExist(err) {
		t.Fatal("expected write probe to be cleaned up")
	}
}
