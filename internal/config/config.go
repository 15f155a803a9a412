// Package config loads the service's TOML configuration file, applies
// environment-variable overrides, validates it, and derives computed
// fields. The load shape (file -> env -> validate -> derive) follows the
// layered loader the rest of this codebase's ancestry uses, adapted here
// for a TOML source instead of YAML.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration document. Field order and names
// mirror the keys named in the configuration contract.
type Config struct {
	Paths             []string `toml:"paths" env:"PATHS"`
	DatabasePath      string   `toml:"database_path" env:"DATABASE_PATH"`
	LiveDatabaseDir   string   `toml:"live_database_dir" env:"LIVE_DATABASE_DIR"`
	MediaStorageDir   string   `toml:"media_storage_dir" env:"MEDIA_STORAGE_DIR"`
	GRPCPort          int      `toml:"grpc_port" env:"GRPC_PORT" default:"50051"`
	LogLevel          string   `toml:"log_level" env:"LOG_LEVEL" default:"info"`
	MaxCoverArtSizeMB int      `toml:"max_cover_art_size_mb" env:"MAX_COVER_ART_SIZE_MB" default:"10"`
	MaxAudioFileSizeMB int     `toml:"max_audio_file_size_mb" env:"MAX_AUDIO_FILE_SIZE_MB" default:"50"`

	// Performance holds the ambient resilience knobs named in
	// SPEC_FULL.md's Scan Orchestrator domain-stack addition: the
	// gopsutil-backed adaptive throttler is skippable via
	// performance.enable_adaptive_throttling without changing any
	// documented scan behavior.
	Performance PerformanceConfig `toml:"performance"`

	// Database holds pool tuning, not part of the TOML surface named by the
	// configuration contract but needed to drive the catalog store; it
	// always derives from DatabasePath plus safe defaults.
	Database DatabaseConfig `toml:"-"`
}

// PerformanceConfig gates ambient resilience behavior that isn't part of
// the core spec's documented semantics.
type PerformanceConfig struct {
	EnableAdaptiveThrottling bool `toml:"enable_adaptive_throttling" env:"ENABLE_ADAPTIVE_THROTTLING" default:"true"`
}

// DatabaseConfig mirrors the pool-tuning shape used to configure the
// catalog store's gorm connection.
type DatabaseConfig struct {
	Type            string `default:"sqlite"`
	MaxOpenConns    int    `default:"25"`
	MaxIdleConns    int    `default:"5"`
}

const (
	envConfigPath = "STUDIO_PROJECT_MANAGER_CONFIG"
	envPrefix     = "STUDIO_PROJECT_MANAGER_"
	maxPathLength = 260 // Windows MAX_PATH compatibility, kept even on POSIX hosts
)

// ValidationError reports a single field-level config problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ConfigManager owns the loaded configuration, guarded by a read-write
// mutex so concurrent readers (Get) and a later Load do not race. There is
// no file watcher; the configuration changes only when Load is called.
type ConfigManager struct {
	mu     sync.RWMutex
	config *Config
	path   string
}

var (
	managerOnce sync.Once
	manager     *ConfigManager
)

// GetConfigManager returns the process-wide ConfigManager singleton.
func GetConfigManager() *ConfigManager {
	managerOnce.Do(func() {
		manager = &ConfigManager{config: defaultConfig()}
	})
	return manager
}

func defaultConfig() *Config {
	c := &Config{
		Paths:              []string{},
		GRPCPort:           50051,
		LogLevel:           "info",
		MaxCoverArtSizeMB:  10,
		MaxAudioFileSizeMB: 50,
		Database: DatabaseConfig{
			Type:         "sqlite",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Performance: PerformanceConfig{EnableAdaptiveThrottling: true},
	}
	if home, err := os.UserHomeDir(); err == nil {
		c.DatabasePath = filepath.Join(home, ".local", "share", "catalogd", "catalog.db")
		c.LiveDatabaseDir = filepath.Join(home, ".local", "share", "catalogd", "plugindb")
		c.MediaStorageDir = filepath.Join(home, ".local", "share", "catalogd", "media")
	}
	return c
}

// Load reads path (or STUDIO_PROJECT_MANAGER_CONFIG if path is empty),
// applies env overrides, substitutes {USER_HOME}, validates, and stores the
// result in the singleton manager.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	cfg := defaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)
	substituteUserHome(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	m := GetConfigManager()
	m.mu.Lock()
	m.config = cfg
	m.path = path
	m.mu.Unlock()

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Absence of a config file is not fatal; defaults apply.
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadFromEnv walks cfg's fields by reflection, applying
// STUDIO_PROJECT_MANAGER_<env tag> overrides (matching spec.md's named
// STUDIO_PROJECT_MANAGER_GRPC_PORT/_LOG_LEVEL/_DATABASE_PATH overrides) the
// way the ancestor loader walked its own struct tags.
func loadFromEnv(cfg *Config) {
	loadStructFromEnv(reflect.ValueOf(cfg).Elem(), reflect.TypeOf(cfg).Elem())
}

func loadStructFromEnv(v reflect.Value, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		if field.Type.Kind() == reflect.Struct {
			loadStructFromEnv(fv, field.Type)
			continue
		}

		envTag := field.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envVal, ok := os.LookupEnv(envPrefix + envTag)
		if !ok {
			continue
		}
		setFieldValue(fv, envVal)
	}
}

func setFieldValue(fv reflect.Value, raw string) {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fv.SetInt(n)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			fv.Set(reflect.ValueOf(parts))
		}
	}
}

// substituteUserHome replaces the literal token {USER_HOME} in every path
// field with the current user's home directory.
func substituteUserHome(cfg *Config) {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		if u, uerr := user.Current(); uerr == nil {
			homeDir = u.HomeDir
		}
	}
	if homeDir == "" {
		return
	}
	replace := func(s string) string { return strings.ReplaceAll(s, "{USER_HOME}", homeDir) }

	for i := range cfg.Paths {
		cfg.Paths[i] = replace(cfg.Paths[i])
	}
	cfg.DatabasePath = replace(cfg.DatabasePath)
	cfg.LiveDatabaseDir = replace(cfg.LiveDatabaseDir)
	cfg.MediaStorageDir = replace(cfg.MediaStorageDir)
}

func validate(cfg *Config) error {
	if cfg.GRPCPort <= 0 || cfg.GRPCPort > 65535 {
		return &ValidationError{Field: "grpc_port", Message: "must be in 1-65535"}
	}
	switch cfg.LogLevel {
	case "error", "warn", "info", "debug", "trace":
	default:
		return &ValidationError{Field: "log_level", Message: "must be one of error|warn|info|debug|trace"}
	}
	for _, p := range cfg.Paths {
		if err := validatePathLength(p); err != nil {
			return err
		}
	}
	return nil
}

func validatePathLength(p string) error {
	if len(p) > maxPathLength {
		return &ValidationError{Field: "paths", Message: fmt.Sprintf("%q exceeds %d characters", p, maxPathLength)}
	}
	return nil
}

// CanWriteToDirectory preflight-checks that dir is writable by creating and
// removing a probe file, so startup fails fast instead of on first scan
// write.
func CanWriteToDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".catalogd-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("write probe in %s: %w", dir, err)
	}
	return os.Remove(probe)
}

// Get returns the currently loaded configuration.
func Get() *Config {
	m := GetConfigManager()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}
