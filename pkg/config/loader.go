package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// sentryhoundYAMLConfig represents the optional sentryhound.yaml file.
// Everything here may also be supplied or overridden by environment
// variables, which always win for secrets (spec §6).
type sentryhoundYAMLConfig struct {
	HuntModuleDir string            `yaml:"hunt_module_dir"`
	CORSOrigins   []string          `yaml:"cors_origins"`
	Vault         *vaultYAMLConfig  `yaml:"vault"`
	AI            *aiYAMLConfig     `yaml:"ai"`
	MCP           *MCPConfig        `yaml:"mcp"`
}

type vaultYAMLConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type aiYAMLConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

const minSecretLength = 32

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load sentryhound.yaml from configDir (optional — missing file is not an error)
//  2. Expand environment variables in its contents
//  3. Apply environment-variable overrides for secrets and deployment knobs
//  4. Apply built-in defaults for anything still unset
//  5. Validate (secret length in production, numeric ranges)
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"max_sessions", cfg.MaxSessions,
		"event_queue_max", cfg.EventQueueMax,
		"vault_enabled", cfg.Vault.Enabled,
		"ai_provider", cfg.AI.Provider)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadSentryhoundYAML()
	if err != nil {
		return nil, NewLoadError("sentryhound.yaml", err)
	}

	defaults := defaultYAMLConfig()
	if err := mergo.Merge(defaults, yamlCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge sentryhound.yaml over defaults: %w", err)
	}

	cfg := &Config{
		configDir:     configDir,
		HuntModuleDir: defaults.HuntModuleDir,
		CORSOrigins:   defaults.CORSOrigins,
		MaxSessions:   50,
		EventQueueMax: 1000,
		Timeouts: TimeoutConfig{
			Connect:         30 * time.Second,
			Command:         30 * time.Second,
			EnrichmentHTTP:  15 * time.Second,
			EventBusPublish: 100 * time.Millisecond,
		},
		Auth: AuthConfig{
			AccessTokenLifetime:  15 * time.Minute,
			RefreshTokenLifetime: 7 * 24 * time.Hour,
		},
	}
	if defaults.Vault != nil {
		cfg.Vault.Addr = defaults.Vault.Addr
		if defaults.Vault.Enabled != nil {
			cfg.Vault.Enabled = *defaults.Vault.Enabled
		}
	}
	if defaults.AI != nil {
		cfg.AI.Provider = defaults.AI.Provider
		cfg.AI.Model = defaults.AI.Model
		cfg.AI.BaseURL = defaults.AI.BaseURL
	}
	if defaults.MCP != nil {
		cfg.MCP = *defaults.MCP
	}

	applyEnvOverrides(cfg)

	db, err := loadDatabaseConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.DB = db

	return cfg, nil
}

// applyEnvOverrides applies the production source of truth for secrets and
// deployment knobs (spec §6): environment variables always win over YAML.
func applyEnvOverrides(cfg *Config) {
	cfg.Secret = getEnvOrDefault("PROCESS_SECRET", cfg.Secret)
	cfg.Production = strings.EqualFold(getEnvOrDefault("APP_ENV", "development"), "production")

	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv("EVENT_QUEUE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventQueueMax = n
		}
	}
	if v := os.Getenv("HUNT_MODULE_DIR"); v != "" {
		cfg.HuntModuleDir = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.AccessTokenLifetime = d
		}
	}
	if v := os.Getenv("REFRESH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.RefreshTokenLifetime = d
		}
	}

	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.Vault.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" {
		cfg.Vault.Addr = v
	}
	cfg.Vault.RoleID = os.Getenv("VAULT_ROLE_ID")
	cfg.Vault.SecretID = os.Getenv("VAULT_SECRET_ID")

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	cfg.AI.APIKey = os.Getenv("AI_API_KEY")
}

func defaultYAMLConfig() *sentryhoundYAMLConfig {
	return &sentryhoundYAMLConfig{
		HuntModuleDir: "./hunt-modules",
		CORSOrigins:   []string{"http://localhost:5173"},
		Vault:         &vaultYAMLConfig{},
		AI:            &aiYAMLConfig{Provider: "anthropic"},
		MCP:           &MCPConfig{},
	}
}

// validate performs the few checks spec.md calls out explicitly: a
// production deployment must not run with a defaulted/empty process secret.
func validate(cfg *Config) error {
	if cfg.Production && len(cfg.Secret) < minSecretLength {
		return fmt.Errorf("%w: PROCESS_SECRET must be at least %d characters in production", ErrInvalidValue, minSecretLength)
	}
	if cfg.MaxSessions < 1 {
		return fmt.Errorf("%w: max_sessions must be at least 1", ErrInvalidValue)
	}
	if cfg.EventQueueMax < 1 {
		return fmt.Errorf("%w: event_queue_max must be at least 1", ErrInvalidValue)
	}
	if cfg.Vault.Enabled && cfg.Vault.Addr == "" {
		return fmt.Errorf("%w: vault_addr is required when vault is enabled", ErrMissingRequiredField)
	}
	return nil
}

type configLoader struct {
	configDir string
}

// loadSentryhoundYAML loads sentryhound.yaml from configDir. A missing file
// is not an error — every field has a built-in default.
func (l *configLoader) loadSentryhoundYAML() (*sentryhoundYAMLConfig, error) {
	cfg := &sentryhoundYAMLConfig{}
	path := filepath.Join(l.configDir, "sentryhound.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return cfg, nil
}

func loadDatabaseConfigFromEnv() (DatabaseConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	return DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnvOrDefault("DB_USER", "sentryhound"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: getEnvOrDefault("DB_NAME", "sentryhound"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
