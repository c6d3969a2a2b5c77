package config

import "time"

// Config is the umbrella configuration object returned by Initialize() and
// threaded explicitly through every service constructor at startup — never
// read from package-level state (spec §9 design note on global singletons).
type Config struct {
	configDir string // Configuration directory path (for reference)

	Secret        string // process secret, ≥32 chars; fatal in production if defaulted (spec §6)
	Production    bool
	MaxSessions   int
	EventQueueMax int
	HuntModuleDir string
	CORSOrigins   []string

	DB       DatabaseConfig
	Vault    VaultConfig
	AI       AIConfig
	MCP      MCPConfig
	Auth     AuthConfig
	Timeouts TimeoutConfig
}

// DatabaseConfig mirrors pkg/database.Config; sourced from the environment
// the same way pkg/database.LoadConfigFromEnv does, so that one Initialize()
// call produces every setting the process needs.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// VaultConfig configures the external secret manager tier of credential
// resolution (spec §4.3 precedence tier 1).
type VaultConfig struct {
	Enabled  bool
	Addr     string
	RoleID   string
	SecretID string
}

// AIConfig configures the streaming LLM provider (spec §4.5).
type AIConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// MCPProviderConfig is one configured enrichment provider (spec §4.8).
type MCPProviderConfig struct {
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// MCPConfig lists the enrichment providers to fan out IOC lookups to.
type MCPConfig struct {
	Providers []MCPProviderConfig `yaml:"providers"`
}

// AuthConfig configures the bearer-token lifecycle the API's /auth
// endpoints issue (spec §6: "token lifetimes"). Tokens are signed HMAC-SHA256
// JWTs keyed on Config.Secret — there is no separate auth secret to manage.
type AuthConfig struct {
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
}

// TimeoutConfig collects the timeouts named in spec §5.
type TimeoutConfig struct {
	Connect         time.Duration
	Command         time.Duration
	EnrichmentHTTP  time.Duration
	EventBusPublish time.Duration
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
