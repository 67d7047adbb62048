package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultSnapLogicURL is the conversion pipeline the relay forwards to when none is configured.
const DefaultSnapLogicURL = "https://emea.snaplogic.com/api/1/rest/slsched/feed/ptnrIWConnect/Accelerator/Initial/01_WM.SL_Initialization_API"

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	MCP           MCPConfig           `mapstructure:"mcp"`
	Client        ClientConfig        `mapstructure:"client"`
	Cache         CacheConfig         `mapstructure:"cache"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// AllowedOrigins is sent as Access-Control-Allow-Origin; "*" keeps the API CORS-open
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Type                   string `mapstructure:"type"` // "sqlite", "postgres" or "sqlserver"
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
	Seed                   bool   `mapstructure:"seed"`
	SeedFile               string `mapstructure:"seed_file"` // optional YAML seed, embedded defaults otherwise
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// Origins splits AllowedOrigins on commas
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RelayConfig configures the upload relay in front of the conversion API
type RelayConfig struct {
	URL                  string  `mapstructure:"url"`
	Token                string  `mapstructure:"token"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	MaxUploadBytes       int64   `mapstructure:"max_upload_bytes"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
	Burst                int     `mapstructure:"burst"`
	PollIntervalSeconds  int     `mapstructure:"poll_interval_seconds"`
	PollTimeoutSeconds   int     `mapstructure:"poll_timeout_seconds"`
	StatusTimeoutSeconds int     `mapstructure:"status_timeout_seconds"`
}

// Timeout returns the upload ceiling as a duration
func (r RelayConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// PollInterval returns the delay between job status queries
func (r RelayConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the overall ceiling for job status polling
func (r RelayConfig) PollTimeout() time.Duration {
	return time.Duration(r.PollTimeoutSeconds) * time.Second
}

// AuthConfig defines session token settings
type AuthConfig struct {
	SessionSecret        string `mapstructure:"session_secret"`
	SessionDurationHours int    `mapstructure:"session_duration_hours"`
	// RequireToken rejects /api calls without a valid bearer token
	RequireToken bool `mapstructure:"require_token"`
}

// NotificationsConfig defines the outbound email provider
type NotificationsConfig struct {
	ServiceType   string `mapstructure:"service_type"` // brevo, sendgrid, mailgun or custom
	APIKey        string `mapstructure:"api_key"`
	ServiceURL    string `mapstructure:"service_url"`
	MailgunDomain string `mapstructure:"mailgun_domain"`
	From          string `mapstructure:"from"`
	FromName      string `mapstructure:"from_name"`
}

// MCPConfig controls the Model Context Protocol endpoint
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// ClientConfig is read by the accelerator CLI
type ClientConfig struct {
	APIURL              string `mapstructure:"api_url"`
	RelayURL            string `mapstructure:"relay_url"`
	TickIntervalSeconds int    `mapstructure:"tick_interval_seconds"`
}

// CacheConfig selects the local session cache backend
type CacheConfig struct {
	Backend   string `mapstructure:"backend"` // "sqlite" or "redis"
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// legacyEnv maps configuration keys to the unprefixed variable names the
// hosted deployment already uses.
var legacyEnv = map[string]string{
	"relay.token":                  "SNAPLOGIC_API_TOKEN",
	"relay.url":                    "SNAPLOGIC_URL",
	"notifications.api_key":        "EMAIL_SERVICE_API_KEY",
	"notifications.service_type":   "EMAIL_SERVICE_TYPE",
	"notifications.service_url":    "EMAIL_SERVICE_URL",
	"notifications.from":           "EMAIL_FROM",
	"notifications.from_name":      "EMAIL_FROM_NAME",
	"notifications.mailgun_domain": "MAILGUN_DOMAIN",
}

func Load() (*Config, error) {
	// A missing .env is normal outside of local development
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("ACCELERATOR")
	// relay.timeout_seconds -> ACCELERATOR_RELAY_TIMEOUT_SECONDS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	for key, env := range legacyEnv {
		if err := viper.BindEnv(key, "ACCELERATOR_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", "*")
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "./data/accelerator.db")
	viper.SetDefault("database.seed", true)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_file", "./logs/accelerator.log")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("relay.url", DefaultSnapLogicURL)
	viper.SetDefault("relay.timeout_seconds", 300)
	viper.SetDefault("relay.max_upload_bytes", 512<<20)
	viper.SetDefault("relay.requests_per_second", 5.0)
	viper.SetDefault("relay.burst", 10)
	viper.SetDefault("relay.poll_interval_seconds", 2)
	viper.SetDefault("relay.poll_timeout_seconds", 600)
	viper.SetDefault("relay.status_timeout_seconds", 30)
	viper.SetDefault("auth.session_duration_hours", 24)
	viper.SetDefault("auth.require_token", false)
	viper.SetDefault("notifications.service_type", "brevo")
	viper.SetDefault("notifications.from", "noreply@iwconnect.com")
	viper.SetDefault("notifications.from_name", "IWConnect Migration Accelerator")
	viper.SetDefault("mcp.enabled", false)
	viper.SetDefault("mcp.address", ":8081")
	viper.SetDefault("client.api_url", "http://localhost:8080")
	viper.SetDefault("client.relay_url", "http://localhost:8080/upload")
	viper.SetDefault("client.tick_interval_seconds", 1)
	viper.SetDefault("cache.backend", "sqlite")
	viper.SetDefault("cache.path", defaultCachePath())
	viper.SetDefault("cache.redis_addr", "localhost:6379")
	viper.SetDefault("cache.key_prefix", "accelerator:")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/session.db"
	}
	return home + "/.accelerator/session.db"
}

// Validate reports configuration combinations the server cannot run with
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "sqlite3", "postgres", "postgresql", "sqlserver", "mssql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	switch c.Cache.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}

	switch strings.ToLower(c.Notifications.ServiceType) {
	case "brevo", "sendinblue", "sendgrid", "mailgun", "custom":
	default:
		return fmt.Errorf("unsupported email service type: %s", c.Notifications.ServiceType)
	}

	if c.Relay.TimeoutSeconds <= 0 {
		return fmt.Errorf("relay.timeout_seconds must be positive")
	}
	if c.Relay.PollIntervalSeconds <= 0 || c.Relay.PollTimeoutSeconds < c.Relay.PollIntervalSeconds {
		return fmt.Errorf("relay poll timeout must be at least one poll interval")
	}

	return nil
}
