// Package config loads and validates server configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Deployment modes understood by the bootstrap sequence.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
	ModeServerless  = "serverless"
)

// Startup profiles.
const (
	ProfileNormal    = "normal"
	ProfileEmergency = "emergency"
)

// DefaultAllowHeaders is the request header allow-list sent with every CORS response.
var DefaultAllowHeaders = []string{
	"X-CSRF-Token",
	"X-Requested-With",
	"Accept",
	"Accept-Version",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"Date",
	"X-Api-Version",
	"Authorization",
	"x-client-version",
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Hooks     HooksConfig     `mapstructure:"hooks"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// AppConfig names the service in payloads and announcements.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	Mode              string        `mapstructure:"mode"`
	Profile           string        `mapstructure:"profile"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	// DebugErrors puts panic text into 500 payloads.
	DebugErrors bool `mapstructure:"debug_errors"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls the Postgres pool and its liveness probing.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	Required        bool          `mapstructure:"required"`
}

// TelemetryConfig shapes the per-request log lines.
type TelemetryConfig struct {
	APIPrefix  string `mapstructure:"api_prefix"`
	SummaryCap int    `mapstructure:"summary_cap"`
}

// AssetsConfig selects how the UI bundle is served.
type AssetsConfig struct {
	StaticDir    string        `mapstructure:"static_dir"`
	PublicDir    string        `mapstructure:"public_dir"`
	GCSBucket    string        `mapstructure:"gcs_bucket"`
	GCSPrefix    string        `mapstructure:"gcs_prefix"`
	DevServerURL string        `mapstructure:"dev_server_url"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

// HooksConfig tunes the post-ready tasks.
type HooksConfig struct {
	Delay    time.Duration `mapstructure:"delay"`
	BrainURL string        `mapstructure:"brain_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PubSubConfig holds metadata for the ready announcement topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NATSConfig points at an optional NATS broker. When set, the broker is
// probed like the database and receives the ready announcement if Pub/Sub is
// not configured.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Subject        string        `mapstructure:"subject"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// CORSConfig lists the request headers echoed in Access-Control-Allow-Headers.
type CORSConfig struct {
	AllowHeaders []string `mapstructure:"allow_headers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EMPIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindPlatformEnv(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.Mode = strings.ToLower(strings.TrimSpace(cfg.Server.Mode))
	env := platformEnv()
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = modeForPlatformEnv(env)
	}
	if !v.IsSet("server.debug_errors") {
		cfg.Server.DebugErrors = cfg.Server.Mode == ModeDevelopment || env == ModeDevelopment
	}
	if _, onVercel := os.LookupEnv("VERCEL"); onVercel {
		cfg.Server.Mode = ModeServerless
	}
	if !v.IsSet("logging.development") {
		cfg.Logging.Development = cfg.IsDevelopment()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindPlatformEnv maps the variables hosting platforms set on their own.
func bindPlatformEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "EMPIRE_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.mode", "EMPIRE_SERVER_MODE")
	_ = v.BindEnv("server.debug_errors", "EMPIRE_SERVER_DEBUG_ERRORS")
	_ = v.BindEnv("database.dsn", "EMPIRE_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("nats.url", "EMPIRE_NATS_URL", "NATS_URL")
}

// platformEnv returns the lower-cased APP_ENV, or NODE_ENV when APP_ENV is empty.
func platformEnv() string {
	for _, key := range []string{"APP_ENV", "NODE_ENV"} {
		if val := strings.ToLower(strings.TrimSpace(os.Getenv(key))); val != "" {
			return val
		}
	}
	return ""
}

// modeForPlatformEnv maps a platform environment name to a mode. Unset means
// development; names other than the known modes (test, staging, ...) run as
// production.
func modeForPlatformEnv(env string) string {
	switch env {
	case "":
		return ModeDevelopment
	case ModeDevelopment, ModeProduction, ModeServerless:
		return env
	default:
		return ModeProduction
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Findawise Empire API")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.profile", ProfileNormal)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.probe_timeout", "3s")
	v.SetDefault("database.monitor_interval", "5m")
	v.SetDefault("database.required", false)
	v.SetDefault("telemetry.api_prefix", "/api")
	v.SetDefault("telemetry.summary_cap", 80)
	v.SetDefault("assets.static_dir", "dist/public")
	v.SetDefault("assets.public_dir", "public")
	v.SetDefault("assets.dev_server_url", "http://localhost:5173")
	v.SetDefault("assets.check_timeout", "2s")
	v.SetDefault("hooks.delay", "2s")
	v.SetDefault("hooks.timeout", "5s")
	v.SetDefault("nats.subject", "empire.server.ready")
	v.SetDefault("nats.connect_timeout", "2s")
	v.SetDefault("cors.allow_headers", DefaultAllowHeaders)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch c.Server.Mode {
	case ModeDevelopment, ModeProduction, ModeServerless:
	default:
		return fmt.Errorf("server.mode must be one of development, production, serverless (got %q)", c.Server.Mode)
	}
	switch c.Server.Profile {
	case ProfileNormal, ProfileEmergency:
	default:
		return fmt.Errorf("server.profile must be normal or emergency (got %q)", c.Server.Profile)
	}
	if c.Database.ProbeTimeout <= 0 {
		return fmt.Errorf("database.probe_timeout must be > 0")
	}
	if c.Database.MonitorInterval < 0 {
		return fmt.Errorf("database.monitor_interval must not be negative")
	}
	if c.Telemetry.SummaryCap <= 1 {
		return fmt.Errorf("telemetry.summary_cap must be > 1")
	}
	if !strings.HasPrefix(c.Telemetry.APIPrefix, "/") {
		return fmt.Errorf("telemetry.api_prefix must start with /")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject is required when nats.url is set")
	}
	return nil
}

// IsDevelopment reports whether the development profile (live asset reload,
// verbose error messages) applies.
func (c Config) IsDevelopment() bool {
	return c.Server.Mode == ModeDevelopment
}

// IsServerless reports whether the process runs as a per-invocation function.
func (c Config) IsServerless() bool {
	return c.Server.Mode == ModeServerless
}

// Addr returns the listen address for persistent mode.
func (c Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Server.Port)
}
