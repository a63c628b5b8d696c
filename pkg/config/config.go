package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

const (
	envConfigPath  = "LINERELAY_CONFIG"
	envLineEnabled = "LINE_ENABLED"

	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"

	RelayModeLock      = "lock"
	RelayModeBroadcast = "broadcast"
	RelayModeFixed     = "fixed"

	defaultGatewayHost        = "0.0.0.0"
	defaultGatewayPort        = 3000
	defaultCallbackPath       = "/callback"
	defaultSQLitePath         = "linerelay.db"
	defaultQueryTimeout       = 5
	defaultTelegramSendRate   = 25
	defaultTracingServiceName = "linerelay"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Store    StoreConfig    `json:"store"`
	Relay    RelayConfig    `json:"relay"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Tracing  TracingConfig  `json:"tracing,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores messaging platform settings.
type ChannelsConfig struct {
	Line     LineConfig     `json:"line"`
	Telegram TelegramConfig `json:"telegram"`
}

// LineConfig configures the LINE Messaging API channel.
type LineConfig struct {
	Enabled            bool   `json:"enabled" env:"LINE_ENABLED"`
	ChannelSecret      string `json:"channel_secret" env:"CHANNEL_SECRET"`
	ChannelAccessToken string `json:"channel_access_token" env:"CHANNEL_ACCESS_TOKEN"`
	CallbackPath       string `json:"callback_path"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" env:"TELEGRAM_ENABLED"`
	Token   string `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	// SendRatePerSecond caps outbound sends so multicast stays under the bot API flood limit.
	SendRatePerSecond float64 `json:"send_rate_per_second"`
}

// StoreConfig selects and configures the subscriber/message store.
type StoreConfig struct {
	Driver              string `json:"driver" env:"LINERELAY_STORE_DRIVER"`
	DSN                 string `json:"dsn" env:"DATABASE_URL"`
	QueryTimeoutSeconds int    `json:"query_timeout_seconds"`
	AutoMigrate         bool   `json:"auto_migrate" env:"LINERELAY_AUTO_MIGRATE"`
	// Subscribers seeds the memory driver; other drivers ignore it.
	Subscribers []SubscriberSeed `json:"subscribers,omitempty"`
}

// SubscriberSeed describes one administrator row for the memory store.
type SubscriberSeed struct {
	UserID string `json:"user_id"`
	// Channel defaults to "line".
	Channel          string `json:"channel,omitempty"`
	Active           bool   `json:"active"`
	ActiveChatTarget string `json:"active_chat_target,omitempty"`
}

// RelayConfig configures routing behavior.
type RelayConfig struct {
	Mode           string         `json:"mode" env:"LINERELAY_RELAY_MODE"`
	FixedAdminID   string         `json:"fixed_admin_id" env:"LINERELAY_FIXED_ADMIN_ID"`
	FixedTargetID  string         `json:"fixed_target_id" env:"LINERELAY_FIXED_TARGET_ID"`
	SelfIDCommands []string       `json:"self_id_commands" env:"LINERELAY_SELF_ID_COMMANDS"`
	Messages       MessagesConfig `json:"messages,omitempty"`
}

// MessagesConfig overrides user-visible reply texts. Empty fields keep the built-in text.
type MessagesConfig struct {
	SelfID            string `json:"self_id,omitempty"`
	NoTarget          string `json:"no_target,omitempty"`
	ForwardFailed     string `json:"forward_failed,omitempty"`
	LockConfirmed     string `json:"lock_confirmed,omitempty"`
	LockFailed        string `json:"lock_failed,omitempty"`
	UnknownUser       string `json:"unknown_user,omitempty"`
	DefaultTargetName string `json:"default_target_name,omitempty"`
}

// GatewayConfig configures HTTP bind settings.
type GatewayConfig struct {
	Host string `json:"host" env:"HOST"`
	Port int    `json:"port" env:"PORT"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"LINERELAY_TRACING_ENABLED"`
	Endpoint    string `json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool   `json:"insecure"`
	ServiceName string `json:"service_name"`
}

// LoadConfig resolves the config file, unmarshals it, and applies environment overrides.
//
// An explicit path that does not exist is an error. Without an explicit path and
// without any local config file the configuration is built from environment only.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadStoreConfig loads the same sources as LoadConfig but validates only the
// store section, for operator commands that never touch a channel.
func LoadStoreConfig(path string) (StoreConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return StoreConfig{}, err
	}
	if err := errors.Join(cfg.validateStore()...); err != nil {
		return StoreConfig{}, err
	}

	return cfg.Store, nil
}

// LoadOperatorConfig loads the same sources as LoadConfig and validates the
// store and relay sections. Channel credentials are not required.
func LoadOperatorConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	errs := append(cfg.validateStore(), cfg.validateRelay()...)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	configPath, err := findConfigPath(path)
	if err != nil {
		return nil, err
	}

	lineExplicit := false
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json5.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		var probe lineEnabledProbe
		if err := json5.Unmarshal(content, &probe); err == nil {
			lineExplicit = probe.Channels.Line.Enabled != nil
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}
	if _, ok := os.LookupEnv(envLineEnabled); ok {
		lineExplicit = true
	}

	// Credentials alone enable LINE unless enabled is set either way.
	line := &cfg.Channels.Line
	if !lineExplicit && strings.TrimSpace(line.ChannelSecret) != "" && strings.TrimSpace(line.ChannelAccessToken) != "" {
		line.Enabled = true
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// lineEnabledProbe tells an absent channels.line.enabled from an explicit false.
type lineEnabledProbe struct {
	Channels struct {
		Line struct {
			Enabled *bool `json:"enabled"`
		} `json:"line"`
	} `json:"channels"`
}

// ApplyDefaults fills unset fields with runtime defaults.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}

	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = defaultGatewayHost
	}
	if c.Gateway.Port <= 0 {
		c.Gateway.Port = defaultGatewayPort
	}
	if strings.TrimSpace(c.Channels.Line.CallbackPath) == "" {
		c.Channels.Line.CallbackPath = defaultCallbackPath
	}
	if c.Channels.Telegram.SendRatePerSecond <= 0 {
		c.Channels.Telegram.SendRatePerSecond = defaultTelegramSendRate
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverMemory
	}
	if c.Store.Driver == StoreDriverSQLite && strings.TrimSpace(c.Store.DSN) == "" {
		c.Store.DSN = defaultSQLitePath
	}
	if c.Store.QueryTimeoutSeconds <= 0 {
		c.Store.QueryTimeoutSeconds = defaultQueryTimeout
	}

	c.Relay.Mode = strings.ToLower(strings.TrimSpace(c.Relay.Mode))
	if c.Relay.Mode == "" {
		c.Relay.Mode = RelayModeLock
	}
	c.Relay.SelfIDCommands = compact(c.Relay.SelfIDCommands)

	if strings.TrimSpace(c.Tracing.ServiceName) == "" {
		c.Tracing.ServiceName = defaultTracingServiceName
	}
}

// Validate reports configuration combinations the gateway cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	var errs []error

	line := c.Channels.Line
	if !line.Enabled && !c.Channels.Telegram.Enabled {
		errs = append(errs, errors.New("no channels are enabled"))
	}
	if line.Enabled {
		if strings.TrimSpace(line.ChannelSecret) == "" {
			errs = append(errs, errors.New("channels.line.channel_secret is required"))
		}
		if strings.TrimSpace(line.ChannelAccessToken) == "" {
			errs = append(errs, errors.New("channels.line.channel_access_token is required"))
		}
		if !strings.HasPrefix(line.CallbackPath, "/") {
			errs = append(errs, fmt.Errorf("channels.line.callback_path must start with '/': %q", line.CallbackPath))
		}
	}
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		errs = append(errs, errors.New("channels.telegram.token is required"))
	}

	errs = append(errs, c.validateStore()...)

	errs = append(errs, c.validateRelay()...)

	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.Endpoint) == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateRelay() []error {
	switch c.Relay.Mode {
	case RelayModeLock, RelayModeBroadcast:
		return nil
	case RelayModeFixed:
		if strings.TrimSpace(c.Relay.FixedAdminID) == "" || strings.TrimSpace(c.Relay.FixedTargetID) == "" {
			return []error{errors.New("relay.fixed_admin_id and relay.fixed_target_id are required in fixed mode")}
		}
		return nil
	default:
		return []error{fmt.Errorf("unsupported relay mode %q", c.Relay.Mode)}
	}
}

func (c *Config) validateStore() []error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverSQLite:
		return nil
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return []error{errors.New("store.dsn is required for the postgres driver")}
		}
		return nil
	default:
		return []error{fmt.Errorf("unsupported store driver %q", c.Store.Driver)}
	}
}

// compact trims values and drops empty entries.
func compact(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is the explicit path, then LINERELAY_CONFIG, then cwd-local fallback paths.
// It returns an empty path when no fallback file exists.
func findConfigPath(explicit string) (string, error) {
	if value := strings.TrimSpace(explicit); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("config path does not point to a file: %s", value)
	}

	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
