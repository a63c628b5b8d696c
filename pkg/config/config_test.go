package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  // comments are allowed
	  "channels": {"line": {"enabled": true, "channel_secret": "secret", "channel_access_token": "token"}},
	  "store": {"driver": "SQLite", "dsn": "relay.db"},
	  "relay": {"self_id_commands": [" myid ", "", "whoami"]},
	  "gateway": {"host": "127.0.0.1", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true},
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv(envConfigPath, path)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Fatalf("store.driver = %q, want %q", cfg.Store.Driver, StoreDriverSQLite)
	}
	if cfg.Relay.Mode != RelayModeLock {
		t.Fatalf("relay.mode = %q, want %q", cfg.Relay.Mode, RelayModeLock)
	}
	if got := strings.Join(cfg.Relay.SelfIDCommands, ","); got != "myid,whoami" {
		t.Fatalf("relay.self_id_commands = %q, want %q", got, "myid,whoami")
	}
	if cfg.Channels.Line.CallbackPath != defaultCallbackPath {
		t.Fatalf("channels.line.callback_path = %q, want %q", cfg.Channels.Line.CallbackPath, defaultCallbackPath)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigExplicitPathMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestLoadConfigEnvironmentOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfigPath, "")
	t.Setenv("LINE_ENABLED", "true")
	t.Setenv("CHANNEL_SECRET", "env-secret")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "env-token")
	t.Setenv("PORT", "8080")
	t.Setenv("LINERELAY_RELAY_MODE", "fixed")
	t.Setenv("LINERELAY_FIXED_ADMIN_ID", "Uadmin")
	t.Setenv("LINERELAY_FIXED_TARGET_ID", "Utarget")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Channels.Line.ChannelSecret != "env-secret" {
		t.Fatalf("channel_secret = %q, want %q", cfg.Channels.Line.ChannelSecret, "env-secret")
	}
	if cfg.Gateway.Port != 8080 {
		t.Fatalf("gateway.port = %d, want 8080", cfg.Gateway.Port)
	}
	if cfg.Relay.Mode != RelayModeFixed || cfg.Relay.FixedTargetID != "Utarget" {
		t.Fatalf("relay = %+v, want fixed mode targeting Utarget", cfg.Relay)
	}
	if cfg.Store.Driver != StoreDriverMemory {
		t.Fatalf("store.driver = %q, want %q", cfg.Store.Driver, StoreDriverMemory)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no channels",
			mutate:  func(c *Config) { c.Channels.Line.Enabled = false },
			wantErr: "no channels are enabled",
		},
		{
			name:    "line secret missing",
			mutate:  func(c *Config) { c.Channels.Line.ChannelSecret = "" },
			wantErr: "channel_secret is required",
		},
		{
			name:    "telegram token missing",
			mutate:  func(c *Config) { c.Channels.Telegram.Enabled = true },
			wantErr: "channels.telegram.token is required",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Driver = StoreDriverPostgres },
			wantErr: "store.dsn is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "redis" },
			wantErr: "unsupported store driver",
		},
		{
			name:    "fixed mode without ids",
			mutate:  func(c *Config) { c.Relay.Mode = RelayModeFixed },
			wantErr: "fixed_admin_id and relay.fixed_target_id are required",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Relay.Mode = "roundrobin" },
			wantErr: "unsupported relay mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func validConfig() *Config {
	cfg := &Config{
		Channels: ChannelsConfig{
			Line: LineConfig{Enabled: true, ChannelSecret: "secret", ChannelAccessToken: "token"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestLoadStoreConfigSkipsChannelValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfigPath, "")
	unsetEnv(t, envLineEnabled, "CHANNEL_SECRET", "CHANNEL_ACCESS_TOKEN", "TELEGRAM_ENABLED")
	t.Setenv("LINERELAY_STORE_DRIVER", "sqlite")

	cfg, err := LoadStoreConfig("")
	if err != nil {
		t.Fatalf("LoadStoreConfig error: %v", err)
	}
	if cfg.Driver != StoreDriverSQLite || cfg.DSN != defaultSQLitePath {
		t.Fatalf("store = %+v, want sqlite at %q", cfg, defaultSQLitePath)
	}

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected LoadConfig to reject a config without channels")
	}

	t.Setenv("LINERELAY_STORE_DRIVER", "postgres")
	if _, err := LoadStoreConfig(""); err == nil {
		t.Fatal("expected postgres without dsn to be rejected")
	}
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadConfigEnablesLineFromCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetEnv(t, envConfigPath, envLineEnabled)
	t.Setenv("CHANNEL_SECRET", "secret")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "token")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if !cfg.Channels.Line.Enabled {
		t.Fatal("channels.line.enabled = false, want true when both credentials are set")
	}
}

func TestLoadConfigExplicitLineDisableWins(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetEnv(t, envConfigPath)
	t.Setenv("CHANNEL_SECRET", "secret")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "token")
	t.Setenv(envLineEnabled, "false")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "no channels are enabled") {
		t.Fatalf("LoadConfig error = %v, want no channels are enabled", err)
	}

	unsetEnv(t, envLineEnabled)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"channels": {"line": {"enabled": false}}}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a file with enabled=false to keep LINE disabled")
	}
}

func TestLoadOperatorConfigValidatesRelayOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetEnv(t, envConfigPath, envLineEnabled, "CHANNEL_SECRET", "CHANNEL_ACCESS_TOKEN", "TELEGRAM_ENABLED")
	t.Setenv("LINERELAY_RELAY_MODE", "broadcast")

	cfg, err := LoadOperatorConfig("")
	if err != nil {
		t.Fatalf("LoadOperatorConfig error: %v", err)
	}
	if cfg.Relay.Mode != RelayModeBroadcast {
		t.Fatalf("relay.mode = %q, want %q", cfg.Relay.Mode, RelayModeBroadcast)
	}

	t.Setenv("LINERELAY_RELAY_MODE", "fixed")
	if _, err := LoadOperatorConfig(""); err == nil {
		t.Fatal("expected fixed mode without ids to be rejected")
	}
}
