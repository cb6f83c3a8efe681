package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/tabstrip/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	UI            UIConfig      `mapstructure:"ui" yaml:"ui"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	BasePath        string `mapstructure:"base_path" yaml:"base_path"`
	SessionCookie   string `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	HubHistory      int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// SSHConfig configures the SSH server.
type SSHConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath    string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeys string `mapstructure:"authorized_keys" yaml:"authorized_keys"`
}

// UIConfig controls tab strip presentation.
type UIConfig struct {
	Theme          string `mapstructure:"theme" yaml:"theme"`
	FlipDurationMs int    `mapstructure:"flip_duration_ms" yaml:"flip_duration_ms"`
}

// LoggingConfig controls log level and the optional rotating log file.
type LoggingConfig struct {
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		HTTP: HTTPConfig{
			Addr:            ":27580",
			BaseURL:         "",
			BasePath:        "",
			SessionCookie:   "tabstrip_session",
			SessionTTLHours: 24,
			HubHistory:      256,
		},
		SSH: SSHConfig{
			Addr:           ":27522",
			HostKeyPath:    filepath.Join(home, ".tabstrip", "ssh_host_key"),
			AuthorizedKeys: "",
		},
		UI: UIConfig{
			Theme:          string(schema.DefaultTheme),
			FlipDurationMs: schema.DefaultFlipDurationMs,
		},
		Logging: LoggingConfig{
			Debug:      false,
			File:       "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabstrip", "config.yaml"), nil
}
