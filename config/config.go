package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/aurapair/handshake"
	"github.com/user/aurapair/protocol"
)

const (
	EnvPrefix = "AURAPAIR"

	BackendSim   = "sim"
	BackendBlueZ = "bluez"
)

// Config is the resolved runtime configuration.
type Config struct {
	LocalName   string        `mapstructure:"local_name"`
	LocalID     string        `mapstructure:"local_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LogLevel    string        `mapstructure:"log_level"`
	EventLog    string        `mapstructure:"event_log"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	DataDir     string        `mapstructure:"data_dir"`
	Output      string        `mapstructure:"output"`

	Radio RadioConfig `mapstructure:"radio"`
	Host  HostConfig  `mapstructure:"host"`
}

type RadioConfig struct {
	Backend string `mapstructure:"backend"`
	Adapter string `mapstructure:"adapter"`
}

type HostConfig struct {
	Name        string `mapstructure:"name"`
	SSID        string `mapstructure:"ssid"`
	Password    string `mapstructure:"password"`
	Address     string `mapstructure:"address"`
	Port        int    `mapstructure:"port"`
	AutoApprove bool   `mapstructure:"auto_approve"`
}

// Network returns the parameters the host hands out on approval.
func (h HostConfig) Network() protocol.HandshakeResponse {
	return protocol.HandshakeResponse{
		NetworkName:     h.SSID,
		NetworkPassword: h.Password,
		HostAddress:     h.Address,
		HostPort:        h.Port,
	}
}

// DataDir returns the directory for logs and state. AURAPAIR_DIR wins over
// the home directory default.
func DataDir() string {
	if envDir := os.Getenv("AURAPAIR_DIR"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aurapair"
	}
	return filepath.Join(home, ".aurapair")
}

// SetDefaults configures the standard defaults on a Viper instance. Every
// key gets one so AutomaticEnv can see it during Unmarshal.
func SetDefaults(v *viper.Viper) {
	hostname, _ := os.Hostname()
	v.SetDefault("local_name", hostname)
	v.SetDefault("local_id", "")
	v.SetDefault("timeout", handshake.DefaultTimeout)
	v.SetDefault("log_level", "info")
	v.SetDefault("event_log", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("data_dir", DataDir())
	v.SetDefault("output", "text")
	v.SetDefault("radio.backend", BackendSim)
	v.SetDefault("radio.adapter", "hci0")
	v.SetDefault("host.name", "")
	v.SetDefault("host.ssid", "")
	v.SetDefault("host.password", "")
	v.SetDefault("host.address", "")
	v.SetDefault("host.port", protocol.DefaultPort)
	v.SetDefault("host.auto_approve", false)
}

// BindFlags registers the shared flags on cmd and binds them to v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()

	f.String("config", "", "config file path")
	f.String("data-dir", "", "data directory (default ~/.aurapair)")
	f.String("log-level", "", "log level (trace, debug, info, warn, error)")
	f.String("event-log", "", "append handshake events to this JSONL file")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("backend", "", "radio backend (sim, bluez)")
	f.String("adapter", "", "BlueZ adapter name (default hci0)")
	f.StringP("output", "o", "", "output format (text, json)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("event_log", f.Lookup("event-log"))
	_ = v.BindPFlag("metrics_addr", f.Lookup("metrics-addr"))
	_ = v.BindPFlag("radio.backend", f.Lookup("backend"))
	_ = v.BindPFlag("radio.adapter", f.Lookup("adapter"))
	_ = v.BindPFlag("output", f.Lookup("output"))
}

// Load reads config from flags, env, and file. A missing config file is
// only an error when configFile names it explicitly.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath("/etc/aurapair")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.LocalID == "" {
		cfg.LocalID = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that viper cannot.
func (c Config) Validate() error {
	switch c.Radio.Backend {
	case BackendSim, BackendBlueZ:
	default:
		return fmt.Errorf("config: unknown radio backend %q", c.Radio.Backend)
	}
	switch c.Output {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown output format %q", c.Output)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout %s", c.Timeout)
	}
	if c.Host.Port < 0 || c.Host.Port > 65535 {
		return fmt.Errorf("config: host port %d out of range", c.Host.Port)
	}
	return nil
}

// EventLogPath resolves event_log relative to the data directory.
func (c Config) EventLogPath() string {
	if c.EventLog == "" || filepath.IsAbs(c.EventLog) {
		return c.EventLog
	}
	return filepath.Join(c.DataDir, c.EventLog)
}
