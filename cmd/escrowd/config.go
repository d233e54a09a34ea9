package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/jdziat/agent-escrow/pkg/schedule"
)

// Config is the daemon configuration file.
type Config struct {
	Database   DatabaseConfig   `toml:"database" mapstructure:"database"`
	HTTP       HTTPConfig       `toml:"http" mapstructure:"http"`
	Oracle     OracleConfig     `toml:"oracle" mapstructure:"oracle"`
	Settlement SettlementConfig `toml:"settlement" mapstructure:"settlement"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
	Metrics    MetricsConfig    `toml:"metrics" mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Driver       string `toml:"driver" mapstructure:"driver"`
	DSN          string `toml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns" mapstructure:"max_open_conns"`
}

type HTTPConfig struct {
	Listen         string   `toml:"listen" mapstructure:"listen"`
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`
}

type OracleConfig struct {
	// Mode is "simulator" or "http".
	Mode       string `toml:"mode" mapstructure:"mode"`
	GatewayURL string `toml:"gateway_url" mapstructure:"gateway_url"`
	APIKey     string `toml:"api_key" mapstructure:"api_key"`
	// RouterKey is the key file the simulator signs callbacks with.
	RouterKey string `toml:"router_key" mapstructure:"router_key"`
	// SimulateOutput, when set, makes the simulator answer every request
	// with this output.
	SimulateOutput string `toml:"simulate_output" mapstructure:"simulate_output"`
}

type SettlementConfig struct {
	PollInterval   string `toml:"poll_interval" mapstructure:"poll_interval"`
	Concurrency    int    `toml:"concurrency" mapstructure:"concurrency"`
	RequestTimeout string `toml:"request_timeout" mapstructure:"request_timeout"`
	ExpirySchedule string `toml:"expiry_schedule" mapstructure:"expiry_schedule"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

type MetricsConfig struct {
	Interval string `toml:"interval" mapstructure:"interval"`
}

func defaultConfig(home string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          filepath.Join(home, "escrow.db"),
			MaxOpenConns: 25,
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8547",
		},
		Oracle: OracleConfig{
			Mode:      "simulator",
			RouterKey: filepath.Join(home, "router.key"),
		},
		Settlement: SettlementConfig{
			PollInterval:   "500ms",
			Concurrency:    4,
			RequestTimeout: "0s",
			ExpirySchedule: "1m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Interval: "10s",
		},
	}
}

// bindDefaults registers every key so ESCROWD_* variables override it.
func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetEnvPrefix("ESCROWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("http.listen", cfg.HTTP.Listen)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("oracle.mode", cfg.Oracle.Mode)
	v.SetDefault("oracle.gateway_url", cfg.Oracle.GatewayURL)
	v.SetDefault("oracle.api_key", cfg.Oracle.APIKey)
	v.SetDefault("oracle.router_key", cfg.Oracle.RouterKey)
	v.SetDefault("oracle.simulate_output", cfg.Oracle.SimulateOutput)
	v.SetDefault("settlement.poll_interval", cfg.Settlement.PollInterval)
	v.SetDefault("settlement.concurrency", cfg.Settlement.Concurrency)
	v.SetDefault("settlement.request_timeout", cfg.Settlement.RequestTimeout)
	v.SetDefault("settlement.expiry_schedule", cfg.Settlement.ExpirySchedule)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("metrics.interval", cfg.Metrics.Interval)
}

// loadConfig reads path (when it exists) over the defaults and the
// environment over both.
func loadConfig(home, path string) (Config, error) {
	v := viper.New()
	bindDefaults(v, defaultConfig(home))

	if path == "" {
		path = filepath.Join(home, "escrowd.toml")
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

// writeDefaultConfig writes the default configuration to path. It refuses
// to overwrite an existing file unless force is set.
func writeDefaultConfig(home, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(defaultConfig(home))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Oracle.Mode {
	case "simulator":
		if c.Oracle.RouterKey == "" {
			return fmt.Errorf("oracle.router_key is required in simulator mode")
		}
	case "http":
		if c.Oracle.GatewayURL == "" {
			return fmt.Errorf("oracle.gateway_url is required in http mode")
		}
	default:
		return fmt.Errorf("oracle.mode must be simulator or http, got %q", c.Oracle.Mode)
	}
	for name, d := range map[string]string{
		"settlement.poll_interval":   c.Settlement.PollInterval,
		"settlement.request_timeout": c.Settlement.RequestTimeout,
		"metrics.interval":           c.Metrics.Interval,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.metricsInterval() <= 0 {
		return fmt.Errorf("metrics.interval must be positive")
	}
	if c.pollInterval() <= 0 {
		return fmt.Errorf("settlement.poll_interval must be positive")
	}
	if c.requestTimeout() > 0 {
		if _, err := schedule.Parse(c.Settlement.ExpirySchedule); err != nil {
			return fmt.Errorf("settlement.expiry_schedule: %w", err)
		}
	}
	return nil
}

func (c Config) pollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Settlement.PollInterval)
	return d
}

func (c Config) requestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Settlement.RequestTimeout)
	return d
}

func (c Config) metricsInterval() time.Duration {
	d, _ := time.ParseDuration(c.Metrics.Interval)
	return d
}
