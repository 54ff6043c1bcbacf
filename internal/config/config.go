package config

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const envPrefix = "STATUS"

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	SourceURL string `mapstructure:"source_url"`

	FetchTimeoutSeconds      int `mapstructure:"fetch_timeout_seconds"`
	FetchBackoffSeconds      int `mapstructure:"fetch_backoff_seconds"`
	PollIntervalSeconds      int `mapstructure:"poll_interval_seconds"`
	ConnectDelaySeconds      int `mapstructure:"connect_delay_seconds"`
	MaxStatusAgeSeconds      int `mapstructure:"max_status_age_seconds"`
	MinChangeIntervalSeconds int `mapstructure:"min_change_interval_seconds"`

	SensorTimezone string `mapstructure:"sensor_timezone"`
	SpaceName      string `mapstructure:"space_name"`

	DBPath  string `mapstructure:"db_path"`
	APIPort int    `mapstructure:"api_port"`

	// notifications
	Channels      []string `mapstructure:"channels"`
	QuietChannels []string `mapstructure:"quiet_channels"`
	UseNotice     bool     `mapstructure:"use_notice"`
	NtfyServer    string   `mapstructure:"ntfy_server"`
	AlertChannel  string   `mapstructure:"alert_channel"`

	OfflineAfterFailures int `mapstructure:"offline_after_failures"`

	Parked        bool   `mapstructure:"parked"`
	ParkedMessage string `mapstructure:"parked_message"`

	// metrics
	EnableDatadog bool     `mapstructure:"enable_datadog"`
	DDAgentAddr   string   `mapstructure:"dd_agent_addr"`
	DDNamespace   string   `mapstructure:"dd_namespace"`
	DDTags        []string `mapstructure:"dd_tags"`
}

var defaults = map[string]interface{}{
	"source_url":                  "",
	"fetch_timeout_seconds":       30,
	"fetch_backoff_seconds":       3,
	"poll_interval_seconds":       3,
	"connect_delay_seconds":       15,
	"max_status_age_seconds":      300,
	"min_change_interval_seconds": 0,
	"sensor_timezone":             "America/New_York",
	"space_name":                  "HacDC",
	"db_path":                     ":memory:",
	"api_port":                    8080,
	"channels":                    []string{},
	"quiet_channels":              []string{},
	"use_notice":                  false,
	"ntfy_server":                 "https://ntfy.sh",
	"alert_channel":               "",
	"offline_after_failures":      100,
	"parked":                      false,
	"parked_message":              "",
	"enable_datadog":              false,
	"dd_agent_addr":               "127.0.0.1:8125",
	"dd_namespace":                "space_status.",
	"dd_tags":                     []string{},
}

// Load reads the command line, the config file and the environment. Invalid
// configuration panics.
func Load() Config {
	var configFile, logLevel, logFile string

	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to status bot config file (json or yaml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "", "Optional log file, in addition to stderr")
	flag.Parse()

	cfg, err := LoadFromFile(configFile)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.LogFile = logFile
	return cfg
}

// LoadFromFile reads path, which may be empty to use only defaults and
// STATUS_* environment variables, and validates the result.
func LoadFromFile(path string) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ConfigFile = path
	cfg.LogLevel = zerolog.InfoLevel

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() error {
	var problems []string

	if strings.TrimSpace(cfg.SourceURL) == "" {
		problems = append(problems, "source_url is required")
	}

	positive := map[string]int{
		"fetch_timeout_seconds":  cfg.FetchTimeoutSeconds,
		"fetch_backoff_seconds":  cfg.FetchBackoffSeconds,
		"poll_interval_seconds":  cfg.PollIntervalSeconds,
		"offline_after_failures": cfg.OfflineAfterFailures,
	}
	for name, val := range positive {
		if val <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %d", name, val))
		}
	}

	nonNegative := map[string]int{
		"connect_delay_seconds":       cfg.ConnectDelaySeconds,
		"max_status_age_seconds":      cfg.MaxStatusAgeSeconds,
		"min_change_interval_seconds": cfg.MinChangeIntervalSeconds,
	}
	for name, val := range nonNegative {
		if val < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative, got %d", name, val))
		}
	}

	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("api_port out of range: %d", cfg.APIPort))
	}
	if _, err := time.LoadLocation(cfg.SensorTimezone); err != nil {
		problems = append(problems, fmt.Sprintf("sensor_timezone %q: %v", cfg.SensorTimezone, err))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (cfg Config) FetchTimeout() time.Duration {
	return time.Duration(cfg.FetchTimeoutSeconds) * time.Second
}

func (cfg Config) FetchBackoff() time.Duration {
	return time.Duration(cfg.FetchBackoffSeconds) * time.Second
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalSeconds) * time.Second
}

func (cfg Config) ConnectDelay() time.Duration {
	return time.Duration(cfg.ConnectDelaySeconds) * time.Second
}

func (cfg Config) MaxStatusAge() time.Duration {
	return time.Duration(cfg.MaxStatusAgeSeconds) * time.Second
}

func (cfg Config) MinChangeInterval() time.Duration {
	return time.Duration(cfg.MinChangeIntervalSeconds) * time.Second
}

// Location returns the sensor's timezone. validate has already checked it.
func (cfg Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.SensorTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
