package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from flags, environment variables and .env files.
type Config struct {
	AppName        string        `mapstructure:"app_name"`
	Env            string        `mapstructure:"app_env"`
	LogLevel       string        `mapstructure:"log_level"`
	ScrapydURL     string        `mapstructure:"scrapyd_url"`
	Target         string        `mapstructure:"target"`
	TargetsFile    string        `mapstructure:"targets_file"`
	UserAgent      string        `mapstructure:"user_agent"`
	TimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	RequestTimeout time.Duration `mapstructure:"-"`

	JournalType            string        `mapstructure:"journal_type"`
	JournalPath            string        `mapstructure:"journal_path"`
	JournalTTLSeconds      int64         `mapstructure:"journal_ttl_seconds"`
	JournalCleanupSeconds  int64         `mapstructure:"journal_cleanup_interval_seconds"`
	JournalTTL             time.Duration `mapstructure:"-"`
	JournalCleanupInterval time.Duration `mapstructure:"-"`

	NotifiersFile string `mapstructure:"notifiers_file"`
}

// RegisterFlags declares the global command line flags on fs. Flag names use
// dashes; they map onto the underscore config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("scrapyd-url", "", "Scrapyd base URL (overrides SCRAPYD_URL)")
	fs.StringP("target", "t", "", "named target from the targets file")
	fs.String("targets-file", "", "YAML/JSON file with named targets")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.Int64("timeout", 0, "request timeout in seconds")
	fs.String("journal-path", "", "bbolt file used to remember scheduled jobs")
	fs.String("notifiers-file", "", "YAML/JSON file with job event notifiers")
}

var flagKeys = map[string]string{
	"scrapyd-url":    "scrapyd_url",
	"target":         "target",
	"targets-file":   "targets_file",
	"log-level":      "log_level",
	"timeout":        "request_timeout_seconds",
	"journal-path":   "journal_path",
	"notifiers-file": "notifiers_file",
}

// Load reads configuration from environment variables and, when fs is not nil,
// from flags explicitly set on it.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "scrapydctl")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "warn")
	v.SetDefault("scrapyd_url", "http://localhost:6800")
	v.SetDefault("target", "")
	v.SetDefault("targets_file", "./configs/targets.yaml")
	v.SetDefault("user_agent", "scrapydctl/1.0")
	v.SetDefault("request_timeout_seconds", 30)
	v.SetDefault("journal_type", "bbolt")
	v.SetDefault("journal_path", "./data/jobs.db")
	v.SetDefault("journal_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("journal_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("notifiers_file", "")

	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ScrapydURL = strings.TrimSpace(cfg.ScrapydURL)
	if cfg.ScrapydURL == "" && strings.TrimSpace(cfg.Target) == "" {
		return nil, fmt.Errorf("scrapyd_url or target is required")
	}

	if cfg.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	cfg.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.JournalTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_ttl_seconds (must be positive seconds)")
	}
	if cfg.JournalCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.JournalTTL = time.Duration(cfg.JournalTTLSeconds) * time.Second
	cfg.JournalCleanupInterval = time.Duration(cfg.JournalCleanupSeconds) * time.Second

	return &cfg, nil
}
