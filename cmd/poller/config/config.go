// Package config implements the rulesync poller config.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all poller configuration.
type Config struct {
	ConfigFile string `yaml:"-"`

	Listen string `yaml:"listen"`

	// ntopng
	NtopURL      string        `yaml:"ntop_url"`
	NtopUser     string        `yaml:"ntop_user"`
	NtopPassword string        `yaml:"ntop_password"`
	InterfaceID  int           `yaml:"interface_id"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Timing
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
	Once     bool          `yaml:"once"`

	// Window storage
	Storage       string `yaml:"storage"`
	HistoryPath   string `yaml:"history_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`

	// Outputs
	RankPath    string `yaml:"rank_path"`
	SummaryPath string `yaml:"summary_path"`

	// In-process rule sync after each poll
	SyncAfterPoll bool   `yaml:"sync_after_poll"`
	RuleDir       string `yaml:"rule_dir"`
	WhitelistPath string `yaml:"whitelist_path"`
	DisablePath   string `yaml:"disable_path"`
	ReloadCommand string `yaml:"reload_command"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

// ParseFlags parses command-line flags and environment variables into a Config.
// When -config names a YAML file, its values replace the defaults and
// explicitly set flags still take precedence. Exits with status 1 on an
// invalid configuration.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigFile, "config", getEnv("CONFIG", ""), "Optional YAML config file")

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")

	// ntopng
	flag.StringVar(&cfg.NtopURL, "ntop-url", getEnv("NTOP_URL", "http://127.0.0.1:3000"), "ntopng base URL")
	flag.StringVar(&cfg.NtopUser, "ntop-user", getEnv("NTOP_USER", "admin"), "ntopng user")
	flag.StringVar(&cfg.NtopPassword, "ntop-password", getEnv("NTOP_PASSWORD", ""), "ntopng password")
	flag.IntVar(&cfg.InterfaceID, "ifid", getEnvInt("NTOP_IFID", 2), "ntopng interface id")
	flag.DurationVar(&cfg.FetchTimeout, "fetch-timeout", getEnvDuration("FETCH_TIMEOUT", 10*time.Second), "Telemetry fetch timeout")

	// Timing
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", time.Minute), "Poll interval")
	flag.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 60*time.Minute), "Rolling window duration")
	flag.BoolVar(&cfg.Once, "once", getEnvBool("ONCE", false), "Poll once and exit (cron mode)")

	// Storage
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Window storage: file or redis")
	flag.StringVar(&cfg.HistoryPath, "history", getEnv("HISTORY_PATH", "/var/lib/rulesync/protocol_history.json"), "Window file (file storage)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address (redis storage)")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database")
	flag.StringVar(&cfg.RedisKey, "redis-key", getEnv("REDIS_KEY", "rulesync:window"), "Redis key holding the window")

	// Outputs
	flag.StringVar(&cfg.RankPath, "rank-file", getEnv("RANK_PATH", "/var/lib/rulesync/protocols.txt"), "Rank file (one protocol per line)")
	flag.StringVar(&cfg.SummaryPath, "summary-file", getEnv("SUMMARY_PATH", "/var/lib/rulesync/protocols_full.json"), "Aggregate summary JSON (empty disables)")

	// Sync
	flag.BoolVar(&cfg.SyncAfterPoll, "sync", getEnvBool("SYNC_AFTER_POLL", false), "Run a rule sync cycle after each poll")
	flag.StringVar(&cfg.RuleDir, "rule-dir", getEnv("RULE_DIR", "/etc/suricata/rules"), "Rule directory")
	flag.StringVar(&cfg.WhitelistPath, "whitelist", getEnv("WHITELIST_PATH", "/etc/suricata/rule_whitelist.txt"), "Category whitelist")
	flag.StringVar(&cfg.DisablePath, "disable-file", getEnv("DISABLE_PATH", "/etc/suricata/disable.conf"), "Disable list written by sync")
	flag.StringVar(&cfg.ReloadCommand, "reload-command", getEnv("RELOAD_COMMAND", "systemctl reload suricata"), "Command that reloads the engine (noop to skip)")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	if cfg.ConfigFile != "" {
		if err := cfg.mergeFile(cfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		// flags given on the command line win over the file
		_ = flag.CommandLine.Parse(os.Args[1:])
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// Load reads a YAML config file on top of the built-in defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Listen:        ":8081",
		NtopURL:       "http://127.0.0.1:3000",
		NtopUser:      "admin",
		InterfaceID:   2,
		FetchTimeout:  10 * time.Second,
		Interval:      time.Minute,
		Window:        60 * time.Minute,
		Storage:       "file",
		HistoryPath:   "/var/lib/rulesync/protocol_history.json",
		RedisAddr:     "localhost:6379",
		RedisKey:      "rulesync:window",
		RankPath:      "/var/lib/rulesync/protocols.txt",
		SummaryPath:   "/var/lib/rulesync/protocols_full.json",
		RuleDir:       "/etc/suricata/rules",
		WhitelistPath: "/etc/suricata/rule_whitelist.txt",
		DisablePath:   "/etc/suricata/disable.conf",
		ReloadCommand: "systemctl reload suricata",
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the poller cannot run with.
func (c *Config) Validate() error {
	if c.NtopURL == "" {
		return errors.New("ntop-url is required")
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	if !c.Once && c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	switch c.Storage {
	case "file":
		if c.HistoryPath == "" {
			return errors.New("history is required with file storage")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required with redis storage")
		}
	default:
		return fmt.Errorf("invalid storage %q: want file or redis", c.Storage)
	}
	if c.RankPath == "" {
		return errors.New("rank-file is required")
	}
	if c.SyncAfterPoll && (c.RuleDir == "" || c.DisablePath == "") {
		return errors.New("rule-dir and disable-file are required with -sync")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes":
		return true
	case "0", "false", "FALSE", "False", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
