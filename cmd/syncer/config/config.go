// Package config implements the rulesync syncer config.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all syncer configuration.
type Config struct {
	ConfigFile string `yaml:"-"`

	// Servers
	Listen     string `yaml:"listen"`
	GRPCListen string `yaml:"grpc_listen"`

	// Mode
	Once     bool          `yaml:"once"`
	Interval time.Duration `yaml:"interval"`
	// Trigger asks a running syncer at GRPCAddr to "sync" or "reload" and exits.
	Trigger  string `yaml:"-"`
	GRPCAddr string `yaml:"grpc_addr"`

	// Rules
	RuleDir       string        `yaml:"rule_dir"`
	WhitelistPath string        `yaml:"whitelist_path"`
	DisablePath   string        `yaml:"disable_path"`
	ReloadCommand string        `yaml:"reload_command"`
	IOTimeout     time.Duration `yaml:"io_timeout"`
	ReloadTimeout time.Duration `yaml:"reload_timeout"`

	// Active protocol source
	Source        string        `yaml:"source"`
	RankPath      string        `yaml:"rank_path"`
	PollerURL     string        `yaml:"poller_url"`
	RejectStale   bool          `yaml:"reject_stale"`
	Storage       string        `yaml:"storage"`
	HistoryPath   string        `yaml:"history_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisKey      string        `yaml:"redis_key"`
	Window        time.Duration `yaml:"window"`

	MetricsTextfile string `yaml:"metrics_textfile"`

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

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address (health, metrics, policy)")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50051"), "gRPC control service listen address")

	flag.BoolVar(&cfg.Once, "once", getEnvBool("ONCE", false), "Run one sync cycle and exit (cron mode)")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 5*time.Minute), "Sync interval")
	flag.StringVar(&cfg.Trigger, "trigger", "", "Ask a running syncer to sync or reload, then exit")
	flag.StringVar(&cfg.GRPCAddr, "grpc-addr", getEnv("GRPC_ADDR", "localhost:50051"), "Control service address used by -trigger")

	flag.StringVar(&cfg.RuleDir, "rule-dir", getEnv("RULE_DIR", "/etc/suricata/rules"), "Rule directory")
	flag.StringVar(&cfg.WhitelistPath, "whitelist", getEnv("WHITELIST_PATH", "/etc/suricata/rule_whitelist.txt"), "Category whitelist")
	flag.StringVar(&cfg.DisablePath, "disable-file", getEnv("DISABLE_PATH", "/etc/suricata/disable.conf"), "Disable list artifact")
	flag.StringVar(&cfg.ReloadCommand, "reload-command", getEnv("RELOAD_COMMAND", "systemctl reload suricata"), "Command that reloads the engine (noop to skip)")
	flag.DurationVar(&cfg.IOTimeout, "io-timeout", getEnvDuration("IO_TIMEOUT", 10*time.Second), "Bound on each filesystem or source read")
	flag.DurationVar(&cfg.ReloadTimeout, "reload-timeout", getEnvDuration("RELOAD_TIMEOUT", 30*time.Second), "Bound on the reload command")

	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", "rankfile"), "Active protocol source: rankfile, window or poller")
	flag.StringVar(&cfg.RankPath, "rank-file", getEnv("RANK_PATH", "/var/lib/rulesync/protocols.txt"), "Rank file (rankfile source)")
	flag.StringVar(&cfg.PollerURL, "poller-url", getEnv("POLLER_URL", "http://localhost:8081"), "Poller base URL (poller source)")
	flag.BoolVar(&cfg.RejectStale, "reject-stale", getEnvBool("REJECT_STALE", false), "Treat a stale poller ranking as a source failure")
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Window storage for the window source: file or redis")
	flag.StringVar(&cfg.HistoryPath, "history", getEnv("HISTORY_PATH", "/var/lib/rulesync/protocol_history.json"), "Window file")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database")
	flag.StringVar(&cfg.RedisKey, "redis-key", getEnv("REDIS_KEY", "rulesync:window"), "Redis key holding the window")
	flag.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 60*time.Minute), "Rolling window duration (window source)")

	flag.StringVar(&cfg.MetricsTextfile, "metrics-textfile", getEnv("METRICS_TEXTFILE", ""), "Write metrics in textfile-collector format after each cycle")

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
		Listen:        ":8082",
		GRPCListen:    ":50051",
		Interval:      5 * time.Minute,
		GRPCAddr:      "localhost:50051",
		RuleDir:       "/etc/suricata/rules",
		WhitelistPath: "/etc/suricata/rule_whitelist.txt",
		DisablePath:   "/etc/suricata/disable.conf",
		ReloadCommand: "systemctl reload suricata",
		IOTimeout:     10 * time.Second,
		ReloadTimeout: 30 * time.Second,
		Source:        "rankfile",
		RankPath:      "/var/lib/rulesync/protocols.txt",
		PollerURL:     "http://localhost:8081",
		Storage:       "file",
		HistoryPath:   "/var/lib/rulesync/protocol_history.json",
		RedisAddr:     "localhost:6379",
		RedisKey:      "rulesync:window",
		Window:        60 * time.Minute,
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

// Validate checks the configuration for values the syncer cannot run with.
func (c *Config) Validate() error {
	switch c.Trigger {
	case "":
	case "sync", "reload":
		if c.GRPCAddr == "" {
			return errors.New("grpc-addr is required with -trigger")
		}
		return nil
	default:
		return fmt.Errorf("invalid trigger %q: want sync or reload", c.Trigger)
	}

	if c.RuleDir == "" {
		return errors.New("rule-dir is required")
	}
	if c.DisablePath == "" {
		return errors.New("disable-file is required")
	}
	if !c.Once && c.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	switch c.Source {
	case "rankfile":
		if c.RankPath == "" {
			return errors.New("rank-file is required with the rankfile source")
		}
	case "poller":
		if c.PollerURL == "" {
			return errors.New("poller-url is required with the poller source")
		}
	case "window":
		if c.Window <= 0 {
			return errors.New("window must be positive")
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
	default:
		return fmt.Errorf("invalid source %q: want rankfile, window or poller", c.Source)
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
