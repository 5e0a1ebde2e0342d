package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/store"
)

const (
	defaultAddr           = "127.0.0.1:8091"
	defaultBackendURL     = "http://127.0.0.1:8080/api"
	defaultBackendTimeout = 5 * time.Second
	defaultPollInterval   = 10 * time.Second
	defaultLeaseTTL       = 30 * time.Second
	defaultCacheTTL       = 10 * time.Minute
)

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Config struct {
	DBPath         string                 `yaml:"db_path"`
	Addr           string                 `yaml:"addr"`
	BackendURL     string                 `yaml:"backend_url"`
	BackendTimeout time.Duration          `yaml:"backend_timeout"`
	PollInterval   time.Duration          `yaml:"poll_interval"`
	LogLevel       string                 `yaml:"log_level"`
	HolderID       string                 `yaml:"holder_id"`
	LeaseTTL       time.Duration          `yaml:"lease_ttl"`
	ArchiveDir     string                 `yaml:"archive_dir"`
	Redis          RedisConfig            `yaml:"redis"`
	Archive        engine.ArchiveConfig   `yaml:"archive"`
	Retention      engine.RetentionConfig `yaml:"retention"`
	Notifier       engine.NotifierConfig  `yaml:"notifier"`
}

func defaultConfig(cwd string) Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "osmon-d"
	}
	return Config{
		DBPath:         filepath.Join(cwd, "osmon.db"),
		Addr:           defaultAddr,
		BackendURL:     defaultBackendURL,
		BackendTimeout: defaultBackendTimeout,
		PollInterval:   defaultPollInterval,
		LogLevel:       "info",
		HolderID:       fmt.Sprintf("%s-%d", host, os.Getpid()),
		LeaseTTL:       defaultLeaseTTL,
		ArchiveDir:     filepath.Join(cwd, "archive"),
		Redis:          RedisConfig{CacheTTL: defaultCacheTTL},
		Archive:        engine.ArchiveConfig{Retention: 7 * 24 * time.Hour},
		Retention: engine.RetentionConfig{
			Enabled: true,
			Default: 30 * 24 * time.Hour,
			ByType: map[store.EventType]time.Duration{
				store.EventTypeBackendError: 7 * 24 * time.Hour,
			},
		},
	}
}

// LoadConfig resolves the daemon configuration. Sources are applied in
// order, later ones winning: defaults, the YAML file named by -config or
// OSMON_CONFIG, OSMON_* environment variables, then explicit flags.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}
	config := defaultConfig(cwd)

	flagSet := flag.NewFlagSet("osmon-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagConfig := flagSet.String("config", os.Getenv("OSMON_CONFIG"), "path to YAML config file")
	flagDB := flagSet.String("db", config.DBPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", config.Addr, "HTTP listen address")
	flagBackend := flagSet.String("backend", config.BackendURL, "OS simulator API base URL")
	flagPollInterval := flagSet.String("poll-interval", config.PollInterval.String(), "backend poll interval")
	flagLogLevel := flagSet.String("log-level", config.LogLevel, "debug|info|warn|error")
	flagRedis := flagSet.String("redis", "", "redis address for the shared view cache and leases")
	flagArchiveDir := flagSet.String("archive-dir", config.ArchiveDir, "directory for archived snapshots")
	flagArchive := flagSet.Bool("archive", false, "archive old snapshots instead of pruning them")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	if path := strings.TrimSpace(*flagConfig); path != "" {
		if err := loadFile(resolvePath(path, cwd), &config); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}

	var flagErr error
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			config.DBPath = *flagDB
		case "addr":
			config.Addr = *flagAddr
		case "backend":
			config.BackendURL = *flagBackend
		case "poll-interval":
			d, err := time.ParseDuration(*flagPollInterval)
			if err != nil {
				flagErr = fmt.Errorf("invalid poll interval: %w", err)
				return
			}
			if d <= 0 {
				flagErr = errors.New("poll interval must be positive")
				return
			}
			config.PollInterval = d
		case "log-level":
			config.LogLevel = *flagLogLevel
		case "redis":
			config.Redis.Addr = *flagRedis
		case "archive-dir":
			config.ArchiveDir = *flagArchiveDir
		case "archive":
			config.Archive.Enabled = *flagArchive
		}
	})
	if flagErr != nil {
		return Config{}, flagErr
	}

	config.DBPath = resolvePath(config.DBPath, cwd)
	config.ArchiveDir = resolvePath(config.ArchiveDir, cwd)
	config.Addr = strings.TrimSpace(config.Addr)
	config.BackendURL = strings.TrimSpace(config.BackendURL)

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(config *Config) error {
	config.DBPath = envOrDefault("OSMON_DB_PATH", config.DBPath)
	config.Addr = addrFromEnv(config.Addr)
	config.BackendURL = envOrDefault("OSMON_BACKEND_URL", config.BackendURL)
	config.LogLevel = envOrDefault("OSMON_LOG_LEVEL", config.LogLevel)
	config.HolderID = envOrDefault("OSMON_HOLDER_ID", config.HolderID)
	config.ArchiveDir = envOrDefault("OSMON_ARCHIVE_DIR", config.ArchiveDir)
	config.Redis.Addr = envOrDefault("OSMON_REDIS_ADDR", config.Redis.Addr)
	config.Redis.Password = envOrDefault("OSMON_REDIS_PASSWORD", config.Redis.Password)
	config.Notifier.Secret = envOrDefault("OSMON_WEBHOOK_SECRET", config.Notifier.Secret)

	if v := os.Getenv("OSMON_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid OSMON_POLL_INTERVAL: %w", err)
		}
		if d <= 0 {
			return errors.New("OSMON_POLL_INTERVAL must be positive")
		}
		config.PollInterval = d
	}
	if v := os.Getenv("OSMON_ARCHIVE"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OSMON_ARCHIVE: %w", err)
		}
		config.Archive.Enabled = enabled
	}
	if v := os.Getenv("OSMON_WEBHOOK_URLS"); v != "" {
		config.Notifier.URLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				config.Notifier.URLs = append(config.Notifier.URLs, u)
			}
		}
	}
	return nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.BackendURL == "" {
		return errors.New("backend url cannot be empty")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("backend url must be http or https: %s", c.BackendURL)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.LeaseTTL <= 0 {
		return errors.New("lease ttl must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("OSMON_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("OSMON_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
