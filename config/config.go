package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"property-scraper/models"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Worker    WorkerConfig    `toml:"worker" yaml:"worker"`
	Browser   BrowserConfig   `toml:"browser" yaml:"browser"`
	Proxy     ProxyConfig     `toml:"proxy" yaml:"proxy"`
	Scraping  ScrapingConfig  `toml:"scraping" yaml:"scraping"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Queue     QueueConfig     `toml:"queue" yaml:"queue"`
	Scheduler SchedulerConfig `toml:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Output    OutputConfig    `toml:"output" yaml:"output"`
}

type ServerConfig struct {
	Host           string   `toml:"host" yaml:"host"`
	Port           int      `toml:"port" yaml:"port"`
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	Port    int  `toml:"port" yaml:"port"`
}

type WorkerConfig struct {
	PollInterval   Duration `toml:"poll_interval" yaml:"poll_interval"`
	MaxConcurrent  int      `toml:"max_concurrent" yaml:"max_concurrent"`
	ReconnectDelay Duration `toml:"reconnect_delay" yaml:"reconnect_delay"`
	Mode           string   `toml:"mode" yaml:"mode"`
}

type BrowserConfig struct {
	Headless          bool     `toml:"headless" yaml:"headless"`
	MaxSessions       int      `toml:"max_sessions" yaml:"max_sessions"`
	NavigationTimeout Duration `toml:"navigation_timeout" yaml:"navigation_timeout"`
	ReadyTimeout      Duration `toml:"ready_timeout" yaml:"ready_timeout"`
	AcceptLanguage    string   `toml:"accept_language" yaml:"accept_language"`
	BlockResources    bool     `toml:"block_resources" yaml:"block_resources"`
}

type ProxyConfig struct {
	Endpoints []string `toml:"endpoints" yaml:"endpoints"`
	Primary   string   `toml:"primary" yaml:"primary"`
}

type ScrapingConfig struct {
	MaxAttempts     int      `toml:"max_attempts" yaml:"max_attempts"`
	AdapterCooldown Duration `toml:"adapter_cooldown" yaml:"adapter_cooldown"`
	MaxResults      int      `toml:"max_results" yaml:"max_results"`
	BlockMarkers    []string `toml:"block_markers" yaml:"block_markers"`
	RequestsPerHost Duration `toml:"requests_per_host" yaml:"requests_per_host"`
	StaticFallback  bool     `toml:"static_fallback" yaml:"static_fallback"`
	CacheTTL        Duration `toml:"cache_ttl" yaml:"cache_ttl"`
	Sources         []string `toml:"sources" yaml:"sources"`
}

type StorageConfig struct {
	Backend     string `toml:"backend" yaml:"backend"`
	DatabaseURL string `toml:"database_url" yaml:"database_url"`
	BadgerPath  string `toml:"badger_path" yaml:"badger_path"`
}

type QueueConfig struct {
	Backend  string `toml:"backend" yaml:"backend"`
	RedisURL string `toml:"redis_url" yaml:"redis_url"`
	Name     string `toml:"name" yaml:"name"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Timezone string `toml:"timezone" yaml:"timezone"`
}

type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	TimeFormat string `toml:"time_format" yaml:"time_format"`
	File       string `toml:"file" yaml:"file"`
}

type OutputConfig struct {
	CSVPath string `toml:"csv_path" yaml:"csv_path"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    3001,
		},
		Worker: WorkerConfig{
			PollInterval:   Duration(5 * time.Second),
			MaxConcurrent:  2,
			ReconnectDelay: Duration(5 * time.Second),
			Mode:           "serial",
		},
		Browser: BrowserConfig{
			Headless:          true,
			MaxSessions:       3,
			NavigationTimeout: Duration(30 * time.Second),
			ReadyTimeout:      Duration(15 * time.Second),
			AcceptLanguage:    "es-AR,es;q=0.9,en;q=0.8",
			BlockResources:    true,
		},
		Scraping: ScrapingConfig{
			MaxAttempts:     3,
			AdapterCooldown: Duration(3 * time.Second),
			MaxResults:      25,
			BlockMarkers:    []string{"blocked", "error", "access denied", "captcha"},
			RequestsPerHost: Duration(2 * time.Second),
			StaticFallback:  true,
			CacheTTL:        Duration(30 * time.Minute),
			Sources:         []string{"zonaprop", "argenprop", "mercadolibre"},
		},
		Storage: StorageConfig{
			Backend:    "badger",
			BadgerPath: "data/badger",
		},
		Queue: QueueConfig{
			Backend:  "badger",
			RedisURL: "redis://localhost:6379/0",
			Name:     "scraping_jobs",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Timezone: "America/Argentina/Buenos_Aires",
		},
		Logging: LoggingConfig{
			Level:      "info",
			TimeFormat: "15:04:05",
		},
		Output: OutputConfig{
			CSVPath: "output/listings.csv",
		},
	}
}

// Load reads an optional TOML or YAML file over the defaults, then applies
// .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = toml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		cfg.Storage.Backend = "postgres"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.RedisURL = v
		cfg.Queue.Backend = "redis"
	}
	if v := envInt("PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := envInt("METRICS_PORT"); v > 0 {
		cfg.Metrics.Port = v
	}
	if v := os.Getenv("PROXY_LIST"); v != "" {
		cfg.Proxy.Endpoints = splitList(v)
	}
	if v := os.Getenv("PRIMARY_PROXY"); v != "" {
		cfg.Proxy.Primary = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
}

func (c *Config) Validate() error {
	if c.Worker.MaxConcurrent < 1 {
		return fmt.Errorf("worker.max_concurrent must be at least 1")
	}
	if c.Worker.PollInterval.Std() <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Worker.Mode != "serial" && c.Worker.Mode != "parallel" {
		return fmt.Errorf("worker.mode must be serial or parallel, got %q", c.Worker.Mode)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("browser.max_sessions must be at least 1")
	}
	if c.Scraping.MaxAttempts < 1 {
		return fmt.Errorf("scraping.max_attempts must be at least 1")
	}
	switch c.Storage.Backend {
	case "badger":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Queue.Backend {
	case "badger", "redis":
	default:
		return fmt.Errorf("unknown queue.backend %q", c.Queue.Backend)
	}
	return nil
}

// ProxyEndpoints parses the configured proxy list.
func (c *Config) ProxyEndpoints() ([]models.ProxyEndpoint, error) {
	endpoints := make([]models.ProxyEndpoint, 0, len(c.Proxy.Endpoints))
	for _, raw := range c.Proxy.Endpoints {
		ep, err := models.ParseProxyEndpoint(raw)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Duration decodes "5s"-style strings from TOML and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
