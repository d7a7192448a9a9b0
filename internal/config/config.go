// Package config exposes strongly typed application configuration structs loaded from YAML
// and overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"tradepulse-go/internal/strategy"
)

// EnvPrefix namespaces environment overrides, e.g. TRADEPULSE_SYMBOLS.
const EnvPrefix = "TRADEPULSE"

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name          string `yaml:"name"`
	Env           string `yaml:"env"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	PyroscopeAddr string `yaml:"pyroscope_addr,omitempty"`
}

// Reconnect tunes websocket reconnection backoff.
type Reconnect struct {
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms"`
	MaxAttempts      int `yaml:"max_attempts"`
}

// Exchange describes the market data source.
type Exchange struct {
	Provider             string    `yaml:"provider"`
	WSURL                string    `yaml:"ws_url"`
	Symbols              []string  `yaml:"symbols"`
	SymbolsPerConnection int       `yaml:"symbols_per_connection"`
	Reconnect            Reconnect `yaml:"reconnect"`
	StubIntervalMs       int       `yaml:"stub_interval_ms,omitempty"`
}

// Store sizes the per-symbol trade buffers.
type Store struct {
	MaxBufferSize int  `yaml:"max_buffer_size"`
	MaxAgeSeconds int  `yaml:"max_age_seconds"`
	AutoRegister  bool `yaml:"auto_register"`
}

// Analytics controls the window reduction schedule.
type Analytics struct {
	WindowSizeSeconds       int `yaml:"window_size_seconds"`
	AnalysisIntervalSeconds int `yaml:"analysis_interval_seconds"`
	Workers                 int `yaml:"workers"`
}

// Strategy specifies one strategy instance along with its parameter bundle.
type Strategy struct {
	Name    string          `yaml:"name"`
	Kind    string          `yaml:"kind"`
	Enabled *bool           `yaml:"enabled,omitempty"`
	Params  strategy.Params `yaml:"params"`
}

// KindOf returns the canonical strategy kind of s, or "" when unknown.
func KindOf(s Strategy) string { return strategy.NormalizeKind(s.Kind) }

// IsEnabled treats a missing enabled flag as true.
func (s Strategy) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// CSVSink writes per-symbol CSV files when Dir is set.
type CSVSink struct {
	Dir string `yaml:"dir"`
}

// JSONLSink appends signals to Path when set.
type JSONLSink struct {
	Path string `yaml:"path"`
}

// RedisSink publishes signals to Redis when Addr is set.
type RedisSink struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password,omitempty"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// KafkaSink writes signals to Topic when Brokers is non-empty.
type KafkaSink struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PostgresSink inserts signals when DSN or Host is set.
type PostgresSink struct {
	DSN      string `yaml:"dsn,omitempty"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a connection target is configured.
func (p PostgresSink) Enabled() bool { return p.DSN != "" || p.Host != "" }

// Sinks selects where emitted signals go.
type Sinks struct {
	ForwardHold bool         `yaml:"forward_hold"`
	Log         bool         `yaml:"log"`
	LedgerSize  int          `yaml:"ledger_size"`
	CSV         CSVSink      `yaml:"csv"`
	JSONL       JSONLSink    `yaml:"jsonl"`
	Redis       RedisSink    `yaml:"redis"`
	Kafka       KafkaSink    `yaml:"kafka"`
	Postgres    PostgresSink `yaml:"postgres"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Exchange   Exchange   `yaml:"exchange"`
	Store      Store      `yaml:"store"`
	Analytics  Analytics  `yaml:"analytics"`
	Strategies []Strategy `yaml:"strategies"`
	Sinks      Sinks      `yaml:"sinks"`
}

// Defaults returns a configuration that runs as-is against Binance.
func Defaults() *Config {
	return &Config{
		App: App{
			Name:        "tradepulse",
			Env:         "dev",
			MetricsAddr: ":9102",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Exchange: Exchange{
			Provider:             "binance",
			WSURL:                "wss://stream.binance.com:9443/stream",
			Symbols:              []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			SymbolsPerConnection: 20,
			Reconnect:            Reconnect{InitialBackoffMs: 1000, MaxBackoffMs: 60000, MaxAttempts: 10},
		},
		Store:     Store{MaxBufferSize: 10000},
		Analytics: Analytics{WindowSizeSeconds: 30, AnalysisIntervalSeconds: 30},
		Strategies: []Strategy{
			{Name: strategy.KindMACrossover, Kind: strategy.KindMACrossover},
			{Name: strategy.KindVolatilityBreakout, Kind: strategy.KindVolatilityBreakout},
		},
		Sinks: Sinks{Log: true, LedgerSize: 1000, CSV: CSVSink{Dir: "data"}},
	}
}

// Load reads a YAML file over Defaults, applies .env and TRADEPULSE_* overrides, then
// normalizes and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// envOverrides lists the settings that may come from the environment. Unset pointers
// leave the file value alone.
type envOverrides struct {
	Symbols                 []string `envconfig:"SYMBOLS"`
	LogLevel                string   `envconfig:"LOG_LEVEL"`
	LogFormat               string   `envconfig:"LOG_FORMAT"`
	MetricsAddr             string   `envconfig:"METRICS_ADDR"`
	Provider                string   `envconfig:"PROVIDER"`
	WindowSizeSeconds       *int     `envconfig:"WINDOW_SIZE_SECONDS"`
	AnalysisIntervalSeconds *int     `envconfig:"ANALYSIS_INTERVAL_SECONDS"`
	MaxBufferSize           *int     `envconfig:"MAX_BUFFER_SIZE"`
	RedisAddr               string   `envconfig:"REDIS_ADDR"`
	PostgresDSN             string   `envconfig:"POSTGRES_DSN"`
}

// ApplyEnv overlays TRADEPULSE_* environment variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if len(env.Symbols) > 0 {
		c.Exchange.Symbols = env.Symbols
	}
	setString(&c.App.LogLevel, env.LogLevel)
	setString(&c.App.LogFormat, env.LogFormat)
	setString(&c.App.MetricsAddr, env.MetricsAddr)
	setString(&c.Exchange.Provider, env.Provider)
	setString(&c.Sinks.Redis.Addr, env.RedisAddr)
	setString(&c.Sinks.Postgres.DSN, env.PostgresDSN)
	setInt(&c.Analytics.WindowSizeSeconds, env.WindowSizeSeconds)
	setInt(&c.Analytics.AnalysisIntervalSeconds, env.AnalysisIntervalSeconds)
	setInt(&c.Store.MaxBufferSize, env.MaxBufferSize)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Normalize upper-cases and deduplicates symbols and canonicalizes names.
func (c *Config) Normalize() {
	c.Exchange.Provider = strings.ToLower(strings.TrimSpace(c.Exchange.Provider))
	c.App.LogFormat = strings.ToLower(strings.TrimSpace(c.App.LogFormat))
	c.Exchange.Symbols = NormalizeSymbols(c.Exchange.Symbols)
	for i := range c.Strategies {
		s := &c.Strategies[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = strategy.NormalizeKind(s.Kind)
		}
	}
}

// NormalizeSymbols trims, upper-cases and deduplicates symbols keeping first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Exchange.Provider {
	case "binance", "stub":
	default:
		errs = append(errs, fmt.Errorf("exchange.provider: unsupported %q", c.Exchange.Provider))
	}
	check(len(c.Exchange.Symbols) > 0 || c.Store.AutoRegister, "exchange.symbols: at least one symbol required")
	check(c.Exchange.SymbolsPerConnection > 0, "exchange.symbols_per_connection: must be positive, got %d", c.Exchange.SymbolsPerConnection)
	check(c.Exchange.Reconnect.MaxAttempts >= 0, "exchange.reconnect.max_attempts: must not be negative")
	check(c.Store.MaxBufferSize > 0, "store.max_buffer_size: must be positive, got %d", c.Store.MaxBufferSize)
	check(c.Store.MaxAgeSeconds >= 0, "store.max_age_seconds: must not be negative")
	check(c.Analytics.WindowSizeSeconds > 0, "analytics.window_size_seconds: must be positive, got %d", c.Analytics.WindowSizeSeconds)
	check(c.Analytics.AnalysisIntervalSeconds > 0, "analytics.analysis_interval_seconds: must be positive, got %d", c.Analytics.AnalysisIntervalSeconds)
	check(c.Analytics.Workers >= 0, "analytics.workers: must not be negative")
	switch c.App.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("app.log_format: unsupported %q", c.App.LogFormat))
	}
	if len(c.Sinks.Kafka.Brokers) > 0 {
		check(c.Sinks.Kafka.Topic != "", "sinks.kafka.topic: required when brokers are set")
	}

	names := make(map[string]struct{}, len(c.Strategies))
	enabled := 0
	for i, s := range c.Strategies {
		if _, dup := names[s.Name]; dup {
			errs = append(errs, fmt.Errorf("strategies[%d]: duplicate name %q", i, s.Name))
		}
		names[s.Name] = struct{}{}
		if _, err := strategy.Build(s.Name, s.Kind, s.Params); err != nil {
			errs = append(errs, fmt.Errorf("strategies[%d] %s: %w", i, s.Name, err))
		}
		if s.IsEnabled() {
			enabled++
		}
	}
	check(enabled > 0, "strategies: at least one enabled strategy required")
	return errors.Join(errs...)
}

// WindowSize returns the analytics window as a duration.
func (a Analytics) WindowSize() time.Duration {
	return time.Duration(a.WindowSizeSeconds) * time.Second
}

// Interval returns the analytics cadence as a duration.
func (a Analytics) Interval() time.Duration {
	return time.Duration(a.AnalysisIntervalSeconds) * time.Second
}

// MaxAge returns the store age bound, zero when disabled.
func (s Store) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeSeconds) * time.Second
}

// Backoff returns the reconnect delay bounds.
func (r Reconnect) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(r.InitialBackoffMs) * time.Millisecond, time.Duration(r.MaxBackoffMs) * time.Millisecond
}
