package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradepulse-go/internal/strategy"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "tradepulse-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.LogFormat != "console" {
		t.Fatalf("unexpected App.LogFormat: %s", cfg.App.LogFormat)
	}
	if got := strings.Join(cfg.Exchange.Symbols, ","); got != "BTCUSDT,ETHUSDT" {
		t.Fatalf("expected normalized symbols, got %s", got)
	}
	if cfg.Exchange.SymbolsPerConnection != 10 {
		t.Fatalf("unexpected symbols per connection: %d", cfg.Exchange.SymbolsPerConnection)
	}
	initial, maxDelay := cfg.Exchange.Reconnect.Backoff()
	if initial != 500*time.Millisecond || maxDelay != 30*time.Second {
		t.Fatalf("unexpected backoff %s..%s", initial, maxDelay)
	}
	if cfg.Exchange.WSURL != "wss://stream.binance.com:9443/stream" {
		t.Fatalf("expected default ws url to survive, got %s", cfg.Exchange.WSURL)
	}
	if cfg.Store.MaxBufferSize != 5000 || cfg.Store.MaxAge() != 5*time.Minute {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Analytics.WindowSize() != time.Minute || cfg.Analytics.Interval() != 15*time.Second {
		t.Fatalf("unexpected analytics config: %+v", cfg.Analytics)
	}
	if len(cfg.Strategies) != 3 {
		t.Fatalf("expected 3 strategies, got %d", len(cfg.Strategies))
	}
	if cfg.Strategies[0].Params.ShortPeriod != 5 || cfg.Strategies[0].Params.LongPeriod != 20 {
		t.Fatalf("unexpected ma params: %+v", cfg.Strategies[0].Params)
	}
	if cfg.Strategies[1].Name != strategy.KindVolatilityBreakout {
		t.Fatalf("expected name defaulted from kind, got %q", cfg.Strategies[1].Name)
	}
	if cfg.Strategies[1].Params.VolatilityMultiplier != 2.5 {
		t.Fatalf("unexpected multiplier: %.2f", cfg.Strategies[1].Params.VolatilityMultiplier)
	}
	if cfg.Strategies[2].IsEnabled() || !cfg.Strategies[0].IsEnabled() {
		t.Fatalf("unexpected enabled flags")
	}
	if !cfg.Sinks.ForwardHold || cfg.Sinks.CSV.Dir != "out/signals" || cfg.Sinks.Redis.TTLSeconds != 3600 {
		t.Fatalf("unexpected sinks: %+v", cfg.Sinks)
	}
	if cfg.Sinks.Kafka.Topic != "signals" || len(cfg.Sinks.Kafka.Brokers) != 1 {
		t.Fatalf("unexpected kafka sink: %+v", cfg.Sinks.Kafka)
	}
	if cfg.Sinks.Postgres.Enabled() {
		t.Fatalf("postgres must be disabled without dsn or host")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRADEPULSE_SYMBOLS", "dogeusdt,pepeusdt")
	t.Setenv("TRADEPULSE_WINDOW_SIZE_SECONDS", "10")
	t.Setenv("TRADEPULSE_MAX_BUFFER_SIZE", "250")
	t.Setenv("TRADEPULSE_LOG_LEVEL", "warn")
	t.Setenv("TRADEPULSE_POSTGRES_DSN", "postgres://localhost/signals")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := strings.Join(cfg.Exchange.Symbols, ","); got != "DOGEUSDT,PEPEUSDT" {
		t.Fatalf("unexpected symbols %s", got)
	}
	if cfg.Analytics.WindowSizeSeconds != 10 || cfg.Store.MaxBufferSize != 250 {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Analytics, cfg.Store)
	}
	if cfg.Analytics.AnalysisIntervalSeconds != 15 {
		t.Fatalf("unset env must keep file value, got %d", cfg.Analytics.AnalysisIntervalSeconds)
	}
	if cfg.App.LogLevel != "warn" || !cfg.Sinks.Postgres.Enabled() {
		t.Fatalf("unexpected overrides: %+v", cfg.App)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	disabled := false
	cfg := Defaults()
	cfg.Exchange.Symbols = nil
	cfg.Exchange.SymbolsPerConnection = 0
	cfg.Store.MaxBufferSize = -1
	cfg.Analytics.WindowSizeSeconds = 0
	cfg.Analytics.AnalysisIntervalSeconds = 0
	cfg.Strategies = []Strategy{
		{Name: "a", Kind: "ma_crossover", Enabled: &disabled},
		{Name: "a", Kind: "ma_crossover", Enabled: &disabled, Params: strategy.Params{ShortPeriod: 9, LongPeriod: 3}},
		{Name: "b", Kind: "martingale", Enabled: &disabled},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		"exchange.symbols",
		"symbols_per_connection",
		"store.max_buffer_size",
		"analytics.window_size_seconds",
		"analytics.analysis_interval_seconds",
		"duplicate name",
		"invalid strategy parameters",
		"unknown strategy kind",
		"at least one enabled strategy",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Defaults()
	cfg.Exchange.Provider = "stub"
	cfg.Exchange.Symbols = []string{"ADAUSDT"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected saved file: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Exchange.Provider != "stub" || loaded.Exchange.Symbols[0] != "ADAUSDT" {
		t.Fatalf("unexpected round trip: %+v", loaded.Exchange)
	}
	if len(loaded.Strategies) != 2 {
		t.Fatalf("expected default strategies preserved, got %d", len(loaded.Strategies))
	}
	if Save(path, nil) == nil {
		t.Fatalf("expected error saving nil config")
	}
}
