package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradepulse-go/internal/analytics"
	"tradepulse-go/internal/config"
	"tradepulse-go/internal/exchange"
	"tradepulse-go/internal/ingest"
	"tradepulse-go/internal/metrics"
	sig "tradepulse-go/internal/signal"
	"tradepulse-go/internal/sink"
	"tradepulse-go/internal/store"
	"tradepulse-go/internal/strategy"
	"tradepulse-go/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().
		Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	if cfg.App.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.App.Name,
			ServerAddress:   cfg.App.PyroscopeAddr,
			Tags:            map[string]string{"env": cfg.App.Env},
			Logger:          pyroscopeLogger{log.With().Str("component", "pyroscope").Logger()},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("pyroscope start failed")
		}
		defer func() { _ = profiler.Stop() }()
	}

	srv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("service stopped")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	trades, err := store.New(cfg.Exchange.Symbols,
		store.WithCapacity(cfg.Store.MaxBufferSize),
		store.WithMaxAge(cfg.Store.MaxAge()),
		store.WithAutoRegister(cfg.Store.AutoRegister),
	)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}

	out, ledger, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Warn().Err(err).Msg("closing sinks")
		}
	}()

	engine, err := buildEngine(cfg, out, log)
	if err != nil {
		return err
	}
	scheduler, err := analytics.NewScheduler(trades, engine, log,
		analytics.WithWindow(cfg.Analytics.WindowSize()),
		analytics.WithInterval(cfg.Analytics.Interval()),
		analytics.WithWorkers(cfg.Analytics.Workers),
	)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	initial, maxDelay := cfg.Exchange.Reconnect.Backoff()
	feed := exchange.NewFeed(cfg.Exchange.Provider, cfg.Exchange.Symbols, log,
		exchange.WithURL(cfg.Exchange.WSURL),
		exchange.WithSymbolsPerConnection(cfg.Exchange.SymbolsPerConnection),
		exchange.WithBackoff(initial, maxDelay),
		exchange.WithMaxReconnectAttempts(cfg.Exchange.Reconnect.MaxAttempts),
		exchange.WithStubInterval(time.Duration(cfg.Exchange.StubIntervalMs)*time.Millisecond),
	)
	adapter := ingest.NewAdapter(trades, log)

	log.Info().
		Str("provider", feed.Provider()).
		Strs("symbols", cfg.Exchange.Symbols).
		Strs("strategies", engine.Names()).
		Dur("window", cfg.Analytics.WindowSize()).
		Dur("interval", cfg.Analytics.Interval()).
		Int("buffer_capacity", trades.Capacity()).
		Msg("tradepulse started")

	feedCh := make(chan sig.Trade, 4096)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(feedCh)
		return feed.Run(gctx, feedCh)
	})
	g.Go(func() error { return adapter.Run(gctx, feedCh) })
	g.Go(func() error { return scheduler.Run(gctx) })
	err = g.Wait()

	log.Info().Interface("ingest", adapter.Stats()).Int("ledger_total", ledger.Total()).Msg("shutting down")
	for _, symbol := range trades.Symbols() {
		log.Info().Str("symbol", symbol).Int("buffered", trades.Len(symbol)).Msg("trade buffer")
	}
	stats := engine.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		log.Info().Str("strategy", name).Int("total", s.Total).Int("buy", s.Buy).
			Int("sell", s.Sell).Int("hold", s.Hold).Msg("strategy stats")
	}
	return err
}

func buildEngine(cfg *config.Config, out sink.Sink, log zerolog.Logger) (*strategy.Engine, error) {
	engine := strategy.NewEngine(out, log,
		strategy.WithForwardHold(cfg.Sinks.ForwardHold),
		strategy.WithWorkers(cfg.Analytics.Workers),
	)
	for _, sc := range cfg.Strategies {
		if !sc.IsEnabled() {
			log.Info().Str("strategy", sc.Name).Msg("strategy disabled")
			continue
		}
		s, err := strategy.Build(sc.Name, sc.Kind, sc.Params)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Name, err)
		}
		if err := engine.Register(s); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func buildSinks(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sink.Multi, *sink.Ledger, error) {
	sc := cfg.Sinks
	ledger := sink.NewLedger(sc.LedgerSize)
	children := []sink.Sink{ledger}
	fail := func(err error) (*sink.Multi, *sink.Ledger, error) {
		_ = sink.NewMulti(children...).Close()
		return nil, nil, err
	}

	if sc.Log {
		children = append(children, sink.NewLogSink(log))
	}
	if sc.CSV.Dir != "" {
		csvSink, err := sink.NewCSVSink(sc.CSV.Dir)
		if err != nil {
			return fail(fmt.Errorf("csv sink: %w", err))
		}
		children = append(children, csvSink)
	}
	if sc.JSONL.Path != "" {
		rec, err := sink.NewJSONLRecorder(sc.JSONL.Path)
		if err != nil {
			return fail(fmt.Errorf("jsonl sink: %w", err))
		}
		children = append(children, rec)
	}
	if sc.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: sc.Redis.Addr, Password: sc.Redis.Password, DB: sc.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("redis sink: %w", err))
		}
		children = append(children, sink.NewRedisSink(client, time.Duration(sc.Redis.TTLSeconds)*time.Second))
	}
	if len(sc.Kafka.Brokers) > 0 {
		children = append(children, sink.NewKafkaSink(sink.NewKafkaWriter(sc.Kafka.Brokers, sc.Kafka.Topic)))
	}
	if sc.Postgres.Enabled() {
		pg := sc.Postgres
		pgSink, err := sink.NewPostgresSink(ctx, sink.PostgresOption{
			Host: pg.Host, Port: pg.Port, User: pg.User, Password: pg.Password,
			Database: pg.Database, SSLMode: pg.SSLMode, DSN: pg.DSN,
		})
		if err != nil {
			return fail(fmt.Errorf("postgres sink: %w", err))
		}
		children = append(children, pgSink)
	}

	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name())
	}
	log.Info().Strs("sinks", names).Msg("signal sinks ready")
	return sink.NewMulti(children...), ledger, nil
}

// pyroscopeLogger routes profiler logs through zerolog.
type pyroscopeLogger struct{ log zerolog.Logger }

func (p pyroscopeLogger) Infof(format string, args ...any) { p.log.Debug().Msgf(format, args...) }
func (p pyroscopeLogger) Debugf(format string, args ...any) { p.log.Trace().Msgf(format, args...) }
func (p pyroscopeLogger) Errorf(format string, args ...any) { p.log.Warn().Msgf(format, args...) }
