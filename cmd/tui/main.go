package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tradepulse-go/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()
	path := filepath.Clean(*configPath)

	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== TradePulse Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit symbols")
		fmt.Println("3) Edit analytics window and buffer")
		fmt.Println("4) Edit strategy parameters")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch service")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editSymbols(reader, cfg)
		case "3":
			editAnalytics(reader, cfg)
		case "4":
			editStrategies(reader, cfg)
		case "5":
			if err := saveConfig(path, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchService(reader, path)
		case "7":
			reloaded, err := config.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Provider: %s (%d symbols per connection)\n", cfg.Exchange.Provider, cfg.Exchange.SymbolsPerConnection)
	fmt.Println("Symbols:", strings.Join(cfg.Exchange.Symbols, ", "))
	fmt.Printf("Buffer: %d trades per symbol (max age %ds)\n", cfg.Store.MaxBufferSize, cfg.Store.MaxAgeSeconds)
	fmt.Printf("Window: %ds every %ds\n", cfg.Analytics.WindowSizeSeconds, cfg.Analytics.AnalysisIntervalSeconds)
	for _, s := range cfg.Strategies {
		state := "on"
		if !s.IsEnabled() {
			state = "off"
		}
		fmt.Printf("Strategy %s (%s) [%s]: %+v\n", s.Name, s.Kind, state, s.Params)
	}
	fmt.Printf("Sinks: log=%t csv=%q jsonl=%q redis=%q kafka=%v postgres=%t\n",
		cfg.Sinks.Log, cfg.Sinks.CSV.Dir, cfg.Sinks.JSONL.Path, cfg.Sinks.Redis.Addr,
		cfg.Sinks.Kafka.Brokers, cfg.Sinks.Postgres.Enabled())
}

func editSymbols(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Symbols ---")
	fmt.Printf("Current symbols: %s\n", strings.Join(cfg.Exchange.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Exchange.Symbols = config.NormalizeSymbols(strings.Split(line, ","))
	}
}

func editAnalytics(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Analytics ---")
	cfg.Analytics.WindowSizeSeconds = promptInt(reader, "Window size (seconds)", cfg.Analytics.WindowSizeSeconds)
	cfg.Analytics.AnalysisIntervalSeconds = promptInt(reader, "Analysis interval (seconds)", cfg.Analytics.AnalysisIntervalSeconds)
	cfg.Store.MaxBufferSize = promptInt(reader, "Max trades per symbol", cfg.Store.MaxBufferSize)
}

func editStrategies(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Strategies ---")
	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		fmt.Printf("\n[%s] kind=%s\n", s.Name, s.Kind)
		enabled := promptBool(reader, "Enabled", s.IsEnabled())
		s.Enabled = &enabled
		p := &s.Params
		switch config.KindOf(*s) {
		case "ma_crossover":
			p.ShortPeriod = promptInt(reader, "Short period", p.ShortPeriod)
			p.LongPeriod = promptInt(reader, "Long period", p.LongPeriod)
		case "volatility_breakout":
			p.BaselineWindow = promptInt(reader, "Baseline window", p.BaselineWindow)
			p.MinSamples = promptInt(reader, "Min samples", p.MinSamples)
			p.VolatilityMultiplier = promptFloat(reader, "Volatility multiplier", p.VolatilityMultiplier)
		case "flow_imbalance":
			p.ImbalanceThreshold = promptFloat(reader, "Imbalance threshold", p.ImbalanceThreshold)
			p.MinTrades = promptInt(reader, "Min trades", p.MinTrades)
		case "momentum":
			p.TrendThresholdPct = promptFloat(reader, "Trend threshold (%)", p.TrendThresholdPct)
			p.MinQuoteVolume = promptFloat(reader, "Min quote volume", p.MinQuoteVolume)
		}
	}
}

func launchService(reader *bufio.Reader, path string) {
	fmt.Println("Launching tradepulse (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/tradepulse", "-config", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start service: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the service and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.4g]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.4g\n", current)
		return current
	}
	return val
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil {
		fmt.Printf("invalid number, keeping %d\n", current)
		return current
	}
	return val
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	fmt.Printf("%s [%t]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseBool(line)
	if err != nil {
		fmt.Printf("invalid value, keeping %t\n", current)
		return current
	}
	return val
}

func saveConfig(path string, cfg *config.Config) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(path, cfg)
}
