// Command tradeflow runs the trading decision pipeline from the terminal.
//
// Usage:
//
//	tradeflow run --ticker NVDA --date 2026-08-24      # run one decision pipeline
//	tradeflow run --config config.yaml --store sqlite  # with a persistent store
//	tradeflow version
//
// The run command drives the full graph with built-in placeholder
// collaborators, so it exercises sequencing, checkpointing, and recovery
// without external services. Real analyst/researcher steps are wired in code
// through tradeflow.Steps.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/glebarez/sqlite"

	"github.com/tradeflow/tradeflow"
	"github.com/tradeflow/tradeflow/checkpoint"
	"github.com/tradeflow/tradeflow/config"
	"github.com/tradeflow/tradeflow/debate"
	"github.com/tradeflow/tradeflow/internal/metrics"
	"github.com/tradeflow/tradeflow/workflow"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(os.Args[2:])
	case "version":
		fmt.Printf("tradeflow %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	ticker := fs.String("ticker", "", "Ticker symbol (required)")
	date := fs.String("date", "", "Trade date, YYYY-MM-DD (required)")
	backend := fs.String("store", "", "Checkpoint backend override: memory, redis, sqlite")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (optional)")
	fs.Parse(args)

	if *ticker == "" || *date == "" {
		fmt.Fprintln(os.Stderr, "run requires --ticker and --date")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Checkpoint.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting tradeflow",
		zap.String("version", Version),
		zap.String("ticker", *ticker),
		zap.String("trade_date", *date),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
	)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	store, err := openStore(cfg.Checkpoint, logger)
	if err != nil {
		logger.Fatal("failed to open checkpoint store", zap.Error(err))
	}

	engine, err := tradeflow.New(cfg, placeholderSteps(), store, logger, tradeflow.WithCollector(collector))
	if err != nil {
		logger.Fatal("failed to assemble pipeline", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := engine.Propagate(ctx, *ticker, *date)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
	}
	if result != nil {
		fmt.Printf("run %s decision: %s\n", result.RunID, result.Decision)
		if hist, ok := engine.History(result.RunID); ok {
			for _, ev := range hist.EventList() {
				fmt.Printf("  %2d. %-24s %-10s %s\n", ev.Sequence, ev.Step, ev.Status, ev.Duration)
			}
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

func openStore(cfg config.CheckpointConfig, logger *zap.Logger) (checkpoint.Store, error) {
	switch cfg.Backend {
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return checkpoint.NewRedisStore(client, "tradeflow", cfg.Redis.TTL.Std(), logger), nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return checkpoint.NewSQLStore(db, logger)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// placeholderSteps are deterministic stand-ins for the external reasoning
// collaborators, good enough to exercise the full pipeline end to end.
func placeholderSteps() tradeflow.Steps {
	report := func(field, text string) workflow.StepExecutor {
		return workflow.StepFunc(func(ctx context.Context, input workflow.Projection) (workflow.PartialUpdate, error) {
			ticker := input.GetString(tradeflow.FieldTicker)
			return workflow.PartialUpdate{field: fmt.Sprintf("%s for %s", text, ticker)}, nil
		})
	}
	speak := func(line string) workflow.StepExecutor {
		return workflow.StepFunc(func(ctx context.Context, input workflow.Projection) (workflow.PartialUpdate, error) {
			return workflow.PartialUpdate{debate.ResponseKey: line}, nil
		})
	}
	return tradeflow.Steps{
		Analysts: map[string]workflow.StepExecutor{
			"market":       report(tradeflow.FieldMarketReport, "market trend summary"),
			"social":       report(tradeflow.FieldSentimentReport, "sentiment summary"),
			"news":         report(tradeflow.FieldNewsReport, "news digest"),
			"fundamentals": report(tradeflow.FieldFundamentalsReport, "fundamentals summary"),
		},
		Bull:            speak("momentum and growth support an entry"),
		Bear:            speak("valuation and macro argue for caution"),
		ResearchManager: report(tradeflow.FieldInvestmentPlan, "balanced plan"),
		Trader:          report(tradeflow.FieldTraderPlan, "position sizing"),
		Aggressive:      speak("size up, the upside dominates"),
		Conservative:    speak("cap exposure, protect the downside"),
		Neutral:         speak("split the difference"),
		RiskJudge: workflow.StepFunc(func(ctx context.Context, input workflow.Projection) (workflow.PartialUpdate, error) {
			return workflow.PartialUpdate{tradeflow.FieldFinalDecision: "HOLD"}, nil
		}),
	}
}

func printUsage() {
	fmt.Println(`tradeflow - multi-agent trading decision pipeline

Commands:
  run      Run the pipeline for one ticker and date
  version  Print version information
  help     Show this help

Run flags:
  --ticker        Ticker symbol (required)
  --date          Trade date, YYYY-MM-DD (required)
  --config        Path to YAML config
  --store         Checkpoint backend: memory, redis, sqlite
  --metrics-addr  Serve Prometheus metrics on this address`)
}
