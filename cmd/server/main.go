// Package main provides the entry point for the trading backend server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockpulse/trading-backend/internal/api"
	"github.com/stockpulse/trading-backend/internal/autotrade"
	"github.com/stockpulse/trading-backend/internal/backtest"
	"github.com/stockpulse/trading-backend/internal/brokerage"
	"github.com/stockpulse/trading-backend/internal/config"
	"github.com/stockpulse/trading-backend/internal/risk"
	"github.com/stockpulse/trading-backend/internal/signals"
	"github.com/stockpulse/trading-backend/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting trading backend",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("tickInterval", cfg.TickInterval),
	)

	// Stores
	prices := store.NewPriceStore()
	signalStore := store.NewSignalStore()
	configStore := store.NewConfigStore()
	audit := store.NewAuditLog()
	ledger := store.NewLedger()
	locks := store.NewLockStore()
	backtests := store.NewBacktestStore()

	if len(cfg.Securities) > 0 {
		configStore.SetEnabledSecurities(cfg.Securities)
	}

	// Domain components
	classifier := signals.NewClassifier(logger)
	evaluator := risk.NewEvaluator(logger)
	broker := brokerage.NewClient(cfg.Brokerage, logger)
	engine := backtest.NewEngine(prices, backtests, configStore, classifier, logger)

	pipeline := autotrade.NewPipeline(prices, signalStore, configStore, audit, ledger, broker, evaluator, logger)
	orchestrator := autotrade.NewOrchestrator(pipeline, locks, logger)
	orchestrator.Start(cfg.TickInterval)

	server := api.NewServer(logger, cfg.ServerConfig(), api.Deps{
		Prices:       prices,
		Signals:      signalStore,
		Config:       configStore,
		Audit:        audit,
		Ledger:       ledger,
		Backtests:    backtests,
		Classifier:   classifier,
		Evaluator:    evaluator,
		Engine:       engine,
		Orchestrator: orchestrator,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	orchestrator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
