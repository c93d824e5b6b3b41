package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/jwaldner/greeks/engine"
	"github.com/jwaldner/greeks/internal/audit"
	"github.com/jwaldner/greeks/internal/config"
	"github.com/jwaldner/greeks/internal/handlers"
	"github.com/jwaldner/greeks/internal/logger"
	"github.com/jwaldner/greeks/internal/metrics"
	"github.com/jwaldner/greeks/internal/treasury"
	"github.com/jwaldner/greeks/pricing"
)

// rateCacheTTL is how long a fetched Treasury rate is reused
const rateCacheTTL = time.Hour

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.InitWithOptions(logger.Options{
		Level:      cfg.Logging.LogLevel,
		File:       cfg.Logging.LogFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Close()
	logger.Always.Printf("🚀 Greeks service starting - Port: %s", cfg.Server.Port)

	if cfg.Logging.LogLevel == "verbose" {
		fmt.Printf("⚠️  VERBOSE LOGGING ENABLED - every priced batch will be logged to %s\n", cfg.Logging.LogFile)
	}

	mode, _ := engine.ParseExecutionMode(cfg.Engine.ExecutionMode) // checked by Validate
	eng := engine.New(engine.Options{
		Mode:      mode,
		Workers:   cfg.Engine.Workers,
		BatchSize: cfg.Engine.BatchSize,
		Bumps: pricing.Bumps{
			Spot: cfg.Bumps.Spot,
			Time: cfg.Bumps.Time,
			Rate: cfg.Bumps.Rate,
		},
	})
	logger.Always.Printf("🔧 EXECUTION MODE: %s (%d workers)", eng.ExecutionMode(), eng.Workers())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("greeks")
		eng.SetObserver(m)
	}

	var rates treasury.RateSource
	switch cfg.Rates.Source {
	case config.RateSourceTreasury:
		rates = treasury.NewTreasuryClient(cfg.Rates.TreasuryURL, cfg.Rates.Timeout(), rateCacheTTL)
		logger.Always.Printf("📈 RISK-FREE RATE: Treasury Bills via %s", cfg.Rates.TreasuryURL)
	default:
		rates = treasury.StaticRate(cfg.Rates.StaticRate)
		logger.Always.Printf("📈 RISK-FREE RATE: static %.4f", cfg.Rates.StaticRate)
	}

	var auditor audit.Auditor = audit.Discard
	if cfg.Audit.Enabled {
		journal, err := audit.Open(cfg.Audit.File, cfg.Audit.Buffer)
		if err != nil {
			log.Fatalf("Failed to open audit journal: %v", err)
		}
		defer journal.Close()
		auditor = journal
	}

	greeksHandler := handlers.NewGreeksHandler(eng, rates, auditor, m)

	r := mux.NewRouter()
	if m != nil {
		r.Use(m.Middleware)
		r.Handle(cfg.Metrics.Path, m.Handler()).Methods("GET")
	}
	greeksHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	go func() {
		fmt.Printf("🌐 Server starting on http://localhost:%s\n", cfg.Server.Port)
		logger.Info.Printf("🌐 HTTP server started on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error.Printf("❌ Server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Always.Printf("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error.Printf("❌ Graceful shutdown failed: %v", err)
	}
}
