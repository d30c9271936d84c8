// QuantLens server: portfolio analytics over quota-limited market data.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/quantlens/quantlens/internal/cache"
	"github.com/quantlens/quantlens/internal/clients/alphavantage"
	"github.com/quantlens/quantlens/internal/config"
	"github.com/quantlens/quantlens/internal/database"
	"github.com/quantlens/quantlens/internal/fetcher"
	"github.com/quantlens/quantlens/internal/modules/metrics"
	"github.com/quantlens/quantlens/internal/modules/portfolio"
	"github.com/quantlens/quantlens/internal/pricestore"
	"github.com/quantlens/quantlens/internal/server"
	"github.com/quantlens/quantlens/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("Starting QuantLens")

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		return err
	}
	defer historyDB.Close()

	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		return err
	}
	defer configDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return err
	}
	defer cacheDB.Close()

	prices, err := pricestore.New(historyDB)
	if err != nil {
		return err
	}

	portfolioRepo, err := portfolio.NewRepository(configDB, log)
	if err != nil {
		return err
	}
	if cfg.PortfolioSeedFile != "" {
		if err := portfolioRepo.SeedFromYAML(context.Background(), cfg.PortfolioSeedFile); err != nil {
			log.Warn().Err(err).Str("file", cfg.PortfolioSeedFile).Msg("Portfolio seeding failed")
		}
	}

	cacheStore, err := cache.NewStore(cacheDB)
	if err != nil {
		return err
	}
	resultCache := cache.New(cacheStore, log)

	// Without an API key the service still serves analytics from stored
	// history; it just cannot pull new data.
	var seriesFetcher metrics.SeriesFetcher
	var quoteFetcher metrics.QuoteFetcher
	if cfg.AlphaVantageAPIKey != "" {
		provider := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
		marketFetcher := fetcher.New(provider, fetcher.Config{
			RequestsPerWindow: cfg.RequestsPerMinute,
			Window:            cfg.QuotaWindow,
			MaxBatchSize:      alphavantage.MaxBatchSize,
			MaxAttempts:       cfg.FetchMaxAttempts,
			BackoffBase:       cfg.FetchBackoffBase,
			BackoffMultiplier: 2.0,
		}, log)
		seriesFetcher = marketFetcher
		quoteFetcher = marketFetcher
	} else {
		log.Warn().Msg("No provider API key configured, serving from stored history only")
	}

	metricsService := metrics.NewService(portfolioRepo, prices, seriesFetcher, quoteFetcher, resultCache, cfg.RiskFreeRate, log)

	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		HistoryDB:      historyDB,
		ConfigDB:       configDB,
		CacheDB:        cacheDB,
		MetricsHandler: metrics.NewHandler(metricsService, log),
		PortfolioRepo:  portfolioRepo,
	})

	scheduler := startJobs(resultCache, log)
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

// startJobs schedules cache maintenance: a periodic expired-entry sweep and
// a daily pre-open invalidation of price-derived entries so the first
// request of the day recomputes against fresh history.
func startJobs(resultCache *cache.Cache, log zerolog.Logger) *cron.Cron {
	jobLog := log.With().Str("component", "jobs").Logger()
	scheduler := cron.New()

	_, err := scheduler.AddFunc("@every 10m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := resultCache.SweepExpired(ctx); err != nil {
			jobLog.Warn().Err(err).Msg("Cache sweep failed")
		}
	})
	if err != nil {
		jobLog.Error().Err(err).Msg("Failed to schedule cache sweep")
	}

	_, err = scheduler.AddFunc("30 5 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := resultCache.Invalidate(ctx, "price_series:"); err != nil {
			jobLog.Warn().Err(err).Msg("Daily series invalidation failed")
		}
	})
	if err != nil {
		jobLog.Error().Err(err).Msg("Failed to schedule daily invalidation")
	}

	scheduler.Start()
	return scheduler
}
