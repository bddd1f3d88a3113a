// Package main provides the entry point for the gleaner server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmylchreest/gleaner/internal/agent"
	"github.com/jmylchreest/gleaner/internal/config"
	"github.com/jmylchreest/gleaner/internal/crypto"
	"github.com/jmylchreest/gleaner/internal/database"
	"github.com/jmylchreest/gleaner/internal/fetch"
	"github.com/jmylchreest/gleaner/internal/http/routes"
	"github.com/jmylchreest/gleaner/internal/llm"
	"github.com/jmylchreest/gleaner/internal/logging"
	"github.com/jmylchreest/gleaner/internal/orchestrator"
	"github.com/jmylchreest/gleaner/internal/repository"
	"github.com/jmylchreest/gleaner/internal/settings"
	"github.com/jmylchreest/gleaner/internal/version"
	"github.com/jmylchreest/gleaner/internal/worker"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	logger := logging.SetDefault()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting gleaner",
		"version", version.Get().Version,
		"port", cfg.Port,
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	store := settings.NewStore(db, encryptor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ProviderSeedFile != "" {
		if err := store.SeedFromFile(ctx, cfg.ProviderSeedFile); err != nil {
			logger.Error("failed to seed providers", "file", cfg.ProviderSeedFile, "error", err)
			os.Exit(1)
		}
		logger.Info("provider seed file loaded", "file", cfg.ProviderSeedFile)
	}

	gateway := llm.NewGateway(logger)
	registerProviders(ctx, gateway, store, cfg, logger)
	if len(gateway.Providers()) == 0 {
		logger.Warn("no model providers configured; extraction requests will fail until one is added")
	}

	fetcher := fetch.NewCollyFetcher(cfg.FetchTimeout, logger)
	pipeline := orchestrator.New(
		fetcher,
		agent.NewPlanner(gateway, logger),
		agent.NewSelectorAgent(gateway, cfg.SelectorConcurrency, logger),
		agent.NewExtractor(gateway, logger),
		agent.NewValidator(logger),
		agent.NewRecoverer(gateway, logger),
		logger,
	)

	jobRepo := repository.NewSQLiteJobRepository(db)

	// Jobs left in processing by a previous run will never finish.
	if count, err := jobRepo.MarkStaleProcessingFailed(ctx, cfg.JobTimeout); err != nil {
		logger.Error("failed to clean up stale jobs", "error", err)
	} else if count > 0 {
		logger.Info("failed stale processing jobs", "count", count)
	}

	jobWorker := worker.New(jobRepo, pipeline, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		Concurrency:  cfg.WorkerConcurrency,
		JobTimeout:   cfg.JobTimeout,
	}, logger)
	jobWorker.Start(ctx)

	router := routes.New(routes.Config{
		Processor:          pipeline,
		JobRepo:            jobRepo,
		Gateway:            gateway,
		DB:                 db,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.RequestTimeout,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Let in-flight jobs finish before the process exits.
	stopped := make(chan struct{})
	go func() {
		jobWorker.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.WorkerShutdownGracePeriod):
		logger.Warn("worker shutdown grace period exceeded, exiting anyway")
	}

	cancel()
	logger.Info("stopped")
}

// registerProviders builds the gateway's provider registry from the settings
// store, falling back to environment configuration for anything not stored.
func registerProviders(ctx context.Context, gateway *llm.Gateway, store *settings.Store, cfg *config.Config, logger *slog.Logger) {
	register := func(name, envKey, baseURL string) {
		pc := llm.DefaultProviderConfig(name)
		pc.APIKey = envKey
		if baseURL != "" {
			pc.BaseURL = baseURL
		}

		if cred, err := store.Provider(ctx, name); err == nil {
			if cred.APIKey != "" {
				pc.APIKey = cred.APIKey
			}
			if cred.BaseURL != "" {
				pc.BaseURL = cred.BaseURL
			}
			if cred.Model != "" {
				pc.Model = cred.Model
			}
		} else if !errors.Is(err, settings.ErrNotFound) {
			logger.Error("failed to read provider credentials", "provider", name, "error", err)
		}

		if pc.Model == "" {
			pc.Model = cfg.DefaultModel
		}
		if pc.APIKey == "" && pc.AuthType != llm.AuthTypeNone {
			return
		}
		gateway.Register(pc)
	}

	register(llm.ProviderAnthropic, cfg.AnthropicAPIKey, "")
	register(llm.ProviderOpenAI, cfg.OpenAIAPIKey, "")
	if cfg.OllamaBaseURL != "" {
		register(llm.ProviderOllama, "", cfg.OllamaBaseURL)
	}

	if cfg.DefaultProvider != "" {
		if err := gateway.SetDefault(cfg.DefaultProvider); err != nil {
			logger.Warn("default provider not registered", "provider", cfg.DefaultProvider, "error", err)
		}
	}
}
