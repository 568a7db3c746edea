package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"subweave/internal/cache"
	"subweave/internal/config"
	"subweave/internal/httpapi"
	"subweave/internal/keywords"
	"subweave/internal/llm"
	"subweave/internal/notify"
	"subweave/internal/persistence"
	"subweave/internal/pipeline"
	"subweave/internal/segment"
	"subweave/internal/supervisor"
	"subweave/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	if err := run(cfg); err != nil {
		log.Error("Fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.System.DBPath), 0o755); err != nil {
		return err
	}
	store, err := persistence.NewSQLiteStore(cfg.System.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	transport, err := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		APIURL:  cfg.LLM.APIURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.Timeout) * time.Second,
	})
	if err != nil {
		return err
	}

	extractor := keywords.NewExtractor(cfg.LLM.APIKey, cfg.LLM.APIURL, cfg.LLM.Model)
	emitter := notify.NewEmitter(store, nil)

	manager := pipeline.NewManager(pipeline.Config{
		RunnerCount: cfg.Pipeline.Runners,
		SegmentBudget: segment.Budget{
			MaxChars:   cfg.Pipeline.SegmentMaxChars,
			MaxEntries: cfg.Pipeline.SegmentMaxEntries,
		},
		Pool: pipeline.PoolConfig{
			Workers:        cfg.Pipeline.Workers,
			MaxRetries:     cfg.Pipeline.MaxRetries,
			BackoffBase:    time.Duration(cfg.Pipeline.RetryBackoffSeconds) * time.Second,
			AttemptTimeout: time.Duration(cfg.LLM.Timeout) * time.Second,
		},
		MaxConcurrentLLM:  cfg.LLM.MaxConcurrent,
		HeartbeatInterval: cfg.Supervisor.HeartbeatInterval,
		TargetLanguage:    cfg.Pipeline.TargetLanguage,
	}, store, cache.NewStore(store), transport, extractor, emitter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	sup := supervisor.New(manager, cfg.Supervisor.StallThreshold, cfg.Supervisor.ScanInterval)
	if err := sup.Start(); err != nil {
		return err
	}
	defer sup.Stop()

	srv := httpapi.NewServer(manager, httpapi.WithNotificationStore(store))
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.System.HTTPAddr)
		errCh <- srv.ListenAndServe(cfg.System.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
