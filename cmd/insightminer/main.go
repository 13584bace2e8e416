// Command insightminer runs the community-mention mining service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/api"
	"github.com/userpulse/insight-miner/internal/clock/system"
	"github.com/userpulse/insight-miner/internal/config"
	"github.com/userpulse/insight-miner/internal/contextpack"
	"github.com/userpulse/insight-miner/internal/crawler"
	"github.com/userpulse/insight-miner/internal/dedup"
	"github.com/userpulse/insight-miner/internal/dispatcher"
	iduuid "github.com/userpulse/insight-miner/internal/id/uuid"
	"github.com/userpulse/insight-miner/internal/logging"
	"github.com/userpulse/insight-miner/internal/metrics"
	"github.com/userpulse/insight-miner/internal/miner"
	"github.com/userpulse/insight-miner/internal/orchestrator"
	"github.com/userpulse/insight-miner/internal/pipeline"
	"github.com/userpulse/insight-miner/internal/progress"
	"github.com/userpulse/insight-miner/internal/progress/sinks"
	queuemem "github.com/userpulse/insight-miner/internal/queue/memory"
	"github.com/userpulse/insight-miner/internal/rank"
	"github.com/userpulse/insight-miner/internal/source/reddit"
	storemem "github.com/userpulse/insight-miner/internal/storage/memory"
	"github.com/userpulse/insight-miner/internal/storage/postgres"
	"github.com/userpulse/insight-miner/internal/summarizer/openai"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; env vars apply either way)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "insightminer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics.Init()

	clock := system.New()
	ids := iduuid.NewGenerator()

	var store miner.JobStore
	var closeStore func()
	switch cfg.Store.Provider {
	case "postgres":
		pgStore, err := postgres.NewJobStore(context.Background(), postgres.JobStoreConfig{DSN: cfg.Store.DSN}, clock)
		if err != nil {
			return fmt.Errorf("postgres job store: %w", err)
		}
		store = pgStore
		closeStore = pgStore.Close
		logger.Info("using postgres job store")
	default:
		store = storemem.NewJobStore(clock)
		closeStore = func() {}
		logger.Info("using in-memory job store")
	}
	defer closeStore()

	source := reddit.New(reddit.Config{
		ClientID:     cfg.Source.ClientID,
		ClientSecret: cfg.Source.ClientSecret,
		Username:     cfg.Source.Username,
		Password:     cfg.Source.Password,
		UserAgent:    cfg.Source.UserAgent,
		AuthURL:      cfg.Source.TokenURL,
		APIBaseURL:   cfg.Source.BaseURL,
		RPS:          cfg.Source.RequestsPerSecond,
		Burst:        cfg.Source.Burst,
		Timeout:      time.Duration(cfg.Source.TimeoutSeconds) * time.Second,
	}, clock, logger)

	scraper := contextpack.NewScraper(cfg.Source.UserAgent, 0, logger)
	summarizer := openai.New(openai.Config{
		APIKey:      cfg.Summarizer.APIKey,
		BaseURL:     cfg.Summarizer.BaseURL,
		Model:       cfg.Summarizer.Model,
		MaxTokens:   cfg.Summarizer.MaxTokens,
		Temperature: cfg.Summarizer.Temperature,
		Timeout:     cfg.SummarizerTimeout(),
	}, scraper, logger)

	miners := crawler.New(source, summarizer, clock, crawler.Config{
		Concurrency:         cfg.Miner.CrawlConcurrency,
		SearchLimit:         cfg.Miner.SearchLimit,
		ReplyFetchThreshold: cfg.Miner.ReplyFetchThreshold,
		ReplyLimit:          cfg.Miner.ReplyLimit,
		EngagementOverride:  cfg.Miner.EngagementOverride,
		TextLimit:           cfg.Miner.TextLimit,
		MaxQueryVariants:    cfg.Miner.MaxQueryVariants,
	}, logger)

	emitter := progress.NewFanout(
		sinks.NewStoreSink(store, logger),
		sinks.NewLogSink(logger),
		sinks.NewPrometheusSink(),
	)

	ranker := rank.New(rank.Weights{
		HalfLifeDays:   cfg.Rank.HalfLifeDays,
		Freshness:      cfg.Rank.FreshnessWeight,
		Velocity:       cfg.Rank.VelocityWeight,
		Engagement:     cfg.Rank.EngagementWeight,
		Evidence:       cfg.Rank.EvidenceWeight,
		Author:         cfg.Rank.AuthorWeight,
		VelocityNorm:   cfg.Rank.VelocityNorm,
		EngagementNorm: cfg.Rank.EngagementNorm,
	})

	pipe := pipeline.New(
		store,
		miners,
		summarizer,
		dedup.New(cfg.Dedup.Threshold),
		ranker,
		emitter,
		clock,
		pipeline.Config{
			ComposeConcurrency: cfg.Miner.ComposeConcurrency,
			SummarizerTimeout:  cfg.SummarizerTimeout(),
			HalfLifeDays:       cfg.Rank.HalfLifeDays,
		},
		logger,
	)

	queue := queuemem.New(cfg.Orchestrator.QueueDepth)
	pool := dispatcher.New(queue, store, pipe, cfg.Orchestrator.Workers, logger)

	orch := orchestrator.New(store, queue, ids, clock, orchestrator.Config{
		PollInterval: cfg.PollInterval(),
		WaitCeiling:  cfg.WaitCeiling(),
	}, logger)

	server := api.NewServer(orch, api.Defaults{
		Days:        cfg.Miner.Days,
		MinScore:    cfg.Miner.MinScore,
		MaxThreads:  cfg.Miner.MaxThreads,
		Communities: cfg.Miner.Communities,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	queue.Close()
	pool.Stop()
	logger.Info("stopped")
	return nil
}
