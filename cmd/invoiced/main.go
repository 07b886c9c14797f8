package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/invoice-ai/invoiceai/internal/analytics"
	"github.com/invoice-ai/invoiceai/internal/archive"
	"github.com/invoice-ai/invoiceai/internal/async"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/export"
	"github.com/invoice-ai/invoiceai/internal/extract"
	"github.com/invoice-ai/invoiceai/internal/policy"
	"github.com/invoice-ai/invoiceai/internal/repository"
	"github.com/invoice-ai/invoiceai/internal/review"
	"github.com/invoice-ai/invoiceai/internal/server"
	"github.com/invoice-ai/invoiceai/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	thresholds := policy.Thresholds{
		AutoApproveMin: cfg.Policy.AutoApproveMin,
		ReviewMin:      cfg.Policy.ReviewMin,
	}

	hub := server.NewHub(logger)
	st := store.New(thresholds, logger, store.WithNotify(hub.Notify))

	ledgerOpts := []archive.Option{}
	var repo *repository.ArchiveRepository
	if cfg.Archive.DSN != "" {
		var err error
		repo, err = repository.Open(cfg.Archive.DSN, logger)
		if err != nil {
			logger.Error("opening archive db failed", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		ledgerOpts = append(ledgerOpts, archive.WithSink(repo))
	}
	ledger := archive.NewLedger(logger, ledgerOpts...)
	if repo != nil {
		records, err := repo.Load()
		if err != nil {
			logger.Error("loading archive failed", "error", err)
			os.Exit(1)
		}
		ledger.Restore(records)
		logger.Info("archive restored", "records", len(records))
	}

	engine := review.NewEngine(st, ledger, logger)
	extractor := extract.NewSimulated(logger,
		extract.WithLatency(cfg.Extractor.MinLatency, cfg.Extractor.MaxLatency))
	queue := async.NewExtractQueue(st, engine, extractor, logger,
		async.WithWorkers(cfg.Extractor.Workers),
		async.WithQueueSize(cfg.Extractor.QueueSize),
		async.WithProcessTimeout(cfg.Extractor.Timeout),
	)
	aggregate := analytics.NewAggregator(st, ledger, analytics.CostModel{
		ManualCostPerInvoice:     cfg.Analytics.ManualCostPerInvoice,
		AutomationCostPerInvoice: cfg.Analytics.AutomationCostPerInvoice,
	}, logger)
	exports := export.NewService(ledger, logger)

	router := server.NewRouter(st, engine, queue, aggregate, exports, hub, logger)

	var scheduler *cron.Cron
	if cfg.Server.AnalyticsCron != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Server.AnalyticsCron, aggregate.LogSummary); err != nil {
			logger.Error("invalid analytics cron spec", "spec", cfg.Server.AnalyticsCron, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}
	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	queue.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown interrupted", "error", err)
	}
	logger.Info("stopped", "live_invoices", st.Len(), "archived", ledger.Len())
}
