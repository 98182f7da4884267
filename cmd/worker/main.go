package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/lendflow/backend/internal/classify"
	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/eligibility"
	"github.com/lendflow/backend/internal/enrich"
	"github.com/lendflow/backend/internal/events"
	"github.com/lendflow/backend/internal/extract"
	"github.com/lendflow/backend/internal/features"
	"github.com/lendflow/backend/internal/infra"
	"github.com/lendflow/backend/internal/jobs"
	"github.com/lendflow/backend/internal/monitoring"
	"github.com/lendflow/backend/internal/notify"
	"github.com/lendflow/backend/internal/ocr"
	"github.com/lendflow/backend/internal/report"
	"github.com/lendflow/backend/internal/storage"
)

// The worker binary runs pipeline workers only, for scaling job
// throughput out beyond the api process's embedded pool.
func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	blobs, err := storage.NewLocalStore(cfg.Storage.Root)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	var redis *infra.RedisAdapter
	if cfg.Redis.Addr != "" {
		redis, err = infra.NewRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("redis unavailable, proceeding without cross-process locks: %v", err)
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	var enrichLimiter enrich.Limiter
	if redis != nil {
		enrichLimiter = redis.NewRateLimiter(cfg.Enrichers.RatePerMinute)
	} else {
		enrichLimiter = enrich.NewLocalLimiter(cfg.Enrichers.RatePerMinute)
	}

	model, err := classify.LoadModel(cfg.Pipeline.ClassifierModel)
	if err != nil {
		log.Fatalf("classifier model: %v", err)
	}

	var gstin *enrich.GSTINClient
	if cfg.Enrichers.GSTINBaseURL != "" {
		gstin = enrich.NewGSTINClient(cfg.Enrichers.GSTINBaseURL, cfg.Enrichers.Timeout, enrichLimiter)
	}
	var bankstats *enrich.BankStatsClient
	if cfg.Enrichers.BankStatsURL != "" {
		bankstats = enrich.NewBankStatsClient(cfg.Enrichers.BankStatsURL, cfg.Enrichers.Timeout, enrichLimiter)
	}

	var locker jobs.Locker
	if redis != nil {
		locker = redis
	}

	metrics := monitoring.NewMetrics()
	runner := jobs.NewRunner(jobs.RunnerDeps{
		Store:       store,
		Blobs:       blobs,
		OCR:         ocr.New(cfg.Pipeline.OCRServiceURL, cfg.Pipeline.OCRTimeout),
		Classifier:  classify.New(model),
		Extractor:   extract.New(),
		Assembler:   features.New(),
		GSTIN:       gstin,
		BankStats:   bankstats,
		Eligibility: eligibility.New(cfg.Eligibility, store),
		Reports:     report.NewGenerator(),
		WhatsApp:    notify.NewWhatsApp(cfg.WhatsApp),
		Bus:         events.NewBus(),
		Locker:      locker,
		Metrics:     metrics,
	})

	pool := jobs.NewPool(store, runner, cfg.Jobs, metrics)
	pool.Start(ctx)

	<-ctx.Done()
	pool.Wait()
}
