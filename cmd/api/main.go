package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/lendflow/backend/internal/api"
	"github.com/lendflow/backend/internal/classify"
	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/copilot"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/eligibility"
	"github.com/lendflow/backend/internal/enrich"
	"github.com/lendflow/backend/internal/events"
	"github.com/lendflow/backend/internal/extract"
	"github.com/lendflow/backend/internal/features"
	"github.com/lendflow/backend/internal/infra"
	"github.com/lendflow/backend/internal/ingest"
	"github.com/lendflow/backend/internal/jobs"
	"github.com/lendflow/backend/internal/middleware"
	"github.com/lendflow/backend/internal/monitoring"
	"github.com/lendflow/backend/internal/notify"
	"github.com/lendflow/backend/internal/ocr"
	"github.com/lendflow/backend/internal/report"
	"github.com/lendflow/backend/internal/storage"
)

// The api binary serves HTTP and runs an embedded worker pool, which is
// enough for a single-node deployment. Extra worker processes can be
// added with cmd/worker against the same database.
func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Storage and database
	store, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	blobs, err := storage.NewLocalStore(cfg.Storage.Root)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// 2. Redis (optional): locks and shared rate limits. Without it the
	// in-process fallbacks take over.
	var redis *infra.RedisAdapter
	if cfg.Redis.Addr != "" {
		redis, err = infra.NewRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("redis unavailable, falling back to in-process locks and limits: %v", err)
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	var httpLimiter middleware.Limiter
	var copilotLimiter copilot.Limiter
	var enrichLimiter enrich.Limiter
	if redis != nil {
		httpLimiter = redis.NewRateLimiter(120)
		copilotLimiter = redis.NewRateLimiter(cfg.Copilot.RatePerMinute)
		enrichLimiter = redis.NewRateLimiter(cfg.Enrichers.RatePerMinute)
	} else {
		httpLimiter = middleware.NewRateLimiter(120)
		copilotLimiter = middleware.NewRateLimiter(cfg.Copilot.RatePerMinute)
		enrichLimiter = enrich.NewLocalLimiter(cfg.Enrichers.RatePerMinute)
	}

	// 3. Pipeline stages
	metrics := monitoring.NewMetrics()
	bus := events.NewBus()

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
		Bus:         bus,
		Locker:      locker,
		Metrics:     metrics,
	})

	pool := jobs.NewPool(store, runner, cfg.Jobs, metrics)
	pool.Start(ctx)

	// 4. Copilot
	var llm *copilot.LLMClient
	if cfg.Copilot.LLMBaseURL != "" {
		llm = copilot.NewLLMClient(cfg.Copilot.LLMBaseURL, cfg.Copilot.LLMAPIKey,
			cfg.Copilot.LLMModel, cfg.Copilot.LLMTimeout)
	}
	cp := copilot.New(store, store, llm, copilotLimiter,
		lenderNames(ctx, store), cfg.Copilot.MemoryWindow)
	if redis != nil {
		cp = cp.WithCache(redis)
	}

	// 5. HTTP server
	server := api.NewServer(api.Deps{
		Config:   cfg,
		Store:    store,
		Blobs:    blobs,
		Ingester: ingest.New(store, blobs, store, cfg.Upload),
		Copilot:  cp,
		Bus:      bus,
		Metrics:  metrics,
		Limiter:  httpLimiter,
		Redis:    redisHealth(redis),
	})

	if err := server.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	pool.Wait()
}

// lenderNames seeds the copilot's lender-specific query detection. An
// empty catalogue is fine; detection just stays generic.
func lenderNames(ctx context.Context, store *database.Store) []string {
	products, err := store.ListActiveLenderProducts(ctx, "")
	if err != nil {
		log.Printf("lender catalogue unavailable at startup: %v", err)
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, p := range products {
		if !seen[p.LenderName] {
			seen[p.LenderName] = true
			names = append(names, p.LenderName)
		}
	}
	return names
}

// redisHealth avoids handing the server a typed-nil interface.
func redisHealth(r *infra.RedisAdapter) api.HealthChecker {
	if r == nil {
		return nil
	}
	return r
}
