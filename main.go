package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/serline/ruleminer/config"
	"github.com/serline/ruleminer/db"
	"github.com/serline/ruleminer/extraction"
	"github.com/serline/ruleminer/job_tracker"
	"github.com/serline/ruleminer/llm_service"
	"github.com/serline/ruleminer/logging"
	"github.com/serline/ruleminer/parser_service"
	"github.com/serline/ruleminer/semantic_cache"
	"github.com/serline/ruleminer/server"
	"github.com/serline/ruleminer/storage"
)

func main() {
	cfg := config.Load()

	handler, err := logging.NewDailyFileHandler("logs", "ruleminer", &slog.HandlerOptions{Level: slog.LevelInfo})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	documents := storage.NewDocumentStore(pool, logger)
	rules := storage.NewRuleStore(pool, logger)

	completion := llm_service.NewOpenAIService(cfg.OpenAIAPIURL, cfg.OpenAIAPIKey, cfg.CompletionModel, cfg.LLMTimeout, logger)
	embedder := llm_service.NewOpenAIEmbeddingService(cfg.OpenAIAPIURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.LLMTimeout, logger)

	cache := semantic_cache.New(
		embedder,
		semantic_cache.NewPgVectorIndex(pool),
		cfg.SemanticCacheEnabled,
		cfg.SemanticCacheThreshold,
		cfg.SemanticCacheMaxChars,
		cfg.EmbeddingModel+"/"+cfg.CompletionModel,
		logger,
	)

	runs := job_tracker.NewStore(logger)
	runs.StartCleanup(24*time.Hour, time.Hour)
	defer runs.StopCleanup()
	tracker := job_tracker.NewTracker(runs, cfg.CallbackEndpoint, logger)

	var remote *parser_service.RemoteClient
	if cfg.ParseServiceURL != "" {
		remote = parser_service.NewRemoteClient(cfg.ParseServiceURL, cfg.ParseServiceToken, logger)
	}
	parser := parser_service.New(remote, logger)

	extractor := extraction.NewExtractor(completion, extraction.RetryConfig{
		Base:           cfg.RetryBase,
		MaxRateLimit:   cfg.RetryMaxRateLimit,
		MaxServerError: cfg.RetryMaxServerError,
		MaxAttempts:    cfg.MaxAttempts,
	}, logger)

	scheduler := extraction.NewBatchScheduler(extractor, cache, tracker,
		cfg.BatchSize, cfg.MaxConcurrentBatches, cfg.ProgressEvery, logger)

	reuse := extraction.NewReuseResolver(documents, rules, cfg.ExactReuseEnabled, logger)

	pipeline := extraction.NewPipeline(parser, scheduler, reuse, documents, rules, tracker,
		completion, cfg.ChunkTargetSize, cfg.ChunkOverlap, cfg.RunDeadline, logger)

	r := server.SetupRoutes(documents, rules, pipeline, tracker, runs, cache, logger)
	n := setupNegroni(r)

	if cfg.Environment == "production" {
		server.ServeProduction(n, cfg.Domains, cfg.CertCacheDir)
	} else {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      n,
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		server.ServeDevelopment(srv)
	}
}

func setupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()

	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())

	n.UseHandler(r)
	return n
}
