package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/deepresearch-backend/internal/clients/fmp"
	"github.com/yungbote/deepresearch-backend/internal/clients/tavily"
	"github.com/yungbote/deepresearch-backend/internal/data/graph"
	"github.com/yungbote/deepresearch-backend/internal/http/handlers"
	"github.com/yungbote/deepresearch-backend/internal/knowledge"
	"github.com/yungbote/deepresearch-backend/internal/observability"
	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
	"github.com/yungbote/deepresearch-backend/internal/platform/neo4jdb"
	"github.com/yungbote/deepresearch-backend/internal/platform/openai"
	"github.com/yungbote/deepresearch-backend/internal/server"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Metrics
	metrics := observability.Init(log)

	// Neo4j
	log.Info("Connecting to graph database...")
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed, graph storage disabled", "error", err)
	}
	graphStore := graph.NewStore(neo4jClient, log)
	if graphStore.Enabled() {
		schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		graphStore.EnsureSchema(schemaCtx)
		cancel()
	}

	// OpenAI
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}

	// Knowledge pipeline
	extractor := knowledge.NewExtractor(openaiClient, log)
	var catalogStore knowledge.CatalogStore
	if os.Getenv("REDIS_ADDR") != "" {
		catalogStore, err = knowledge.NewRedisCatalog(log)
		if err != nil {
			log.Warn("Redis catalog init failed, using in-memory catalog", "error", err)
			catalogStore = nil
		}
	}
	if catalogStore == nil {
		catalogStore = knowledge.NewMemoryCatalog()
	}
	var seeder knowledge.CatalogSeeder
	if graphStore.Enabled() && envutil.Bool("CATALOG_SEED_FROM_GRAPH", false) {
		seeder = knowledge.NewGraphSeeder(graphStore, log)
	}
	integrator := knowledge.NewIntegrator(graphStore, extractor, catalogStore, seeder, log)

	// External data clients
	fmpClient, err := fmp.NewClient(log)
	if err != nil {
		log.Warn("FMP client unavailable", "error", err)
	}
	tavilyClient, err := tavily.NewClient(log, openaiClient)
	if err != nil {
		log.Warn("Tavily client unavailable", "error", err)
	}

	// Router
	router := server.NewRouter(server.RouterConfig{
		Log:              log,
		Metrics:          metrics,
		KnowledgeHandler: handlers.NewKnowledgeHandler(integrator, graphStore),
		FinancialHandler: handlers.NewFinancialHandler(fmpClient),
		SearchHandler:    handlers.NewSearchHandler(tavilyClient),
	})

	port := envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	integrator.EndSession(shutdownCtx)
}
