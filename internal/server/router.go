package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/http/handlers"
	"github.com/yungbote/deepresearch-backend/internal/http/middleware"
	"github.com/yungbote/deepresearch-backend/internal/observability"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log              *logger.Logger
	Metrics          *observability.Metrics
	KnowledgeHandler *handlers.KnowledgeHandler
	FinancialHandler *handlers.FinancialHandler
	SearchHandler    *handlers.SearchHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(middleware.Metrics(cfg.Metrics))

	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/metrics", handlers.MetricsText)

	api := router.Group("/api")
	{
		// Knowledge graph
		if cfg.KnowledgeHandler != nil {
			api.POST("/knowledge/sessions", cfg.KnowledgeHandler.BeginSession)
			api.DELETE("/knowledge/sessions/current", cfg.KnowledgeHandler.EndSession)
			api.POST("/knowledge/ingest", cfg.KnowledgeHandler.Ingest)
			api.POST("/knowledge/claims/link", cfg.KnowledgeHandler.LinkClaims)
			api.GET("/knowledge/claims/search", cfg.KnowledgeHandler.SearchClaims)
			api.GET("/knowledge/runs/:id/summary", cfg.KnowledgeHandler.RunSummary)
		}

		// Market data
		if cfg.FinancialHandler != nil {
			api.GET("/financial/profile/:symbol", cfg.FinancialHandler.Profile)
			api.GET("/financial/quote/:symbol", cfg.FinancialHandler.Quote)
			api.GET("/financial/statements/:symbol", cfg.FinancialHandler.Statements)
			api.GET("/financial/metrics/:symbol", cfg.FinancialHandler.KeyMetrics)
			api.GET("/financial/ratios/:symbol", cfg.FinancialHandler.Ratios)
			api.GET("/financial/eod/:symbol", cfg.FinancialHandler.EODQuotes)
			api.GET("/financial/treasury-rates", cfg.FinancialHandler.TreasuryRates)
			api.GET("/financial/economic-events", cfg.FinancialHandler.EconomicEvents)
			api.GET("/financial/news", cfg.FinancialHandler.News)
			api.GET("/financial/search", cfg.FinancialHandler.SearchSymbols)
		}

		// Web search
		if cfg.SearchHandler != nil {
			api.POST("/search", cfg.SearchHandler.Search)
		}
	}

	return router
}
