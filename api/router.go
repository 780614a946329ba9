package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/api/handler"
	"github.com/use-agent/scrollsnap/api/middleware"
	"github.com/use-agent/scrollsnap/capture"
	"github.com/use-agent/scrollsnap/config"
	"github.com/use-agent/scrollsnap/fetch"
	"github.com/use-agent/scrollsnap/ledger"
	"github.com/use-agent/scrollsnap/locator"
	"github.com/use-agent/scrollsnap/observability"
	"github.com/use-agent/scrollsnap/segment"
	"github.com/use-agent/scrollsnap/snapshot"
)

// Deps are the services the routes dispatch to. Browser, Agent, Fetcher,
// Ledger and Metrics may be nil when the matching feature is off.
type Deps struct {
	Engine    *snapshot.Engine
	Agent     *capture.Agent
	Browser   *capture.Browser
	Queue     *segment.Queue
	Fetcher   *fetch.Fetcher
	Deriver   *locator.Deriver
	Ledger    *ledger.Ledger
	Metrics   *observability.Metrics
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(d Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(d.Browser, d.Queue, d.StartTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scroll batches
	protected.POST("/ingest", handler.Ingest(d.Engine))
	protected.GET("/history", handler.History(d.Ledger))

	// Browser capture
	protected.POST("/capture", handler.PostCapture(d.Agent))
	protected.GET("/capture/:id", handler.GetCapture(d.Agent))

	// Static locator derivation
	protected.POST("/locators", handler.Locators(d.Fetcher, d.Deriver))

	return r
}
