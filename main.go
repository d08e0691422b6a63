package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heatlens/api/aggregation"
	"heatlens/api/cache"
	"heatlens/api/config"
	"heatlens/api/database"
	"heatlens/api/handlers"
	"heatlens/api/ingest"
	"heatlens/api/logging"
	"heatlens/api/middleware"
	"heatlens/api/query"
	"heatlens/api/ratelimit"
	"heatlens/api/realtime"
	"heatlens/api/scheduler"
	"heatlens/api/sessions"
	"heatlens/api/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Setup("")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.Setup(cfg.GinMode)
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// --- Databases ---
	chClient, err := database.NewClickHouseDB(cfg, logging.Component(logger, "clickhouse"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize ClickHouse")
	}
	defer chClient.Close()

	schemaCtx, schemaCancel := context.WithTimeout(rootCtx, 30*time.Second)
	if err := chClient.EnsureSchema(schemaCtx); err != nil {
		schemaCancel()
		logger.Fatal().Err(err).Msg("failed to ensure ClickHouse schema")
	}
	schemaCancel()

	pgClient, err := database.NewPostgresDB(cfg.PostgresURL, logging.Component(logger, "postgres"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize site registry database")
	}
	defer pgClient.Close()

	cacheDB, err := database.NewBadgerDB(cfg.CacheDir, cfg.CacheInMemory, logging.Component(logger, "badger"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cache database")
	}

	// --- Stores ---
	eventStore := store.NewEventStore(chClient, logging.Component(logger, "events"))
	aggStore := store.NewAggregateStore(chClient, logging.Component(logger, "aggregates"))
	sessionStore := store.NewSessionStore(chClient, logging.Component(logger, "sessions"))
	siteStore := store.NewSiteStore(pgClient.DB)

	// --- Ingestion ---
	limiter := ratelimit.NewFixedWindowLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	limiter.StartSweeper(cfg.RateLimitWindow, rootCtx.Done())

	hub := realtime.NewHub(logging.Component(logger, "realtime"))
	defer hub.Close()

	gateway := ingest.NewGateway(eventStore, siteStore, limiter, hub, ingest.GatewayConfig{
		WriteTimeout:    cfg.IngestTimeout,
		BufferCapacity:  cfg.BufferCapacity,
		BufferRetryWait: cfg.BufferRetryWait,
	}, logging.Component(logger, "ingest"))
	go gateway.RunBufferDrain(rootCtx)

	// --- Aggregation, sessions, queries ---
	engine := aggregation.NewEngine(eventStore, aggStore, logging.Component(logger, "aggregation"))
	reconstructor := sessions.NewReconstructor(eventStore, sessionStore, logging.Component(logger, "sessions"))

	resolver := query.NewResolver(aggStore, eventStore, logging.Component(logger, "query"))
	cacheStore := cache.NewStore(cacheDB, logging.Component(logger, "cache"))
	defer cacheStore.Close()
	cachedResolver := cache.NewResolver(resolver, cacheStore, cfg.HeatmapCacheTTL, logging.Component(logger, "cache"))
	statsCache := cache.NewStatsCache(cacheStore, cfg.StatsCacheTTL, logging.Component(logger, "cache"))
	warmer := cache.NewWarmer(eventStore, resolver, cacheStore, cfg.HeatmapCacheTTL, cfg.WarmTopPages, logging.Component(logger, "warmer"))

	sched := scheduler.New(engine, reconstructor, warmer, siteStore, logging.Component(logger, "scheduler"))
	if err := sched.Start(rootCtx, cfg.DailyAggregationSpec, cfg.CacheWarmSpec); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	// --- Handlers ---
	trackHandlers := handlers.NewTrackHandlers(gateway, logging.Component(logger, "track"))
	heatmapHandlers := handlers.NewHeatmapHandlers(cachedResolver, logging.Component(logger, "heatmap"))
	statsHandlers := handlers.NewStatsHandlers(eventStore, sessionStore, statsCache, logging.Component(logger, "stats"))
	sessionHandlers := handlers.NewSessionHandlers(reconstructor, logging.Component(logger, "funnel"))
	adminHandlers := handlers.NewAdminHandlers(sched, logging.Component(logger, "admin"))
	liveHandlers := handlers.NewLiveHandlers(hub, logging.Component(logger, "live"))

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", trackHandlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// The tracking endpoint takes beacons from arbitrary customer sites
		// and carries its own CORS policy.
		track := api.Group("/")
		track.Use(middleware.TrackCORS())
		{
			track.POST("/track", trackHandlers.TrackEvents)
			track.OPTIONS("/track", trackHandlers.TrackEvents)
		}

		// Dashboard routes require a valid token.
		protected := api.Group("/")
		protected.Use(middleware.CORSMiddleware(), middleware.AuthRequired())
		{
			protected.GET("/heatmap", heatmapHandlers.GetHeatmap)

			statsGroup := protected.Group("/stats")
			{
				statsGroup.GET("/event-counts", statsHandlers.GetEventCountsOverTime)
				statsGroup.GET("/unique-sessions", statsHandlers.GetUniqueSessionsOverTime)
				statsGroup.GET("/top-pages", statsHandlers.GetTopPages)
				statsGroup.GET("/sessions", statsHandlers.ListSessions)
			}

			protected.GET("/sessions/:session_id/funnel", sessionHandlers.GetFunnel)
			protected.GET("/funnels", sessionHandlers.GetFunnelOverview)

			protected.GET("/live/:site_id", liveHandlers.Stream)

			protected.POST("/admin/rebuild", adminHandlers.TriggerRebuild)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("heatlens API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exiting")
}
