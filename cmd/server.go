package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"encore/config"
	"encore/handlers"
	"encore/middleware"
	"encore/services"
	"encore/websocket"
)

// StartWebServer starts the web server
func StartWebServer(cfg *config.Config) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	root, err := cfg.EnsureCacheDir()
	if err != nil {
		logger.Fatal("cache directory unusable", "err", err)
	}

	// Initialize services
	ctx := context.Background()

	store, err := services.NewCacheStore(root, logger)
	if err != nil {
		logger.Fatal("failed to open cache store", "err", err)
	}

	resolver, err := services.NewYouTubeResolver(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		logger.Fatal("failed to create media resolver", "err", err)
	}

	fetcher, err := services.NewYTDLPFetcher(ctx, services.YTDLPOptions{
		AudioQuality: cfg.AudioQuality,
		CookieFile:   cfg.CookieFile,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create audio fetcher", "err", err)
	}

	hub := websocket.NewHub(logger)
	go hub.Run()

	pipeline := services.NewPipeline(store, resolver, fetcher,
		[]services.LyricSource{
			services.NewYTMusicLyricSource(),
			services.NewTranscriptLyricSource(cfg.LyricLanguages),
		},
		hub,
		services.PipelineOptions{
			ResolveTimeout: cfg.ResolveTimeout,
			FetchTimeout:   cfg.FetchTimeout,
			LyricTimeout:   cfg.LyricTimeout,
		},
		logger,
	)

	// Initialize handlers
	resolveHandler := handlers.NewResolveHandler(pipeline)
	cacheHandler := handlers.NewCacheHandler(store)
	healthHandler := handlers.NewHealthHandler(root)
	eventsHandler := handlers.NewEventsHandler(hub)

	// Setup router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Logging(logger))

	setupRoutes(r, resolveHandler, cacheHandler, healthHandler, eventsHandler)

	logger.Info("encore server starting", "port", cfg.Port, "cache", root)
	if err := r.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("server exited", "err", err)
	}
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, resolveHandler *handlers.ResolveHandler, cacheHandler *handlers.CacheHandler, healthHandler *handlers.HealthHandler, eventsHandler *handlers.EventsHandler) {
	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// Resolve a song/artist query into a cached track
	r.GET("/resolve", resolveHandler.Resolve)

	// Stream cached artifacts (audio, lyrics, metadata)
	r.GET("/cache/:filename", cacheHandler.Stream)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// WebSocket endpoints for real-time pipeline progress
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/resolve/:key", eventsHandler.Subscribe)
			wsGroup.GET("/resolve", eventsHandler.SubscribeAll)
		}
	}
}
