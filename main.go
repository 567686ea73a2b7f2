package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"

	"encore/cmd"
	"encore/config"
	"encore/services"
)

func main() {
	var (
		server     bool
		port       int
		song       string
		artist     string
		configPath string
	)

	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 0, "Port for web server mode (overrides config)")
	flag.StringVar(&song, "song", "", "Song title to resolve into the cache")
	flag.StringVar(&artist, "artist", "", "Artist name for the song")
	flag.StringVar(&configPath, "config", "encore.toml", "Path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(cfg)
		return
	}

	if song == "" {
		flag.Usage()
		return
	}

	warmCache(cfg, song, artist)
}

// warmCache resolves a single query into the cache from the command line,
// showing download progress, then exits.
func warmCache(cfg *config.Config, song, artist string) {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	ctx := context.Background()

	root, err := cfg.EnsureCacheDir()
	if err != nil {
		logger.Fatal("cache directory unusable", "err", err)
	}

	store, err := services.NewCacheStore(root, logger)
	if err != nil {
		logger.Fatal("failed to open cache store", "err", err)
	}

	resolver, err := services.NewYouTubeResolver(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		logger.Fatal("failed to create media resolver", "err", err)
	}

	bar := progressbar.Default(100, "downloading")
	fetcher, err := services.NewYTDLPFetcher(ctx, services.YTDLPOptions{
		AudioQuality: cfg.AudioQuality,
		CookieFile:   cfg.CookieFile,
		Progress: func(percent float64) {
			bar.Set(int(percent)) //nolint:errcheck
		},
	}, logger)
	if err != nil {
		logger.Fatal("failed to create audio fetcher", "err", err)
	}

	pipeline := services.NewPipeline(store, resolver, fetcher,
		[]services.LyricSource{
			services.NewYTMusicLyricSource(),
			services.NewTranscriptLyricSource(cfg.LyricLanguages),
		},
		nil,
		services.PipelineOptions{
			ResolveTimeout: cfg.ResolveTimeout,
			FetchTimeout:   cfg.FetchTimeout,
			LyricTimeout:   cfg.LyricTimeout,
		},
		logger,
	)

	meta, err := pipeline.Resolve(ctx, song, artist)
	if err != nil {
		logger.Fatal("resolve failed", "song", song, "artist", artist, "err", err)
	}
	bar.Finish() //nolint:errcheck

	source := "network"
	if meta.FromCache {
		source = "cache"
	}
	fmt.Printf("%s — %s (%ds) [%s]\n", meta.Artist, meta.Title, meta.Duration, source)
	fmt.Printf("audio: %s\nlyrics: %s\n", meta.AudioURL, meta.LyricURL)
}
