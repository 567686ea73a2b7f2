package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all runtime settings. Values come from an optional TOML file
// with environment variables taking precedence over it.
type Config struct {
	Port          int    `env:"PORT" toml:"port"`
	CacheDir      string `env:"CACHE_DIR" toml:"cache_dir"`
	YouTubeAPIKey string `env:"YOUTUBE_API_KEY" toml:"youtube_api_key"`
	CookieFile    string `env:"COOKIE_FILE" toml:"cookie_file"`
	CORSOrigins   string `env:"CORS_ORIGINS" toml:"cors_origins"`
	AudioQuality  string `env:"AUDIO_QUALITY" toml:"audio_quality"`

	// Preferred transcript languages for the lyric fallback source, in order.
	LyricLanguages []string `env:"LYRIC_LANGUAGES" envSeparator:"," toml:"lyric_languages"`

	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" toml:"resolve_timeout"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT" toml:"fetch_timeout"`
	LyricTimeout   time.Duration `env:"LYRIC_TIMEOUT" toml:"lyric_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           8080,
		CacheDir:       "music_cache",
		AudioQuality:   "128K",
		LyricLanguages: []string{"vi", "en"},
		ResolveTimeout: 15 * time.Second,
		FetchTimeout:   5 * time.Minute,
		LyricTimeout:   15 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional TOML file at path
// (ignored when path is empty or the file does not exist), and finally the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env-only configuration
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if len(c.LyricLanguages) == 0 {
		c.LyricLanguages = []string{"en"}
	}
	return nil
}

// EnsureCacheDir creates the cache directory (and its staging subdirectory)
// if missing and returns the absolute cache root.
func (c *Config) EnsureCacheDir() (string, error) {
	root, err := filepath.Abs(c.CacheDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir %s: %w", root, err)
	}
	return root, nil
}
