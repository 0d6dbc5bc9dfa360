package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	golobby "github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

const (
	DefaultPath         = "config.json"
	DefaultPollInterval = 15

	CacheBackendJSON   = "json"
	CacheBackendSQLite = "sqlite"

	cacheFileName  = "cover_cache.json"
	cacheDBName    = "cover_cache.db"
	legacyCacheDir = "."
)

var ErrMissingField = errors.New("missing required config field")

type Config struct {
	Discord        DiscordConfig
	Audiobookshelf AudiobookshelfConfig
	Artwork        ArtworkConfig
	Earshot        EarshotConfig

	// path is where the config was read from and anchors the cache location
	path string
}

type DiscordConfig struct {
	ClientID string
}

type AudiobookshelfConfig struct {
	URL          string
	Token        string
	ShowChapters bool
}

type ArtworkConfig struct {
	UseABSCover   bool
	ImgurClientID string
	CacheBackend  string
}

type EarshotConfig struct {
	LogLevel            string
	StatusAddr          string
	CORSOrigins         []string
	PollIntervalSeconds int
}

// flat mirrors the on-disk layout, which keeps every key at the top level
type flat struct {
	DiscordClientID     string   `json:"discord_client_id" env:"EARSHOT_DISCORD_CLIENT_ID"`
	AudiobookshelfURL   string   `json:"audiobookshelf_url" env:"EARSHOT_AUDIOBOOKSHELF_URL"`
	AudiobookshelfToken string   `json:"audiobookshelf_token" env:"EARSHOT_AUDIOBOOKSHELF_TOKEN"`
	ShowChapters        bool     `json:"show_chapters" env:"EARSHOT_SHOW_CHAPTERS"`
	UseABSCover         bool     `json:"use_abs_cover" env:"EARSHOT_USE_ABS_COVER"`
	ImgurClientID       string   `json:"imgur_client_id" env:"EARSHOT_IMGUR_CLIENT_ID"`
	CacheBackend        string   `json:"cache_backend" env:"EARSHOT_CACHE_BACKEND"`
	LogLevel            string   `json:"log_level" env:"EARSHOT_LOG_LEVEL"`
	StatusAddr          string   `json:"status_addr" env:"EARSHOT_STATUS_ADDR"`
	CORSOrigins         []string `json:"cors_origins"`
	PollIntervalSeconds int      `json:"poll_interval_seconds" env:"EARSHOT_POLL_INTERVAL_SECONDS"`
}

// Load reads the JSON config at path and then applies any EARSHOT_* environment
// overrides. A missing file or missing required field is fatal to the caller.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	var raw flat
	c := golobby.New().
		AddFeeder(feeder.Json{Path: abs}).
		AddFeeder(feeder.Env{}).
		AddStruct(&raw)
	if err := c.Feed(); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Config{
		Discord: DiscordConfig{ClientID: strings.TrimSpace(raw.DiscordClientID)},
		Audiobookshelf: AudiobookshelfConfig{
			URL:          strings.TrimRight(strings.TrimSpace(raw.AudiobookshelfURL), "/"),
			Token:        strings.TrimSpace(raw.AudiobookshelfToken),
			ShowChapters: raw.ShowChapters,
		},
		Artwork: ArtworkConfig{
			UseABSCover:   raw.UseABSCover,
			ImgurClientID: strings.TrimSpace(raw.ImgurClientID),
			CacheBackend:  strings.ToLower(strings.TrimSpace(raw.CacheBackend)),
		},
		Earshot: EarshotConfig{
			LogLevel:            raw.LogLevel,
			StatusAddr:          strings.TrimSpace(raw.StatusAddr),
			CORSOrigins:         raw.CORSOrigins,
			PollIntervalSeconds: raw.PollIntervalSeconds,
		},
		path: abs,
	}
	if cfg.Artwork.CacheBackend == "" {
		cfg.Artwork.CacheBackend = CacheBackendJSON
	}
	if cfg.Earshot.PollIntervalSeconds <= 0 {
		cfg.Earshot.PollIntervalSeconds = DefaultPollInterval
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Discord.ClientID == "" {
		return fmt.Errorf("%w: discord_client_id", ErrMissingField)
	}
	if c.Audiobookshelf.URL == "" {
		return fmt.Errorf("%w: audiobookshelf_url", ErrMissingField)
	}
	if c.Audiobookshelf.Token == "" {
		return fmt.Errorf("%w: audiobookshelf_token", ErrMissingField)
	}
	u, err := url.Parse(c.Audiobookshelf.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("audiobookshelf_url %q is not an absolute URL", c.Audiobookshelf.URL)
	}
	switch c.Artwork.CacheBackend {
	case CacheBackendJSON, CacheBackendSQLite:
	default:
		return fmt.Errorf("unknown cache_backend %q", c.Artwork.CacheBackend)
	}
	return nil
}

func (c Config) Path() string {
	return c.path
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Earshot.PollIntervalSeconds) * time.Second
}

// CachePath sits next to the config file.
func (c Config) CachePath() string {
	return filepath.Join(filepath.Dir(c.path), cacheFileName)
}

// LegacyCachePath is where older releases wrote the cache: the working directory.
func (c Config) LegacyCachePath() string {
	return filepath.Join(legacyCacheDir, cacheFileName)
}

func (c Config) CacheDBPath() string {
	return filepath.Join(filepath.Dir(c.path), cacheDBName)
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Earshot.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" || logLevel == "warn" {
		return slog.LevelWarn
	}
	if logLevel == "info" || logLevel == "" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
