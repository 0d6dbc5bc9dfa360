package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/marcus-crane/earshot/artwork"
	"github.com/marcus-crane/earshot/audiobookshelf"
	"github.com/marcus-crane/earshot/config"
	"github.com/marcus-crane/earshot/discord"
	"github.com/marcus-crane/earshot/events"
	"github.com/marcus-crane/earshot/jobs"
	"github.com/marcus-crane/earshot/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Println(err)
	}

	configPath := pflag.StringP("config", "c", utils.GetEnv("EARSHOT_CONFIG", config.DefaultPath), "path to config.json")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()})))

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to open artwork cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore(store)
	slog.Info("Loaded artwork cache",
		slog.String("backend", cfg.Artwork.CacheBackend),
		slog.Int("entries", store.Len()))

	library := audiobookshelf.NewClient(cfg.Audiobookshelf.URL, cfg.Audiobookshelf.Token)

	var uploader artwork.Uploader
	if cfg.Artwork.ImgurClientID != "" {
		uploader = artwork.NewImgur(cfg.Artwork.ImgurClientID)
	}
	resolver := artwork.NewResolver(library, store, cfg.Artwork.UseABSCover, uploader)

	sink, err := discord.Connect(cfg.Discord.ClientID)
	if err != nil {
		slog.Error("Failed to connect to Discord", slog.String("error", err.Error()))
		closeStore(store)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := jobs.NewPoller(library, resolver, sink, nil)
	poller.ShowChapters = cfg.Audiobookshelf.ShowChapters
	poller.Interval = cfg.PollInterval()

	if cfg.Earshot.StatusAddr != "" {
		current := events.NewPresence()
		poller.Publisher = current
		srv := startStatusServer(cfg, current)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Failed to stop status API", slog.String("error", err.Error()))
			}
		}()
	}

	if err := poller.Run(ctx); err != nil {
		slog.Error("Poller stopped with an error", slog.String("error", err.Error()))
	}
	slog.Info("Earshot has shut down")
}

func openStore(cfg config.Config) (artwork.Store, error) {
	if cfg.Artwork.CacheBackend == config.CacheBackendSQLite {
		return artwork.OpenSQLiteStore(cfg.CacheDBPath())
	}
	fs := artwork.OpenFileStore(cfg.CachePath(), cfg.LegacyCachePath())
	slog.Debug("Using JSON artwork cache", slog.String("path", fs.Path()))
	return fs, nil
}

func closeStore(store artwork.Store) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close artwork cache", slog.String("error", err.Error()))
	}
}

func startStatusServer(cfg config.Config, current *events.Presence) *http.Server {
	events.Init()
	router := RegisterRoutes(http.NewServeMux(), current, cfg.Earshot.CORSOrigins)
	srv := &http.Server{
		Addr:              cfg.Earshot.StatusAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Status API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status API stopped", slog.String("error", err.Error()))
		}
	}()
	return srv
}
