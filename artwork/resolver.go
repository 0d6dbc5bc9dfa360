package artwork

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/marcus-crane/earshot/audiobookshelf"
)

// Providers is the priority order for cover search. Earlier entries win
// regardless of which request finishes first.
var Providers = []string{
	"audible",
	"google",
	"audible.jp",
	"openlibrary",
	"itunes",
	"audible.ca",
	"audible.uk",
	"audible.au",
	"audible.fr",
	"audible.de",
	"audible.it",
	"audible.in",
	"audible.es",
	"fantlab",
}

// Library is the slice of the Audiobookshelf client the resolver needs.
type Library interface {
	CoverURL(itemID string) string
	FetchCover(ctx context.Context, itemID string) ([]byte, bool, error)
	SearchCover(ctx context.Context, title, author, provider string) (string, bool, error)
}

type Resolver struct {
	Library   Library
	Store     Store
	Providers []string

	// UseServerCover hands Discord the server's own cover URL instead of
	// re-hosting the bytes.
	UseServerCover bool
	// Uploader is nil when no image host is configured.
	Uploader Uploader
}

func NewResolver(library Library, store Store, useServerCover bool, uploader Uploader) *Resolver {
	return &Resolver{
		Library:        library,
		Store:          store,
		Providers:      Providers,
		UseServerCover: useServerCover,
		Uploader:       uploader,
	}
}

// Resolve finds a displayable cover for the session. Not finding one is a
// normal outcome and is reported as false, never as an error.
func (r *Resolver) Resolve(ctx context.Context, session audiobookshelf.Session) (string, bool) {
	itemID := session.LibraryItemID
	log := slog.With(slog.String("item_id", itemID), slog.String("title", session.DisplayTitle))

	if itemID != "" {
		if url, ok := r.Store.Get(itemID); ok {
			log.Debug("Artwork cache hit")
			return url, true
		}
		if url, ok := r.fromServer(ctx, itemID); ok {
			r.remember(itemID, url)
			return url, true
		}
	}

	if session.IsPodcast() {
		log.Debug("No server cover for podcast, skipping provider search")
		return "", false
	}

	url, ok := r.search(ctx, SearchTitle(session.DisplayTitle), session.DisplayAuthor)
	if !ok {
		log.Debug("No provider returned a cover")
		return "", false
	}
	if itemID != "" {
		r.remember(itemID, url)
	}
	return url, true
}

func (r *Resolver) fromServer(ctx context.Context, itemID string) (string, bool) {
	image, ok, err := r.Library.FetchCover(ctx, itemID)
	if err != nil {
		slog.Warn("Failed to fetch cover from Audiobookshelf",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}

	serverURL := r.Library.CoverURL(itemID)
	if r.UseServerCover {
		return serverURL, true
	}
	if r.Uploader == nil {
		slog.Warn("No imgur_client_id configured, using the Audiobookshelf cover URL",
			slog.String("item_id", itemID))
		return serverURL, true
	}

	hosted, err := r.Uploader.Upload(ctx, image)
	if err != nil {
		slog.Warn("Failed to re-host cover, using the Audiobookshelf cover URL",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()))
		return serverURL, true
	}
	return hosted, true
}

// search queries every provider at once and then picks by list order.
func (r *Resolver) search(ctx context.Context, title, author string) (string, bool) {
	results := make([]string, len(r.Providers))

	var g errgroup.Group
	for i, provider := range r.Providers {
		i, provider := i, provider
		g.Go(func() error {
			url, ok, err := r.Library.SearchCover(ctx, title, author, provider)
			if err != nil {
				slog.Debug("Cover search failed",
					slog.String("provider", provider),
					slog.String("error", err.Error()))
				return nil
			}
			if ok {
				results[i] = url
			}
			return nil
		})
	}
	g.Wait()

	for i, url := range results {
		if url != "" {
			slog.Debug("Picked cover", slog.String("provider", r.Providers[i]), slog.String("url", url))
			return url, true
		}
	}
	return "", false
}

func (r *Resolver) remember(itemID, url string) {
	if err := r.Store.Put(itemID, url); err != nil {
		slog.Error("Failed to save artwork cache",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()))
	}
}
