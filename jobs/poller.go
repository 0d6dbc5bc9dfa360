package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/earshot/audiobookshelf"
	"github.com/marcus-crane/earshot/discord"
	"github.com/marcus-crane/earshot/events"
	"github.com/marcus-crane/earshot/playback"
	"github.com/marcus-crane/earshot/presence"
)

const (
	DefaultInterval  = 15 * time.Second
	ReconnectBackoff = 5 * time.Second
)

type Library interface {
	CurrentSession(ctx context.Context) (audiobookshelf.Session, bool, error)
	ItemChapters(ctx context.Context, itemID string) ([]audiobookshelf.Chapter, error)
}

type Artwork interface {
	Resolve(ctx context.Context, session audiobookshelf.Session) (string, bool)
}

// Sink is where presences end up. discord.Client satisfies it.
type Sink interface {
	SetActivity(p *presence.Payload) error
	ClearActivity() error
	Reconnect() error
	Close() error
}

type Publisher interface {
	Publish(s events.Snapshot)
}

type connState int

const (
	stateConnected connState = iota
	stateReconnecting
)

func (s connState) String() string {
	if s == stateReconnecting {
		return "reconnecting"
	}
	return "connected"
}

// Poller drives one pipeline per tick. Ticks never overlap so none of its
// state is locked.
type Poller struct {
	Library   Library
	Artwork   Artwork
	Sink      Sink
	Tracker   *playback.Tracker
	Publisher Publisher

	ShowChapters bool
	Interval     time.Duration
	Backoff      backoff.BackOff

	clock clockwork.Clock
	state connState

	// cleared is set once the presence has been cleared for the current
	// pause or first sample, so a long pause clears once.
	cleared bool

	// chapters for chapterItem, fetched once per item
	chapterItem string
	chapters    []audiobookshelf.Chapter
}

func NewPoller(library Library, artwork Artwork, sink Sink, clock clockwork.Clock) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		Library:  library,
		Artwork:  artwork,
		Sink:     sink,
		Tracker:  playback.NewTracker(clock),
		Interval: DefaultInterval,
		Backoff:  backoff.NewConstantBackOff(ReconnectBackoff),
		clock:    clock,
	}
}

// Run ticks immediately and then every Interval until ctx is done. On the way
// out the presence is cleared and the sink closed.
func (p *Poller) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithClock(p.clock),
	)
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(p.Interval),
		gocron.NewTask(func() { p.runTick(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	s.Start()
	slog.Info("Polling Audiobookshelf", slog.Duration("interval", p.Interval))

	<-ctx.Done()

	if err := s.Shutdown(); err != nil {
		slog.Error("Failed to stop scheduler", slog.String("error", err.Error()))
	}
	if err := p.Sink.ClearActivity(); err != nil {
		slog.Debug("Failed to clear presence on shutdown", slog.String("error", err.Error()))
	}
	return p.Sink.Close()
}

func (p *Poller) runTick(ctx context.Context) {
	if err := p.Tick(ctx); err != nil {
		slog.Error("Tick failed", slog.String("error", err.Error()))
	}
}

// Tick runs one pass of the pipeline. A broken sink is reconnected before
// returning; every other error is only reported.
func (p *Poller) Tick(ctx context.Context) error {
	if p.state == stateReconnecting {
		slog.Info("Retrying Discord connection", slog.String("state", p.state.String()))
		if err := p.reconnect(ctx); err != nil {
			return err
		}
	}

	err := p.tick(ctx)
	if err != nil && errors.Is(err, discord.ErrConnectionBroken) {
		slog.Warn("Lost connection to Discord, reconnecting", slog.String("error", err.Error()))
		p.state = stateReconnecting
		if rerr := p.reconnect(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	return err
}

func (p *Poller) reconnect(ctx context.Context) error {
	_ = p.Sink.Close()

	if wait := p.Backoff.NextBackOff(); wait > 0 {
		select {
		case <-p.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := p.Sink.Reconnect(); err != nil {
		p.state = stateReconnecting
		return fmt.Errorf("reconnect to discord: %w", err)
	}
	p.state = stateConnected
	p.Backoff.Reset()
	slog.Info("Reconnected to Discord")
	return nil
}

func (p *Poller) tick(ctx context.Context) error {
	session, ok, err := p.Library.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("fetch current session: %w", err)
	}
	if !ok {
		p.Tracker.Forget()
		p.cleared = true
		p.publish(events.Snapshot{Status: events.StatusIdle})
		return p.Sink.ClearActivity()
	}

	if p.ShowChapters && len(session.Chapters) == 0 && session.LibraryItemID != "" {
		session.Chapters = p.itemChapters(ctx, session.LibraryItemID)
	}

	verdict := p.Tracker.Observe(session.DisplayTitle, session.CurrentTime, session.Duration)
	if verdict.Switched {
		slog.Info("Now tracking",
			slog.String("title", session.DisplayTitle),
			slog.String("item_id", session.LibraryItemID))
	}

	snapshot := events.Snapshot{
		Status:   verdict.Status,
		ItemID:   session.LibraryItemID,
		Title:    session.DisplayTitle,
		Author:   session.DisplayAuthor,
		Position: verdict.Position,
		Duration: session.Duration,
	}

	if verdict.First {
		p.cleared = true
		p.publish(snapshot)
		return p.Sink.ClearActivity()
	}

	// A confirmed pause clears the presence once. Later paused ticks leave it
	// cleared until playback resumes.
	if !verdict.Playing() && verdict.Quiet {
		p.publish(snapshot)
		if p.cleared {
			return nil
		}
		slog.Info("Playback paused, clearing presence", slog.String("title", session.DisplayTitle))
		p.cleared = true
		return p.Sink.ClearActivity()
	}
	p.cleared = false

	var artwork string
	if verdict.Playing() {
		artwork, _ = p.Artwork.Resolve(ctx, session)
	}

	payload := presence.Build(presence.Input{
		Session:      &session,
		Verdict:      verdict,
		Artwork:      artwork,
		ShowChapters: p.ShowChapters,
		Now:          p.clock.Now(),
	})
	snapshot.Artwork = artwork
	snapshot.Payload = payload
	p.publish(snapshot)

	slog.Debug("Updating presence",
		slog.String("status", string(verdict.Status)),
		slog.Float64("position", verdict.Position))
	return p.Sink.SetActivity(payload)
}

func (p *Poller) itemChapters(ctx context.Context, itemID string) []audiobookshelf.Chapter {
	if p.chapterItem == itemID {
		return p.chapters
	}
	chapters, err := p.Library.ItemChapters(ctx, itemID)
	if err != nil {
		slog.Warn("Failed to fetch chapters",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()))
		return nil
	}
	p.chapterItem = itemID
	p.chapters = chapters
	return chapters
}

func (p *Poller) publish(s events.Snapshot) {
	if p.Publisher == nil {
		return
	}
	s.UpdatedAt = p.clock.Now()
	p.Publisher.Publish(s)
}
