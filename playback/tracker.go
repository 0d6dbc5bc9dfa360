package playback

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

const (
	// DefaultRateFactor slows extrapolation slightly because the server's
	// reported offset trails real playback. Tunable, not derived.
	DefaultRateFactor = 0.8

	// MinQuietInterval is how long an offset must sit still before we call it paused.
	MinQuietInterval = 2 * time.Second

	// Epsilon is the smallest offset movement (seconds) treated as real progress.
	Epsilon = 1e-3
)

// TrackedBook identifies what we currently believe is playing. It is only
// used to spot a switch, so the title is the whole identity.
type TrackedBook struct {
	Title string
}

// State is the extrapolation anchor: the last instant a genuinely new offset
// was seen and the offset at that instant.
type State struct {
	LastChange time.Time
	Position   float64
	Playing    bool
	anchored   bool
}

// Timing is the previous raw sample, used only for the did-it-move test.
type Timing struct {
	Offset    float64
	FetchedAt time.Time
	Set       bool
}

type Verdict struct {
	Status   Status
	Position float64
	// First is set on the first sample after a reset. A single sample can't
	// show motion, so callers should clear any stale display.
	First bool
	// Switched is set when the title changed since the last observation.
	Switched bool
	// Quiet is set when the offset has sat still for the quiet interval,
	// which is what confirms a pause rather than a slow poll.
	Quiet bool
}

func (v Verdict) Playing() bool {
	return v.Status == StatusPlaying
}

// Tracker owns all loop state that must survive between ticks. It is not
// safe for concurrent use; the poller drives it from a single job.
type Tracker struct {
	Book   *TrackedBook
	State  State
	Timing Timing

	RateFactor    float64
	QuietInterval time.Duration

	clock clockwork.Clock
}

func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		RateFactor:    DefaultRateFactor,
		QuietInterval: MinQuietInterval,
		clock:         clock,
	}
}

// Reset drops timing and extrapolation state but keeps the tracked book.
func (t *Tracker) Reset() {
	t.State = State{}
	t.Timing = Timing{}
}

// Forget is used when there is no session at all.
func (t *Tracker) Forget() {
	t.Book = nil
	t.Reset()
}

// Observe feeds one raw sample for the session titled title and returns the
// play/pause verdict plus the position to display, clamped to [0, duration].
func (t *Tracker) Observe(title string, rawOffset, duration float64) Verdict {
	now := t.clock.Now()

	var switched bool
	if t.Book == nil || t.Book.Title != title {
		t.Book = &TrackedBook{Title: title}
		t.Reset()
		switched = true
	}

	if !t.Timing.Set {
		t.Timing = Timing{Offset: rawOffset, FetchedAt: now, Set: true}
		return Verdict{
			Status:   StatusPaused,
			Position: clamp(rawOffset, duration),
			First:    true,
			Switched: switched,
		}
	}

	var quiet bool
	if math.Abs(rawOffset-t.Timing.Offset) <= Epsilon {
		if now.Sub(t.Timing.FetchedAt) >= t.QuietInterval {
			quiet = true
			t.State.Playing = false
			t.Timing = Timing{Offset: rawOffset, FetchedAt: now, Set: true}
		}
	} else {
		t.State = State{
			LastChange: now,
			Position:   rawOffset,
			Playing:    true,
			anchored:   true,
		}
		t.Timing = Timing{Offset: rawOffset, FetchedAt: now, Set: true}
	}

	if !t.State.Playing {
		return Verdict{Status: StatusPaused, Position: clamp(rawOffset, duration), Switched: switched, Quiet: quiet}
	}

	position := rawOffset
	if t.State.anchored {
		elapsed := now.Sub(t.State.LastChange).Seconds()
		position = t.State.Position + elapsed*t.RateFactor
	}
	return Verdict{Status: StatusPlaying, Position: clamp(position, duration), Switched: switched}
}

func clamp(position, duration float64) float64 {
	if position < 0 || math.IsNaN(position) {
		return 0
	}
	if duration > 0 && position > duration {
		return duration
	}
	return position
}
