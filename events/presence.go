package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/marcus-crane/earshot/playback"
	"github.com/marcus-crane/earshot/presence"
)

// StatusIdle is reported when the server has no session at all.
const StatusIdle playback.Status = "idle"

// Snapshot is what the status API shows for the latest tick.
type Snapshot struct {
	Status    playback.Status   `json:"status"`
	ItemID    string            `json:"item_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Author    string            `json:"author,omitempty"`
	Position  float64           `json:"position"`
	Duration  float64           `json:"duration"`
	Artwork   string            `json:"artwork,omitempty"`
	Payload   *presence.Payload `json:"payload"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Presence holds the latest snapshot. The poller writes it once per tick and
// HTTP handlers read it from their own goroutines.
type Presence struct {
	m        sync.RWMutex
	snapshot Snapshot
	encoded  []byte
}

func NewPresence() *Presence {
	p := &Presence{}
	p.encoded, _ = json.Marshal(p.snapshot)
	return p
}

// Publish stores the snapshot and pushes it to SSE subscribers when anything
// other than the timestamp changed.
func (p *Presence) Publish(s Snapshot) {
	changed := p.store(s)
	if !changed || Server == nil {
		return
	}
	byteStream := new(bytes.Buffer)
	if err := json.NewEncoder(byteStream).Encode(s); err != nil {
		slog.Error("Failed to encode presence event", slog.String("error", err.Error()))
		return
	}
	Server.Publish(PresenceStream, &sse.Event{Data: byteStream.Bytes()})
}

func (p *Presence) store(s Snapshot) bool {
	p.m.Lock()
	defer p.m.Unlock()

	previous := p.snapshot
	previous.UpdatedAt = s.UpdatedAt
	before, _ := json.Marshal(previous)
	after, err := json.Marshal(s)
	if err != nil {
		slog.Error("Failed to encode presence snapshot", slog.String("error", err.Error()))
		return false
	}

	p.snapshot = s
	p.encoded = after
	return !bytes.Equal(before, after)
}

// Current returns the latest snapshot.
func (p *Presence) Current() Snapshot {
	p.m.RLock()
	defer p.m.RUnlock()
	return p.snapshot
}

// JSON returns the latest snapshot already encoded.
func (p *Presence) JSON() []byte {
	p.m.RLock()
	defer p.m.RUnlock()
	return p.encoded
}
