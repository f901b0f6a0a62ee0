package boat

import (
	"time"

	"seaguard-gateway/internal/clock"
)

// DefaultOnlineWindow is how long a boat counts as online after its last
// telemetry message.
const DefaultOnlineWindow = 10 * time.Second

// Online reports whether a boat last seen at lastSeen (ms) is online at now.
func Online(lastSeen int64, now time.Time, window time.Duration) bool {
	return now.UnixMilli()-lastSeen < window.Milliseconds()
}

// Liveness classifies boats as online or offline from the store's
// last-seen field.
type Liveness struct {
	store  *Store
	clock  clock.Clock
	window time.Duration
}

// NewLiveness creates an evaluator. window <= 0 selects DefaultOnlineWindow.
func NewLiveness(store *Store, clk clock.Clock, window time.Duration) *Liveness {
	if clk == nil {
		clk = clock.Real()
	}
	if window <= 0 {
		window = DefaultOnlineWindow
	}
	return &Liveness{store: store, clock: clk, window: window}
}

// IsOnline is false for boats never seen.
func (l *Liveness) IsOnline(boatID string) bool {
	lastSeen, ok := l.store.LastSeen(boatID)
	if !ok {
		return false
	}
	return Online(lastSeen, l.clock.Now(), l.window)
}

// OnlineAt classifies an already-read lastSeen value. Nil means never seen.
func (l *Liveness) OnlineAt(lastSeen *int64) bool {
	if lastSeen == nil {
		return false
	}
	return Online(*lastSeen, l.clock.Now(), l.window)
}
