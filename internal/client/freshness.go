package client

import (
	"time"

	"seaguard-gateway/internal/api"
)

// Freshness is how current a boat's data looks to a polling caller.
type Freshness string

const (
	FreshOnline  Freshness = "online"
	FreshStale   Freshness = "stale"
	FreshOffline Freshness = "offline"
)

// StaleFactor times the poll interval is the age beyond which data of an
// online boat counts as stale.
const StaleFactor = 3

// Classify combines the gateway's online flag with the caller's own poll
// interval: offline when the gateway says so or there is no telemetry,
// stale when the last telemetry is older than StaleFactor polls.
func Classify(online bool, telemetryAt time.Time, now time.Time, poll time.Duration) Freshness {
	if !online || telemetryAt.IsZero() {
		return FreshOffline
	}
	if now.Sub(telemetryAt) > StaleFactor*poll {
		return FreshStale
	}
	return FreshOnline
}

// ClassifyBoat classifies a boat listing entry.
func ClassifyBoat(b api.BoatSummary, now time.Time, poll time.Duration) Freshness {
	var at time.Time
	if b.LastSeen != nil {
		at = time.UnixMilli(*b.LastSeen)
	}
	return Classify(b.Online, at, now, poll)
}

// TelemetryTime is the time of the latest telemetry in a state snapshot:
// lastSeen, or else the sensors or GPS timestamp. Second-scale timestamps
// are converted.
func TelemetryTime(st api.StateDTO) (time.Time, bool) {
	if st.LastSeen != nil {
		return time.UnixMilli(*st.LastSeen), true
	}
	for _, p := range []map[string]any{st.Sensors, st.GPS} {
		ts, ok := p["timestamp"].(float64)
		if !ok || ts == 0 {
			continue
		}
		if ts < 1e12 {
			ts *= 1000
		}
		return time.UnixMilli(int64(ts)), true
	}
	return time.Time{}, false
}
