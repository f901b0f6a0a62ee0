package api

import (
	"time"

	"seaguard-gateway/internal/clock"
	"seaguard-gateway/internal/sysstats"
)

// ConnectionChecker reports the broker connection state.
type ConnectionChecker interface {
	IsConnected() bool
}

// StatsSampler samples process and host resources.
type StatsSampler interface {
	Collect() sysstats.Stats
}

// ArchiveCounters exposes the archive queue counters.
type ArchiveCounters interface {
	Saved() int64
	Dropped() int64
}

// Health assembles GET /health. Stats and Archive are optional.
type Health struct {
	Started time.Time
	Clock   clock.Clock
	MQTT    ConnectionChecker
	Stats   StatsSampler
	Archive ArchiveCounters
}

func (h *Health) report(boats int) HealthDTO {
	dto := HealthDTO{
		OK:     true,
		Uptime: h.Clock.Now().Sub(h.Started).Seconds(),
		Boats:  boats,
	}
	if h.MQTT != nil {
		dto.MQTT.Connected = h.MQTT.IsConnected()
	}
	if h.Stats != nil {
		s := h.Stats.Collect()
		dto.Process = &s.Process
		dto.Host = &s.Host
	}
	if h.Archive != nil {
		dto.Archive = &ArchiveHealth{Saved: h.Archive.Saved(), Dropped: h.Archive.Dropped()}
	}
	return dto
}
