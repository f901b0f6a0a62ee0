package api

import (
	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/sysstats"
)

// BoatSummary is one entry of GET /api/boats.
type BoatSummary struct {
	BoatID      string `json:"boatId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Online      bool   `json:"online"`
	// LastSeen is nil (JSON null) for boats that never sent telemetry.
	LastSeen *int64 `json:"lastSeen"`
}

// BoatList wraps the listing so the response can grow more fields.
type BoatList struct {
	Boats []BoatSummary `json:"boats"`
}

// StateDTO is the latest telemetry of one boat. Channels never received
// are null.
type StateDTO struct {
	Sensors  boat.Payload `json:"sensors"`
	GPS      boat.Payload `json:"gps"`
	Status   boat.Payload `json:"status"`
	LastSeen *int64       `json:"lastSeen"`
}

// HistoryDTO holds the requested history streams, oldest first. An
// excluded stream is left out of the JSON entirely; an included but empty
// one is [].
type HistoryDTO struct {
	Sensors []boat.Payload `json:"sensors,omitzero"`
	GPS     []boat.Payload `json:"gps,omitzero"`
	Limit   int            `json:"limit"`
}

// ControlRequest is the body of POST /api/boats/{id}/control.
type ControlRequest struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// ControlResponse confirms an accepted command.
type ControlResponse struct {
	OK    bool   `json:"ok"`
	CmdID string `json:"cmdId"`
}

// LegacyControlResponse additionally tells which boat and action the
// legacy path was resolved to.
type LegacyControlResponse struct {
	OK     bool   `json:"ok"`
	CmdID  string `json:"cmdId"`
	BoatID string `json:"boatId"`
	Action string `json:"action"`
}

// VideoInfo describes where a boat's camera stream lives. The gateway
// never proxies video; it redirects.
type VideoInfo struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LegacyNoData is returned by GET /data before the default boat reported.
type LegacyNoData struct {
	Error      string `json:"error"`
	SensorData any    `json:"sensorData"`
}

// MQTTHealth reports the broker connection.
type MQTTHealth struct {
	Connected bool `json:"connected"`
}

// ArchiveHealth reports the telemetry archive queue counters.
type ArchiveHealth struct {
	Saved   int64 `json:"saved"`
	Dropped int64 `json:"dropped"`
}

// HealthDTO is the body of GET /health.
type HealthDTO struct {
	OK      bool              `json:"ok"`
	Uptime  float64           `json:"uptime"` // seconds
	MQTT    MQTTHealth        `json:"mqtt"`
	Boats   int               `json:"boats"`
	Process *sysstats.Process `json:"process,omitempty"`
	Host    *sysstats.Host    `json:"host,omitempty"`
	Archive *ArchiveHealth    `json:"archive,omitempty"`
}
