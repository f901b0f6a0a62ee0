// Package api is the HTTP boundary of the gateway: a read-only query layer
// over the boat store and registry, plus the control endpoint that feeds
// the command dispatcher.
package api

import (
	"errors"
	"maps"

	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/registry"
)

// ErrVideoNotConfigured is returned for boats without a camera source.
var ErrVideoNotConfigured = errors.New("video source not configured")

// ErrVideoTypeMismatch is returned when the requested stream type differs
// from the configured one.
var ErrVideoTypeMismatch = errors.New("requested type does not match boat config")

// Service answers queries. It never creates boat records: an unknown boat
// reads as empty.
type Service struct {
	store        *boat.Store
	liveness     *boat.Liveness
	registry     *registry.Registry
	historyLimit int
}

// NewService wires the query layer. historyLimit caps every history
// response.
func NewService(store *boat.Store, liveness *boat.Liveness, reg *registry.Registry, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = boat.DefaultLimits().History
	}
	return &Service{store: store, liveness: liveness, registry: reg, historyLimit: historyLimit}
}

// ListBoats returns configured boats in registry order followed by boats
// only seen at runtime, sorted by id.
func (s *Service) ListBoats() BoatList {
	configured := s.registry.List()
	seen := make(map[string]bool, len(configured))

	boats := make([]BoatSummary, 0, len(configured))
	for _, b := range configured {
		seen[b.ID] = true
		boats = append(boats, s.summary(b.ID, b.Name, b.Description))
	}
	for _, id := range s.store.IDs() {
		if seen[id] {
			continue
		}
		boats = append(boats, s.summary(id, id, ""))
	}
	return BoatList{Boats: boats}
}

func (s *Service) summary(id, name, description string) BoatSummary {
	if name == "" {
		name = id
	}
	var lastSeen *int64
	if ts, ok := s.store.LastSeen(id); ok {
		lastSeen = &ts
	}
	return BoatSummary{
		BoatID:      id,
		Name:        name,
		Description: description,
		Online:      s.liveness.OnlineAt(lastSeen),
		LastSeen:    lastSeen,
	}
}

// State returns the latest telemetry of a boat.
func (s *Service) State(boatID string) (StateDTO, error) {
	if err := boat.ValidateID(boatID); err != nil {
		return StateDTO{}, err
	}
	snap, _ := s.store.Get(boatID)
	return StateDTO{
		Sensors:  snap.Sensors,
		GPS:      snap.GPS,
		Status:   snap.Status,
		LastSeen: snap.LastSeen,
	}, nil
}

// LatestSensors returns the latest sensor payload, nil if none.
func (s *Service) LatestSensors(boatID string) (boat.Payload, error) {
	st, err := s.State(boatID)
	return st.Sensors, err
}

// LatestGPS returns the latest GPS payload, nil if none.
func (s *Service) LatestGPS(boatID string) (boat.Payload, error) {
	st, err := s.State(boatID)
	return st.GPS, err
}

// ClampLimit maps a caller-supplied limit onto (0, historyLimit]. Zero or
// negative means "as many as kept".
func (s *Service) ClampLimit(limit int) int {
	if limit <= 0 || limit > s.historyLimit {
		return s.historyLimit
	}
	return limit
}

// History returns the newest entries of the selected streams.
func (s *Service) History(boatID string, sensors, gps bool, limit int) (HistoryDTO, error) {
	if err := boat.ValidateID(boatID); err != nil {
		return HistoryDTO{}, err
	}
	limit = s.ClampLimit(limit)

	out := HistoryDTO{Limit: limit}
	if sensors {
		out.Sensors = s.store.History(boatID, boat.StreamSensors, limit)
	}
	if gps {
		out.GPS = s.store.History(boatID, boat.StreamGPS, limit)
	}
	return out, nil
}

// AckStatus reports the outcome of a command. Unknown and still pending
// commands both read as pending. A terminal answer carries the boat's ack
// fields next to status, cmdId and receivedAt.
func (s *Service) AckStatus(boatID, cmdID string) (map[string]any, error) {
	if err := boat.ValidateID(boatID); err != nil {
		return nil, err
	}

	rec, ok := s.store.Ack(boatID, cmdID)
	if !ok || !rec.Terminal() {
		return map[string]any{"status": string(boat.AckPending), "cmdId": cmdID}, nil
	}

	body := make(map[string]any, len(rec.Fields)+4)
	maps.Copy(body, rec.Fields)
	if rec.Action != "" {
		if _, set := body["action"]; !set {
			body["action"] = rec.Action
		}
	}
	body["status"] = string(rec.Status)
	body["cmdId"] = rec.CmdID
	body["receivedAt"] = rec.ReceivedAt
	return body, nil
}

// Video returns the camera source of a configured boat.
func (s *Service) Video(boatID string) (VideoInfo, error) {
	if err := boat.ValidateID(boatID); err != nil {
		return VideoInfo{}, err
	}
	b, ok := s.registry.Get(boatID)
	if !ok || b.Video == nil || b.Video.URL == "" || b.Video.Type == "" {
		return VideoInfo{}, ErrVideoNotConfigured
	}
	return VideoInfo{Type: b.Video.Type, URL: b.Video.URL, Mode: "redirect"}, nil
}

// VideoRedirect returns the stream URL if requestedType matches the
// configured stream type.
func (s *Service) VideoRedirect(boatID, requestedType string) (string, error) {
	info, err := s.Video(boatID)
	if err != nil {
		return "", err
	}
	if requestedType != info.Type {
		return "", ErrVideoTypeMismatch
	}
	return info.URL, nil
}

// BoatCount is the number of boat records held in memory.
func (s *Service) BoatCount() int {
	return s.store.Len()
}
