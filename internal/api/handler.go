package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/control"
	"seaguard-gateway/internal/registry"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 256 << 10

// Dispatcher sends control commands.
type Dispatcher interface {
	Dispatch(boatID, action string, payload any) (string, error)
}

// APIHandler serves the HTTP surface.
type APIHandler struct {
	svc        *Service
	dispatcher Dispatcher
	health     *Health
	logger     *slog.Logger
}

// NewAPIHandler creates the handler.
func NewAPIHandler(svc *Service, dispatcher Dispatcher, health *Health, logger *slog.Logger) *APIHandler {
	return &APIHandler{svc: svc, dispatcher: dispatcher, health: health, logger: logger}
}

// RegisterRoutes maps URL patterns to handlers (Go 1.22 method and
// wildcard patterns).
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /api/boats", h.handleListBoats)
	mux.HandleFunc("GET /api/boats/{id}/state", h.handleState)
	mux.HandleFunc("GET /api/boats/{id}/sensors/latest", h.handleLatestSensors)
	mux.HandleFunc("GET /api/boats/{id}/gps/latest", h.handleLatestGPS)
	mux.HandleFunc("GET /api/boats/{id}/history", h.handleHistory)
	mux.HandleFunc("POST /api/boats/{id}/control", h.handleControl)
	mux.HandleFunc("GET /api/boats/{id}/acks/{cmdId}", h.handleAck)
	mux.HandleFunc("GET /api/boats/{id}/video/info", h.handleVideoInfo)
	mux.HandleFunc("GET /api/boats/{id}/video/{type}", h.handleVideoRedirect)

	// Legacy single-boat endpoints.
	mux.HandleFunc("GET /data", h.handleLegacyData)
	mux.HandleFunc("GET /control/{path...}", h.handleLegacyControl)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write JSON response", "error", err)
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

// fail maps an error from the service or dispatcher onto a status code.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, boat.ErrInvalidBoatID):
		h.writeError(w, http.StatusBadRequest, "Invalid boatId")
	case errors.Is(err, control.ErrInvalidAction):
		h.writeError(w, http.StatusBadRequest, "Invalid action")
	case errors.Is(err, control.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Command rate limited")
	case errors.Is(err, ErrVideoNotConfigured):
		h.writeError(w, http.StatusNotFound, "Video source not configured")
	case errors.Is(err, ErrVideoTypeMismatch):
		h.writeError(w, http.StatusBadRequest, "Requested type does not match boat config")
	default:
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleHealth: GET /health
func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.report(h.svc.BoatCount()))
}

// handleListBoats: GET /api/boats
func (h *APIHandler) handleListBoats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.ListBoats())
}

// handleState: GET /api/boats/{id}/state
func (h *APIHandler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.State(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// handleLatestSensors: GET /api/boats/{id}/sensors/latest
func (h *APIHandler) handleLatestSensors(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.LatestSensors(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// handleLatestGPS: GET /api/boats/{id}/gps/latest
func (h *APIHandler) handleLatestGPS(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.LatestGPS(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// handleHistory: GET /api/boats/{id}/history?sensors=1&gps=0&limit=50
// Streams are included unless explicitly set to 0.
func (h *APIHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = 0
	}

	hist, err := h.svc.History(r.PathValue("id"), q.Get("sensors") != "0", q.Get("gps") != "0", limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hist)
}

// handleControl: POST /api/boats/{id}/control {"action": "...", "payload": ...}
func (h *APIHandler) handleControl(w http.ResponseWriter, r *http.Request) {
	boatID := r.PathValue("id")
	if err := boat.ValidateID(boatID); err != nil {
		h.fail(w, r, err)
		return
	}

	var req ControlRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := decodeBody(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	cmdID, err := h.dispatcher.Dispatch(boatID, req.Action, req.Payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ControlResponse{OK: true, CmdID: cmdID})
}

// errTrailingData rejects bodies with anything but whitespace after the
// JSON value.
var errTrailingData = errors.New("trailing data after JSON body")

// decodeBody reads exactly one JSON value into v. An empty body leaves v
// untouched and is not an error.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	// A second Decode must hit the end of the body.
	switch err := dec.Decode(new(json.RawMessage)); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errTrailingData
	}
}

// handleAck: GET /api/boats/{id}/acks/{cmdId}
func (h *APIHandler) handleAck(w http.ResponseWriter, r *http.Request) {
	body, err := h.svc.AckStatus(r.PathValue("id"), r.PathValue("cmdId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

// handleVideoInfo: GET /api/boats/{id}/video/info
func (h *APIHandler) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Video(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// handleVideoRedirect: GET /api/boats/{id}/video/{type}
func (h *APIHandler) handleVideoRedirect(w http.ResponseWriter, r *http.Request) {
	url, err := h.svc.VideoRedirect(r.PathValue("id"), r.PathValue("type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handleLegacyData: GET /data returns the latest sensors of the default boat.
func (h *APIHandler) handleLegacyData(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.svc.LatestSensors(registry.DefaultBoatID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sensors == nil {
		h.writeJSON(w, http.StatusOK, LegacyNoData{Error: "No sensor data received yet"})
		return
	}
	h.writeJSON(w, http.StatusOK, sensors)
}

var legacyBoatTopic = regexp.MustCompile(`^seaguard/([^/]+)/control/([^/]+)$`)

// parseLegacyControl resolves /control/<topic>/<cmd>. The topic is either
// seaguard/<boat>/control/<action>, seaguard/control/<action> or just
// <...>/<action>; the last two address the default boat.
func parseLegacyControl(path string) (boatID, action, cmd string, ok bool) {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", "", "", false
	}

	cmd = segments[len(segments)-1]
	segments = segments[:len(segments)-1]
	topic := strings.Join(segments, "/")

	if m := legacyBoatTopic.FindStringSubmatch(topic); m != nil {
		return m[1], m[2], cmd, true
	}
	return registry.DefaultBoatID, segments[len(segments)-1], cmd, true
}

// handleLegacyControl: GET /control/seaguard/<boat>/control/<action>/<cmd>
func (h *APIHandler) handleLegacyControl(w http.ResponseWriter, r *http.Request) {
	boatID, action, cmd, ok := parseLegacyControl(r.PathValue("path"))
	if !ok {
		h.writeError(w, http.StatusBadRequest,
			"Invalid control URL. Use /control/<topic>/<cmd>, e.g. /control/seaguard/control/forward/SLOW")
		return
	}

	cmdID, err := h.dispatcher.Dispatch(boatID, action, cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LegacyControlResponse{OK: true, CmdID: cmdID, BoatID: boatID, Action: action})
}
