// Package telemetry turns raw broker messages from boats into store
// updates. Topics look like seaguard/<boatId>/<channel>; payloads are JSON
// objects.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/clock"
)

// TopicRoot is the first segment of every SeaGuard topic.
const TopicRoot = "seaguard"

// Channel is the message category within a boat's topic namespace.
type Channel string

const (
	ChannelSensors Channel = "sensors"
	ChannelGPS     Channel = "gps"
	ChannelStatus  Channel = "status"
	ChannelAck     Channel = "ack"
)

var (
	ErrTopic        = errors.New("not a boat telemetry topic")
	ErrPayload      = errors.New("payload is not a JSON object")
	ErrMissingCmdID = errors.New("ack without cmdId")
)

// Message is a classified and decoded inbound message.
type Message struct {
	BoatID    string
	Channel   Channel
	Payload   boat.Payload
	Timestamp int64 // normalized, ms since epoch
}

// ParseTopic splits seaguard/<boatId>/<channel>[/...]. Empty segments are
// ignored, so a leading or doubled slash does not change the result.
func ParseTopic(topic string) (string, Channel, error) {
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(topic, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 3 || parts[0] != TopicRoot {
		return "", "", fmt.Errorf("%w: %q", ErrTopic, topic)
	}

	boatID, ch := parts[1], Channel(parts[2])
	switch ch {
	case ChannelSensors, ChannelGPS, ChannelStatus, ChannelAck:
	default:
		return "", "", fmt.Errorf("%w: channel %q", ErrTopic, ch)
	}
	if err := boat.ValidateID(boatID); err != nil {
		return "", "", fmt.Errorf("%w: %q", err, boatID)
	}
	return boatID, ch, nil
}

// DecodePayload parses a JSON object. Arrays, scalars and null are
// rejected.
func DecodePayload(raw []byte) (boat.Payload, error) {
	var p boat.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if p == nil {
		return nil, ErrPayload
	}
	return p, nil
}

// maxTimestampMillis is the largest magnitude accepted as a time, the
// range of a JavaScript Date (100 million days around the epoch).
const maxTimestampMillis = 8.64e15

// NormalizeTimestamp picks the first non-zero numeric "timestamp" or "ts"
// field and converts it to milliseconds. Values below 1e12 are taken as
// seconds. A value outside ±maxTimestampMillis counts as non-numeric.
// Without a usable field the current time is used.
func NormalizeTimestamp(p boat.Payload, now time.Time) int64 {
	for _, key := range []string{"timestamp", "ts"} {
		v, ok := numeric(p[key])
		if !ok || v == 0 {
			continue
		}
		if v < 1e12 {
			v *= 1000
		}
		// int64 conversion of an out-of-range float is undefined
		if math.Abs(v) > maxTimestampMillis {
			continue
		}
		return int64(v)
	}
	return now.UnixMilli()
}

func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Sink receives every accepted message after the store was updated. The
// archive implements it; Enqueue must not block.
type Sink interface {
	Enqueue(Message)
}

// Router is the inbound side of the gateway: classify, decode, normalize,
// then write to the store (telemetry) or hand over to the Correlator (acks).
type Router struct {
	store      *boat.Store
	correlator *Correlator
	clock      clock.Clock
	logger     *slog.Logger
	sink       Sink
}

// NewRouter wires a router to its store. sink may be nil.
func NewRouter(store *boat.Store, clk clock.Clock, logger *slog.Logger, sink Sink) *Router {
	if clk == nil {
		clk = clock.Real()
	}
	return &Router{
		store:      store,
		correlator: NewCorrelator(store, logger),
		clock:      clk,
		logger:     logger,
		sink:       sink,
	}
}

// Process handles one message and reports why it was rejected, if it was.
// Nothing is written to the store for a rejected message.
func (r *Router) Process(topic string, raw []byte) (Message, error) {
	// 1. Classification: which boat, which channel.
	boatID, ch, err := ParseTopic(topic)
	if err != nil {
		return Message{}, err
	}

	// 2. Parsing.
	p, err := DecodePayload(raw)
	if err != nil {
		return Message{}, err
	}

	// 3. Normalization. The normalized value replaces the payload field.
	ts := NormalizeTimestamp(p, r.clock.Now())
	p["timestamp"] = ts

	msg := Message{BoatID: boatID, Channel: ch, Payload: p, Timestamp: ts}

	// 4. Store update. Acks do not count as fresh telemetry.
	switch ch {
	case ChannelSensors:
		r.store.RecordSensors(boatID, p, ts)
	case ChannelGPS:
		r.store.RecordGPS(boatID, p, ts)
	case ChannelStatus:
		r.store.RecordStatus(boatID, p, ts)
	case ChannelAck:
		if _, err := r.correlator.Correlate(boatID, p); err != nil {
			return Message{}, err
		}
	}

	if r.sink != nil {
		r.sink.Enqueue(msg)
	}
	return msg, nil
}

// Handle is the broker callback. Errors never leave it: foreign topics are
// ignored quietly, bad payloads are logged and dropped.
func (r *Router) Handle(topic string, raw []byte) {
	msg, err := r.Process(topic, raw)
	switch {
	case err == nil:
		r.logger.Debug("Telemetry accepted", "topic", topic, "boat", msg.BoatID, "channel", msg.Channel, "ts", msg.Timestamp)
	case errors.Is(err, ErrTopic):
		r.logger.Debug("Ignoring topic", "topic", topic)
	default:
		r.logger.Warn("Message dropped", "topic", topic, "reason", err)
	}
}
