// Package control sends motor commands to boats and registers them for
// acknowledgment tracking.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/clock"
)

// DefaultCooldown is the minimum spacing between two commands to one boat.
const DefaultCooldown = 100 * time.Millisecond

var (
	ErrInvalidAction = errors.New("invalid action")
	// ErrRateLimited is retryable: the caller sent a command to the same
	// boat within the cooldown.
	ErrRateLimited = errors.New("command rate limited")
)

// Action is a motor command.
type Action string

const (
	Forward Action = "forward"
	Back    Action = "back"
	Left    Action = "left"
	Right   Action = "right"
	Stop    Action = "stop"
)

// ParseAction accepts exactly one of forward, back, left, right, stop.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case Forward, Back, Left, Right, Stop:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Topic returns the outbound topic for a command.
func Topic(boatID string, a Action) string {
	return "seaguard/" + boatID + "/control/" + string(a)
}

// Command is the JSON message a boat receives.
type Command struct {
	CmdID   string `json:"cmdId"`
	Action  Action `json:"action"`
	Payload any    `json:"payload"`
	TS      int64  `json:"ts"`
}

// Publisher hands a message to the broker without waiting for delivery.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Dispatcher builds, records and publishes commands.
type Dispatcher struct {
	store     *boat.Store
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger
	cooldown  time.Duration
	newID     func() string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDispatcher creates a dispatcher. cooldown <= 0 disables rate limiting.
func NewDispatcher(store *boat.Store, pub Publisher, clk clock.Clock, logger *slog.Logger, cooldown time.Duration) *Dispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	return &Dispatcher{
		store:     store,
		publisher: pub,
		clock:     clk,
		logger:    logger,
		cooldown:  cooldown,
		newID:     uuid.NewString,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// allow consumes the boat's cooldown token if one is available. A
// rejected attempt leaves the limiter untouched.
func (d *Dispatcher) allow(boatID string, now time.Time) bool {
	if d.cooldown <= 0 {
		return true
	}

	// The limiter map is shared by all HTTP handlers, so lookup and
	// insert happen under one lock.
	d.mu.Lock()
	defer d.mu.Unlock()

	// First command for this boat: one token, refilled once per cooldown.
	lim, ok := d.limiters[boatID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.cooldown), 1)
		d.limiters[boatID] = lim
	}
	return lim.AllowN(now, 1)
}

// Dispatch sends action to boatID and returns the command id. The pending
// ack is recorded before the publish call, so an ack can never arrive for a
// command the store does not know yet. A failed publish is only logged; the
// pending entry stays until it ages out.
func (d *Dispatcher) Dispatch(boatID, action string, payload any) (string, error) {
	// 1. Validation. Rejected requests never reach the limiter.
	if err := boat.ValidateID(boatID); err != nil {
		return "", err
	}
	a, err := ParseAction(action)
	if err != nil {
		return "", err
	}

	// 2. Cooldown per boat.
	now := d.clock.Now()
	if !d.allow(boatID, now) {
		return "", ErrRateLimited
	}

	// 3. Build the wire message.
	cmd := Command{
		CmdID:   d.newID(),
		Action:  a,
		Payload: payload,
		TS:      now.UnixMilli(),
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("encode command: %w", err)
	}

	// 4. Register as pending, then publish.
	d.store.RecordAckDispatch(boatID, boat.AckRecord{
		CmdID:     cmd.CmdID,
		Action:    string(a),
		Payload:   payload,
		Timestamp: cmd.TS,
	})

	topic := Topic(boatID, a)
	if err := d.publisher.Publish(topic, body); err != nil {
		d.logger.Error("Control publish failed", "topic", topic, "cmdId", cmd.CmdID, "error", err)
	} else {
		d.logger.Info("Control sent", "topic", topic, "cmdId", cmd.CmdID, "payload", payload)
	}
	return cmd.CmdID, nil
}
