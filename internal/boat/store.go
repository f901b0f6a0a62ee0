// Package boat holds the in-memory state of every boat the gateway knows:
// latest telemetry snapshots, bounded history, the command acknowledgment
// table and the last-seen time that drives liveness.
package boat

import (
	"errors"
	"maps"
	"regexp"
	"sort"
	"sync"
	"time"

	"seaguard-gateway/internal/ackcache"
	"seaguard-gateway/internal/clock"
)

// ErrInvalidBoatID is returned for identifiers outside [a-zA-Z0-9_-]+.
var ErrInvalidBoatID = errors.New("invalid boat id")

var boatIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks a boat identifier taken from a topic or a URL.
func ValidateID(id string) error {
	if !boatIDPattern.MatchString(id) {
		return ErrInvalidBoatID
	}
	return nil
}

// Payload is a decoded JSON object from a boat. Once recorded it is never
// mutated; readers get shallow copies.
type Payload map[string]any

// Stream selects a history buffer.
type Stream string

const (
	StreamSensors Stream = "sensors"
	StreamGPS     Stream = "gps"
)

// Limits bounds the per-boat memory.
type Limits struct {
	History   int           // entries per history stream
	Acks      int           // entries in the ack table
	AckMaxAge time.Duration // ack entries older than this are dropped on touch
}

// DefaultLimits returns the production bounds: 200 history entries per
// stream, 200 ack entries, 5 minute ack age.
func DefaultLimits() Limits {
	return Limits{History: 200, Acks: 200, AckMaxAge: 5 * time.Minute}
}

// Snapshot is a point-in-time copy of the latest telemetry of one boat.
// Nil fields mean nothing was received on that channel.
type Snapshot struct {
	Sensors  Payload
	GPS      Payload
	Status   Payload
	LastSeen *int64 // ms since epoch, nil if never seen
}

// record is the mutable state of one boat. mu is held only for the
// synchronous read-modify-write of a single call, never across I/O.
type record struct {
	mu sync.Mutex

	sensors Payload
	gps     Payload
	status  Payload

	lastSeen int64
	seen     bool

	sensorHistory *ring[Payload]
	gpsHistory    *ring[Payload]

	acks *ackcache.Cache[string, AckRecord]
}

// Store owns all boat records. Records are created lazily and live for the
// lifetime of the process.
type Store struct {
	clock  clock.Clock
	limits Limits

	mu    sync.RWMutex
	boats map[string]*record
}

// NewStore creates an empty store.
func NewStore(clk clock.Clock, limits Limits) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		clock:  clk,
		limits: limits,
		boats:  make(map[string]*record),
	}
}

func (s *Store) lookup(boatID string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boats[boatID]
}

func (s *Store) getOrCreate(boatID string) *record {
	// Fast path: the boat exists, a read lock is enough.
	if r := s.lookup(boatID); r != nil {
		return r
	}

	// Slow path: take the write lock to insert.
	s.mu.Lock()
	defer s.mu.Unlock()
	// Someone may have created it between RUnlock and Lock.
	if r, ok := s.boats[boatID]; ok {
		return r
	}
	r := &record{
		sensorHistory: newRing[Payload](s.limits.History),
		gpsHistory:    newRing[Payload](s.limits.History),
		acks:          ackcache.New[string, AckRecord](s.limits.Acks, s.limits.AckMaxAge, s.clock),
	}
	s.boats[boatID] = r
	return r
}

// Get returns the latest telemetry of a boat without creating a record.
// The bool is false when the boat has never been referenced.
func (s *Store) Get(boatID string) (Snapshot, bool) {
	r := s.lookup(boatID)
	if r == nil {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// GetOrCreate returns the latest telemetry of a boat, creating an empty
// record if the boat is unknown. The new record shows up in IDs().
func (s *Store) GetOrCreate(boatID string) Snapshot {
	return s.getOrCreate(boatID).snapshot()
}

func (r *record) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Sensors: maps.Clone(r.sensors),
		GPS:     maps.Clone(r.gps),
		Status:  maps.Clone(r.status),
	}
	if r.seen {
		ts := r.lastSeen
		snap.LastSeen = &ts
	}
	return snap
}

// RecordSensors replaces the latest sensor snapshot, appends it to the
// sensor history and sets lastSeen to seenAt.
func (s *Store) RecordSensors(boatID string, p Payload, seenAt int64) {
	r := s.getOrCreate(boatID)
	// The store-level lock is already released here; only this boat's
	// record is locked for the update.
	r.mu.Lock()
	defer r.mu.Unlock()

	// Latest and history hold separate copies of the payload.
	r.sensors = p
	r.sensorHistory.push(maps.Clone(p))
	r.touch(seenAt)
}

// RecordGPS replaces the latest GPS fix, appends it to the GPS history and
// sets lastSeen to seenAt.
func (s *Store) RecordGPS(boatID string, p Payload, seenAt int64) {
	r := s.getOrCreate(boatID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gps = p
	r.gpsHistory.push(maps.Clone(p))
	r.touch(seenAt)
}

// RecordStatus replaces the latest status message and sets lastSeen.
// Status has no history.
func (s *Store) RecordStatus(boatID string, p Payload, seenAt int64) {
	r := s.getOrCreate(boatID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = p
	r.touch(seenAt)
}

// touch overwrites lastSeen unconditionally. An out-of-order message with
// an older timestamp moves lastSeen backwards.
func (r *record) touch(seenAt int64) {
	r.lastSeen = seenAt
	r.seen = true
}

// RecordAckDispatch registers a freshly dispatched command as pending.
func (s *Store) RecordAckDispatch(boatID string, rec AckRecord) {
	rec.Status = AckPending
	rec.ReceivedAt = 0

	r := s.getOrCreate(boatID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.acks.Put(rec.CmdID, rec, rec.stamp())
}

// RecordAckReceived stores an acknowledgment for cmdID. A matching pending
// command keeps its action, payload and dispatch time; an unknown cmdID
// gets a new entry so the ack remains observable. Repeated acks overwrite
// the previous outcome. The table is pruned afterwards.
func (s *Store) RecordAckReceived(boatID, cmdID string, fields Payload) AckRecord {
	now := s.clock.Now().UnixMilli()

	r := s.getOrCreate(boatID)
	r.mu.Lock()
	defer r.mu.Unlock()

	// Get, modify and Put under the record lock, so two acks for the same
	// command cannot interleave.
	rec, ok := r.acks.Get(cmdID)
	if !ok {
		// Unknown or already expired command: start a fresh entry.
		rec = AckRecord{CmdID: cmdID}
	}
	rec.Fields = fields
	rec.Status = ClassifyAck(fields)
	rec.ReceivedAt = now

	r.acks.Put(cmdID, rec, rec.stamp())
	return rec
}

// Ack looks up the acknowledgment state of cmdID. Expired entries are
// dropped before the lookup.
func (s *Store) Ack(boatID, cmdID string) (AckRecord, bool) {
	r := s.lookup(boatID)
	if r == nil {
		return AckRecord{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.acks.Get(cmdID)
	if !ok {
		return AckRecord{}, false
	}
	// Callers get their own copy of the ack fields.
	rec.Fields = maps.Clone(rec.Fields)
	return rec, true
}

// History returns up to limit of the newest entries of a stream, oldest
// first. limit <= 0 or above the history bound returns everything kept.
func (s *Store) History(boatID string, stream Stream, limit int) []Payload {
	r := s.lookup(boatID)
	if r == nil {
		return []Payload{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []Payload
	switch stream {
	case StreamSensors:
		entries = r.sensorHistory.last(limit)
	case StreamGPS:
		entries = r.gpsHistory.last(limit)
	default:
		return []Payload{}
	}
	for i, p := range entries {
		entries[i] = maps.Clone(p)
	}
	return entries
}

// LastSeen returns the last-seen time in ms of a boat.
func (s *Store) LastSeen(boatID string) (int64, bool) {
	r := s.lookup(boatID)
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen, r.seen
}

// IDs returns every boat identifier seen at runtime, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.boats))
	for id := range s.boats {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of boat records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boats)
}
