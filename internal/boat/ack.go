package boat

import "time"

// AckStatus is the outcome of a dispatched control command as seen by the
// gateway.
type AckStatus string

const (
	// AckPending: dispatched, no acknowledgment yet (or unknown command).
	AckPending AckStatus = "pending"
	// AckReceived: acknowledged without an "ok" verdict.
	AckReceived AckStatus = "received"
	AckOK       AckStatus = "ok"
	AckFail     AckStatus = "fail"
)

// AckRecord tracks one command between dispatch and acknowledgment.
type AckRecord struct {
	CmdID   string
	Action  string
	Payload any // payload sent with the command, nil if none

	Status AckStatus

	// Timestamp is the dispatch time in ms since epoch. Zero when the ack
	// arrived for a command this gateway no longer (or never) knew about.
	Timestamp int64
	// ReceivedAt is the ack arrival time in ms, zero while pending.
	ReceivedAt int64

	// Fields holds the acknowledgment message exactly as the boat sent it.
	Fields Payload
}

// Terminal reports whether an acknowledgment has been recorded.
func (r AckRecord) Terminal() bool {
	return r.Status != AckPending && r.Status != ""
}

// stamp is the reference time for ack-table eviction: arrival time once
// acknowledged, dispatch time before that.
func (r AckRecord) stamp() time.Time {
	if r.ReceivedAt != 0 {
		return time.UnixMilli(r.ReceivedAt)
	}
	return time.UnixMilli(r.Timestamp)
}

// ClassifyAck derives the terminal status from an ack payload. Only a JSON
// boolean counts as a verdict.
func ClassifyAck(fields Payload) AckStatus {
	switch v := fields["ok"].(type) {
	case bool:
		if v {
			return AckOK
		}
		return AckFail
	default:
		return AckReceived
	}
}
