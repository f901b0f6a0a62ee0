package telemetry

import (
	"log/slog"

	"seaguard-gateway/internal/boat"
)

// Correlator matches inbound acks to dispatched commands by cmdId.
type Correlator struct {
	store  *boat.Store
	logger *slog.Logger
}

func NewCorrelator(store *boat.Store, logger *slog.Logger) *Correlator {
	return &Correlator{store: store, logger: logger}
}

// Correlate records an ack payload for boatID. The payload must carry a
// non-empty string cmdId. Acks for unknown commands are kept as new
// entries.
func (c *Correlator) Correlate(boatID string, p boat.Payload) (boat.AckRecord, error) {
	cmdID, _ := p["cmdId"].(string)
	if cmdID == "" {
		return boat.AckRecord{}, ErrMissingCmdID
	}

	rec := c.store.RecordAckReceived(boatID, cmdID, p)
	if rec.Timestamp == 0 {
		c.logger.Info("Ack for unknown command", "boat", boatID, "cmdId", cmdID, "status", rec.Status)
	} else {
		c.logger.Debug("Ack correlated", "boat", boatID, "cmdId", cmdID, "action", rec.Action, "status", rec.Status)
	}
	return rec, nil
}
