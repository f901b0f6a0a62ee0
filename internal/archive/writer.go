package archive

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"seaguard-gateway/internal/telemetry"
)

// Saver persists one message.
type Saver interface {
	Save(ctx context.Context, m telemetry.Message) error
}

// Writer decouples the broker callback from storage latency: Enqueue puts
// the message on a bounded queue and Run drains it. When the queue is full
// the message is dropped and counted.
type Writer struct {
	saver   Saver
	logger  *slog.Logger
	queue   chan telemetry.Message
	timeout time.Duration

	dropped atomic.Int64
	saved   atomic.Int64
}

// NewWriter creates a writer with a queue of size messages.
func NewWriter(saver Saver, logger *slog.Logger, size int) *Writer {
	if size < 1 {
		size = 1
	}
	return &Writer{
		saver:   saver,
		logger:  logger,
		queue:   make(chan telemetry.Message, size),
		timeout: 5 * time.Second,
	}
}

// Enqueue never blocks.
func (w *Writer) Enqueue(m telemetry.Message) {
	select {
	case w.queue <- m:
	default:
		if w.dropped.Add(1)%100 == 1 {
			w.logger.Warn("Archive queue full, dropping messages", "boat", m.BoatID, "dropped_total", w.dropped.Load())
		}
	}
}

// Run saves queued messages until ctx is cancelled, then flushes what is
// already queued with a fresh deadline per message.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case m := <-w.queue:
			w.save(context.Background(), m)
		}
	}
}

func (w *Writer) flush() {
	for {
		select {
		case m := <-w.queue:
			w.save(context.Background(), m)
		default:
			return
		}
	}
}

func (w *Writer) save(parent context.Context, m telemetry.Message) {
	// Each save gets its own timeout so one hung backend call cannot stall
	// the queue forever.
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	if err := w.saver.Save(ctx, m); err != nil {
		w.logger.Error("Archive write failed", "boat", m.BoatID, "channel", m.Channel, "error", err)
		return
	}
	w.saved.Add(1)
	w.logger.Debug("Archived", "boat", m.BoatID, "channel", m.Channel)
}

// Dropped returns how many messages were discarded because the queue was
// full.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Saved returns how many messages were stored successfully.
func (w *Writer) Saved() int64 { return w.saved.Load() }
