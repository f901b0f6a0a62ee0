// Package archive mirrors accepted boat messages to external storage:
// TimescaleDB keeps the full history (cold path), Valkey keeps the latest
// message per boat and channel (hot path). The gateway never reads the
// archive back; its in-memory state starts empty on every run.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"seaguard-gateway/internal/telemetry"
)

// HotTTL is how long the latest message of a channel stays in Valkey.
// Boats that go silent disappear from the cache after a day.
const HotTTL = 24 * time.Hour

// Repository writes messages to Postgres and/or Valkey. Either backend may
// be absent.
type Repository struct {
	pgPool *pgxpool.Pool
	redis  *redis.Client
}

// NewRepository connects and pings the configured backends. An empty URL
// or address disables that backend.
func NewRepository(ctx context.Context, postgresURL, valkeyAddr string) (*Repository, error) {
	repo := &Repository{}

	if postgresURL != "" {
		pool, err := pgxpool.New(ctx, postgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres unreachable: %w", err)
		}
		repo.pgPool = pool
	}

	if valkeyAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: valkeyAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			repo.Close()
			return nil, fmt.Errorf("valkey unreachable: %w", err)
		}
		repo.redis = rdb
	}

	return repo, nil
}

// Pool exposes the Postgres pool so the boat registry can share it. Nil if
// Postgres is not configured.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pgPool
}

// Close releases both connections.
func (r *Repository) Close() {
	if r.pgPool != nil {
		r.pgPool.Close()
	}
	if r.redis != nil {
		r.redis.Close()
	}
}

func lastKey(m telemetry.Message) string {
	return fmt.Sprintf("boat:last:%s:%s", m.BoatID, m.Channel)
}

// Save stores one message on both paths.
func (r *Repository) Save(ctx context.Context, m telemetry.Message) error {
	body, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	// A. Cold path: append-only history table.
	if r.pgPool != nil {
		query := `INSERT INTO boat_telemetry (time, boat_id, channel, payload) VALUES ($1, $2, $3, $4)`
		_, err := r.pgPool.Exec(ctx, query, time.UnixMilli(m.Timestamp).UTC(), m.BoatID, string(m.Channel), body)
		if err != nil {
			return fmt.Errorf("insert into postgres: %w", err)
		}
	}

	// B. Hot path: overwrite the latest value.
	if r.redis != nil {
		if err := r.redis.Set(ctx, lastKey(m), body, HotTTL).Err(); err != nil {
			return fmt.Errorf("update valkey: %w", err)
		}
	}
	return nil
}
