// Package registry provides the static description of the fleet: display
// names, video sources and home coordinates. Boats come from a YAML file
// and, optionally, from the boats table in Postgres, which is re-read
// periodically so a boat can be added without restarting the gateway.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"seaguard-gateway/internal/boat"
)

// DefaultBoatID is the boat that legacy endpoints address.
const DefaultBoatID = "default"

// Video is a boat's camera stream.
type Video struct {
	Type string `yaml:"type" json:"type"` // "hls" or "mjpeg"
	URL  string `yaml:"url" json:"url"`
}

// Home is the boat's base position.
type Home struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

// Boat is the configured metadata of one boat.
type Boat struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Video       *Video `yaml:"video,omitempty"`
	Home        *Home  `yaml:"home,omitempty"`
}

func defaultBoat() Boat {
	return Boat{ID: DefaultBoatID, Name: "SeaGuard Default", Description: "Legacy default boat"}
}

// LoadFile reads a YAML list of boats.
func LoadFile(path string) ([]Boat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boats file: %w", err)
	}

	var boats []Boat
	if err := yaml.Unmarshal(data, &boats); err != nil {
		return nil, fmt.Errorf("parse boats file %s: %w", path, err)
	}
	return boats, nil
}

// Querier is the part of *pgxpool.Pool the registry uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Registry is a thread-safe, ordered view of configured boats.
type Registry struct {
	db     Querier // nil: file-only registry
	logger *slog.Logger

	static []Boat

	// mu guards boats/byID. Readers take RLock; a refresh builds the new
	// view on the side and swaps it in under Lock.
	mu    sync.RWMutex
	boats []Boat
	byID  map[string]Boat
}

// New creates a registry from the file boats. Invalid or duplicate ids are
// skipped. The default boat is always present.
func New(static []Boat, db Querier, logger *slog.Logger) *Registry {
	r := &Registry{db: db, logger: logger}

	seen := map[string]bool{}
	for _, b := range static {
		if err := boat.ValidateID(b.ID); err != nil {
			logger.Warn("Skipping configured boat", "id", b.ID, "error", err)
			continue
		}
		if seen[b.ID] {
			logger.Warn("Duplicate configured boat", "id", b.ID)
			continue
		}
		seen[b.ID] = true
		r.static = append(r.static, b)
	}
	if !seen[DefaultBoatID] {
		r.static = append([]Boat{defaultBoat()}, r.static...)
	}

	r.swap(r.static)
	return r
}

func (r *Registry) swap(boats []Boat) {
	byID := make(map[string]Boat, len(boats))
	for _, b := range boats {
		byID[b.ID] = b
	}

	r.mu.Lock()
	r.boats = boats
	r.byID = byID
	r.mu.Unlock()
}

// Get returns the configuration of one boat.
func (r *Registry) Get(id string) (Boat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	return b, ok
}

// List returns all configured boats in configuration order.
func (r *Registry) List() []Boat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Boat, len(r.boats))
	copy(out, r.boats)
	return out
}

const boatsQuery = `
	SELECT id, name, description, video_type, video_url, home_lat, home_lon
	FROM boats
	WHERE is_active = true
	ORDER BY id ASC
`

// LoadFromDB re-reads the boats table and merges it over the file boats:
// a row with a known id replaces that entry in place, new ids are appended.
func (r *Registry) LoadFromDB(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	rows, err := r.db.Query(ctx, boatsQuery)
	if err != nil {
		return fmt.Errorf("boats query failed: %w", err)
	}
	defer rows.Close()

	fromDB := make(map[string]Boat)
	var order []string
	for rows.Next() {
		var (
			b                   Boat
			description         *string
			videoType, videoURL *string
			lat, lon            *float64
		)
		if err := rows.Scan(&b.ID, &b.Name, &description, &videoType, &videoURL, &lat, &lon); err != nil {
			r.logger.Error("Failed to scan boat row", "error", err)
			continue
		}
		if err := boat.ValidateID(b.ID); err != nil {
			r.logger.Warn("Skipping boat row", "id", b.ID, "error", err)
			continue
		}
		if description != nil {
			b.Description = *description
		}
		if videoType != nil && videoURL != nil {
			b.Video = &Video{Type: *videoType, URL: *videoURL}
		}
		if lat != nil && lon != nil {
			b.Home = &Home{Lat: *lat, Lon: *lon}
		}
		if _, dup := fromDB[b.ID]; !dup {
			order = append(order, b.ID)
		}
		fromDB[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("boats rows: %w", err)
	}

	merged := make([]Boat, 0, len(r.static)+len(order))
	for _, b := range r.static {
		if override, ok := fromDB[b.ID]; ok {
			b = override
			delete(fromDB, b.ID)
		}
		merged = append(merged, b)
	}
	for _, id := range order {
		if b, ok := fromDB[id]; ok {
			merged = append(merged, b)
		}
	}

	r.swap(merged)
	r.logger.Info("Boat registry reloaded", "boats", len(merged))
	return nil
}

// StartAutoRefresh reloads from the database every interval until ctx is
// cancelled. A failed reload keeps the previous view.
func (r *Registry) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if r.db == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.LoadFromDB(ctx); err != nil {
				r.logger.Error("Failed to refresh boat registry", "error", err)
			}
		}
	}
}
