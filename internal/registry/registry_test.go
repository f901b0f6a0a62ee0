package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

const boatsYAML = `
- id: boat1
  name: SeaGuard Alpha
  description: Main patrol boat
  video:
    type: hls
    url: http://192.168.1.50:8080/hls/stream.m3u8
  home: {lat: 23.61, lon: 58.59}
- id: boat2
  name: SeaGuard Beta
  description: Backup unit
  video:
    type: mjpeg
    url: http://192.168.1.51:81/stream
- id: "bad id"
  name: Broken
- id: boat1
  name: Duplicate
`

func writeBoats(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boats.yaml")
	if err := os.WriteFile(path, []byte(boatsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileAndNew(t *testing.T) {
	boats, err := LoadFile(writeBoats(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(boats) != 4 {
		t.Fatalf("LoadFile returned %d boats, want 4", len(boats))
	}

	r := New(boats, nil, discardLogger())
	list := r.List()

	var ids []string
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	if fmt.Sprint(ids) != "[default boat1 boat2]" {
		t.Errorf("ids = %v", ids)
	}

	b1, ok := r.Get("boat1")
	if !ok || b1.Name != "SeaGuard Alpha" || b1.Video == nil || b1.Video.Type != "hls" || b1.Home == nil || b1.Home.Lat != 23.61 {
		t.Errorf("boat1 = %+v", b1)
	}
	if b2, _ := r.Get("boat2"); b2.Home != nil {
		t.Errorf("boat2 home should be unset: %+v", b2.Home)
	}
	if d, ok := r.Get(DefaultBoatID); !ok || d.Name != "SeaGuard Default" {
		t.Errorf("default boat = %+v, %v", d, ok)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file did not fail")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	_ = os.WriteFile(path, []byte("id: [unterminated"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("broken YAML did not fail")
	}
}

func TestConfiguredDefaultIsKept(t *testing.T) {
	r := New([]Boat{{ID: "default", Name: "Harbour tender"}}, nil, discardLogger())
	if list := r.List(); len(list) != 1 || list[0].Name != "Harbour tender" {
		t.Errorf("List() = %+v", list)
	}
}

// fakeRows feeds pre-baked rows to the registry through pgx.Rows.
type fakeRows struct {
	rows [][]any
	i    int
	err  error
}

func (f *fakeRows) Close()                                       {}
func (f *fakeRows) Err() error                                   { return f.err }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return f.rows[f.i-1], nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Next() bool {
	if f.i >= len(f.rows) {
		return false
	}
	f.i++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case **string:
			if row[i] == nil {
				*p = nil
			} else {
				s := row[i].(string)
				*p = &s
			}
		case **float64:
			if row[i] == nil {
				*p = nil
			} else {
				v := row[i].(float64)
				*p = &v
			}
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeQuerier struct {
	rows *fakeRows
	err  error
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.rows.i = 0
	return q.rows, nil
}

func TestLoadFromDBMerges(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{rows: [][]any{
		{"boat1", "Alpha (refit)", nil, "mjpeg", "http://10.0.0.5/stream", nil, nil},
		{"boat3", "SeaGuard Gamma", "Night patrol", nil, nil, 23.7, 58.4},
		{"bad/id", "Nope", nil, nil, nil, nil, nil},
	}}}
	r := New([]Boat{{ID: "boat1", Name: "SeaGuard Alpha"}, {ID: "boat2", Name: "SeaGuard Beta"}}, q, discardLogger())

	if err := r.LoadFromDB(context.Background()); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, b := range r.List() {
		ids = append(ids, b.ID)
	}
	if fmt.Sprint(ids) != "[default boat1 boat2 boat3]" {
		t.Errorf("ids = %v", ids)
	}

	b1, _ := r.Get("boat1")
	if b1.Name != "Alpha (refit)" || b1.Video == nil || b1.Video.Type != "mjpeg" {
		t.Errorf("boat1 not overridden: %+v", b1)
	}
	b3, _ := r.Get("boat3")
	if b3.Description != "Night patrol" || b3.Home == nil || b3.Home.Lon != 58.4 || b3.Video != nil {
		t.Errorf("boat3 = %+v", b3)
	}
	if _, ok := r.Get("bad/id"); ok {
		t.Error("invalid id from DB accepted")
	}
}

func TestLoadFromDBFailureKeepsView(t *testing.T) {
	q := &fakeQuerier{err: errors.New("connection refused")}
	r := New([]Boat{{ID: "boat1"}}, q, discardLogger())

	if err := r.LoadFromDB(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := r.Get("boat1"); !ok {
		t.Error("failed refresh dropped the file boats")
	}
}
