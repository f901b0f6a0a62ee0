package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"seaguard-gateway/internal/api"
	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/clock"
	"seaguard-gateway/internal/control"
	"seaguard-gateway/internal/registry"
	"seaguard-gateway/internal/telemetry"
)

// echoBoat acknowledges every command it receives.
type echoBoat struct {
	router *telemetry.Router
	reject atomic.Bool
	silent atomic.Bool
}

func (b *echoBoat) Publish(topic string, payload []byte) error {
	if b.silent.Load() {
		return nil
	}
	var cmd control.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return err
	}
	ack, _ := json.Marshal(map[string]any{"cmdId": cmd.CmdID, "ok": !b.reject.Load()})
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.router.Handle("seaguard/boat1/ack", ack)
	}()
	return nil
}

func newTestGateway(t *testing.T) (*httptest.Server, *telemetry.Router, *echoBoat) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	clk := clock.Real()
	store := boat.NewStore(clk, boat.DefaultLimits())
	router := telemetry.NewRouter(store, clk, logger, nil)
	eb := &echoBoat{router: router}

	reg := registry.New([]registry.Boat{{ID: "boat1", Name: "Boat One"}}, nil, logger)
	svc := api.NewService(store, boat.NewLiveness(store, clk, 0), reg, 0)
	disp := control.NewDispatcher(store, eb, clk, logger, control.DefaultCooldown)

	mux := http.NewServeMux()
	api.NewAPIHandler(svc, disp, &api.Health{Started: time.Now(), Clock: clk}, logger).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, router, eb
}

func runCtl(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	err := run(ctx, args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestUsage(t *testing.T) {
	_, stderr, err := runCtl(t, "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(stderr, "seaguardctl [flags] send") || !strings.Contains(stderr, "--timeout") {
		t.Errorf("help output:\n%s", stderr)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "missing command"},
		{"unknown command", []string{"fly"}, `unknown command "fly"`},
		{"state without boat", []string{"state"}, "usage: seaguardctl state"},
		{"send without action", []string{"send", "boat1"}, "usage: seaguardctl send"},
		{"zero poll", []string{"--poll", "0", "boats"}, "--poll must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCtl(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestBoatsAndState(t *testing.T) {
	srv, router, _ := newTestGateway(t)
	router.Handle("seaguard/boat1/sensors", []byte(`{"temp":21}`))

	out, _, err := runCtl(t, "--api", srv.URL, "boats")
	if err != nil {
		t.Fatalf("boats: %v", err)
	}
	if !strings.Contains(out, "BOAT") || !strings.Contains(out, "Boat One") || !strings.Contains(out, "online") {
		t.Errorf("boats output:\n%s", out)
	}

	out, _, err = runCtl(t, "--api", srv.URL, "state", "boat1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !strings.HasPrefix(out, "telemetry ") || !strings.Contains(out, `"temp": 21`) {
		t.Errorf("state output:\n%s", out)
	}

	out, _, err = runCtl(t, "--api", srv.URL, "state", "boat2")
	if err != nil {
		t.Fatalf("state of unseen boat: %v", err)
	}
	if !strings.HasPrefix(out, "no telemetry yet") {
		t.Errorf("unseen boat output:\n%s", out)
	}
}

func TestSend(t *testing.T) {
	srv, _, eb := newTestGateway(t)

	out, _, err := runCtl(t, "--api", srv.URL, "--poll", "10ms", "send", "boat1", "forward", "SLOW")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, "sent forward to boat1") || !strings.Contains(out, "acknowledged: ok") {
		t.Errorf("send output:\n%s", out)
	}

	eb.reject.Store(true)
	_, _, err = runCtl(t, "--api", srv.URL, "--poll", "10ms", "send", "boat1", "stop")
	if err == nil || !strings.Contains(err.Error(), "boat rejected") {
		t.Errorf("failed ack err = %v", err)
	}

	eb.silent.Store(true)
	_, _, err = runCtl(t, "--api", srv.URL, "--poll", "10ms", "--timeout", "60ms", "send", "boat1", "left")
	if err == nil || !strings.Contains(err.Error(), "no acknowledgment within 60ms") {
		t.Errorf("silent boat err = %v", err)
	}

	_, _, err = runCtl(t, "--api", srv.URL, "send", "boat1", "jump")
	if err == nil || !strings.Contains(err.Error(), "Invalid action") {
		t.Errorf("invalid action err = %v", err)
	}
}

func TestWatch(t *testing.T) {
	srv, router, _ := newTestGateway(t)
	router.Handle("seaguard/boat1/gps", []byte(`{"lat":1,"lon":2}`))

	out, _, err := runCtl(t, "--api", srv.URL, "--poll", "10ms", "--count", "2", "watch", "boat1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("watch printed %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "boat1") || !strings.Contains(lines[0], "last seen") {
		t.Errorf("watch line = %q", lines[0])
	}

	out, _, err = runCtl(t, "--api", srv.URL, "--count", "1", "watch", "ghost")
	if err != nil {
		t.Fatalf("watch unknown: %v", err)
	}
	if !strings.Contains(out, "offline  unknown boat") {
		t.Errorf("unknown boat line = %q", out)
	}
}

func TestParsePayload(t *testing.T) {
	if got := parsePayload("SLOW"); got != "SLOW" {
		t.Errorf("plain string = %#v", got)
	}
	m, ok := parsePayload(`{"speed":2}`).(map[string]any)
	if !ok || m["speed"] != float64(2) {
		t.Errorf("json object = %#v", m)
	}
	if got := parsePayload("3"); got != float64(3) {
		t.Errorf("json number = %#v", got)
	}
}
