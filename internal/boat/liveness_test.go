package boat

import (
	"testing"
	"time"

	"seaguard-gateway/internal/clock"
)

func TestIsOnline(t *testing.T) {
	clk := clock.Fake(epoch)
	s := NewStore(clk, DefaultLimits())
	l := NewLiveness(s, clk, 0)

	if l.IsOnline("boat1") {
		t.Fatal("never-seen boat is online")
	}

	s.RecordSensors("boat1", Payload{}, clk.Now().UnixMilli())
	if !l.IsOnline("boat1") {
		t.Fatal("boat not online right after telemetry")
	}

	clk.Advance(9999 * time.Millisecond)
	if !l.IsOnline("boat1") {
		t.Error("boat offline before the 10s window elapsed")
	}

	clk.Advance(time.Millisecond)
	if l.IsOnline("boat1") {
		t.Error("boat still online after 10s without telemetry")
	}

	s.RecordGPS("boat1", Payload{}, clk.Now().UnixMilli())
	if !l.IsOnline("boat1") {
		t.Error("fresh gps did not bring boat back online")
	}
}

func TestOnlineAt(t *testing.T) {
	clk := clock.Fake(epoch)
	l := NewLiveness(NewStore(clk, DefaultLimits()), clk, 10*time.Second)

	if l.OnlineAt(nil) {
		t.Error("nil lastSeen is online")
	}
	old := epoch.Add(-time.Minute).UnixMilli()
	if l.OnlineAt(&old) {
		t.Error("minute-old lastSeen is online")
	}
	recent := epoch.Add(-time.Second).UnixMilli()
	if !l.OnlineAt(&recent) {
		t.Error("second-old lastSeen is offline")
	}
}
