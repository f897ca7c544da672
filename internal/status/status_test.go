package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/watercontrol/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PeriodMs: 1000, DebounceMs: 10, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PeriodMs != 1000 {
		t.Errorf("Config.PeriodMs: got %d, want 1000", snap.Config.PeriodMs)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Phase != logic.PhaseUninitialized {
		t.Errorf("expected PhaseUninitialized initially, got %s", snap.Phase)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	valves := logic.Snapshot{MainOpen: true, MainSwitch: true, MainRemaining: 30}
	tr.Update(logic.PhaseRunning, valves, logic.Totals{Lifetime: 15, Session: 5}, true)

	snap := tr.Snapshot()
	if snap.Phase != logic.PhaseRunning {
		t.Errorf("Phase: got %s, want running", snap.Phase)
	}
	if snap.Valves != valves {
		t.Errorf("Valves: got %+v, want %+v", snap.Valves, valves)
	}
	if snap.Totals.Lifetime != 15 || snap.Totals.Session != 5 {
		t.Errorf("Totals: got %+v", snap.Totals)
	}
	if !snap.Unsaved {
		t.Error("expected Unsaved=true")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(logic.PhaseRunning, logic.Snapshot{MainSwitch: true}, logic.Totals{Lifetime: 1}, false)

	snap1 := tr.Snapshot()

	tr.Update(logic.PhaseStopped, logic.Snapshot{}, logic.Totals{Lifetime: 2}, false)

	// snap1 should still reflect old state
	if !snap1.Valves.MainSwitch {
		t.Error("snapshot should be a copy; valves were modified")
	}
	if snap1.Totals.Lifetime != 1 {
		t.Error("snapshot should be a copy; totals were modified")
	}
}

func runningSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Phase: logic.PhaseRunning,
		Valves: logic.Snapshot{
			MainOpen:           true,
			MainSwitch:         false,
			AutomaticOpen:      true,
			AutomaticSwitch:    true,
			AutomaticRemaining: 7,
		},
		Totals:        logic.Totals{Lifetime: 1234.56, Session: 12},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			Identifier:    "water_control",
			PeriodMs:      1000,
			BackoffFactor: 5,
			DebounceMs:    10,
			HeartbeatMs:   900000,
			Broker:        "tcp://localhost:1883",
			HTTPPort:      ":80",
			Database:      "watercontrol.db",
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(runningSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Phase != "running" {
		t.Errorf("Phase: got %q, want running", s.Phase)
	}
	// Main is held open by the interlock but reports OFF.
	if s.Main.State != "OFF" || !s.Main.Open || s.Main.Remaining != 0 {
		t.Errorf("Main: got %+v", s.Main)
	}
	if s.Automatic.State != "ON" || !s.Automatic.Open || s.Automatic.Remaining != 7 {
		t.Errorf("Automatic: got %+v", s.Automatic)
	}
	if s.Water.Total != 1234.6 {
		t.Errorf("Water.Total: got %v, want 1234.6", s.Water.Total)
	}
	if s.Water.Current != 12 {
		t.Errorf("Water.Current: got %v, want 12", s.Water.Current)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Config.BackoffFactor != 5 || s.Config.Database != "watercontrol.db" {
		t.Errorf("Config: got %+v", s.Config)
	}
	// Event and Reason should be omitted
	if s.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", s.Event)
	}
	if s.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", s.Reason)
	}
}

func TestFormatJSONUninitialized(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Phase != "uninitialized" {
		t.Errorf("Phase: got %q, want uninitialized", parsed.Status.Phase)
	}
	if parsed.Status.Main.State != "OFF" || parsed.Status.Automatic.State != "OFF" {
		t.Errorf("expected both OFF, got %q %q", parsed.Status.Main.State, parsed.Status.Automatic.State)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(runningSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Automatic.State != "ON" {
		t.Errorf("Automatic: got %q, want ON", parsed.Status.Automatic.State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := runningSnapshot()
	snap.Phase = logic.PhaseStopped
	snap.Valves = logic.Snapshot{}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.Phase != "stopped" {
		t.Errorf("Phase: got %q, want stopped", parsed.Status.Phase)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := runningSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.PhaseRunning, logic.Snapshot{MainRemaining: i}, logic.Totals{Lifetime: float64(i)}, false)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
