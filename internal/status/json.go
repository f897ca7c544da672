package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Phase         string       `json:"phase"`
	Main          ValveJSON    `json:"main_water"`
	Automatic     ValveJSON    `json:"automatic_watering"`
	Water         WaterJSON    `json:"water"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ValveJSON is the JSON representation of one valve.
type ValveJSON struct {
	State     string `json:"state"`
	Open      bool   `json:"open"`
	Remaining int    `json:"remaining_ticks"`
}

// WaterJSON reports the accumulated volumes in litres.
type WaterJSON struct {
	Total   float64 `json:"total"`
	Current float64 `json:"current"`
	Unsaved bool    `json:"unsaved,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Identifier    string `json:"identifier"`
	PeriodMs      int64  `json:"period_ms"`
	BackoffFactor int    `json:"backoff_factor"`
	DebounceMs    int64  `json:"debounce_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPPort      string `json:"http_port"`
	Database      string `json:"database"`
}

func roundVolume(v float64) float64 {
	return math.Round(v*10) / 10
}

func buildInner(snap Snapshot) StatusInner {
	v := snap.Valves
	return StatusInner{
		Phase: snap.Phase.String(),
		Main: ValveJSON{
			State:     string(v.MainState()),
			Open:      v.MainOpen,
			Remaining: v.MainRemaining,
		},
		Automatic: ValveJSON{
			State:     string(v.AutomaticState()),
			Open:      v.AutomaticOpen,
			Remaining: v.AutomaticRemaining,
		},
		Water: WaterJSON{
			Total:   roundVolume(snap.Totals.Lifetime),
			Current: roundVolume(snap.Totals.Session),
			Unsaved: snap.Unsaved,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Identifier:    snap.Config.Identifier,
			PeriodMs:      snap.Config.PeriodMs,
			BackoffFactor: snap.Config.BackoffFactor,
			DebounceMs:    snap.Config.DebounceMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPPort:      snap.Config.HTTPPort,
			Database:      snap.Config.Database,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
