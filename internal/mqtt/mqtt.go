// Package mqtt carries valve commands in and valve/usage status out over MQTT,
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sweeney/watercontrol/internal/logic"
)

// Command payloads. Anything else is ignored.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics are the MQTT topics used by one device.
type Topics struct {
	MainCommand      string
	MainState        string
	AutomaticCommand string
	AutomaticState   string
	TotalState       string
	CurrentState     string
	Availability     string
	System           string
}

// NewTopics returns the topics for the device with the given identifier.
func NewTopics(identifier string) Topics {
	base := "watercontrol/" + identifier
	return Topics{
		MainCommand:      base + "/main_water/set",
		MainState:        base + "/main_water/state",
		AutomaticCommand: base + "/automatic_watering/set",
		AutomaticState:   base + "/automatic_watering/state",
		TotalState:       base + "/total_water/state",
		CurrentState:     base + "/current_water/state",
		Availability:     base + "/availability",
		System:           base + "/system",
	}
}

// Publisher publishes status to MQTT.
type Publisher interface {
	// PublishStatus sends the switch states and water totals.
	// Returns error if publishing fails (should not crash the process).
	PublishStatus(status Status) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Status is what gets mirrored to the state topics every tick.
type Status struct {
	Main      logic.State
	Automatic logic.State
	Total     float64
	Session   float64
}

// NewStatus builds a Status from a controller snapshot and usage totals.
func NewStatus(snap logic.Snapshot, totals logic.Totals) Status {
	return Status{
		Main:      snap.MainState(),
		Automatic: snap.AutomaticState(),
		Total:     totals.Lifetime,
		Session:   totals.Session,
	}
}

// Message is a single MQTT publication.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// StatusMessages returns the retained state messages for a status.
func (t Topics) StatusMessages(s Status) []Message {
	return []Message{
		{Topic: t.MainState, Payload: []byte(s.Main), Retained: true},
		{Topic: t.AutomaticState, Payload: []byte(s.Automatic), Retained: true},
		{Topic: t.TotalState, Payload: []byte(FormatVolume(s.Total)), Retained: true},
		{Topic: t.CurrentState, Payload: []byte(FormatVolume(s.Session)), Retained: true},
	}
}

// FormatVolume formats a volume with one decimal place.
func FormatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

var (
	// ErrUnknownTopic is returned for messages on topics that carry no command.
	ErrUnknownTopic = errors.New("not a command topic")
	// ErrInvalidPayload is returned for payloads other than ON and OFF.
	ErrInvalidPayload = errors.New("payload must be ON or OFF")
)

// ParseCommand maps a message on one of the command topics to a Command.
// Payloads are matched exactly (case-sensitive).
func (t Topics) ParseCommand(topic string, payload []byte) (logic.Command, error) {
	var cmd logic.Command
	switch topic {
	case t.MainCommand:
		cmd.Valve = logic.Main
	case t.AutomaticCommand:
		cmd.Valve = logic.Automatic
	default:
		return cmd, ErrUnknownTopic
	}

	switch string(payload) {
	case PayloadOn:
		cmd.On = true
	case PayloadOff:
		cmd.On = false
	default:
		return cmd, ErrInvalidPayload
	}
	return cmd, nil
}

// ChannelFault reports a failure talking to the broker. The daemon keeps
// running on its own timers while the channel is down.
type ChannelFault struct {
	Op  string
	Err error
}

func (e *ChannelFault) Error() string {
	return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
}

func (e *ChannelFault) Unwrap() error {
	return e.Err
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
