// Package logic contains the pure valve interlock and flow accounting logic.
// This package has NO external dependencies (no GPIO, MQTT, SQL, or time.Sleep).
// Everything here is driven one tick or one command at a time by the caller.
package logic

import "errors"

// Session lengths, in ticks.
const (
	MainDuration      = 30
	AutomaticDuration = 15
)

// VolumePerPulse is the volume (litres) represented by one sensor pulse.
const VolumePerPulse = 1.0

// State represents the reported state of a switch.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// ValveID identifies one of the two valves on the line.
type ValveID int

const (
	Main ValveID = iota
	Automatic
)

func (v ValveID) String() string {
	switch v {
	case Main:
		return "main"
	case Automatic:
		return "automatic"
	}
	return "unknown"
}

// ValveState is the state of a single valve.
type ValveState struct {
	// Open is the physical output: true drives the line high.
	Open bool
	// Switch is what gets reported on the valve's switch entity. It can
	// differ from Open while a valve is held open through the interlock.
	Switch bool
	// Remaining is the number of ticks left in a timed session (0 = none).
	Remaining int
}

// Phase is the controller lifecycle phase.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseRunning
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// Command is an external request to switch a valve.
type Command struct {
	Valve ValveID
	On    bool
}

// Snapshot is the public view of the controller.
type Snapshot struct {
	MainOpen           bool
	AutomaticOpen      bool
	MainSwitch         bool
	AutomaticSwitch    bool
	MainRemaining      int
	AutomaticRemaining int
}

// MainState returns the reported state of the main switch.
func (s Snapshot) MainState() State {
	return boolToState(s.MainSwitch)
}

// AutomaticState returns the reported state of the automatic switch.
func (s Snapshot) AutomaticState() State {
	return boolToState(s.AutomaticSwitch)
}

// Result is returned by Controller.Command.
type Result struct {
	Snapshot Snapshot
	// SessionReset is set when Main was opened from closed; the caller
	// must reset the usage session before applying further pulses.
	SessionReset bool
}

// Totals holds the volumes accumulated so far.
type Totals struct {
	Lifetime float64
	Session  float64
}

// ErrNotRunning is returned by controller mutators outside PhaseRunning.
var ErrNotRunning = errors.New("controller not running")

// PersistenceError reports a failed load or save of the lifetime total.
type PersistenceError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}
