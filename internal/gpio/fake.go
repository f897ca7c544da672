package gpio

import "errors"

// Setting is one pair of output values written to FakeValves.
type Setting struct {
	Main      bool
	Automatic bool
}

// FakeValves is a test double that records every output write.
type FakeValves struct {
	// Settings contains every successful Set call, in order.
	Settings []Setting

	// Main and Automatic hold the current output values.
	Main      bool
	Automatic bool

	// SetError, if set, will be returned by Set. The outputs are left unchanged.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeValves creates FakeValves with both outputs low.
func NewFakeValves() *FakeValves {
	return &FakeValves{}
}

// Set records the requested outputs.
func (f *FakeValves) Set(main, automatic bool) error {
	if f.SetError != nil {
		return &OutputError{Err: f.SetError}
	}
	if f.Closed {
		return &OutputError{Err: ErrClosed}
	}
	f.Main, f.Automatic = main, automatic
	f.Settings = append(f.Settings, Setting{Main: main, Automatic: automatic})
	return nil
}

// Close drives both outputs low and marks the valves closed.
func (f *FakeValves) Close() error {
	f.Main, f.Automatic = false, false
	f.Closed = true
	return nil
}

// Last returns the most recent setting, or both low if nothing was written.
func (f *FakeValves) Last() Setting {
	if len(f.Settings) == 0 {
		return Setting{}
	}
	return f.Settings[len(f.Settings)-1]
}

// FakeFlowSensor is a test double that delivers scripted edges.
type FakeFlowSensor struct {
	onEdge func(level int)

	// CurrentLevel is returned by Level. The line idles high (pull-up).
	CurrentLevel int

	// LevelError, if set, will be returned by Level.
	LevelError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeFlowSensor creates a sensor that delivers edges to onEdge.
func NewFakeFlowSensor(onEdge func(level int)) *FakeFlowSensor {
	return &FakeFlowSensor{onEdge: onEdge, CurrentLevel: 1}
}

// Emit delivers a single edge to the handler.
func (f *FakeFlowSensor) Emit(level int) {
	if f.Closed {
		return
	}
	f.CurrentLevel = level
	f.onEdge(level)
}

// Pulse delivers n full pulses (falling then rising edge).
func (f *FakeFlowSensor) Pulse(n int) {
	for i := 0; i < n; i++ {
		f.Emit(0)
		f.Emit(1)
	}
}

// Level returns the scripted level.
func (f *FakeFlowSensor) Level() (int, error) {
	if f.LevelError != nil {
		return 0, &SensorReadError{Err: f.LevelError}
	}
	if f.onEdge == nil {
		return 0, &SensorReadError{Err: errors.New("no handler configured")}
	}
	return f.CurrentLevel, nil
}

// Close stops edge delivery.
func (f *FakeFlowSensor) Close() error {
	f.Closed = true
	return nil
}
