// Package gpio drives the valve output lines and watches the flow sensor line.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// Valves drives the two valve output lines. High = open.
type Valves interface {
	// Set drives both outputs in one request.
	Set(main, automatic bool) error

	// Close drives both outputs low and releases them. Safe to call more
	// than once.
	Close() error
}

// FlowSensor watches the flow sensor line. Edges are delivered to the
// handler given at construction, from a goroutine owned by the sensor.
type FlowSensor interface {
	// Level returns the current raw level of the sensor line.
	Level() (int, error)

	// Close stops edge delivery and releases the line.
	Close() error
}

// Defaults (BCM numbering).
const (
	DefaultChip         = "gpiochip0"
	DefaultPinMain      = 27
	DefaultPinAutomatic = 22
	DefaultPinSensor    = 17
	DefaultDebounce     = 10 * time.Millisecond
)

// ErrClosed is returned when writing to released valve lines.
var ErrClosed = errors.New("gpio: lines closed")

// OutputError reports a failed write to the valve lines.
type OutputError struct {
	Err error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("set valve outputs: %v", e.Err)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}

// SensorReadError reports a failure to read the sensor line or to make
// sense of an edge event.
type SensorReadError struct {
	Err error
}

func (e *SensorReadError) Error() string {
	return fmt.Sprintf("read sensor: %v", e.Err)
}

func (e *SensorReadError) Unwrap() error {
	return e.Err
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
