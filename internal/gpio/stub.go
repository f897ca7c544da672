//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealValves is not available on non-Linux platforms.
type RealValves struct{}

// NewRealValves returns an error on non-Linux platforms.
func NewRealValves(chipName string, pinMain, pinAutomatic int) (*RealValves, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (v *RealValves) Set(main, automatic bool) error {
	return &OutputError{Err: errUnsupported}
}

// Close is not implemented on non-Linux platforms.
func (v *RealValves) Close() error {
	return nil
}

// RealFlowSensor is not available on non-Linux platforms.
type RealFlowSensor struct{}

// NewRealFlowSensor returns an error on non-Linux platforms.
func NewRealFlowSensor(chipName string, pin int, debounce time.Duration, onEdge func(level int)) (*RealFlowSensor, error) {
	return nil, errUnsupported
}

// Level is not implemented on non-Linux platforms.
func (s *RealFlowSensor) Level() (int, error) {
	return 0, &SensorReadError{Err: errUnsupported}
}

// Close is not implemented on non-Linux platforms.
func (s *RealFlowSensor) Close() error {
	return nil
}
