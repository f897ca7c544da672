//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "watercontrol"

// RealValves drives the valve outputs through the Linux GPIO character device.
type RealValves struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	closed bool
}

// NewRealValves requests both valve lines as outputs, initialised low.
// Call it before anything else is configured so the valves start closed.
func NewRealValves(chipName string, pinMain, pinAutomatic int) (*RealValves, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := chip.RequestLines([]int{pinMain, pinAutomatic}, gpiocdev.AsOutput(0, 0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request valve pins %d,%d: %w", pinMain, pinAutomatic, err)
	}

	return &RealValves{chip: chip, lines: lines}, nil
}

// Set drives the Main and Automatic outputs.
func (v *RealValves) Set(main, automatic bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return &OutputError{Err: ErrClosed}
	}
	if err := v.lines.SetValues([]int{level(main), level(automatic)}); err != nil {
		return &OutputError{Err: err}
	}
	return nil
}

// Close drives both outputs low, then reconfigures them as inputs with
// pull-down (matching Pi boot defaults) so the relays stay off after exit.
func (v *RealValves) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	var errs []error
	if err := v.lines.SetValues([]int{0, 0}); err != nil {
		errs = append(errs, fmt.Errorf("drive valves low: %w", err))
	}
	if err := v.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure valve pins: %w", err))
	}
	if err := v.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close valve pins: %w", err))
	}
	if err := v.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealFlowSensor watches the flow sensor line for debounced edges.
type RealFlowSensor struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealFlowSensor requests the sensor line as a pulled-up input and calls
// onEdge with the new level for every debounced edge. onEdge runs on the
// gpiocdev event goroutine and must not block.
func NewRealFlowSensor(chipName string, pin int, debounce time.Duration, onEdge func(level int)) (*RealFlowSensor, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	handler := func(evt gpiocdev.LineEvent) {
		lvl, err := eventLevel(evt)
		if err != nil {
			log.Printf("gpio: %v", err)
			return
		}
		onEdge(lvl)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(handler),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
	}

	return &RealFlowSensor{chip: chip, line: line}, nil
}

// Level returns the current raw level of the sensor line.
func (s *RealFlowSensor) Level() (int, error) {
	v, err := s.line.Value()
	if err != nil {
		return 0, &SensorReadError{Err: err}
	}
	return v, nil
}

// Close stops edge delivery and releases the line.
func (s *RealFlowSensor) Close() error {
	var errs []error
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sensor pin: %w", err))
	}
	if err := s.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// eventLevel maps an edge event to the level the line moved to.
func eventLevel(evt gpiocdev.LineEvent) (int, error) {
	switch evt.Type {
	case gpiocdev.LineEventFallingEdge:
		return 0, nil
	case gpiocdev.LineEventRisingEdge:
		return 1, nil
	}
	return 0, &SensorReadError{Err: fmt.Errorf("unexpected event type %d on line %d", evt.Type, evt.Offset)}
}
