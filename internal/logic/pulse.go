package logic

import "sync/atomic"

// PulseCounter tallies flow sensor pulses between ticks.
// OnEdge may be called from any goroutine; Drain is called by the tick loop.
type PulseCounter struct {
	n atomic.Uint64
}

// OnEdge records an edge on the sensor line. Only the asserted level
// (active low, level 0) counts, so each physical pulse is counted once.
func (p *PulseCounter) OnEdge(level int) {
	if level == 0 {
		p.n.Add(1)
	}
}

// Drain returns the number of pulses since the previous Drain and resets
// the tally to zero.
func (p *PulseCounter) Drain() uint64 {
	return p.n.Swap(0)
}
