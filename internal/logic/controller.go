package logic

// Controller drives the two valves from their countdown timers.
//
// The automatic line is plumbed behind the main line, so it cannot be
// pressurised unless Main is open. Opening Automatic forces Main open and
// closing Main closes Automatic. A valve whose timer runs out stays open
// while the other valve's timer is still running.
//
// Controller is not safe for concurrent use. Commands and ticks must be
// applied from a single goroutine.
type Controller struct {
	phase     Phase
	main      ValveState
	automatic ValveState
}

// NewController returns a controller with both valves closed. It rejects
// commands and ticks until Start is called.
func NewController() *Controller {
	return &Controller{}
}

// Start moves the controller into PhaseRunning. Call it once the valve
// outputs have been configured.
func (c *Controller) Start() {
	if c.phase == PhaseUninitialized {
		c.phase = PhaseRunning
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Command applies an external ON/OFF request for a valve.
func (c *Controller) Command(valve ValveID, on bool) (Result, error) {
	if c.phase != PhaseRunning {
		return Result{Snapshot: c.Snapshot()}, ErrNotRunning
	}

	var res Result
	switch valve {
	case Main:
		if on {
			res.SessionReset = !c.main.Open
			c.main = ValveState{Open: true, Switch: true, Remaining: MainDuration}
			if c.automatic.Remaining == 0 {
				closeValve(&c.automatic)
			}
		} else {
			// Automatic cannot run behind a closed Main.
			closeValve(&c.main)
			closeValve(&c.automatic)
		}
	case Automatic:
		if on {
			c.automatic = ValveState{Open: true, Switch: true, Remaining: AutomaticDuration}
			// Main gets no timer of its own here.
			c.main.Open = true
			c.main.Switch = true
		} else {
			closeValve(&c.automatic)
			if c.main.Remaining == 0 {
				closeValve(&c.main)
			}
		}
	}

	res.Snapshot = c.Snapshot()
	return res, nil
}

// Tick advances both timers by one tick and applies the interlock.
func (c *Controller) Tick() (Snapshot, error) {
	if c.phase != PhaseRunning {
		return c.Snapshot(), ErrNotRunning
	}

	if c.main.Remaining > 0 {
		c.main.Remaining--
		if c.main.Remaining == 0 {
			c.main.Switch = false
			if c.automatic.Remaining == 0 {
				closeValve(&c.main)
				closeValve(&c.automatic)
			}
		}
	}

	if c.automatic.Remaining > 0 {
		c.automatic.Remaining--
		if c.automatic.Remaining == 0 {
			closeValve(&c.automatic)
			if c.main.Remaining == 0 {
				closeValve(&c.main)
			}
		}
	}

	if c.main.Remaining == 0 && c.automatic.Remaining == 0 {
		closeValve(&c.main)
		closeValve(&c.automatic)
	}

	return c.Snapshot(), nil
}

// Shutdown closes both valves and stops the controller. Further commands
// and ticks return ErrNotRunning.
func (c *Controller) Shutdown() Snapshot {
	closeValve(&c.main)
	closeValve(&c.automatic)
	c.phase = PhaseStopped
	return c.Snapshot()
}

// Snapshot returns the current public state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		MainOpen:           c.main.Open,
		AutomaticOpen:      c.automatic.Open,
		MainSwitch:         c.main.Switch,
		AutomaticSwitch:    c.automatic.Switch,
		MainRemaining:      c.main.Remaining,
		AutomaticRemaining: c.automatic.Remaining,
	}
}

func closeValve(v *ValveState) {
	*v = ValveState{}
}
