package logic

import "context"

// Saver persists the lifetime total. Implementations overwrite a single
// record; they never append.
type Saver interface {
	Save(ctx context.Context, total float64) error
}

// Usage converts drained pulses into volume and keeps the session and
// lifetime totals. In-memory totals are authoritative between ticks: a
// failed save is never rolled back, and the next successful save writes the
// full lifetime total.
type Usage struct {
	saver    Saver
	lifetime float64
	session  float64
	unsaved  bool
}

// NewUsage creates an accumulator starting from a previously persisted
// lifetime total.
func NewUsage(saver Saver, lifetime float64) *Usage {
	return &Usage{saver: saver, lifetime: lifetime}
}

// ApplyPulses adds n pulses worth of volume to both totals and saves the
// lifetime total. It reports whether anything changed. ApplyPulses(0) does
// no I/O.
func (u *Usage) ApplyPulses(ctx context.Context, n uint64) (Totals, bool, error) {
	if n == 0 {
		return u.Totals(), false, nil
	}

	volume := float64(n) * VolumePerPulse
	u.lifetime += volume
	u.session += volume

	if err := u.saver.Save(ctx, u.lifetime); err != nil {
		u.unsaved = true
		return u.Totals(), true, &PersistenceError{Op: "save", Err: err}
	}
	u.unsaved = false
	return u.Totals(), true, nil
}

// ResetSession zeroes the session total. Called when Main is opened from
// closed.
func (u *Usage) ResetSession() {
	u.session = 0
}

// Totals returns the current lifetime and session volumes.
func (u *Usage) Totals() Totals {
	return Totals{Lifetime: u.lifetime, Session: u.session}
}

// Unsaved reports whether the last save failed.
func (u *Usage) Unsaved() bool {
	return u.unsaved
}

// Flush retries the save if the last one failed. It is a no-op otherwise.
func (u *Usage) Flush(ctx context.Context) error {
	if !u.unsaved {
		return nil
	}
	if err := u.saver.Save(ctx, u.lifetime); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	u.unsaved = false
	return nil
}
