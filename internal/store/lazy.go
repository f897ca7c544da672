package store

import (
	"context"
	"sync"
)

// Lazy opens the database on first use and retries the open on every call
// until it succeeds, so a missing or unwritable database does not stop the
// daemon. It satisfies logic.Saver.
type Lazy struct {
	path string

	mu sync.Mutex
	st *Store
}

// NewLazy returns a Lazy for the database at path. Nothing is opened yet.
func NewLazy(path string) *Lazy {
	return &Lazy{path: path}
}

func (l *Lazy) store(ctx context.Context) (*Store, error) {
	if l.st != nil {
		return l.st, nil
	}
	st, err := Open(ctx, l.path)
	if err != nil {
		return nil, err
	}
	l.st = st
	return st, nil
}

// Load opens the database if needed and returns the persisted total.
func (l *Lazy) Load(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.store(ctx)
	if err != nil {
		return 0, err
	}
	return st.Load(ctx)
}

// Save opens the database if needed and overwrites the persisted total.
func (l *Lazy) Save(ctx context.Context, total float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.store(ctx)
	if err != nil {
		return err
	}
	return st.Save(ctx, total)
}

// Close closes the database if it was ever opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st == nil {
		return nil
	}
	err := l.st.Close()
	l.st = nil
	return err
}
