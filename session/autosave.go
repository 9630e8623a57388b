package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
)

// autosaver saves the latest snapshot to the store once the project has
// stayed unchanged for the autosave delay.
type autosaver struct {
	s         *Session
	debounced func(f func())
	changes   atomic.Uint64 // incremented after every change

	mu     sync.Mutex
	closed bool
	saved  uint64 // value of changes when the store was last written
}

const saveTimeout = 10 * time.Second

func newAutosaver(s *Session, delay time.Duration) *autosaver {
	a := &autosaver{s: s}
	if s.store != nil {
		a.debounced = debounce.New(delay)
	}
	return a
}

// schedule is called after every change.
func (a *autosaver) schedule() {
	if a.debounced == nil {
		return
	}
	a.changes.Add(1)
	a.debounced(a.save)
}

func (a *autosaver) save() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.saveLocked()
}

func (a *autosaver) saveLocked() {
	// read the counter before the snapshot, so a change racing with the save
	// leaves the store marked as outdated
	changes := a.changes.Load()
	if changes == a.saved {
		return
	}
	p := a.s.snapshot.Load()
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.s.store.SaveProject(ctx, p); err != nil {
		a.s.log.WithError(err).Warn("autosave failed")
		return
	}
	a.saved = changes
	a.s.log.Debug("project saved")
}

// close flushes a pending save and disables further saves.
func (a *autosaver) close() {
	if a.debounced == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saveLocked()
	a.closed = true
}
