package canvas

import "sync/atomic"

// SelectionMap records which items are currently enabled for drawing
// (initially all of them).
//
// Only the host updates the data, under its own lock: it calls StartUpdate,
// writes the entries directly, then EndUpdate. Version is even when no update
// is in progress. Concurrent render tasks read Version before and after using
// the entries: if the two samples agree and are even, the values they read
// were consistent; otherwise the output is tagged transient.
type SelectionMap struct {
	version atomic.Int32

	// M is the enabled flag per item. Reads during an update may observe a
	// mix of old and new values; the version protocol makes that visible.
	M []bool
}

// NewSelectionMap creates a map of the given size with every item enabled.
func NewSelectionMap(sz int) *SelectionMap {
	sm := &SelectionMap{M: make([]bool, sz)}
	for i := range sm.M {
		sm.M[i] = true
	}
	return sm
}

// Version returns the current version counter.
func (sm *SelectionMap) Version() int { return int(sm.version.Load()) }

// StartUpdate marks the beginning of a host-side edit; must be called with
// the host lock held.
func (sm *SelectionMap) StartUpdate() { sm.version.Add(1) }

// EndUpdate publishes newVersion (which must be even) after a host-side
// edit; must be called with the host lock held.
func (sm *SelectionMap) EndUpdate(newVersion int) {
	sm.version.Store(int32(newVersion))
}
