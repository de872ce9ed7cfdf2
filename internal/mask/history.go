package mask

// History is a bounded undo/redo buffer of raster snapshots. It stores the
// chain of committed states; the cursor points at the current one. Recording
// a new state discards any redo branch ahead of the cursor, and exceeding
// capacity evicts the oldest entry, shrinking the available undo depth.
type History struct {
	entries  []*Raster
	cursor   int
	capacity int
}

// DefaultHistoryDepth bounds how many snapshots an editor keeps.
const DefaultHistoryDepth = 50

// NewHistory creates a history with the given snapshot capacity.
func NewHistory(capacity int) *History {
	if capacity < 2 {
		capacity = 2
	}

	return &History{capacity: capacity, cursor: -1}
}

// Record stores a snapshot of the current state after a committed mutation.
func (h *History) Record(snapshot *Raster) {
	// Drop the redo branch.
	h.entries = h.entries[:h.cursor+1]
	h.entries = append(h.entries, snapshot)

	if len(h.entries) > h.capacity {
		// Evict the oldest snapshot; undo depth shrinks by one.
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}

	h.cursor = len(h.entries) - 1
}

// Undo moves the cursor one step back and returns a copy of that snapshot.
// It returns false when no older snapshot exists.
func (h *History) Undo() (*Raster, bool) {
	if h.cursor <= 0 {
		return nil, false
	}

	h.cursor--

	return h.entries[h.cursor].Clone(), true
}

// Redo moves the cursor one step forward and returns a copy of that
// snapshot. It returns false when no redo branch exists.
func (h *History) Redo() (*Raster, bool) {
	if h.cursor+1 >= len(h.entries) {
		return nil, false
	}

	h.cursor++

	return h.entries[h.cursor].Clone(), true
}

// CanUndo reports whether an older snapshot is available.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether a redo branch is available.
func (h *History) CanRedo() bool { return h.cursor+1 < len(h.entries) }

// Depth returns the number of stored snapshots.
func (h *History) Depth() int { return len(h.entries) }
