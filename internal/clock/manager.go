package clock

import "log"

// Manager bundles the node's logical and physical clocks. The offset is
// part of the node's persisted state; onOffset is invoked after every
// change so the owner can save it.
type Manager struct {
	logical  Logical
	physical Physical
	onOffset func(int64)
}

func NewManager(initialOffset int64, onOffset func(int64)) *Manager {
	m := &Manager{onOffset: onOffset}
	m.physical.SetOffset(initialOffset)
	return m
}

// Tick advances the Lamport clock for a local send event.
func (m *Manager) Tick() uint64 { return m.logical.Tick() }

// Merge folds a received Lamport timestamp in before dispatch.
func (m *Manager) Merge(received uint64) uint64 { return m.logical.Merge(received) }

// LogicalNow reads the Lamport clock without advancing it.
func (m *Manager) LogicalNow() uint64 { return m.logical.Now() }

// PhysicalNow returns the raw system time in milliseconds. Berkeley rounds
// exchange raw readings; the accumulated correction lives in the offset.
func (m *Manager) PhysicalNow() int64 { return m.physical.SystemNow() }

// AdjustedNow returns system time plus the current offset.
func (m *Manager) AdjustedNow() int64 { return m.physical.Now() }

// Offset returns the current physical offset in milliseconds.
func (m *Manager) Offset() int64 { return m.physical.Offset() }

// SetOffset replaces the physical offset.
func (m *Manager) SetOffset(offset int64) {
	old := m.physical.Offset()
	m.physical.SetOffset(offset)
	log.Printf("[Clock] offset updated: previous=%dms new=%dms delta=%dms", old, offset, offset-old)
	if m.onOffset != nil {
		m.onOffset(offset)
	}
}

// Adjust adds delta to the physical offset.
func (m *Manager) Adjust(delta int64) {
	newOffset := m.physical.Adjust(delta)
	log.Printf("[Clock] offset adjusted by %dms, new offset=%dms", delta, newOffset)
	if m.onOffset != nil {
		m.onOffset(newOffset)
	}
}
