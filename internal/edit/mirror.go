package edit

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/agentic-research/atelier/internal/vfs"
)

// Mirror is a store kept consistent with an authoritative session purely
// by replaying its commit log. It never sees the authoritative store.
// Ordering is the protocol's job: a gap or a duplicate is reported as
// ErrOutOfOrder, not reconciled.
type Mirror struct {
	mu    sync.Mutex
	store *vfs.Store
	seq   uint64
}

// NewMirror returns a mirror over store whose last applied op is seq
// (0 for a fresh store).
func NewMirror(store *vfs.Store, seq uint64) *Mirror {
	return &Mirror{store: store, seq: seq}
}

// Store returns the mirrored store for reading.
func (m *Mirror) Store() *vfs.Store { return m.store }

// Sequence returns the last replayed sequence number.
func (m *Mirror) Sequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Replay applies the next committed op.
func (m *Mirror) Replay(c Committed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.Seq != m.seq+1 {
		return fmt.Errorf("%w: got seq %d, want %d", ErrOutOfOrder, c.Seq, m.seq+1)
	}
	if !c.Op.Mutates() {
		return fmt.Errorf("replay seq %d: %s is not a mutation", c.Seq, c.Op.Kind())
	}
	if err := Apply(m.store, c.Op); err != nil {
		return fmt.Errorf("replay seq %d (%s): %w", c.Seq, Describe(c.Op), err)
	}
	m.seq = c.Seq
	return nil
}

// Follow replays every op read from r until EOF.
func (m *Mirror) Follow(r io.Reader) error {
	dec := NewDecoder(r)
	for {
		c, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.Replay(c); err != nil {
			return err
		}
	}
}
