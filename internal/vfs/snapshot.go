package vfs

import "github.com/agentic-research/atelier/api"

// Snapshot is an immutable point-in-time copy of a store, tagged with the
// generation it was taken at. Transform passes read snapshots, never the
// live store.
type Snapshot struct {
	Generation uint64
	store      *Store
	nodes      []Node // pre-order, captured once
}

// Snapshot copies the current tree.
func (s *Store) Snapshot(generation uint64) *Snapshot {
	c := s.Clone()
	sn := &Snapshot{Generation: generation, store: c}
	_ = c.Walk(func(n Node) error {
		sn.nodes = append(sn.nodes, n)
		return nil
	})
	return sn
}

// SnapshotOf wraps records as a snapshot.
func SnapshotOf(generation uint64, records []api.Record) (*Snapshot, error) {
	s, err := Deserialize(records)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(generation), nil
}

// Lookup returns the node at a normalized path.
func (sn *Snapshot) Lookup(p string) (Node, bool) {
	n, err := sn.store.Stat(p)
	return n, err == nil
}

// Nodes returns every entry in serialization order.
func (sn *Snapshot) Nodes() []Node {
	return append([]Node(nil), sn.nodes...)
}

// Files returns every file in serialization order.
func (sn *Snapshot) Files() []Node {
	var out []Node
	for _, n := range sn.nodes {
		if n.Kind == File {
			out = append(out, n)
		}
	}
	return out
}

// Records returns the serialized form.
func (sn *Snapshot) Records() []api.Record {
	return sn.store.Serialize()
}

// Digest returns the content digest of the snapshot.
func (sn *Snapshot) Digest() string {
	return sn.store.Digest()
}
