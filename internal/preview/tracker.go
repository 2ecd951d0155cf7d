package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStale is returned for work on a generation that is no longer the
// latest requested.
var ErrStale = errors.New("stale generation")

// Tracker is the staleness guard between transform passes and their
// consumers. Only the latest requested generation may publish, and only a
// result of that generation is ever handed out.
type Tracker struct {
	mu        sync.RWMutex
	requested uint64
	nextPass  uint64
	passes    map[uint64]context.CancelFunc // in-flight passes of requested
	latest    *Result
}

func NewTracker() *Tracker {
	return &Tracker{passes: make(map[uint64]context.CancelFunc)}
}

// Begin registers a pass over generation gen. A newer generation cancels
// every in-flight pass; passes over the same generation run side by side.
// The caller must call done when the pass ends.
func (t *Tracker) Begin(ctx context.Context, gen uint64) (pctx context.Context, done func(), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen < t.requested {
		return nil, nil, fmt.Errorf("%w: generation %d, latest requested %d", ErrStale, gen, t.requested)
	}
	if gen > t.requested {
		for id, cancel := range t.passes {
			cancel()
			delete(t.passes, id)
		}
		t.requested = gen
	}
	pctx, cancel := context.WithCancel(ctx)
	t.nextPass++
	id := t.nextPass
	t.passes[id] = cancel
	done = func() {
		t.mu.Lock()
		delete(t.passes, id)
		t.mu.Unlock()
		cancel()
	}
	return pctx, done, nil
}

// Publish records r as the result of generation gen.
func (t *Tracker) Publish(gen uint64, r Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.requested {
		return fmt.Errorf("%w: generation %d, latest requested %d", ErrStale, gen, t.requested)
	}
	r.Artifact.Generation = gen
	t.latest = &r
	return nil
}

// Latest returns the result of the latest requested generation, if it has
// been published.
func (t *Tracker) Latest() (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil || t.latest.Artifact.Generation != t.requested {
		return Result{}, false
	}
	return *t.latest, true
}

// Requested returns the latest requested generation.
func (t *Tracker) Requested() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.requested
}
