package transform

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Refs allocates opaque module references for one pass. Implementations
// must return the same reference for the same path within a pass.
type Refs interface {
	Ref(path string) string
}

// RefsFunc creates the allocator for a new pass.
type RefsFunc func() Refs

// passRefs scopes references to a fresh pass identity, so references from
// two passes never collide.
type passRefs struct {
	pass string
}

// NewPassRefs is the default allocator: "module:<pass uuid>/<path hash>".
func NewPassRefs() Refs {
	return passRefs{pass: uuid.NewString()}
}

func (r passRefs) Ref(p string) string {
	return "module:" + r.pass + "/" + pathHash(p)
}

// StableRefs derives references from the path alone. Two passes over the
// same snapshot then produce identical output.
type StableRefs struct{}

func (StableRefs) Ref(p string) string {
	return "module:" + pathHash(p)
}

func pathHash(p string) string {
	sum := blake3.Sum256([]byte(p))
	return hex.EncodeToString(sum[:8])
}
