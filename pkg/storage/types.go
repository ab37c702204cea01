// Package storage implements the Data Storage component of SPEC_FULL.md
// §4.4: a vertex map whose vertices carry their own edge topology, typed
// read/write operations, and the per-transaction undo log that drives commit
// and abort.
package storage

import (
	"errors"

	"github.com/gtrandb/gtrandb/pkg/mvcc"
	"github.com/gtrandb/gtrandb/pkg/rowlist"
)

// VId is a 32-bit locally unique vertex id; the low bits encode the owning
// worker for shard routing (§3).
type VId uint32

// EId identifies an edge by its endpoints.
type EId struct {
	Src VId
	Dst VId
}

// VPropId identifies one vertex property.
type VPropId struct {
	VID   VId
	Label uint32
}

// EPropId identifies one edge property.
type EPropId struct {
	EID   EId
	Label uint32
}

// Error kinds per SPEC_FULL.md §10.2 / spec.md §7.
var (
	ErrNotFound            = errors.New("storage: not found")
	ErrWriteConflict       = errors.New("storage: write conflict")
	ErrInvisibleInput      = errors.New("storage: anchor element not visible")
	ErrValidationConflict  = errors.New("storage: validation conflict")
	ErrDependencyViolation = errors.New("storage: dependency violation")
	ErrProtocolError       = errors.New("storage: protocol error")
)

// Vertex is one vertex map slot. It is allocated once (on load or AddV) and
// never removed; its Exists chain alone determines visibility (§3).
type Vertex struct {
	Label  uint32
	VP     *rowlist.PropertyRowList
	VE     *rowlist.TopologyRowList
	Exists *mvcc.List[bool]
}

func newVertex(label uint32) *Vertex {
	return &Vertex{
		Label:  label,
		VP:     rowlist.NewPropertyRowList(),
		VE:     rowlist.NewTopologyRowList(),
		Exists: mvcc.New[bool](),
	}
}
