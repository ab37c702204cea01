// Package rct implements the Recently-Committed-Transactions table
// described in SPEC_FULL.md §4.6: for each modification primitive, a map
// from committed trx id to the set of item ids it touched, consulted by
// validation's step-level conflict check.
package rct

import "sync"

// Primitive is one of the ten modification kinds named in spec.md's
// GLOSSARY: Insert/Drop/Modify crossed with Vertex/Edge/Property.
type Primitive int

const (
	InsertVertex Primitive = iota
	DropVertex
	InsertEdge
	DropEdge
	InsertVertexProperty
	ModifyVertexProperty
	DropVertexProperty
	InsertEdgeProperty
	ModifyEdgeProperty
	DropEdgeProperty
	primitiveCount
)

func (p Primitive) String() string {
	switch p {
	case InsertVertex:
		return "IV"
	case DropVertex:
		return "DV"
	case InsertEdge:
		return "IE"
	case DropEdge:
		return "DE"
	case InsertVertexProperty:
		return "IVP"
	case ModifyVertexProperty:
		return "MVP"
	case DropVertexProperty:
		return "DVP"
	case InsertEdgeProperty:
		return "IEP"
	case ModifyEdgeProperty:
		return "MEP"
	case DropEdgeProperty:
		return "DEP"
	default:
		return "UNKNOWN"
	}
}

// ItemID identifies a touched element or property: an encoded (element-id)
// for topology primitives, or (element-id, property-id) for property
// primitives. Callers (pkg/storage) are responsible for the encoding.
type ItemID uint64

// VertexItem keys a vertex-level touch. InsertVertex/DropVertex record it for
// the vertex itself; InsertEdge/DropEdge record it for the vertex whose
// topology row list the edge was appended to or dropped from (ProcessAddE/
// ProcessDropE always mutate exactly one such "owner" vertex per call). A
// traversal read records the same key for the vertex it hopped from, so both
// sides of the §4.8 step-4 check land in the same item space.
func VertexItem(vid uint32) ItemID { return ItemID(vid) }

// VPropItem keys one vertex property.
func VPropItem(vid, label uint32) ItemID {
	return ItemID(vid)<<32 | ItemID(label)
}

// EdgePropItem keys one edge property. src, dst and label don't fit 64 bits
// together, so label is folded in with a multiplicative hash rather than
// packed alongside them; this loses perfect uniqueness in exchange for a
// fixed-width key, an approximation in the same spirit as the RCT-driven
// valid() scope reduction described in DESIGN.md.
func EdgePropItem(src, dst, label uint32) ItemID {
	base := ItemID(src)<<32 | ItemID(dst)
	return base ^ (ItemID(label) * 0x9E3779B97F4A7C15)
}

type shard struct {
	mu sync.RWMutex
	m  map[uint64]map[ItemID]struct{}
}

// Table is the full per-primitive RCT, one shard per primitive so that
// inserts for IV never contend with reads of, say, MEP.
type Table struct {
	shards [primitiveCount]shard
}

// New returns an empty RCT table.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].m = make(map[uint64]map[ItemID]struct{})
	}
	return t
}

// Insert records that trxID, after committing, touched items via primitive
// p. TerminateOperator calls it once per primitive touched, after the
// commit (§4.6).
func (t *Table) Insert(p Primitive, trxID uint64, items []ItemID) {
	s := &t.shards[p]
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.m[trxID]
	if !ok {
		set = make(map[ItemID]struct{}, len(items))
		s.m[trxID] = set
	}
	for _, id := range items {
		set[id] = struct{}{}
	}
}

// RecentActionSet returns the item sets recorded for p by the given trx ids,
// skipping any that never committed an action under this primitive.
func (t *Table) RecentActionSet(p Primitive, trxIDs []uint64) map[uint64][]ItemID {
	s := &t.shards[p]
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64][]ItemID)
	for _, id := range trxIDs {
		set, ok := s.m[id]
		if !ok {
			continue
		}
		items := make([]ItemID, 0, len(set))
		for item := range set {
			items = append(items, item)
		}
		out[id] = items
	}
	return out
}

// Evict drops RCT entries for the given trx ids across every primitive. It
// does not check whether a validating trx still needs them, and no code in
// this module calls it, so entries stay in the table until a caller does.
func (t *Table) Evict(trxIDs []uint64) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, id := range trxIDs {
			delete(s.m, id)
		}
		s.mu.Unlock()
	}
}
