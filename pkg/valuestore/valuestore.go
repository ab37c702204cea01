// Package valuestore implements the Versioned Value Store described in the
// storage design: a slab-allocated store of fixed-size cells used to hold
// variable-length property payloads. Cells are chained when a value is
// longer than one cell, and released cells return to a sharded freelist.
package valuestore

import "sync"

// CellSize is the fixed payload size of one cell, mirroring the original
// engine's CELL_SIZE constant (see SPEC_FULL.md §9 "Hard-coded numeric
// limits").
const CellSize = 16

// shardCount controls how many independent freelists the store maintains.
// Sharding spreads write/release contention across goroutines the way the
// original engine spreads it across per-thread slabs.
const shardCount = 16

// cell is one fixed-size slab slot. next chains cells belonging to the same
// value; a next of -1 terminates the chain.
type cell struct {
	data [CellSize]byte
	used int // bytes of data actually holding payload (<= CellSize)
	next int32
}

// Offset addresses the head cell of a stored value. It is opaque to callers.
type Offset int32

const nilOffset Offset = -1

// Store is a thread-safe slab allocator shared across all properties of one
// element type (vertices or edges get independent Stores).
type Store struct {
	mu     sync.Mutex
	cells  []cell
	shards []freelist
}

type freelist struct {
	mu   sync.Mutex
	head int32
}

const noFree int32 = -1

// New creates an empty value store.
func New() *Store {
	s := &Store{shards: make([]freelist, shardCount)}
	for i := range s.shards {
		s.shards[i].head = noFree
	}
	return s
}

func (s *Store) shardFor(idx int32) *freelist {
	return &s.shards[int(idx)%shardCount]
}

// Write copies bytes into a freshly allocated (or recycled) chain of cells
// and returns the offset of the head cell. Safe for concurrent use.
func (s *Store) Write(value []byte) Offset {
	if len(value) == 0 {
		return s.allocChain(nil)
	}
	return s.allocChain(value)
}

func (s *Store) allocChain(value []byte) Offset {
	need := 1
	if len(value) > 0 {
		need = (len(value) + CellSize - 1) / CellSize
		if need == 0 {
			need = 1
		}
	}
	indices := make([]int32, need)
	for i := 0; i < need; i++ {
		indices[i] = s.allocOne()
	}
	for i, idx := range indices {
		lo := i * CellSize
		hi := lo + CellSize
		if hi > len(value) {
			hi = len(value)
		}

		s.mu.Lock()
		c := &s.cells[idx]
		n := copy(c.data[:], value[lo:hi])
		c.used = n
		if i == need-1 {
			c.next = -1
		} else {
			c.next = indices[i+1]
		}
		s.mu.Unlock()
	}
	return Offset(indices[0])
}

func (s *Store) allocOne() int32 {
	// Try every shard's freelist before growing the slab; a value's cells
	// need not all come from the same shard.
	for i := 0; i < shardCount; i++ {
		fl := &s.shards[i]
		fl.mu.Lock()
		if fl.head != noFree {
			idx := fl.head
			fl.head = s.getCell(idx).next
			fl.mu.Unlock()
			return idx
		}
		fl.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells = append(s.cells, cell{})
	return int32(len(s.cells) - 1)
}

func (s *Store) getCell(idx int32) cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[idx]
}

// Read reconstructs the bytes stored at offset.
func (s *Store) Read(off Offset) []byte {
	if off == nilOffset {
		return nil
	}
	var out []byte
	idx := int32(off)
	for idx != -1 {
		s.mu.Lock()
		c := s.cells[idx]
		s.mu.Unlock()
		out = append(out, c.data[:c.used]...)
		idx = c.next
	}
	return out
}

// Release returns every cell in the chain rooted at off to its shard
// freelist. The MVCC and storage layers never call it, so cells of
// superseded or dropped values are not reclaimed.
func (s *Store) Release(off Offset) {
	if off == nilOffset {
		return
	}
	idx := int32(off)
	for idx != -1 {
		s.mu.Lock()
		next := s.cells[idx].next
		s.cells[idx] = cell{}
		s.mu.Unlock()

		fl := s.shardFor(idx)
		fl.mu.Lock()
		s.mu.Lock()
		s.cells[idx].next = fl.head
		s.mu.Unlock()
		fl.head = idx
		fl.mu.Unlock()

		idx = next
	}
}
