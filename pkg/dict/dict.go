// Package dict is the string dictionary that assigns small integer labels
// to vertex labels, edge labels, and property keys (spec.md §3: "Labels are
// small integers assigned by the string dictionary").
package dict

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Dictionary is a thread-safe bidirectional string<->label mapping. Labels
// are assigned densely starting at 1; 0 is reserved as the tombstone/unset
// sentinel used throughout §3/§4.
type Dictionary struct {
	mu     sync.RWMutex
	toID   map[string]uint32
	toName []string // index 0 unused (reserved)
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{
		toID:   make(map[string]uint32),
		toName: []string{""},
	}
}

// Intern returns the label for name, assigning a fresh one if name is new.
func (d *Dictionary) Intern(name string) uint32 {
	d.mu.RLock()
	if id, ok := d.toID[name]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.toID[name]; ok {
		return id
	}
	id := uint32(len(d.toName))
	d.toName = append(d.toName, name)
	d.toID[name] = id
	return id
}

// Lookup returns the label already assigned to name, if any.
func (d *Dictionary) Lookup(name string) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.toID[name]
	return id, ok
}

// Name resolves a label back to its string, the empty string if unknown.
func (d *Dictionary) Name(id uint32) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.toName) {
		return ""
	}
	return d.toName[id]
}

// StableHash produces a deterministic 64-bit fingerprint of name: the first
// eight bytes of its BLAKE2b-512 digest. Unlike the dictionary's
// process-local incrementing ids it is the same across processes and runs.
func StableHash(name string) uint64 {
	sum := blake2b.Sum512([]byte(name))
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return h
}
