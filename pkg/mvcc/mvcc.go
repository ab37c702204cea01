// Package mvcc implements the per-item MVCC version list described in
// SPEC_FULL.md §4.2: an append-only chain of versions tagged with
// begin_ts/end_ts, with at most one uncommitted tail at a time.
package mvcc

import (
	"errors"
	"sync"

	"github.com/gtrandb/gtrandb/pkg/txstatus"
)

// ErrWriteConflict is returned by AppendUncommitted when a different
// transaction already owns the uncommitted tail (ABORT_APPEND in §4.2/§8).
var ErrWriteConflict = errors.New("mvcc: write conflict, uncommitted tail owned by another transaction")

// EndOfTime is the open-ended end_ts used by the newest committed version
// and by append_initial.
const EndOfTime = ^uint64(0)

// Versioned is the type-erased view of a *List[T] used by the undo log
// (pkg/storage), which must hold references to MVCC lists of several
// different payload types in one ordered slice.
type Versioned interface {
	Commit(trxID, commitTS uint64)
	Abort(trxID uint64)
}

// DepKind distinguishes a homogeneous pre-read (writer plans to commit after
// the reader's begin_ts) from a heterogeneous one (writer plans to commit
// before it) per §4.2.
type DepKind int

const (
	HomoDep DepKind = iota
	HeteroDep
)

// DepRecorder receives dependency-read notifications so the reading
// transaction's validation phase (§4.8) can resolve them later.
type DepRecorder interface {
	RecordDependency(writerTrxID uint64, kind DepKind)
}

type version[T any] struct {
	beginTS uint64
	endTS   uint64
	value   T
}

type uncommitted[T any] struct {
	trxID uint64
	value T
}

// List is a typed MVCC version chain for one item (vertex existence, edge
// version, or property value reference).
type List[T any] struct {
	mu          sync.Mutex
	committed   []version[T] // ascending by beginTS; committed[len-1].endTS == EndOfTime
	uncommitted *uncommitted[T]
}

// New returns an empty version list with no versions at all — distinct from
// a list that has been through AppendInitial, used for brand-new items
// created by AddV/AddE before their first uncommitted version lands.
func New[T any]() *List[T] {
	return &List[T]{}
}

// AppendInitial installs the sole initial version of a bulk-loaded item. It
// is only legal to call once, before any transactional access.
func (l *List[T]) AppendInitial(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.committed) != 0 || l.uncommitted != nil {
		panic("mvcc: AppendInitial called on a non-empty list")
	}
	l.committed = append(l.committed, version[T]{beginTS: 0, endTS: EndOfTime, value: value})
}

// AppendUncommitted opens a new uncommitted tail owned by trxID, or returns
// the existing slot if trxID already owns the tail (self re-entrancy, e.g. a
// second property write by the same transaction). Returns ErrWriteConflict
// if a different transaction owns the tail.
func (l *List[T]) AppendUncommitted(trxID uint64) (*T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uncommitted != nil {
		if l.uncommitted.trxID == trxID {
			return &l.uncommitted.value, nil
		}
		return nil, ErrWriteConflict
	}
	l.uncommitted = &uncommitted[T]{trxID: trxID}
	return &l.uncommitted.value, nil
}

// Commit converts the uncommitted tail owned by trxID into a committed
// version with begin_ts = commitTS, patching the previous tail's end_ts. A
// call for a trx that does not own the tail is a no-op, making repeated
// commit calls from the storage-layer dedupe set idempotent (§8).
func (l *List[T]) Commit(trxID uint64, commitTS uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uncommitted == nil || l.uncommitted.trxID != trxID {
		return
	}
	if n := len(l.committed); n > 0 {
		l.committed[n-1].endTS = commitTS
	}
	l.committed = append(l.committed, version[T]{
		beginTS: commitTS,
		endTS:   EndOfTime,
		value:   l.uncommitted.value,
	})
	l.uncommitted = nil
}

// Abort removes the uncommitted tail owned by trxID. A call for a trx that
// does not own the tail is a no-op.
func (l *List[T]) Abort(trxID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uncommitted == nil || l.uncommitted.trxID != trxID {
		return
	}
	l.uncommitted = nil
}

// HasUncommittedOwner reports whether an uncommitted tail exists and, if so,
// which transaction owns it.
func (l *List[T]) HasUncommittedOwner() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uncommitted == nil {
		return 0, false
	}
	return l.uncommitted.trxID, true
}

func (l *List[T]) findCommitted(beginTS uint64) (T, bool) {
	var zero T
	// Linear scan from the newest version backwards; row/version chains in
	// this engine are short (a handful of property rewrites at most), so
	// this trades away binary search for simplicity, matching the
	// original's simple forward walk.
	for i := len(l.committed) - 1; i >= 0; i-- {
		v := l.committed[i]
		if v.beginTS <= beginTS && beginTS < v.endTS {
			return v.value, true
		}
	}
	return zero, false
}

// VisibleVersion implements §4.2's visible_version. trxID/beginTS identify
// the reading transaction; readOnly selects the read-only resolution branch.
// status resolves the uncommitted tail owner's tentative commit timestamp.
// dep, if non-nil, receives any recorded dependency.
//
// Returns (canProceed, found, value). canProceed is false only when a
// writing transaction must abort because its read observed a writer
// committing in its future (§4.2's "if the reader is a writer ... abort").
func (l *List[T]) VisibleVersion(trxID, beginTS uint64, readOnly bool, status txstatus.Service, dep DepRecorder) (canProceed bool, found bool, value T) {
	l.mu.Lock()
	uncommitted := l.uncommitted
	committedVal, committedFound := l.findCommitted(beginTS)
	l.mu.Unlock()

	if uncommitted == nil {
		return true, committedFound, committedVal
	}
	if uncommitted.trxID == trxID {
		return true, true, uncommitted.value
	}

	st, ctW := txstatus.Processing, uint64(0)
	if status != nil {
		st, ctW = status.ReadCT(uncommitted.trxID)
	}

	switch st {
	case txstatus.Aborted:
		return true, committedFound, committedVal
	case txstatus.Committed:
		// The writer already committed but this list has not yet observed
		// Commit() (a narrow race between status publication and the
		// owning transaction's own mvcc.Commit call). Treat the tail as if
		// visible at ctW, the safest approximation of the now-committed
		// value.
		if ctW <= beginTS {
			return true, true, uncommitted.value
		}
		return true, committedFound, committedVal
	case txstatus.Validating:
		if readOnly {
			if ctW > beginTS {
				if dep != nil {
					dep.RecordDependency(uncommitted.trxID, HomoDep)
				}
				return true, committedFound, committedVal
			}
			if dep != nil {
				dep.RecordDependency(uncommitted.trxID, HeteroDep)
			}
			return true, true, uncommitted.value
		}
		if ctW > beginTS {
			return false, false, committedVal
		}
		if dep != nil {
			dep.RecordDependency(uncommitted.trxID, HeteroDep)
		}
		return true, true, uncommitted.value
	default: // Processing: writer has not yet published a tentative commit_ts
		return true, committedFound, committedVal
	}
}
