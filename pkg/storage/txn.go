package storage

import (
	"github.com/gtrandb/gtrandb/pkg/mvcc"
	"github.com/gtrandb/gtrandb/pkg/rct"
)

// UndoEntry records one mutation so Storage.Commit/Abort can replay it.
// List is kept as mvcc.Versioned rather than a concrete *mvcc.List[T] so a
// single undo log can hold entries for Exists (bool), property values
// (valuestore.Offset) and edge versions (rowlist.EdgeVersion) uniformly —
// the stable-index indirection spec.md §9 asks for ("replace raw pointers
// to MVCC nodes ... detection of accidental use-after-free is automatic")
// is satisfied here by Go's GC-managed pointers plus the dedupe set in
// Storage.Commit and Storage.Abort.
type UndoEntry struct {
	Primitive rct.Primitive
	List      mvcc.Versioned
	VID       VId        // set only for InsertVertex entries, for AddV rollback
	Item      rct.ItemID // the RCT item this mutation touched (§4.6)
}

// UndoLog is the ordered per-transaction modification history, mirroring
// the original engine's TrxProcessHistory (see DESIGN.md).
type UndoLog struct {
	Entries []UndoEntry
	VidOf   map[mvcc.Versioned]VId // mirrors mvcclist_to_vid_map
}

func newUndoLog() *UndoLog {
	return &UndoLog{VidOf: make(map[mvcc.Versioned]VId)}
}

func (u *UndoLog) record(p rct.Primitive, list mvcc.Versioned, item rct.ItemID) {
	u.Entries = append(u.Entries, UndoEntry{Primitive: p, List: list, Item: item})
}

func (u *UndoLog) recordVertex(p rct.Primitive, list mvcc.Versioned, vid VId, item rct.ItemID) {
	u.Entries = append(u.Entries, UndoEntry{Primitive: p, List: list, VID: vid, Item: item})
	u.VidOf[list] = vid
}

// Txn bundles the per-transaction state every Storage operation needs:
// identity, snapshot time, read-only mode, the undo log, and the
// dependency-read sets recorded during visibility checks (§4.2). It plays
// the same buffering role as the teacher's storage.Transaction, but buffers
// an MVCC undo log instead of a pending-writes map, since every mutation
// here is applied immediately as an uncommitted version rather than staged.
type Txn struct {
	ID       uint64
	BeginTS  uint64
	ReadOnly bool

	undo       *UndoLog
	homoDeps   map[uint64]struct{}
	heteroDeps map[uint64]struct{}
	aborted    bool
}

// NewTxn creates transaction-scoped state for one trx id/begin-ts pair.
func NewTxn(id, beginTS uint64, readOnly bool) *Txn {
	return &Txn{
		ID:         id,
		BeginTS:    beginTS,
		ReadOnly:   readOnly,
		undo:       newUndoLog(),
		homoDeps:   make(map[uint64]struct{}),
		heteroDeps: make(map[uint64]struct{}),
	}
}

// RecordDependency implements mvcc.DepRecorder, publishing homo/hetero
// pre-read dependencies for later resolution in validation (§4.8 step 3).
func (t *Txn) RecordDependency(writerTrxID uint64, kind mvcc.DepKind) {
	switch kind {
	case mvcc.HomoDep:
		t.homoDeps[writerTrxID] = struct{}{}
	case mvcc.HeteroDep:
		t.heteroDeps[writerTrxID] = struct{}{}
	}
}

// HomoDeps returns the set of transactions this trx read an older committed
// version of, while a younger uncommitted write from them was pending.
func (t *Txn) HomoDeps() []uint64 { return keys(t.homoDeps) }

// HeteroDeps returns the set of transactions whose uncommitted (presumed
// past-committing) value this trx read.
func (t *Txn) HeteroDeps() []uint64 { return keys(t.heteroDeps) }

func keys(m map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ItemsByPrimitive groups this transaction's touched RCT items by the
// primitive that touched them, one call's worth per committing transaction,
// for TerminateOperator's post-commit RCT.Insert pass (§4.6).
func (t *Txn) ItemsByPrimitive() map[rct.Primitive][]rct.ItemID {
	out := make(map[rct.Primitive][]rct.ItemID)
	for _, e := range t.undo.Entries {
		out[e.Primitive] = append(out[e.Primitive], e.Item)
	}
	return out
}

// MarkAborted flags this trx as aborted; IsAborted reports the flag.
// Storage operations do not consult it, so a call made after the abort
// still runs.
func (t *Txn) MarkAborted() { t.aborted = true }

// IsAborted reports whether this trx has already been marked aborted.
func (t *Txn) IsAborted() bool { return t.aborted }
