// Package validate implements SPEC_FULL.md §4.8's optimistic validation:
// dependency-read resolution, a step-level conflict check against the RCT
// table, and the optimistic wait loop, plus the Validation and Terminate
// operators that drive a transaction's status to COMMITTED or ABORTED.
// Grounded on _examples/original_source/expert/validation_expert.hpp
// (`vstep_t`, `OPT_VALID_TIMEOUT_`, `OPT_VALID_SLEEP_TIME_`,
// `PrimitiveStepMap`).
package validate

import (
	"time"

	"github.com/gtrandb/gtrandb/pkg/messaging"
	"github.com/gtrandb/gtrandb/pkg/operator"
	"github.com/gtrandb/gtrandb/pkg/plan"
	"github.com/gtrandb/gtrandb/pkg/rct"
	"github.com/gtrandb/gtrandb/pkg/storage"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
)

// IsolationLevel selects whether step 4 (step-level conflict check) runs at
// all (§4.8 step 2, §6 configuration).
type IsolationLevel int

const (
	Serializable IsolationLevel = iota
	Snapshot
)

// Step is this package's replacement for the original's `vstep_t` bitfield
// (spec.md §9 flags it for redesign): one entry per operator invocation a
// transaction performed, carrying enough to intersect against
// PrimitiveStepMap and the RCT table.
type Step struct {
	Kind      plan.OperatorKind
	OnlyFirst bool // true only for the first occurrence of Kind in its statement
	Items     []rct.ItemID
}

// PrimitiveStepMap describes, for each modification primitive, which reader
// step kinds can be invalidated by a commit of that primitive (§4.8 step 4,
// §8 invariant 8). Traversal and PropertyGet are the only two read-shaped
// operator kinds, so every primitive maps to some subset of the two.
var PrimitiveStepMap = map[rct.Primitive][]plan.OperatorKind{
	rct.InsertVertex:          {plan.OpTraversal},
	rct.DropVertex:            {plan.OpTraversal, plan.OpPropertyGet},
	rct.InsertEdge:            {plan.OpTraversal},
	rct.DropEdge:              {plan.OpTraversal},
	rct.InsertVertexProperty:  {plan.OpPropertyGet},
	rct.ModifyVertexProperty:  {plan.OpPropertyGet},
	rct.DropVertexProperty:    {plan.OpPropertyGet},
	rct.InsertEdgeProperty:    {plan.OpPropertyGet},
	rct.ModifyEdgeProperty:    {plan.OpPropertyGet},
	rct.DropEdgeProperty:      {plan.OpPropertyGet},
}

func stepKindConflicts(p rct.Primitive, k plan.OperatorKind) bool {
	for _, kind := range PrimitiveStepMap[p] {
		if kind == k {
			return true
		}
	}
	return false
}

// Outcome is what Validate decided.
type Outcome int

const (
	OutcomeCommit Outcome = iota
	OutcomeAbort
)

// Validator runs §4.8 for one transaction.
type Validator struct {
	RCT            *rct.Table
	Status         txstatus.Service
	Isolation      IsolationLevel
	OptEnabled     bool // enable_opt_validation (§6): false treats VALIDATING conflicts as immediate aborts
	TimeoutIters   int
	SleepInterval  time.Duration
}

// NewValidator returns a Validator configured with the spec's defaults:
// serializable isolation, optimistic validation on, ~100µs poll interval.
func NewValidator(rctTable *rct.Table, status txstatus.Service) *Validator {
	return &Validator{
		RCT:           rctTable,
		Status:        status,
		Isolation:     Serializable,
		OptEnabled:    true,
		TimeoutIters:  50,
		SleepInterval: 100 * time.Microsecond,
	}
}

// Validate runs the full §4.8 pipeline for tx, given the steps it performed.
// It does not record tx's own writes in the RCT; TerminateOperator does that
// after the commit.
func (v *Validator) Validate(tx *storage.Txn, steps []Step) Outcome {
	if v.Isolation == Snapshot {
		return OutcomeCommit
	}

	homo := newPeerSet(tx.HomoDeps())
	hetero := newPeerSet(tx.HeteroDeps())

	// Step 3: dependency read resolution.
	for peer := range homo.ids {
		switch v.Status.ReadStatus(peer) {
		case txstatus.Aborted:
			return OutcomeAbort
		case txstatus.Committed:
			homo.drop(peer)
		case txstatus.Validating:
			// retained for step 6
		}
	}
	for peer := range hetero.ids {
		switch v.Status.ReadStatus(peer) {
		case txstatus.Committed:
			return OutcomeAbort
		case txstatus.Aborted:
			hetero.drop(peer)
		}
	}

	// Step 4: step-level conflict check.
	optimistic := newPeerSet(nil)
	for primitive := 0; primitive < int(rct.DropEdgeProperty)+1; primitive++ {
		p := rct.Primitive(primitive)
		var relevant []Step
		for _, s := range steps {
			if stepKindConflicts(p, s.Kind) {
				relevant = append(relevant, s)
			}
		}
		if len(relevant) == 0 {
			continue
		}
		peers := append(append([]uint64{}, tx.HomoDeps()...), tx.HeteroDeps()...)
		actions := v.RCT.RecentActionSet(p, peers)
		for peerTrx, items := range actions {
			if !itemsIntersect(relevant, items) {
				continue
			}
			// Step 5: optimistic resolution.
			switch v.Status.ReadStatus(peerTrx) {
			case txstatus.Committed:
				return OutcomeAbort
			case txstatus.Aborted:
				// no-op: peer's conflicting write never happened
			case txstatus.Validating:
				if v.OptEnabled {
					optimistic.add(peerTrx)
				} else {
					return OutcomeAbort
				}
			}
		}
	}

	// Step 6: optimistic wait loop.
	for iter := 0; iter < v.TimeoutIters; iter++ {
		if optimistic.len() == 0 && homo.len() == 0 {
			return OutcomeCommit
		}
		for peer := range optimistic.ids {
			switch v.Status.ReadStatus(peer) {
			case txstatus.Committed:
				return OutcomeAbort
			case txstatus.Aborted:
				optimistic.drop(peer)
			}
		}
		for peer := range homo.ids {
			switch v.Status.ReadStatus(peer) {
			case txstatus.Committed:
				homo.drop(peer)
			case txstatus.Aborted:
				return OutcomeAbort
			}
		}
		if optimistic.len() == 0 && homo.len() == 0 {
			return OutcomeCommit
		}
		time.Sleep(v.SleepInterval)
	}
	return OutcomeAbort
}

func itemsIntersect(steps []Step, items []rct.ItemID) bool {
	set := make(map[rct.ItemID]struct{}, len(items))
	for _, id := range items {
		set[id] = struct{}{}
	}
	for _, s := range steps {
		for _, id := range s.Items {
			if _, ok := set[id]; ok {
				return true
			}
		}
	}
	return false
}

type peerSet struct{ ids map[uint64]struct{} }

func newPeerSet(ids []uint64) peerSet {
	s := peerSet{ids: make(map[uint64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}
func (s peerSet) drop(id uint64) { delete(s.ids, id) }
func (s peerSet) add(id uint64)  { s.ids[id] = struct{}{} }
func (s peerSet) len() int       { return len(s.ids) }

// ValidationOperator publishes VALIDATING for one transaction, runs
// Validator.Validate, and emits either a COMMIT message carrying the commit
// timestamp or an ABORT message for TerminateOperator, which publishes the
// final COMMITTED or ABORTED status.
type ValidationOperator struct {
	Validator *Validator
	Steps     []Step
}

func (o *ValidationOperator) Kind() plan.OperatorKind { return plan.OpValidation }

func (o *ValidationOperator) Process(ctx *operator.Context, in messaging.Message) ([]messaging.Message, error) {
	o.Validator.Status.UpdateStatus(ctx.Txn.ID, txstatus.Validating)
	outcome := o.Validator.Validate(ctx.Txn, o.Steps)

	out := in
	if outcome == OutcomeCommit {
		_, commitTS := o.Validator.Status.ReadCT(ctx.Txn.ID)
		out.Header.Type = messaging.Commit
		out.Values = []any{commitTS}
	} else {
		out.Header.Type = messaging.Abort
		out.Values = nil
	}
	return []messaging.Message{out}, nil
}

// TerminateOperator implements §4.9: on ABORT it rolls back storage and
// publishes ABORTED; on COMMIT it applies the commit timestamp and
// publishes COMMITTED. It also satisfies operator.PerTrxCleanup so the
// engine can clear per-trx scratch state without a cyclic operator map
// (§9 DESIGN NOTES).
type TerminateOperator struct {
	Status       txstatus.Service
	RCT          *rct.Table
	cleanupHooks []operator.PerTrxCleanup
}

// NewTerminateOperator wires the given cleanup hooks, which CleanTrxData
// calls after every commit or abort. pkg/engine passes none.
func NewTerminateOperator(status txstatus.Service, rctTable *rct.Table, hooks []operator.PerTrxCleanup) *TerminateOperator {
	return &TerminateOperator{Status: status, RCT: rctTable, cleanupHooks: hooks}
}

func (o *TerminateOperator) Kind() plan.OperatorKind { return plan.OpTerminate }

func (o *TerminateOperator) Process(ctx *operator.Context, in messaging.Message) ([]messaging.Message, error) {
	switch in.Header.Type {
	case messaging.Abort:
		ctx.Storage.Abort(ctx.Txn)
		ctx.Txn.MarkAborted()
		o.Status.UpdateStatus(ctx.Txn.ID, txstatus.Aborted)
	case messaging.Commit:
		commitTS := uint64(0)
		if len(in.Values) == 1 {
			if ts, ok := in.Values[0].(uint64); ok {
				commitTS = ts
			}
		}
		ctx.Storage.Commit(ctx.Txn, commitTS)
		o.Status.UpdateStatus(ctx.Txn.ID, txstatus.Committed)
		for primitive, items := range ctx.Txn.ItemsByPrimitive() {
			o.RCT.Insert(primitive, ctx.Txn.ID, items)
		}
	}
	o.CleanTrxData(ctx.Txn.ID)
	return nil, nil
}

// CleanTrxData clears every registered operator's per-trx scratch state.
func (o *TerminateOperator) CleanTrxData(trxID uint64) {
	for _, hook := range o.cleanupHooks {
		hook.CleanTrxData(trxID)
	}
}
