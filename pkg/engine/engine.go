// Package engine wires the leaf components (storage, txstatus, rct, plan,
// operator, validate) into one explicit value, replacing the original's
// process-wide singletons (spec.md §9 DESIGN NOTES: "Re-architect as one
// explicit Engine value passed by reference into all operator
// constructors").
package engine

import (
	"fmt"
	"log"
	"os"

	"github.com/gtrandb/gtrandb/pkg/config"
	"github.com/gtrandb/gtrandb/pkg/messaging"
	"github.com/gtrandb/gtrandb/pkg/operator"
	"github.com/gtrandb/gtrandb/pkg/plan"
	"github.com/gtrandb/gtrandb/pkg/rct"
	"github.com/gtrandb/gtrandb/pkg/storage"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
	"github.com/gtrandb/gtrandb/pkg/validate"
)

// Engine is the single value an embedding program constructs once and
// shares across every transaction (§9). It owns the storage engine, the
// RCT table, the status service, and the validator. Operator instances,
// ValidationOperator and TerminateOperator included, are built fresh for
// each run; the engine registers no PerTrxCleanup hooks with
// TerminateOperator, so its CleanTrxData pass does nothing.
type Engine struct {
	Storage   *storage.Storage
	Status    txstatus.Service
	RCT       *rct.Table
	Validator *validate.Validator
	Config    *config.Config
	Log       *log.Logger
}

// New constructs an Engine for worker id workerID. A nil cfg is loaded from
// the environment; a nil logger becomes an "[engine] "-prefixed logger
// writing to stderr.
func New(workerID uint32, cfg *config.Config, logger *log.Logger) *Engine {
	if cfg == nil {
		cfg = config.LoadFromEnv()
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	status := txstatus.NewMemory()
	store := storage.New(workerID, status)
	rctTable := rct.New()

	validator := validate.NewValidator(rctTable, status)
	if cfg.Isolation.Level == "snapshot" {
		validator.Isolation = validate.Snapshot
	}
	validator.OptEnabled = cfg.Isolation.EnableOptValidation
	validator.TimeoutIters = cfg.Validation.TimeoutIters
	validator.SleepInterval = cfg.Validation.SleepInterval

	return &Engine{
		Storage:   store,
		Status:    status,
		RCT:       rctTable,
		Validator: validator,
		Config:    cfg,
		Log:       logger,
	}
}

// Begin starts a new transaction, allocating a trx id and begin-ts from the
// status service.
func (e *Engine) Begin(readOnly bool) *storage.Txn {
	id := e.Status.AllocateTrxID()
	beginTS := e.Status.AllocateTimestamp()
	e.Status.UpdateStatus(id, txstatus.Processing)
	return storage.NewTxn(id, beginTS, readOnly)
}

// Run dispatches p's statements to completion against tx, using ops as the
// non-terminal operator for each statement index (the caller assembles this
// from the plan it built, since operator wiring — which Traversal direction,
// which property label — is plan-specific). Run returns nil only if the
// transaction committed, and an error if it aborted.
//
// This is a single-threaded reference dispatcher: §5's concurrency model
// (many worker threads per machine, cross-machine message delivery) is out
// of scope for an in-process engine; Run exercises the same dependency
// ordering and placeholder-splicing contract sequentially.
func (e *Engine) Run(tx *storage.Txn, p *plan.Plan, ops map[int]operator.Operator) error {
	ctx := &operator.Context{Storage: e.Storage, Txn: tx}
	var steps []validate.Step

	for !p.IsEnded() {
		ready := p.NextReady()
		if len(ready) == 0 {
			return fmt.Errorf("engine: plan deadlocked before reaching terminate statement")
		}
		for _, stmtIdx := range ready {
			if stmtIdx == p.FinalIndex() {
				if err := e.runFinal(ctx, p, steps); err != nil {
					return err
				}
				continue
			}

			op, ok := ops[stmtIdx]
			if !ok {
				return fmt.Errorf("engine: no operator wired for statement %d", stmtIdx)
			}
			stmt := p.Statement(stmtIdx)
			stepStart := len(steps)
			seenKinds := make(map[plan.OperatorKind]bool)
			for _, o := range stmt.Ops {
				steps = append(steps, validate.Step{
					Kind:      o.Kind,
					OnlyFirst: !seenKinds[o.Kind],
				})
				seenKinds[o.Kind] = true
			}

			in := messaging.NewMessage(messaging.Header{TrxID: tx.ID, QueryIdx: stmtIdx})
			out, err := op.Process(ctx, in)
			if err == nil && op.Kind() == plan.OpDrop && len(out) > 0 {
				// A vertex drop returns its connected edges as a cascade
				// message; drop those edges in the same transaction (E3).
				_, err = (&operator.DropOperator{}).Process(ctx, out[0])
			}
			if err != nil {
				p.Abort()
				e.Log.Printf("statement %d failed: %v", stmtIdx, err)
				if finalErr := e.runFinal(ctx, p, steps); finalErr != nil {
					return finalErr
				}
				return err
			}

			// Read-shaped operators (Traversal, PropertyGet) report which RCT
			// items they observed; attach them to every step this statement
			// just appended so validation's step-4 conflict check has
			// something real to intersect against (§4.8).
			if reader, ok := op.(operator.ItemReader); ok {
				items := reader.ReadItems()
				for i := stepStart; i < len(steps); i++ {
					steps[i].Items = items
				}
			}

			var values []any
			if len(out) > 0 {
				values = out[0].Values
			}
			if err := p.FillResult(stmtIdx, values); err != nil {
				e.Log.Printf("statement %d result fill aborted: %v", stmtIdx, err)
			}
		}
	}
	if e.Status.ReadStatus(tx.ID) == txstatus.Aborted {
		return fmt.Errorf("engine: transaction %d aborted", tx.ID)
	}
	return nil
}

func (e *Engine) runFinal(ctx *operator.Context, p *plan.Plan, steps []validate.Step) error {
	validationOp := &validate.ValidationOperator{Validator: e.Validator, Steps: steps}
	terminateOp := validate.NewTerminateOperator(e.Status, e.RCT, nil)

	final := p.Statement(p.FinalIndex())
	msg := messaging.NewMessage(messaging.Header{TrxID: ctx.Txn.ID, QueryIdx: p.FinalIndex()})
	if p.IsAborted() {
		msg.Header.Type = messaging.Abort
	}
	for _, op := range final.Ops {
		switch op.Kind {
		case plan.OpValidation:
			out, err := validationOp.Process(ctx, msg)
			if err != nil {
				return err
			}
			msg = out[0]
		case plan.OpTerminate:
			if _, err := terminateOp.Process(ctx, msg); err != nil {
				return err
			}
		}
	}
	return p.FillResult(p.FinalIndex(), nil)
}
