// Package plan implements the Execution Plan described in SPEC_FULL.md §4.7:
// a transaction modelled as a DAG of statement plans, with inter-statement
// result placeholders and a writer-barrier dependency rule. The exact
// FillResult/Abort mechanics are grounded in
// _examples/original_source/core/exec_plan.cpp (see DESIGN.md and
// SPEC_FULL.md §12).
package plan

import "fmt"

// OperatorKind names the typed operator units of §4.8/§4.9. pkg/operator
// interprets these; this package only uses Kind to drive placeholder
// injection policy and the synthetic validation/terminate tail.
type OperatorKind int

const (
	OpInit OperatorKind = iota
	OpTraversal
	OpPropertyGet
	OpPropertySet
	OpAddV
	OpAddE
	OpDrop
	OpValidation
	OpPostValidation
	OpTerminate
	OpEnd
)

func (k OperatorKind) String() string {
	names := [...]string{"INIT", "TRAVERSAL", "PROPERTY_GET", "PROPERTY_SET", "ADDV", "ADDE", "DROP", "VALIDATION", "POST_VALIDATION", "TERMINATE", "END"}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// TrxKind classifies a statement for dependency purposes. It is a bitmask,
// not an enum — spec.md §9 flags the original is_trx_update/is_trx_add
// macros for an operator-precedence bug (`a & b != 0`); the methods below
// parenthesize correctly.
type TrxKind int

const (
	TrxReadOnly TrxKind = 0
	TrxUpdate   TrxKind = 1 << 0
	TrxAdd      TrxKind = 1 << 1
	TrxDelete   TrxKind = 1 << 2
)

func (k TrxKind) IsReadOnly() bool { return k == TrxReadOnly }
func (k TrxKind) IsUpdate() bool   { return (k & TrxUpdate) != 0 }
func (k TrxKind) IsAdd() bool      { return (k & TrxAdd) != 0 }
func (k TrxKind) IsDelete() bool   { return (k & TrxDelete) != 0 }
func (k TrxKind) IsMutation() bool { return k != TrxReadOnly }

// Op is one typed operator invocation within a statement.
type Op struct {
	Kind   OperatorKind
	Params []any
}

// StatementPlan is a linear sequence of operators, ending conceptually in an
// OpEnd sentinel.
type StatementPlan struct {
	Ops  []Op
	Kind TrxKind
}

// Placeholder marks where a prior statement's result must be spliced into a
// later statement's operator parameters (§4.7).
type Placeholder struct {
	TargetStmt  int
	TargetOp    int
	TargetParam int // -1 appends
}

// ErrAbort is returned by FillResult when a result-size mismatch forces the
// transaction to abort (§4.7's "a result set of size != 1 aborts at
// placeholder resolution", E6).
var ErrAbort = fmt.Errorf("plan: result arity mismatch, aborting")

// Builder assembles a Plan one statement at a time — standing in for the
// external query-text parser's output (spec.md §1 treats parsing as an
// external function producing operator objects).
type Builder struct {
	statements   []*StatementPlan
	placeholders map[int][]Placeholder
	explicitDeps map[int][]int
}

// NewBuilder returns an empty plan builder.
func NewBuilder() *Builder {
	return &Builder{
		placeholders: make(map[int][]Placeholder),
		explicitDeps: make(map[int][]int),
	}
}

// AddStatement appends a statement and returns its index.
func (b *Builder) AddStatement(ops []Op, kind TrxKind) int {
	b.statements = append(b.statements, &StatementPlan{Ops: ops, Kind: kind})
	return len(b.statements) - 1
}

// AddPlaceholder registers that sourceStmt's result must be injected at ph,
// and that ph.TargetStmt therefore depends on sourceStmt completing first.
func (b *Builder) AddPlaceholder(sourceStmt int, ph Placeholder) {
	b.placeholders[sourceStmt] = append(b.placeholders[sourceStmt], ph)
	b.explicitDeps[ph.TargetStmt] = append(b.explicitDeps[ph.TargetStmt], sourceStmt)
}

// Build computes the writer-barrier dependency graph, appends the synthetic
// VALIDATION -> POST_VALIDATION -> TERMINATE tail (modelled, per SPEC_FULL
// §12, as three operators within one trailing statement depending on every
// earlier statement), and returns the resulting Plan.
func (b *Builder) Build(trxID, beginTS uint64) *Plan {
	n := len(b.statements)
	deps := make(map[int]int, n+1)
	topo := make(map[int][]int, n+1)

	depSources := make([][]int, n)
	lastMutation := -1
	for i, st := range b.statements {
		var sources []int
		if st.Kind.IsMutation() {
			for j := lastMutation; j < i; j++ {
				if j >= 0 {
					sources = append(sources, j)
				}
			}
			lastMutation = i
		} else if lastMutation >= 0 {
			sources = append(sources, lastMutation)
		}
		sources = append(sources, b.explicitDeps[i]...)
		depSources[i] = dedupe(sources)
	}

	for i, sources := range depSources {
		deps[i] = len(sources)
		for _, src := range sources {
			topo[src] = append(topo[src], i)
		}
	}

	final := &StatementPlan{
		Ops: []Op{
			{Kind: OpValidation},
			{Kind: OpPostValidation},
			{Kind: OpTerminate},
			{Kind: OpEnd},
		},
		Kind: TrxUpdate,
	}
	statements := append(append([]*StatementPlan{}, b.statements...), final)
	finalIdx := n
	deps[finalIdx] = n
	for i := 0; i < n; i++ {
		topo[i] = append(topo[i], finalIdx)
	}

	return &Plan{
		TrxID:        trxID,
		BeginTS:      beginTS,
		statements:   statements,
		deps:         deps,
		topo:         topo,
		placeholders: b.placeholders,
		results:      make(map[int][]any),
		dispatched:   make(map[int]bool),
		finalIdx:     finalIdx,
	}
}

func dedupe(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Plan is a built TransactionPlan (§4.7): a DAG of statement plans, ready to
// be dispatched statement-by-statement via NextReady/FillResult.
type Plan struct {
	TrxID   uint64
	BeginTS uint64

	statements   []*StatementPlan
	deps         map[int]int
	topo         map[int][]int
	placeholders map[int][]Placeholder
	results      map[int][]any
	dispatched   map[int]bool

	finalIdx int
	aborted  bool
	ended    bool
}

// Statement returns the statement plan at idx.
func (p *Plan) Statement(idx int) *StatementPlan { return p.statements[idx] }

// NumStatements returns the total statement count including the synthetic
// validation/terminate tail.
func (p *Plan) NumStatements() int { return len(p.statements) }

// FinalIndex is the index of the synthetic validation/post_validation/
// terminate statement.
func (p *Plan) FinalIndex() int { return p.finalIdx }

// NextReady returns every statement index whose dependency count has
// reached zero and which has not already been dispatched, marking them
// dispatched.
func (p *Plan) NextReady() []int {
	var out []int
	for idx, count := range p.deps {
		if count == 0 && !p.dispatched[idx] {
			p.dispatched[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

// FillResult injects values into every placeholder recorded against
// stmtIdx, decrements dependency counts on its children, and records values
// as stmtIdx's result (see Result). It returns ErrAbort (after calling Abort itself) if an
// ADDE placeholder receives a result set whose size isn't exactly one,
// matching _examples/original_source/core/exec_plan.cpp's FillResult.
func (p *Plan) FillResult(stmtIdx int, values []any) error {
	for _, ph := range p.placeholders[stmtIdx] {
		target := &p.statements[ph.TargetStmt].Ops[ph.TargetOp]
		switch target.Kind {
		case OpAddE:
			if len(values) != 1 {
				p.Abort()
				return ErrAbort
			}
			target.Params = spliceOne(target.Params, ph.TargetParam, values[0])
		default: // OpInit and everything else splice the full value range
			target.Params = splice(target.Params, ph.TargetParam, values)
		}
	}

	if !p.aborted {
		for _, child := range p.topo[stmtIdx] {
			p.deps[child]--
		}
	}
	p.results[stmtIdx] = values

	if stmtIdx == p.finalIdx {
		p.ended = true
	}
	return nil
}

func splice(params []any, at int, values []any) []any {
	if at < 0 || at > len(params) {
		return append(append([]any{}, params...), values...)
	}
	out := append([]any{}, params[:at]...)
	out = append(out, values...)
	out = append(out, params[at:]...)
	return out
}

func spliceOne(params []any, at int, value any) []any {
	if at < 0 || at >= len(params) {
		return append(append([]any{}, params...), value)
	}
	out := append([]any{}, params...)
	out[at] = value
	return out
}

// Abort replaces the remaining plan with the TERMINATE operator alone,
// stripping VALIDATION and POST_VALIDATION from the synthetic tail
// statement and making it the sole ready statement, per the mechanic in
// _examples/original_source/core/exec_plan.cpp's TrxPlan::Abort (see
// SPEC_FULL.md §12).
func (p *Plan) Abort() {
	if p.aborted {
		return
	}
	p.aborted = true
	final := p.statements[p.finalIdx]
	if len(final.Ops) >= 2 {
		final.Ops = final.Ops[2:]
	}
	p.deps = map[int]int{p.finalIdx: 0}
	p.dispatched = map[int]bool{}
}

// IsAborted reports whether Abort has been called.
func (p *Plan) IsAborted() bool { return p.aborted }

// IsEnded reports whether the terminating statement has filled its result.
func (p *Plan) IsEnded() bool { return p.ended }

// Result returns the recorded result values for stmtIdx, if any.
func (p *Plan) Result(stmtIdx int) ([]any, bool) {
	v, ok := p.results[stmtIdx]
	return v, ok
}
