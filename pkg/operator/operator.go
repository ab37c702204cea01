// Package operator implements the typed dataflow units of SPEC_FULL.md
// §4.8/§4.9: each consumes a batch of inter-worker messages and drives the
// corresponding pkg/storage method, recording undo-log entries on tx as a
// side effect. The dispatch-by-operator-kind shape is the same one the
// teacher's Cypher evaluator uses for its clause dispatch (see DESIGN.md);
// the per-id loop bodies are grounded on
// _examples/original_source/expert/{add_vertex,add_edge,drop,property}_expert.hpp.
package operator

import (
	"fmt"

	"github.com/gtrandb/gtrandb/pkg/messaging"
	"github.com/gtrandb/gtrandb/pkg/plan"
	"github.com/gtrandb/gtrandb/pkg/rct"
	"github.com/gtrandb/gtrandb/pkg/rowlist"
	"github.com/gtrandb/gtrandb/pkg/storage"
)

// Context bundles the per-message state an operator needs: the storage
// engine and the transaction it is acting on behalf of.
type Context struct {
	Storage *storage.Storage
	Txn     *storage.Txn
}

// Operator is one typed unit of §4.8/§4.9.
type Operator interface {
	Kind() plan.OperatorKind
	Process(ctx *Context, in messaging.Message) ([]messaging.Message, error)
}

// PerTrxCleanup is the capability every operator exposes so the engine can
// iterate a flat slice of cleanup hooks at commit/abort time instead of a
// cyclic operator-kind -> operator-instance map (§9 DESIGN NOTES).
type PerTrxCleanup interface {
	CleanTrxData(trxID uint64)
}

// ItemReader is implemented by read-shaped operators (Traversal,
// PropertyGet) to report which rct.ItemIDs their last Process call observed,
// so the engine can attach them to the validate.Step it records for that
// statement (§4.8 step 4's step-level conflict check).
type ItemReader interface {
	ReadItems() []rct.ItemID
}

func asVIDs(values []any) []storage.VId {
	out := make([]storage.VId, 0, len(values))
	for _, v := range values {
		if vid, ok := v.(storage.VId); ok {
			out = append(out, vid)
		}
	}
	return out
}

func reply(in messaging.Message, values ...any) messaging.Message {
	return messaging.Message{Header: in.Header, History: in.History, Values: values}
}

// TraversalOperator implements g.V()/g.V(ids).out()/.in() style steps: it
// reads the current message's vertex ids, optionally follows one hop of
// topology, and emits the resulting ids.
type TraversalOperator struct {
	Dir   rowlist.Direction
	Label uint32
	// Seed, when true, ignores in.Values and scans every vertex (g.V()).
	Seed bool

	lastItems []rct.ItemID
}

func (o *TraversalOperator) Kind() plan.OperatorKind { return plan.OpTraversal }

// ReadItems reports the anchor vertices the last Process call hopped from.
// A seed scan (g.V()) has no single anchor to key on, so it reports none —
// a full-graph read can only be invalidated by tracking every vertex ever
// inserted or dropped, which this table doesn't attempt.
func (o *TraversalOperator) ReadItems() []rct.ItemID { return o.lastItems }

func (o *TraversalOperator) Process(ctx *Context, in messaging.Message) ([]messaging.Message, error) {
	o.lastItems = nil
	if o.Seed {
		ids, err := ctx.Storage.GetAllVertices(ctx.Txn)
		if err != nil {
			return nil, fmt.Errorf("traversal(seed): %w", err)
		}
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return []messaging.Message{reply(in, out...)}, nil
	}

	var out []any
	for _, vid := range asVIDs(in.Values) {
		o.lastItems = append(o.lastItems, rct.VertexItem(uint32(vid)))
		neighbors, err := ctx.Storage.GetConnectedVertexList(vid, o.Dir, o.Label, ctx.Txn)
		if err != nil {
			return nil, fmt.Errorf("traversal: %w", err)
		}
		for _, n := range neighbors {
			out = append(out, n.VID)
		}
	}
	return []messaging.Message{reply(in, out...)}, nil
}

// PropertyGetOperator implements .values(key)/.valueMap() reads.
type PropertyGetOperator struct {
	Label uint32 // 0 means "all properties"

	lastItems []rct.ItemID
}

func (o *PropertyGetOperator) Kind() plan.OperatorKind { return plan.OpPropertyGet }

// ReadItems reports both the vertex(es) read and the specific properties
// read from them: the bare vertex key lets a DropVertex conflict even
// without property-granular overlap, the per-label key lets a
// ModifyVertexProperty conflict precisely (§4.8 step 4).
func (o *PropertyGetOperator) ReadItems() []rct.ItemID { return o.lastItems }

func (o *PropertyGetOperator) Process(ctx *Context, in messaging.Message) ([]messaging.Message, error) {
	o.lastItems = nil
	var out []any
	for _, vid := range asVIDs(in.Values) {
		o.lastItems = append(o.lastItems, rct.VertexItem(uint32(vid)))
		if o.Label == 0 {
			ids, props, err := ctx.Storage.GetAllVP(vid, ctx.Txn)
			if err != nil {
				return nil, fmt.Errorf("property_get(all): %w", err)
			}
			for _, pid := range ids {
				o.lastItems = append(o.lastItems, rct.VPropItem(uint32(vid), pid.Label))
			}
			out = append(out, props)
			continue
		}
		o.lastItems = append(o.lastItems, rct.VPropItem(uint32(vid), o.Label))
		found, value, err := ctx.Storage.GetVP(storage.VPropId{VID: vid, Label: o.Label}, ctx.Txn)
		if err != nil {
			return nil, fmt.Errorf("property_get: %w", err)
		}
		if found {
			out = append(out, value)
		}
	}
	return []messaging.Message{reply(in, out...)}, nil
}

// PropertySetOperator implements .property(key, value) mutations.
type PropertySetOperator struct {
	Label uint32
	Value []byte
}

func (o *PropertySetOperator) Kind() plan.OperatorKind { return plan.OpPropertySet }

func (o *PropertySetOperator) Process(ctx *Context, in messaging.Message) ([]messaging.Message, error) {
	for _, vid := range asVIDs(in.Values) {
		if err := ctx.Storage.ProcessModifyVP(storage.VPropId{VID: vid, Label: o.Label}, o.Value, ctx.Txn); err != nil {
			return nil, fmt.Errorf("property_set: %w", err)
		}
	}
	return []messaging.Message{reply(in, in.Values...)}, nil
}

// AddVOperator implements g.addV(label): one ProcessAddV call per message,
// grounded on add_vertex_expert.hpp's per-id loop.
type AddVOperator struct {
	Label uint32
}

func (o *AddVOperator) Kind() plan.OperatorKind { return plan.OpAddV }

func (o *AddVOperator) Process(ctx *Context, in messaging.Message) ([]messaging.Message, error) {
	vid, err := ctx.Storage.ProcessAddV(o.Label, ctx.Txn)
	if err != nil {
		return nil, fmt.Errorf("add_v: %w", err)
	}
	return []messaging.Message{reply(in, vid)}, nil
}

// AddEOperator implements g.addE(label).from(x).to(y). It reads src and dst
// from the incoming message's Values[0] and Values[1], and fails unless
// there are exactly two vertex-id values.
type AddEOperator struct {
	Label uint32
}

func (o *AddEOperator) Kind() plan.OperatorKind { return plan.OpAddE }

func (o *AddEOperator) Process(ctx *Context, in messaging.Message) ([]messaging.Message, error) {
	if len(in.Values) != 2 {
		return nil, fmt.Errorf("add_e: expected exactly one src and one dst value, got %d", len(in.Values))
	}
	src, ok1 := in.Values[0].(storage.VId)
	dst, ok2 := in.Values[1].(storage.VId)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("add_e: values are not vertex ids")
	}
	eid := storage.EId{Src: src, Dst: dst}
	if err := ctx.Storage.ProcessAddE(eid, o.Label, true, ctx.Txn); err != nil {
		return nil, fmt.Errorf("add_e(out): %w", err)
	}
	if err := ctx.Storage.ProcessAddE(eid, o.Label, false, ctx.Txn); err != nil {
		return nil, fmt.Errorf("add_e(in): %w", err)
	}
	return []messaging.Message{reply(in, eid)}, nil
}

// DropOperator implements .drop() for both vertices and edges. Dropping a
// vertex cascades: it collects connected edges and emits drop-edge messages
// for the caller (engine) to dispatch, per §4.4 E3.
type DropOperator struct{}

func (o *DropOperator) Kind() plan.OperatorKind { return plan.OpDrop }

func (o *DropOperator) Process(ctx *Context, in messaging.Message) ([]messaging.Message, error) {
	var cascade []any
	for _, v := range in.Values {
		switch id := v.(type) {
		case storage.VId:
			edges, err := ctx.Storage.ProcessDropV(id, ctx.Txn)
			if err != nil {
				return nil, fmt.Errorf("drop(v): %w", err)
			}
			for _, e := range edges {
				cascade = append(cascade, e)
			}
		case storage.EId:
			if err := ctx.Storage.ProcessDropE(id, true, ctx.Txn); err != nil {
				return nil, fmt.Errorf("drop(e,out): %w", err)
			}
			if err := ctx.Storage.ProcessDropE(id, false, ctx.Txn); err != nil {
				return nil, fmt.Errorf("drop(e,in): %w", err)
			}
		}
	}
	if len(cascade) == 0 {
		return nil, nil
	}
	cascadeMsg := in
	cascadeMsg.Header.Type = messaging.Feed
	return []messaging.Message{reply(cascadeMsg, cascade...)}, nil
}
