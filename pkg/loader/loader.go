// Package loader is the in-process stand-in for the external bulk-load
// pipeline SPEC_FULL.md §6 describes ("bulk-load data is consumed from an
// external loader exposing shuffled_vertices, shuffled_out_edges,
// shuffled_in_edges iterators and a string-dictionary indexes"). It reads a
// declarative YAML graph fixture and drives storage directly, bypassing the
// statement/operator/plan pipeline entirely — a bulk load is not a client
// transaction, it is the data the first client transaction will read.
package loader

import (
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/gtrandb/gtrandb/pkg/dict"
	"github.com/gtrandb/gtrandb/pkg/engine"
	"github.com/gtrandb/gtrandb/pkg/storage"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
	"gopkg.in/yaml.v3"
)

// VertexFixture is one vertex entry in a YAML graph fixture. ID is a
// fixture-local string key used to wire edges below; it has no meaning once
// loaded (real VIds are minted by storage.ProcessAddV).
type VertexFixture struct {
	ID    string            `yaml:"id"`
	Label string            `yaml:"label"`
	Props map[string]string `yaml:"props,omitempty"`
}

// EdgeFixture is one edge entry, referencing vertices by their fixture ID.
type EdgeFixture struct {
	Src   string            `yaml:"src"`
	Dst   string            `yaml:"dst"`
	Label string            `yaml:"label"`
	Props map[string]string `yaml:"props,omitempty"`
}

// Graph is the top-level YAML document shape.
type Graph struct {
	Vertices []VertexFixture `yaml:"vertices"`
	Edges    []EdgeFixture   `yaml:"edges"`
}

// Parse decodes a YAML graph fixture from r.
func Parse(r io.Reader) (*Graph, error) {
	var g Graph
	if err := yaml.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("loader: decode fixture: %w", err)
	}
	return &g, nil
}

// ParseFile opens path and parses it as a YAML graph fixture.
func ParseFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open fixture: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// shuffle returns a copy of items permuted by a rand.Rand seeded
// deterministically from seed, mirroring the real loader's randomized
// insertion order (real bulk loaders shuffle so that load order doesn't
// correlate with shard or hotspot placement).
func shuffle[T any](items []T, seed int64) []T {
	out := make([]T, len(items))
	copy(out, items)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ShuffledVertices returns g's vertices in a deterministic pseudo-random
// order, standing in for the external loader's shuffled_vertices iterator.
func (g *Graph) ShuffledVertices(seed int64) []VertexFixture {
	return shuffle(g.Vertices, seed)
}

// ShuffledOutEdges returns g's edges ordered by a pseudo-random permutation,
// standing in for shuffled_out_edges.
func (g *Graph) ShuffledOutEdges(seed int64) []EdgeFixture {
	return shuffle(g.Edges, seed)
}

// ShuffledInEdges returns the same edge set as ShuffledOutEdges but permuted
// with a different seed, standing in for shuffled_in_edges — the original
// loader walks out-edges and in-edges as independent passes so that a
// worker populating in-edge topology doesn't see the same order as the
// out-edge pass that populated the other endpoint.
func (g *Graph) ShuffledInEdges(seed int64) []EdgeFixture {
	return shuffle(g.Edges, seed+1)
}

// Result maps a fixture vertex ID to the VId storage minted for it, so
// callers can cross-reference loaded data (e.g. in tests or a shell's
// `load` command).
type Result struct {
	Vertices map[string]storage.VId
}

// Load applies g to eng's storage in one transaction: vertices with their
// properties first (so every edge's endpoints already exist), then edges
// with their properties, committing once at the end. It does not go through eng.Run/pkg/plan —
// there is no validation pass for a bulk load, only the same
// ProcessAddV/ProcessAddE/ProcessModify* calls a query's operators would
// make, run back-to-back under a single transaction's undo log.
func Load(eng *engine.Engine, g *Graph, dictionary *dict.Dictionary, seed int64) (*Result, error) {
	tx := eng.Begin(false)
	ids := make(map[string]storage.VId, len(g.Vertices))

	for _, v := range g.ShuffledVertices(seed) {
		label := dictionary.Intern(v.Label)
		vid, err := eng.Storage.ProcessAddV(label, tx)
		if err != nil {
			eng.Storage.Abort(tx)
			eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
			return nil, fmt.Errorf("loader: add vertex %q: %w", v.ID, err)
		}
		ids[v.ID] = vid
		for key, val := range v.Props {
			pkey := dictionary.Intern(key)
			pid := storage.VPropId{VID: vid, Label: pkey}
			if err := eng.Storage.ProcessModifyVP(pid, []byte(val), tx); err != nil {
				eng.Storage.Abort(tx)
				eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
				return nil, fmt.Errorf("loader: set property %q on %q: %w", key, v.ID, err)
			}
		}
	}

	for _, e := range g.ShuffledOutEdges(seed) {
		src, ok := ids[e.Src]
		if !ok {
			eng.Storage.Abort(tx)
			eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
			return nil, fmt.Errorf("loader: edge references unknown src vertex %q", e.Src)
		}
		dst, ok := ids[e.Dst]
		if !ok {
			eng.Storage.Abort(tx)
			eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
			return nil, fmt.Errorf("loader: edge references unknown dst vertex %q", e.Dst)
		}
		label := dictionary.Intern(e.Label)
		eid := storage.EId{Src: src, Dst: dst}
		if err := eng.Storage.ProcessAddE(eid, label, true, tx); err != nil {
			eng.Storage.Abort(tx)
			eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
			return nil, fmt.Errorf("loader: add out-edge %s->%s: %w", e.Src, e.Dst, err)
		}
		if err := eng.Storage.ProcessAddE(eid, label, false, tx); err != nil {
			eng.Storage.Abort(tx)
			eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
			return nil, fmt.Errorf("loader: add in-edge %s->%s: %w", e.Src, e.Dst, err)
		}
		for key, val := range e.Props {
			pkey := dictionary.Intern(key)
			pid := storage.EPropId{EID: eid, Label: pkey}
			if err := eng.Storage.ProcessModifyEP(pid, []byte(val), tx); err != nil {
				eng.Storage.Abort(tx)
				eng.Status.UpdateStatus(tx.ID, txstatus.Aborted)
				return nil, fmt.Errorf("loader: set edge property %q on %s->%s: %w", key, e.Src, e.Dst, err)
			}
		}
	}

	commitTS := eng.Status.AllocateTimestamp()
	eng.Status.UpdateStatus(tx.ID, txstatus.Committed)
	eng.Storage.Commit(tx, commitTS)
	return &Result{Vertices: ids}, nil
}
