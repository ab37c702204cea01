package storage

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gtrandb/gtrandb/pkg/mvcc"
	"github.com/gtrandb/gtrandb/pkg/pool"
	"github.com/gtrandb/gtrandb/pkg/rct"
	"github.com/gtrandb/gtrandb/pkg/rowlist"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
	"github.com/gtrandb/gtrandb/pkg/valuestore"
)

// Storage is the Data Storage component of SPEC_FULL.md §4.4: it owns the
// vertex map plus a value store per element type, and exposes the typed
// read/write operations every operator (pkg/operator) drives.
//
// The original engine also keeps separate out-edge/in-edge maps; here both
// collapse into each Vertex's single VE topology row list, per spec.md §3's
// one ve_row_list field, with the row's Direction cell distinguishing the
// two.
type Storage struct {
	workerID uint32
	counter  atomic.Uint32

	mu       sync.RWMutex // guards vertices: writer-priority gate per §5
	vertices map[VId]*Vertex

	vpStore *valuestore.Store
	epStore *valuestore.Store

	status txstatus.Service
}

// New creates an empty Storage for the given worker id. workerID's low bits
// are folded into every VId minted by ProcessAddV for shard routing (§3).
func New(workerID uint32, status txstatus.Service) *Storage {
	return &Storage{
		workerID: workerID,
		vertices: make(map[VId]*Vertex),
		vpStore:  valuestore.New(),
		epStore:  valuestore.New(),
		status:   status,
	}
}

// workerBits is how many low bits of a VId encode the owning worker.
const workerBits = 8

func (s *Storage) mintVID() VId {
	local := s.counter.Add(1)
	return VId(local<<workerBits | (s.workerID & (1<<workerBits - 1)))
}

// LoadVertex installs a vertex at a fixed id with an initial (bulk-load)
// existence version. It is not transactional. pkg/loader does not use it;
// it loads through ProcessAddV.
func (s *Storage) LoadVertex(vid VId, label uint32) *Vertex {
	v := newVertex(label)
	v.Exists.AppendInitial(true)
	s.mu.Lock()
	s.vertices[vid] = v
	s.mu.Unlock()
	return v
}

func (s *Storage) lookup(vid VId) (*Vertex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vertices[vid]
	return v, ok
}

// CheckVertexVisibility implements the §4.4 visibility helper.
func (s *Storage) CheckVertexVisibility(vid VId, tx *Txn) (found bool, err error) {
	v, ok := s.lookup(vid)
	if !ok {
		return false, nil
	}
	canProceed, found, exists := v.Exists.VisibleVersion(tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	if !canProceed {
		return false, ErrDependencyViolation
	}
	if !found || !exists {
		return false, nil
	}
	return true, nil
}

// GetVLabel returns the (immutable) label of a visible vertex.
func (s *Storage) GetVLabel(vid VId, tx *Txn) (uint32, bool, error) {
	v, ok := s.lookup(vid)
	if !ok {
		return 0, false, nil
	}
	found, err := s.CheckVertexVisibility(vid, tx)
	if err != nil || !found {
		return 0, false, err
	}
	return v.Label, true, nil
}

// GetVP reads one vertex property.
func (s *Storage) GetVP(pid VPropId, tx *Txn) (found bool, value []byte, err error) {
	v, ok := s.lookup(pid.VID)
	if !ok {
		return false, nil, nil
	}
	vis, err := s.CheckVertexVisibility(pid.VID, tx)
	if err != nil || !vis {
		return false, nil, err
	}
	canProceed, found, off := v.VP.Read(pid.Label, tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	if !canProceed {
		return false, nil, ErrDependencyViolation
	}
	if !found {
		return false, nil, nil
	}
	return true, s.vpStore.Read(off), nil
}

// GetAllVP reads every visible property of a vertex. The returned map comes
// from pkg/pool; callers that discard the result promptly should return it
// with pool.PutPropertyMap to let the next GetAllVP/GetAllEP reuse it.
func (s *Storage) GetAllVP(vid VId, tx *Txn) ([]VPropId, map[uint32][]byte, error) {
	v, ok := s.lookup(vid)
	if !ok {
		return nil, nil, nil
	}
	vis, err := s.CheckVertexVisibility(vid, tx)
	if err != nil || !vis {
		return nil, nil, err
	}
	vals := v.VP.ReadAll(tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	ids := make([]VPropId, 0, len(vals))
	out := pool.GetPropertyMap()
	for _, pv := range vals {
		ids = append(ids, VPropId{VID: vid, Label: pv.Pkey})
		out[pv.Pkey] = s.vpStore.Read(pv.Value)
	}
	return ids, out, nil
}

// ConnectedVertex is one neighbor returned by GetConnectedVertexList.
type ConnectedVertex struct {
	VID   VId
	Label uint32
}

// GetConnectedVertexList scans a vertex's topology row list for visible
// neighbors in the given direction, optionally filtered by edge label.
func (s *Storage) GetConnectedVertexList(vid VId, dir rowlist.Direction, label uint32, tx *Txn) ([]ConnectedVertex, error) {
	v, ok := s.lookup(vid)
	if !ok {
		return nil, nil
	}
	vis, err := s.CheckVertexVisibility(vid, tx)
	if err != nil || !vis {
		return nil, err
	}
	edges := v.VE.ReadConnectedEdges(dir, label, tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	out := make([]ConnectedVertex, 0, len(edges))
	for _, e := range edges {
		out = append(out, ConnectedVertex{VID: VId(e.PeerVID), Label: e.Version.Label})
	}
	return out, nil
}

// GetConnectedEdgeList is GetConnectedVertexList's edge-identity counterpart.
func (s *Storage) GetConnectedEdgeList(vid VId, dir rowlist.Direction, label uint32, tx *Txn) ([]EId, error) {
	neighbors, err := s.GetConnectedVertexList(vid, dir, label, tx)
	if err != nil {
		return nil, err
	}
	out := make([]EId, 0, len(neighbors))
	for _, n := range neighbors {
		if dir == rowlist.Out {
			out = append(out, EId{Src: vid, Dst: n.VID})
		} else {
			out = append(out, EId{Src: n.VID, Dst: vid})
		}
	}
	return out, nil
}

// outEdgeVersion finds the out-side EdgeVersion visible for eid, needed by
// every EP accessor (§4.4: "look up visible out-edge version, then delegate
// to its ep_row_list").
func (s *Storage) outEdgeVersion(eid EId, tx *Txn) (rowlist.EdgeVersion, bool, error) {
	src, ok := s.lookup(eid.Src)
	if !ok {
		return rowlist.EdgeVersion{}, false, nil
	}
	edges := src.VE.ReadConnectedEdges(rowlist.Out, 0, tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	for _, e := range edges {
		if VId(e.PeerVID) == eid.Dst {
			return e.Version, true, nil
		}
	}
	return rowlist.EdgeVersion{}, false, nil
}

// GetELabel returns the label of a visible edge.
func (s *Storage) GetELabel(eid EId, tx *Txn) (uint32, bool, error) {
	ver, found, err := s.outEdgeVersion(eid, tx)
	if err != nil || !found {
		return 0, false, err
	}
	return ver.Label, true, nil
}

// GetEP reads one edge property; NOT_FOUND if eid has no visible EP row
// list (the in-edge side, or a tombstoned edge).
func (s *Storage) GetEP(pid EPropId, tx *Txn) (found bool, value []byte, err error) {
	ver, found, err := s.outEdgeVersion(pid.EID, tx)
	if err != nil || !found || ver.EPRowList == nil {
		return false, nil, err
	}
	canProceed, found, off := ver.EPRowList.Read(pid.Label, tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	if !canProceed {
		return false, nil, ErrDependencyViolation
	}
	if !found {
		return false, nil, nil
	}
	return true, s.epStore.Read(off), nil
}

// GetAllEP reads every visible property of an edge. See GetAllVP's doc
// comment regarding the pooled result map.
func (s *Storage) GetAllEP(eid EId, tx *Txn) ([]EPropId, map[uint32][]byte, error) {
	ver, found, err := s.outEdgeVersion(eid, tx)
	if err != nil || !found || ver.EPRowList == nil {
		return nil, nil, err
	}
	vals := ver.EPRowList.ReadAll(tx.ID, tx.BeginTS, tx.ReadOnly, s.status, tx)
	ids := make([]EPropId, 0, len(vals))
	out := pool.GetPropertyMap()
	for _, pv := range vals {
		ids = append(ids, EPropId{EID: eid, Label: pv.Pkey})
		out[pv.Pkey] = s.epStore.Read(pv.Value)
	}
	return ids, out, nil
}

// GetAllVertices scans the vertex map filtering by per-item visibility.
func (s *Storage) GetAllVertices(tx *Txn) ([]VId, error) {
	s.mu.RLock()
	ids := make([]VId, 0, len(s.vertices))
	for id := range s.vertices {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]VId, 0, len(ids))
	for _, id := range ids {
		found, err := s.CheckVertexVisibility(id, tx)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, id)
		}
	}
	return out, nil
}

// GetAllEdges scans every vertex's out-side topology for visible edges.
func (s *Storage) GetAllEdges(tx *Txn) ([]EId, error) {
	vertices, err := s.GetAllVertices(tx)
	if err != nil {
		return nil, err
	}
	var out []EId
	for _, id := range vertices {
		edges, err := s.GetConnectedEdgeList(id, rowlist.Out, 0, tx)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}

// ProcessAddV assigns a fresh VId, inserts the map entry, appends an
// uncommitted existence version, and records the undo entry with its vid so
// abort can reclaim it (§4.4).
func (s *Storage) ProcessAddV(label uint32, tx *Txn) (VId, error) {
	vid := s.mintVID()
	v := newVertex(label)

	ptr, err := v.Exists.AppendUncommitted(tx.ID)
	if err != nil {
		return 0, fmt.Errorf("process_add_v: %w", err)
	}
	*ptr = true

	s.mu.Lock()
	s.vertices[vid] = v
	s.mu.Unlock()

	tx.undo.recordVertex(rct.InsertVertex, v.Exists, vid, rct.VertexItem(uint32(vid)))
	return vid, nil
}

// ProcessDropV appends a false existence version and returns the edges that
// must be cascade-dropped by the caller (§4.4, E3).
func (s *Storage) ProcessDropV(vid VId, tx *Txn) ([]EId, error) {
	found, err := s.CheckVertexVisibility(vid, tx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvisibleInput
	}
	v, _ := s.lookup(vid)

	outEdges, err := s.GetConnectedEdgeList(vid, rowlist.Out, 0, tx)
	if err != nil {
		return nil, err
	}
	inEdges, err := s.GetConnectedEdgeList(vid, rowlist.In, 0, tx)
	if err != nil {
		return nil, err
	}

	ptr, err := v.Exists.AppendUncommitted(tx.ID)
	if err != nil {
		return nil, fmt.Errorf("process_drop_v: %w", err)
	}
	*ptr = false
	tx.undo.record(rct.DropVertex, v.Exists, rct.VertexItem(uint32(vid)))

	return append(outEdges, inEdges...), nil
}

// ProcessAddE implements one side of an edge insertion; callers invoke it
// once with isOut=true on the src-owning storage and once with isOut=false
// on the dst-owning storage (§4.4). In a single-process deployment both
// calls land on the same *Storage.
func (s *Storage) ProcessAddE(eid EId, label uint32, isOut bool, tx *Txn) error {
	if isOut {
		owner, ok := s.lookup(eid.Src)
		if !ok {
			return ErrInvisibleInput
		}
		if found, err := s.CheckVertexVisibility(eid.Src, tx); err != nil || !found {
			if err != nil {
				return err
			}
			return ErrInvisibleInput
		}
		epRowList := rowlist.NewPropertyRowList()
		list, err := owner.VE.ProcessAddEdge(rowlist.Out, uint64(eid.Dst), tx.ID, label, epRowList)
		if err != nil {
			return fmt.Errorf("process_add_e(out): %w", err)
		}
		tx.undo.record(rct.InsertEdge, list, rct.VertexItem(uint32(eid.Src)))
		return nil
	}

	owner, ok := s.lookup(eid.Dst)
	if !ok {
		return ErrInvisibleInput
	}
	if found, err := s.CheckVertexVisibility(eid.Dst, tx); err != nil || !found {
		if err != nil {
			return err
		}
		return ErrInvisibleInput
	}
	list, err := owner.VE.ProcessAddEdge(rowlist.In, uint64(eid.Src), tx.ID, label, nil)
	if err != nil {
		return fmt.Errorf("process_add_e(in): %w", err)
	}
	tx.undo.record(rct.InsertEdge, list, rct.VertexItem(uint32(eid.Dst)))
	return nil
}

// ProcessDropE appends a tombstone version on one side of an edge.
func (s *Storage) ProcessDropE(eid EId, isOut bool, tx *Txn) error {
	if isOut {
		owner, ok := s.lookup(eid.Src)
		if !ok {
			return ErrInvisibleInput
		}
		list, err := owner.VE.ProcessDropEdge(rowlist.Out, uint64(eid.Dst), tx.ID)
		if err != nil {
			return fmt.Errorf("process_drop_e(out): %w", err)
		}
		if list != nil {
			tx.undo.record(rct.DropEdge, list, rct.VertexItem(uint32(eid.Src)))
		}
		return nil
	}
	owner, ok := s.lookup(eid.Dst)
	if !ok {
		return ErrInvisibleInput
	}
	list, err := owner.VE.ProcessDropEdge(rowlist.In, uint64(eid.Src), tx.ID)
	if err != nil {
		return fmt.Errorf("process_drop_e(in): %w", err)
	}
	if list != nil {
		tx.undo.record(rct.DropEdge, list, rct.VertexItem(uint32(eid.Dst)))
	}
	return nil
}

// ProcessModifyVP creates or updates a vertex property, recording IVP/MVP in
// the undo log depending on whether the key was new (§4.4).
func (s *Storage) ProcessModifyVP(pid VPropId, value []byte, tx *Txn) error {
	v, ok := s.lookup(pid.VID)
	if !ok {
		return ErrInvisibleInput
	}
	if found, err := s.CheckVertexVisibility(pid.VID, tx); err != nil || !found {
		if err != nil {
			return err
		}
		return ErrInvisibleInput
	}
	off := s.vpStore.Write(value)
	wasExisting, list, err := v.VP.ProcessModify(pid.Label, tx.ID, off)
	if err != nil {
		return fmt.Errorf("process_modify_vp: %w", err)
	}
	item := rct.VPropItem(uint32(pid.VID), pid.Label)
	if wasExisting {
		tx.undo.record(rct.ModifyVertexProperty, list, item)
	} else {
		tx.undo.record(rct.InsertVertexProperty, list, item)
	}
	return nil
}

// ProcessModifyEP is ProcessModifyVP's edge-property counterpart.
func (s *Storage) ProcessModifyEP(pid EPropId, value []byte, tx *Txn) error {
	ver, found, err := s.outEdgeVersion(pid.EID, tx)
	if err != nil {
		return err
	}
	if !found || ver.EPRowList == nil {
		return ErrInvisibleInput
	}
	off := s.epStore.Write(value)
	wasExisting, list, err := ver.EPRowList.ProcessModify(pid.Label, tx.ID, off)
	if err != nil {
		return fmt.Errorf("process_modify_ep: %w", err)
	}
	item := rct.EdgePropItem(uint32(pid.EID.Src), uint32(pid.EID.Dst), pid.Label)
	if wasExisting {
		tx.undo.record(rct.ModifyEdgeProperty, list, item)
	} else {
		tx.undo.record(rct.InsertEdgeProperty, list, item)
	}
	return nil
}

// ProcessDropVP drops a vertex property, appending a value-less version.
func (s *Storage) ProcessDropVP(pid VPropId, tx *Txn) error {
	v, ok := s.lookup(pid.VID)
	if !ok {
		return ErrInvisibleInput
	}
	list, _, err := v.VP.ProcessDrop(pid.Label, tx.ID, tx.BeginTS, s.status)
	if err != nil {
		return fmt.Errorf("process_drop_vp: %w", err)
	}
	if list != nil {
		tx.undo.record(rct.DropVertexProperty, list, rct.VPropItem(uint32(pid.VID), pid.Label))
	}
	return nil
}

// ProcessDropEP drops an edge property.
func (s *Storage) ProcessDropEP(pid EPropId, tx *Txn) error {
	ver, found, err := s.outEdgeVersion(pid.EID, tx)
	if err != nil {
		return err
	}
	if !found || ver.EPRowList == nil {
		return ErrInvisibleInput
	}
	list, _, err := ver.EPRowList.ProcessDrop(pid.Label, tx.ID, tx.BeginTS, s.status)
	if err != nil {
		return fmt.Errorf("process_drop_ep: %w", err)
	}
	if list != nil {
		tx.undo.record(rct.DropEdgeProperty, list, rct.EdgePropItem(uint32(pid.EID.Src), uint32(pid.EID.Dst), pid.Label))
	}
	return nil
}

// Commit applies commitTS to every undo-log entry not yet committed by this
// trx, deduping by mvcc-list identity so repeated calls are idempotent (§8).
func (s *Storage) Commit(tx *Txn, commitTS uint64) {
	seen := make(map[mvcc.Versioned]struct{}, len(tx.undo.Entries))
	for _, e := range tx.undo.Entries {
		if _, done := seen[e.List]; done {
			continue
		}
		e.List.Commit(tx.ID, commitTS)
		seen[e.List] = struct{}{}
	}
}

// Abort walks the undo log in reverse so a dependent property-add is undone
// before its parent AddV, reclaiming the vertex's row lists eagerly for any
// AddV in this trx (§4.4, §7).
func (s *Storage) Abort(tx *Txn) {
	if n := len(tx.undo.Entries); n > 0 {
		log.Printf("[storage] trx %d aborting, rolling back %d undo entries", tx.ID, n)
	}
	seen := make(map[mvcc.Versioned]struct{}, len(tx.undo.Entries))
	for i := len(tx.undo.Entries) - 1; i >= 0; i-- {
		e := tx.undo.Entries[i]
		if _, done := seen[e.List]; done {
			continue
		}
		e.List.Abort(tx.ID)
		seen[e.List] = struct{}{}

		if e.Primitive == rct.InsertVertex {
			s.mu.Lock()
			if v, ok := s.vertices[e.VID]; ok {
				v.VP = rowlist.NewPropertyRowList()
				v.VE = rowlist.NewTopologyRowList()
			}
			s.mu.Unlock()
		}
	}
}
