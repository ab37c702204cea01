// Package rowlist implements the Property Row List and Topology Row List
// described in SPEC_FULL.md §4.3: arena-backed chains of fixed-capacity rows
// whose cells hold MVCC version lists.
package rowlist

import (
	"sync"

	"github.com/gtrandb/gtrandb/pkg/mvcc"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
	"github.com/gtrandb/gtrandb/pkg/valuestore"
)

// RowCapacity is the number of cells per arena row, matching the teacher's
// "VP_ROW/EP_ROW" style fixed segment size referenced in spec.md §9.
const RowCapacity = 16

// tombstone is the offset stored by ProcessDrop. It is never a real cell
// index, so a dropped property cannot be confused with a stored value.
const tombstone valuestore.Offset = -1

// PropertyCell holds one property slot: its label key and the MVCC chain of
// value-store offsets recorded for it.
type PropertyCell struct {
	used     bool
	Pkey     uint32
	Versions *mvcc.List[valuestore.Offset]
}

// PropertyRowList is the property row list for one vertex or one out-edge.
// Cells are never removed; a dropped property becomes a tombstone version
// (an empty payload) on its existing cell.
type PropertyRowList struct {
	mu   sync.RWMutex
	rows [][]PropertyCell
}

// NewPropertyRowList returns an empty property row list.
func NewPropertyRowList() *PropertyRowList {
	return &PropertyRowList{}
}

func (p *PropertyRowList) findLocked(pkey uint32) *PropertyCell {
	for r := range p.rows {
		row := p.rows[r]
		for c := range row {
			if row[c].used && row[c].Pkey == pkey {
				return &p.rows[r][c]
			}
		}
	}
	return nil
}

func (p *PropertyRowList) allocLocked(pkey uint32) *PropertyCell {
	for r := range p.rows {
		row := p.rows[r]
		for c := range row {
			if !row[c].used {
				p.rows[r][c] = PropertyCell{used: true, Pkey: pkey, Versions: mvcc.New[valuestore.Offset]()}
				return &p.rows[r][c]
			}
		}
	}
	p.rows = append(p.rows, make([]PropertyCell, RowCapacity))
	last := len(p.rows) - 1
	p.rows[last][0] = PropertyCell{used: true, Pkey: pkey, Versions: mvcc.New[valuestore.Offset]()}
	return &p.rows[last][0]
}

// InsertInitial installs a bulk-loaded property value, legal only once per
// key before any transactional access.
func (p *PropertyRowList) InsertInitial(pkey uint32, value valuestore.Offset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cell := p.allocLocked(pkey)
	cell.Versions.AppendInitial(value)
}

// Read returns the value visible to (trxID, beginTS) for one property key.
func (p *PropertyRowList) Read(pkey uint32, trxID, beginTS uint64, readOnly bool, status txstatus.Service, dep mvcc.DepRecorder) (canProceed, found bool, value valuestore.Offset) {
	p.mu.RLock()
	cell := p.findLocked(pkey)
	p.mu.RUnlock()
	if cell == nil {
		return true, false, 0
	}
	canProceed, found, value = cell.Versions.VisibleVersion(trxID, beginTS, readOnly, status, dep)
	if found && value == tombstone {
		return canProceed, false, 0
	}
	return canProceed, found, value
}

// PropertyValue pairs a property key with the payload visible at a read.
type PropertyValue struct {
	Pkey  uint32
	Value valuestore.Offset
}

// ReadAll returns every visible property on this row list.
func (p *PropertyRowList) ReadAll(trxID, beginTS uint64, readOnly bool, status txstatus.Service, dep mvcc.DepRecorder) []PropertyValue {
	p.mu.RLock()
	cells := p.snapshotLocked()
	p.mu.RUnlock()

	out := make([]PropertyValue, 0, len(cells))
	for _, cell := range cells {
		_, found, val := cell.Versions.VisibleVersion(trxID, beginTS, readOnly, status, dep)
		if found && val != tombstone {
			out = append(out, PropertyValue{Pkey: cell.Pkey, Value: val})
		}
	}
	return out
}

// ReadByPkeyList reads a specific subset of property keys.
func (p *PropertyRowList) ReadByPkeyList(pkeys []uint32, trxID, beginTS uint64, readOnly bool, status txstatus.Service, dep mvcc.DepRecorder) []PropertyValue {
	out := make([]PropertyValue, 0, len(pkeys))
	for _, pkey := range pkeys {
		_, found, val := p.Read(pkey, trxID, beginTS, readOnly, status, dep)
		if found {
			out = append(out, PropertyValue{Pkey: pkey, Value: val})
		}
	}
	return out
}

// ReadPkeyList returns the set of property keys currently present (ignoring
// visibility, matching the original's cheap "pkey list" helper used for
// planning has()-step pruning).
func (p *PropertyRowList) ReadPkeyList() []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []uint32
	for _, row := range p.rows {
		for _, cell := range row {
			if cell.used {
				out = append(out, cell.Pkey)
			}
		}
	}
	return out
}

func (p *PropertyRowList) snapshotLocked() []PropertyCell {
	var out []PropertyCell
	for _, row := range p.rows {
		for _, cell := range row {
			if cell.used {
				out = append(out, cell)
			}
		}
	}
	return out
}

// ProcessModify appends a new version for pkey, creating the cell if the key
// is new. wasExisting tells the caller (pkg/storage) which undo-log primitive
// to record (IVP vs MVP/MEP per §4.4).
func (p *PropertyRowList) ProcessModify(pkey uint32, trxID uint64, value valuestore.Offset) (wasExisting bool, list *mvcc.List[valuestore.Offset], err error) {
	p.mu.Lock()
	cell := p.findLocked(pkey)
	wasExisting = cell != nil
	if cell == nil {
		cell = p.allocLocked(pkey)
	}
	p.mu.Unlock()

	ptr, err := cell.Versions.AppendUncommitted(trxID)
	if err != nil {
		return wasExisting, nil, err
	}
	*ptr = value
	return wasExisting, cell.Versions, nil
}

// ProcessDrop appends a value-less tombstone version for pkey. oldValue is
// the value visible immediately before the drop, for callers (§8's
// round-trip property) that need to report it.
func (p *PropertyRowList) ProcessDrop(pkey uint32, trxID, beginTS uint64, status txstatus.Service) (list *mvcc.List[valuestore.Offset], oldValue valuestore.Offset, err error) {
	p.mu.Lock()
	cell := p.findLocked(pkey)
	p.mu.Unlock()
	if cell == nil {
		return nil, 0, nil
	}
	_, found, old := cell.Versions.VisibleVersion(trxID, beginTS, false, status, nil)
	if found && old != tombstone {
		oldValue = old
	}
	ptr, err := cell.Versions.AppendUncommitted(trxID)
	if err != nil {
		return nil, oldValue, err
	}
	*ptr = tombstone
	return cell.Versions, oldValue, nil
}

// --- Topology row list -----------------------------------------------------

// Direction is which side of an edge a topology cell represents.
type Direction int

const (
	Out Direction = iota
	In
)

// EdgeVersion is the versioned payload of one edge from one endpoint's
// perspective. Label == 0 signals a tombstone (§3). EPRowList is nil on the
// in-edge side, since properties live only on the out-side (§3).
type EdgeVersion struct {
	Label     uint32
	EPRowList *PropertyRowList
}

type topologyCell struct {
	used      bool
	Direction Direction
	PeerVID   uint32
	Versions  *mvcc.List[EdgeVersion]
}

// TopologyRowList is the set of edges (both directions) attached to one
// vertex.
type TopologyRowList struct {
	mu   sync.RWMutex
	rows [][]topologyCell
}

// NewTopologyRowList returns an empty topology row list.
func NewTopologyRowList() *TopologyRowList {
	return &TopologyRowList{}
}

func (t *TopologyRowList) findLocked(dir Direction, peer uint32) *topologyCell {
	for r := range t.rows {
		row := t.rows[r]
		for c := range row {
			if row[c].used && row[c].Direction == dir && row[c].PeerVID == peer {
				return &t.rows[r][c]
			}
		}
	}
	return nil
}

func (t *TopologyRowList) allocLocked(dir Direction, peer uint32) *topologyCell {
	for r := range t.rows {
		row := t.rows[r]
		for c := range row {
			if !row[c].used {
				t.rows[r][c] = topologyCell{used: true, Direction: dir, PeerVID: peer, Versions: mvcc.New[EdgeVersion]()}
				return &t.rows[r][c]
			}
		}
	}
	t.rows = append(t.rows, make([]topologyCell, RowCapacity))
	last := len(t.rows) - 1
	t.rows[last][0] = topologyCell{used: true, Direction: dir, PeerVID: peer, Versions: mvcc.New[EdgeVersion]()}
	return &t.rows[last][0]
}

// ProcessAddEdge appends a new cell (or reopens a tombstoned one) for
// (dir, peer) and appends an uncommitted version carrying label/epRowList.
func (t *TopologyRowList) ProcessAddEdge(dir Direction, peer, trxID uint64, label uint32, epRowList *PropertyRowList) (*mvcc.List[EdgeVersion], error) {
	t.mu.Lock()
	cell := t.findLocked(dir, uint32(peer))
	if cell == nil {
		cell = t.allocLocked(dir, uint32(peer))
	}
	t.mu.Unlock()

	ptr, err := cell.Versions.AppendUncommitted(trxID)
	if err != nil {
		return nil, err
	}
	*ptr = EdgeVersion{Label: label, EPRowList: epRowList}
	return cell.Versions, nil
}

// ProcessDropEdge appends a tombstone version (Label=0) for (dir, peer).
func (t *TopologyRowList) ProcessDropEdge(dir Direction, peer, trxID uint64) (*mvcc.List[EdgeVersion], error) {
	t.mu.Lock()
	cell := t.findLocked(dir, uint32(peer))
	t.mu.Unlock()
	if cell == nil {
		return nil, nil
	}
	ptr, err := cell.Versions.AppendUncommitted(trxID)
	if err != nil {
		return nil, err
	}
	*ptr = EdgeVersion{Label: 0, EPRowList: nil}
	return cell.Versions, nil
}

// ConnectedEdge is one visible edge returned by ReadConnectedEdges.
type ConnectedEdge struct {
	PeerVID uint64
	Version EdgeVersion
}

// ReadConnectedEdges scans rows for the given direction, filtering by
// visibility and, if label != 0, by label.
func (t *TopologyRowList) ReadConnectedEdges(dir Direction, label uint32, trxID, beginTS uint64, readOnly bool, status txstatus.Service, dep mvcc.DepRecorder) []ConnectedEdge {
	t.mu.RLock()
	var cells []topologyCell
	for _, row := range t.rows {
		for _, cell := range row {
			if cell.used && cell.Direction == dir {
				cells = append(cells, cell)
			}
		}
	}
	t.mu.RUnlock()

	out := make([]ConnectedEdge, 0, len(cells))
	for _, cell := range cells {
		_, found, ver := cell.Versions.VisibleVersion(trxID, beginTS, readOnly, status, dep)
		if !found || ver.Label == 0 {
			continue
		}
		if label != 0 && ver.Label != label {
			continue
		}
		out = append(out, ConnectedEdge{PeerVID: uint64(cell.PeerVID), Version: ver})
	}
	return out
}
