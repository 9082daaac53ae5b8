package rooms

import (
	"slices"
	"time"
)

// Cell is one (resource, start time) position in the grid. An absent cell
// (no slot exists at this resource and time) has a nil Slot; that is a
// first-class state, distinct from a slot whose auction is no longer live.
type Cell struct {
	Slot    *TimeSlot
	Auction *AuctionSnapshot
}

// Present reports whether a slot exists at this cell.
func (c Cell) Present() bool {
	return c.Slot != nil
}

// Row is one resource's cells across every distinct start time, aligned
// with Grid.Times.
type Row struct {
	Resource Resource
	Cells    []Cell
}

// Grid is the sparse resource-by-time matrix used for selection and display.
// Rows appear in the order resources were supplied; Times is sorted
// ascending. Every row has exactly len(Times) cells.
type Grid struct {
	Times []time.Time
	Rows  []Row
}

// Empty reports whether the grid has no start times at all. Callers should
// surface this as an explicit "nothing in this window" state rather than
// rendering a table with no columns.
func (g Grid) Empty() bool {
	return len(g.Times) == 0
}

// Cell returns the cell for a resource and start time, or a zero Cell when
// the resource or time is not in the grid.
func (g Grid) Cell(resourceID string, start time.Time) Cell {
	ti := slices.IndexFunc(g.Times, func(t time.Time) bool { return t.Equal(start) })
	if ti < 0 {
		return Cell{}
	}
	for _, row := range g.Rows {
		if row.Resource.ID == resourceID {
			return row.Cells[ti]
		}
	}
	return Cell{}
}

// Reconcile joins resources and auction snapshots into a grid. It is a pure
// function of its inputs: no I/O, no mutation of arguments.
//
// Each snapshot must carry its denormalized TimeSlot; snapshots without one,
// or referencing a resource not in resources, are dropped (the caller may
// have filtered resources by location). Duplicate (resource, start time)
// pairs resolve last-wins, so the outcome is deterministic for a given
// input order. Resources with no matching auctions still yield a full row
// of absent cells.
func Reconcile(resources []Resource, snapshots []AuctionSnapshot) Grid {
	known := make(map[string]bool, len(resources))
	for _, r := range resources {
		known[r.ID] = true
	}

	// Distinct start times across all usable snapshots, plus per-resource
	// cell placement keyed by start time.
	type cellKey struct {
		resourceID string
		startUnix  int64
	}
	cells := make(map[cellKey]Cell)
	timeSet := make(map[int64]time.Time)

	for i := range snapshots {
		snap := snapshots[i]
		if snap.TimeSlot == nil || !known[snap.TimeSlot.ResourceID] {
			continue
		}
		start := snap.TimeSlot.StartTime
		timeSet[start.UnixNano()] = start
		cells[cellKey{snap.TimeSlot.ResourceID, start.UnixNano()}] = Cell{
			Slot:    snap.TimeSlot,
			Auction: &snap,
		}
	}

	times := make([]time.Time, 0, len(timeSet))
	for _, t := range timeSet {
		times = append(times, t)
	}
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })

	rows := make([]Row, 0, len(resources))
	for _, r := range resources {
		row := Row{Resource: r, Cells: make([]Cell, len(times))}
		for ti, t := range times {
			row.Cells[ti] = cells[cellKey{r.ID, t.UnixNano()}]
		}
		rows = append(rows, row)
	}

	return Grid{Times: times, Rows: rows}
}
