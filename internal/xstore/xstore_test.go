package xstore

import (
	"testing"

	"github.com/routino-go/routino/internal/units"
)

func TestNodesXSortAndIndex(t *testing.T) {
	dir := t.TempDir()
	nx, err := NewNodesX(dir, ModeSlim)
	if err != nil {
		t.Fatalf("NewNodesX: %v", err)
	}

	ids := []uint64{300, 100, 200, 100} // 100 repeated, must dedup to first occurrence
	for _, id := range ids {
		if _, err := nx.Append(id, units.LatLong(id), units.LatLong(id), units.TransportsAll, 0); err != nil {
			t.Fatalf("Append(%d): %v", id, err)
		}
	}

	n, err := nx.Sort(1<<20, dir)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if n != 3 {
		t.Fatalf("Sort returned %d records, want 3", n)
	}

	for _, id := range []uint64{100, 200, 300} {
		idx, ok := nx.IndexOf(id)
		if !ok {
			t.Fatalf("IndexOf(%d) not found", id)
		}
		rec, err := nx.Lookup(idx, 1)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", idx, err)
		}
		if rec.ID != id {
			t.Fatalf("Lookup(%d).ID = %d, want %d", idx, rec.ID, id)
		}
	}

	if _, ok := nx.IndexOf(999); ok {
		t.Fatalf("IndexOf(999) found, want not-found")
	}

	if err := nx.Free(false); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestSegmentsXAdjacency(t *testing.T) {
	dir := t.TempDir()
	sx, err := NewSegmentsX(dir, ModeSlim)
	if err != nil {
		t.Fatalf("NewSegmentsX: %v", err)
	}

	// Node 0 has two outgoing segments (to 1 and to 2); node 1 has one.
	if _, err := sx.Append(0, 1, 0, units.Distance(10).WithFlags(units.SegmentNormal)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := sx.Append(0, 2, 0, units.Distance(20).WithFlags(units.SegmentNormal)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := sx.Append(1, 2, 0, units.Distance(5).WithFlags(units.SegmentNormal)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := sx.Index(3); err != nil {
		t.Fatalf("Index: %v", err)
	}

	first, ok := sx.FirstSegment(0)
	if !ok {
		t.Fatalf("FirstSegment(0) not found")
	}

	var seen []units.Index
	cur := first
	for {
		rec, err := sx.Lookup(cur, 1)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", cur, err)
		}
		seen = append(seen, rec.Node2)
		next, ok := sx.NextSegment(*rec)
		if !ok {
			break
		}
		cur = next
	}
	if len(seen) != 2 {
		t.Fatalf("node 0 adjacency chain length = %d, want 2", len(seen))
	}

	if !sx.IsUsed(0) || !sx.IsUsed(1) || !sx.IsUsed(2) {
		t.Fatalf("IsUsed: expected all of 0,1,2 to be used")
	}

	if err := sx.Free(false); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestWaysXNameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	wx, err := NewWaysX(dir, ModeSlim)
	if err != nil {
		t.Fatalf("NewWaysX: %v", err)
	}

	props := WayProperties{Highway: units.HighwayResidential, Allow: units.TransportsAll}
	if _, err := wx.Append(42, props, "High Street"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := wx.Append(7, props, "Church Lane"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := wx.Sort(1 << 20, dir); err != nil {
		t.Fatalf("Sort: %v", err)
	}

	idx, ok := wx.IndexOf(7)
	if !ok {
		t.Fatalf("IndexOf(7) not found")
	}
	rec, err := wx.Lookup(idx, 1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	name, err := wx.Name(*rec)
	if err != nil {
		t.Fatalf("Name: %v", err)
	}
	if name != "Church Lane" {
		t.Fatalf("Name = %q, want %q", name, "Church Lane")
	}

	if err := wx.Free(false); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestRelationsXRouteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rx, err := NewRelationsX(dir, ModeSlim)
	if err != nil {
		t.Fatalf("NewRelationsX: %v", err)
	}

	want := []RouteRelX{
		{ID: 1, Routes: units.TransportsAll, WayIDs: []uint64{10, 20, 30}},
		{ID: 2, Routes: units.TransportsAll, WayIDs: []uint64{40}, RelIDs: []uint64{1}},
	}
	for _, rel := range want {
		if err := rx.AppendRoute(rel); err != nil {
			t.Fatalf("AppendRoute: %v", err)
		}
	}

	var got []RouteRelX
	err = rx.IterateRoutes(func(rel RouteRelX) error {
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("IterateRoutes: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d relations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || len(got[i].WayIDs) != len(want[i].WayIDs) || len(got[i].RelIDs) != len(want[i].RelIDs) {
			t.Fatalf("relation %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if err := rx.FreeRoutes(false); err != nil {
		t.Fatalf("FreeRoutes: %v", err)
	}
	if err := rx.FreeTurn(false); err != nil {
		t.Fatalf("FreeTurn: %v", err)
	}
}

func TestRelationsXTurnRestrictions(t *testing.T) {
	dir := t.TempDir()
	rx, err := NewRelationsX(dir, ModeSlim)
	if err != nil {
		t.Fatalf("NewRelationsX: %v", err)
	}

	if _, err := rx.AppendTurnRestriction(1, 100, 200, 300, RestrictionNoEntry, 0); err != nil {
		t.Fatalf("AppendTurnRestriction: %v", err)
	}

	var got []TurnRestrictRelX
	err = rx.IterateTurn(func(_ units.Index, rel TurnRestrictRelX) error {
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("IterateTurn: %v", err)
	}
	if len(got) != 1 || got[0].Via != 200 || got[0].Restriction != RestrictionNoEntry {
		t.Fatalf("IterateTurn = %+v", got)
	}

	if err := rx.FreeTurn(false); err != nil {
		t.Fatalf("FreeTurn: %v", err)
	}
	if err := rx.FreeRoutes(false); err != nil {
		t.Fatalf("FreeRoutes: %v", err)
	}
}
