package fakes

import (
	"testing"

	"github.com/routino-go/routino/internal/units"
)

func TestSpliceSnapsToNearEndpoint(t *testing.T) {
	s := New()
	seg := SegmentRef{Index: 1, Node1: 10, Node2: 20, Way: 1}

	node := s.Splice(seg, 2, 48, 0, 0)
	if node != 10 {
		t.Fatalf("expected snap to Node1 (10), got %d", node)
	}

	node = s.Splice(seg, 48, 2, 0, 0)
	if node != 20 {
		t.Fatalf("expected snap to Node2 (20), got %d", node)
	}
}

func TestSpliceCreatesFakeNodeAndHalves(t *testing.T) {
	s := New()
	seg := SegmentRef{Index: 1, Node1: 10, Node2: 20, Way: 1}

	fake := s.Splice(seg, 30, 20, units.DegreesToLatLong(51.0), units.DegreesToLatLong(-1.0))
	if !units.IsFake(fake) {
		t.Fatalf("expected a fake node index, got %d", fake)
	}

	first, ok := s.FirstFakeSegment(fake)
	if !ok {
		t.Fatalf("expected at least one fake segment incident to the fake node")
	}
	count := 1
	for {
		next, ok := s.NextFakeSegment(first, fake)
		if !ok {
			break
		}
		first = next
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 half-segments incident to the fake node, got %d", count)
	}

	h1, ok := s.ExtraFakeSegment(seg.Node1, fake)
	if !ok {
		t.Fatalf("expected an extra fake segment linking Node1 to the fake node")
	}
	rec, ok := s.LookupFakeSegment(h1)
	if !ok || rec.Distance != 30 {
		t.Fatalf("expected the Node1-side half to carry distance 30, got %+v", rec)
	}
}

func TestLinkSameSegmentAddsTwoExtraSegments(t *testing.T) {
	s := New()
	seg := SegmentRef{Index: 7, Node1: 10, Node2: 20, Way: 1}

	a := s.Splice(seg, 10, 40, 0, 0)
	b := s.Splice(seg, 25, 25, 0, 0)

	if !s.LinkSameSegment(a, b) {
		t.Fatalf("expected LinkSameSegment to succeed for two waypoints on the same real segment")
	}

	forward, ok := s.ExtraFakeSegment(a, b)
	_ = forward
	if ok {
		t.Fatalf("ExtraFakeSegment is keyed by (real node, fake node), not (fake node, fake node)")
	}

	found := false
	first, _ := s.FirstFakeSegment(a)
	for cur := first; cur != units.NoIndex; {
		rec, _ := s.LookupFakeSegment(cur)
		if rec.Node2 == b && rec.Real == units.NoIndex {
			found = true
		}
		next, ok := s.NextFakeSegment(cur, a)
		if !ok {
			break
		}
		cur = next
	}
	if !found {
		t.Fatalf("expected a real==NoIndex linking segment from a to b")
	}
}

func TestIsFakeUTurnDetectsSharedRealSegment(t *testing.T) {
	s := New()
	seg := SegmentRef{Index: 7, Node1: 10, Node2: 20, Way: 1}
	fake := s.Splice(seg, 30, 20, 0, 0)

	h1, _ := s.ExtraFakeSegment(seg.Node1, fake)
	h2, _ := s.ExtraFakeSegment(seg.Node2, fake)

	if !s.IsFakeUTurn(h1, h2) {
		t.Fatalf("expected the two halves of the same split segment to be a fake U-turn pair")
	}
}
