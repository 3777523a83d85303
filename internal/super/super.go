// Package super builds the two-level overlay graph: designating
// super-nodes, computing super-segments between them by bounded
// Dijkstra, and iteratively re-contracting the result (spec.md section
// 4.E).
package super

import (
	"container/heap"
	"fmt"

	"github.com/routino-go/routino/internal/build"
	"github.com/routino-go/routino/internal/rlog"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// MaxRounds bounds the iterative contraction (spec.md section 4.E).
const MaxRounds = 5

// Contractor runs super-graph construction over a Builder's finished
// (sorted, indexed, pruned) extended stores.
type Contractor struct {
	b *build.Builder

	numNodes int
	restrict []bool // restrict[node] true if it is a turn-restriction via or neighbour

	bundleCache map[units.Index]wayBundle
}

// New creates a Contractor over b. b.Process must already have run.
func New(b *build.Builder) *Contractor {
	return &Contractor{b: b, bundleCache: make(map[units.Index]wayBundle)}
}

// Result summarises the finished overlay.
type Result struct {
	Rounds        int
	SuperNodes    int
	SuperSegments []SuperSeg
}

// SuperSeg is one precomputed shortest path between two super-nodes
// through only non-super (flat) intermediate nodes.
type SuperSeg struct {
	From, To units.Index
	Distance units.Distance
	Way      units.Index
}

type wayBundle struct {
	highway units.Highway
	allow   units.Transports
	props   units.Properties
	speed   units.Speed
}

type roundEdge struct {
	to   units.Index
	dist units.Distance
	way  units.Index
}

// Contract runs the iterative contraction and returns the final
// super-node flags (indexed by NodesX index) and the merged
// super-segment list.
func (c *Contractor) Contract() (*Result, []bool, error) {
	c.numNodes = int(c.b.Nodes().Count())

	restrict, err := c.markTurnRestricted()
	if err != nil {
		return nil, nil, fmt.Errorf("super: marking turn-restricted nodes: %w", err)
	}
	c.restrict = restrict

	adj, err := c.adjacencyFromSegments()
	if err != nil {
		return nil, nil, fmt.Errorf("super: building adjacency: %w", err)
	}

	candidates := make([]units.Index, 0, c.numNodes)
	for i := 0; i < c.numNodes; i++ {
		candidates = append(candidates, units.Index(i))
	}

	var allSegs []SuperSeg
	superSet := map[units.Index]bool{}
	prevCount := -1
	roundsRun := 0

	for round := 1; round <= MaxRounds; round++ {
		roundsRun = round
		sel, err := c.selectSuperNodes(adj, candidates)
		if err != nil {
			return nil, nil, fmt.Errorf("super: round %d: selecting super-nodes: %w", round, err)
		}

		segs, err := c.computeSuperSegments(adj, sel)
		if err != nil {
			return nil, nil, fmt.Errorf("super: round %d: computing super-segments: %w", round, err)
		}

		rlog.Info("super: round %d: %d super-nodes, %d super-segments", round, len(sel), len(segs))

		allSegs = segs
		for n, ok := range sel {
			if ok {
				superSet[n] = true
			}
		}

		if len(segs) == prevCount {
			break
		}
		prevCount = len(segs)

		// Next round re-contracts over the super-segment graph alone:
		// only previously-selected super-nodes remain candidates, and
		// the edges between them are the super-segments just computed.
		candidates = candidates[:0]
		for n, ok := range sel {
			if ok {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) == 0 {
			break
		}
		adj = adjacencyFromSuperSegs(segs)
	}

	super := make([]bool, c.numNodes)
	for n := range superSet {
		super[n] = true
	}

	return &Result{Rounds: roundsRun, SuperNodes: len(superSet), SuperSegments: allSegs}, super, nil
}

// markTurnRestricted flags every via node of a turn restriction, and
// every node directly reachable from it by one segment, as a
// super-node candidate (spec.md section 4.E criterion i). Using only
// the forward adjacency to find "neighbours" misses a predecessor that
// can only reach via by a oneway segment; that predecessor still gets
// picked up independently if it fails any of the other three criteria,
// and if it doesn't, leaving it flat merely folds it into the
// super-segment passing through via rather than stopping short of it.
func (c *Contractor) markTurnRestricted() ([]bool, error) {
	restrict := make([]bool, c.numNodes)

	err := c.b.Relations().IterateTurn(func(_ units.Index, rec xstore.TurnRestrictRelX) error {
		via, ok := c.b.Nodes().IndexOf(rec.Via)
		if !ok {
			return nil
		}
		if int(via) < c.numNodes {
			restrict[via] = true
		}

		first, ok := c.b.Segments().FirstSegment(via)
		for ok {
			seg, err := c.b.Segments().Lookup(first, 7)
			if err != nil {
				return err
			}
			if int(seg.Node2) < c.numNodes {
				restrict[seg.Node2] = true
			}
			first, ok = c.b.Segments().NextSegment(*seg)
		}
		return nil
	})
	return restrict, err
}

func (c *Contractor) adjacencyFromSegments() (map[units.Index][]roundEdge, error) {
	adj := make(map[units.Index][]roundEdge)
	err := c.b.Segments().Iterate(func(_ units.Index, rec xstore.SegmentX) error {
		adj[rec.Node1] = append(adj[rec.Node1], roundEdge{to: rec.Node2, dist: rec.Distance.Metres(), way: rec.Way})
		return nil
	})
	return adj, err
}

func adjacencyFromSuperSegs(segs []SuperSeg) map[units.Index][]roundEdge {
	adj := make(map[units.Index][]roundEdge)
	for _, s := range segs {
		adj[s.From] = append(adj[s.From], roundEdge{to: s.To, dist: s.Distance, way: s.Way})
	}
	return adj
}

func (c *Contractor) bundleOf(way units.Index) (wayBundle, error) {
	if wb, ok := c.bundleCache[way]; ok {
		return wb, nil
	}
	w, err := c.b.Ways().Lookup(way, 8)
	if err != nil {
		return wayBundle{}, err
	}
	wb := wayBundle{highway: w.Props.Highway, allow: w.Props.Allow, props: w.Props.Props, speed: w.Props.Speed}
	c.bundleCache[way] = wb
	return wb, nil
}

// selectSuperNodes applies the four super-node criteria from spec.md
// section 4.E to every candidate, using adj as the current round's
// graph (the real segment graph in round 1, the prior round's
// super-segments afterward).
func (c *Contractor) selectSuperNodes(adj map[units.Index][]roundEdge, candidates []units.Index) (map[units.Index]bool, error) {
	sel := make(map[units.Index]bool, len(candidates))

	for _, node := range candidates {
		if c.restrict[node] {
			sel[node] = true
			continue
		}

		edges := adj[node]
		if len(edges) == 0 {
			sel[node] = false
			continue
		}

		nodeRec, err := c.b.Nodes().Lookup(node, 9)
		if err != nil {
			return nil, err
		}

		isSuper := false
		byTransport := make(map[units.Transport]int)
		bundles := make([]wayBundle, 0, len(edges))

		for _, e := range edges {
			wb, err := c.bundleOf(e.way)
			if err != nil {
				return nil, err
			}
			bundles = append(bundles, wb)

			if wb.allow&^nodeRec.Allow != 0 {
				isSuper = true // criterion (ii): node restricts transports the way allows
			}
			for _, t := range units.TransportList() {
				tr, _ := units.ParseTransport(t)
				if wb.allow&tr.Bit() != 0 {
					byTransport[tr]++
				}
			}
		}

		for _, n := range byTransport {
			if n >= 3 {
				isSuper = true // criterion (iv)
			}
		}

		for i := 0; i < len(bundles) && !isSuper; i++ {
			for j := i + 1; j < len(bundles); j++ {
				if bundles[i] != bundles[j] && bundles[i].allow&bundles[j].allow != 0 {
					isSuper = true // criterion (iii)
					break
				}
			}
		}

		sel[node] = isSuper
	}

	return sel, nil
}

// computeSuperSegments runs one bounded Dijkstra from every selected
// super-node, absorbing at the first super-node reached along each
// branch.
func (c *Contractor) computeSuperSegments(adj map[units.Index][]roundEdge, sel map[units.Index]bool) ([]SuperSeg, error) {
	var out []SuperSeg
	for node, isSuper := range sel {
		if !isSuper {
			continue
		}
		segs, err := dijkstraFrom(node, adj, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

type candidate struct {
	node units.Index
	dist units.Distance
}

type candidateHeap []*candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(*candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// dijkstraFrom advances only through flat (non-super) nodes, emitting
// one SuperSeg per super-node reached and stopping expansion there
// (spec.md section 4.E: super-nodes are absorbing). The way recorded
// on each emitted segment is the one carried by the first edge leaving
// s, propagated unchanged through the flat chain -- every node on that
// chain shares the same attribute bundle by construction, since a
// differing bundle would have made it a super-node (criterion iii).
func dijkstraFrom(s units.Index, adj map[units.Index][]roundEdge, sel map[units.Index]bool) ([]SuperSeg, error) {
	dist := map[units.Index]units.Distance{s: 0}
	via := map[units.Index]units.Index{}

	pq := &candidateHeap{}
	heap.Init(pq)
	for _, e := range adj[s] {
		if d, ok := dist[e.to]; !ok || e.dist < d {
			dist[e.to] = e.dist
			via[e.to] = e.way
			heap.Push(pq, &candidate{node: e.to, dist: e.dist})
		}
	}

	visited := map[units.Index]bool{}
	var out []SuperSeg

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*candidate)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true

		if cur.node == s {
			continue
		}
		if sel[cur.node] {
			out = append(out, SuperSeg{From: s, To: cur.node, Distance: cur.dist, Way: via[cur.node]})
			continue
		}

		for _, e := range adj[cur.node] {
			nd := cur.dist + e.dist
			if d, ok := dist[e.to]; !ok || nd < d {
				dist[e.to] = nd
				via[e.to] = via[cur.node]
				heap.Push(pq, &candidate{node: e.to, dist: nd})
			}
		}
	}

	return out, nil
}
