package router

import (
	"container/heap"

	"github.com/routino-go/routino/internal/units"
)

// EdgeKey identifies one search-state: a node together with the
// segment the search arrived along, since the same node can be
// reached via different incoming segments with different turn
// histories and those must be scored independently (spec.md section
// 4.H).
type EdgeKey struct {
	Node    units.Index
	Segment units.Index
}

// resultEntry is one discovered (node, arriving segment) pair: its
// best score so far, the priority it was queued with, and the
// predecessor state to retrace the path.
type resultEntry struct {
	Score   units.Score
	SortBy  units.Score
	Prev    EdgeKey
	HasPrev bool
}

// results is the open/closed set a single search phase builds,
// keyed by EdgeKey exactly as spec.md's hashmap describes.
type results struct {
	m map[EdgeKey]*resultEntry
}

func newResults() *results {
	return &results{m: make(map[EdgeKey]*resultEntry)}
}

func (r *results) get(k EdgeKey) (*resultEntry, bool) {
	e, ok := r.m[k]
	return e, ok
}

func (r *results) insert(k EdgeKey) *resultEntry {
	e := &resultEntry{}
	r.m[k] = e
	return e
}

// trace walks Prev pointers from k back to the search's root and
// returns the path from root to k, in travelled order.
func (r *results) trace(k EdgeKey) []EdgeKey {
	var rev []EdgeKey
	cur := k
	for {
		rev = append(rev, cur)
		e, ok := r.get(cur)
		if !ok || !e.HasPrev {
			break
		}
		cur = e.Prev
	}
	out := make([]EdgeKey, len(rev))
	for i, k := range rev {
		out[len(rev)-1-i] = k
	}
	return out
}

// queueItem is one priority-queue entry: the key plus the SortBy it
// was queued with, so a pop can detect a stale entry (one whose result
// has since been improved and requeued) by comparing against the
// result's current SortBy -- lazy deletion instead of a decrease-key
// heap, matching spec.md's "pops are lazy" description.
type queueItem struct {
	key    EdgeKey
	sortBy units.Score
}

type priorityQueue []queueItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].sortBy < q[j].sortBy }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// popValid pops entries until it finds one whose SortBy still matches
// the live result (discarding stale entries superseded by a better
// score since they were queued), or the queue empties.
func popValid(q *priorityQueue, res *results) (EdgeKey, bool) {
	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		e, ok := res.get(item.key)
		if !ok || e.SortBy != item.sortBy {
			continue
		}
		return item.key, true
	}
	return EdgeKey{}, false
}
