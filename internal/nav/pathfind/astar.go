// Package pathfind is a best-first shortest path search over any graph that can
// report node positions and neighbours.
package pathfind

import (
	"cmp"
	"container/heap"
	"errors"

	"voxelnav.ai/internal/geom"
)

var (
	ErrNoPath      = errors.New("no path")
	ErrUnknownNode = errors.New("unknown node")
)

// Graph is the capability FindPath needs from a graph.
type Graph[ID cmp.Ordered] interface {
	Position(id ID) (geom.Vec3, bool)
	Neighbors(id ID) []ID
}

type item[ID cmp.Ordered] struct {
	id     ID
	g, f   float64
	parent *item[ID]
	index  int
}

// queue orders by f, then by id so equal-cost frontiers pop deterministically.
type queue[ID cmp.Ordered] []*item[ID]

func (q queue[ID]) Len() int { return len(q) }

func (q queue[ID]) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].id < q[j].id
}

func (q queue[ID]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue[ID]) Push(x any) {
	it := x.(*item[ID])
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *queue[ID]) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// FindPath returns the node sequence from start to goal, both included.
// Edge cost and heuristic are the Euclidean distances between node positions.
// start == goal yields an empty path and no error.
func FindPath[ID cmp.Ordered](g Graph[ID], start, goal ID) ([]ID, error) {
	startPos, ok := g.Position(start)
	if !ok {
		return nil, ErrUnknownNode
	}
	goalPos, ok := g.Position(goal)
	if !ok {
		return nil, ErrUnknownNode
	}
	if start == goal {
		return []ID{}, nil
	}

	open := &queue[ID]{}
	first := &item[ID]{id: start, f: startPos.Distance(goalPos)}
	heap.Push(open, first)
	inOpen := map[ID]*item[ID]{start: first}
	closed := map[ID]struct{}{}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*item[ID])
		delete(inOpen, cur.id)
		if cur.id == goal {
			return unwind(cur), nil
		}
		closed[cur.id] = struct{}{}

		curPos, _ := g.Position(cur.id)
		for _, nb := range g.Neighbors(cur.id) {
			if _, done := closed[nb]; done {
				continue
			}
			nbPos, ok := g.Position(nb)
			if !ok {
				continue
			}
			tentative := cur.g + curPos.Distance(nbPos)

			it, seen := inOpen[nb]
			if !seen {
				it = &item[ID]{id: nb, g: tentative, f: tentative + nbPos.Distance(goalPos), parent: cur}
				heap.Push(open, it)
				inOpen[nb] = it
			} else if tentative < it.g {
				it.f += tentative - it.g
				it.g = tentative
				it.parent = cur
				heap.Fix(open, it.index)
			}
		}
	}
	return nil, ErrNoPath
}

func unwind[ID cmp.Ordered](it *item[ID]) []ID {
	n := 0
	for p := it; p != nil; p = p.parent {
		n++
	}
	path := make([]ID, n)
	for p := it; p != nil; p = p.parent {
		n--
		path[n] = p.id
	}
	return path
}

// PathLength sums the Euclidean lengths of consecutive segments. Unknown ids are skipped.
func PathLength[ID cmp.Ordered](g Graph[ID], path []ID) float64 {
	total := 0.0
	var prev geom.Vec3
	havePrev := false
	for _, id := range path {
		p, ok := g.Position(id)
		if !ok {
			continue
		}
		if havePrev {
			total += prev.Distance(p)
		}
		prev, havePrev = p, true
	}
	return total
}
