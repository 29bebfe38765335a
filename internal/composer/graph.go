package composer

import (
	"container/heap"
)

// taskGraph is the dependency graph over flattened task indices. Edges point from
// a dependency to its dependents.
type taskGraph struct {
	ids      []string
	priority []int // declared priority of each task's template
	indeg    []int
	outgoing [][]int
	incoming [][]int
}

func newTaskGraph(ids []string, priority []int, deps [][]int) *taskGraph {
	g := &taskGraph{
		ids:      ids,
		priority: priority,
		indeg:    make([]int, len(ids)),
		outgoing: make([][]int, len(ids)),
		incoming: deps,
	}
	for to, from := range deps {
		for _, f := range from {
			g.outgoing[f] = append(g.outgoing[f], to)
			g.indeg[to]++
		}
	}
	return g
}

// readyQueue orders ready tasks by (template priority, flattened position).
type readyQueue struct {
	items    []int
	priority []int
}

func (q readyQueue) Len() int { return len(q.items) }
func (q readyQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if q.priority[a] != q.priority[b] {
		return q.priority[a] < q.priority[b]
	}
	return a < b
}
func (q readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *readyQueue) Push(x any)   { q.items = append(q.items, x.(int)) }
func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	x := old[n-1]
	q.items = old[:n-1]
	return x
}

// order runs Kahn's algorithm. The result is shorter than the node count when
// the graph has a cycle.
func (g *taskGraph) order() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &readyQueue{priority: g.priority}
	heap.Init(ready)
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as ids, first id repeated at the end.
func (g *taskGraph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.ids))
	var stack []int
	var cycle []string

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				for i, s := range stack {
					if s == v {
						for _, idx := range stack[i:] {
							cycle = append(cycle, g.ids[idx])
						}
						cycle = append(cycle, g.ids[v])
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range g.ids {
		if color[i] == white && dfs(i) {
			break
		}
	}
	return cycle
}
