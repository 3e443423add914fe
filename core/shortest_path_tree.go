package core

import (
	"errors"
	"math"

	"github.com/signalsfoundry/membership-globe/model"
)

// NoParent marks a tree node that never received a connection.
const NoParent = -1

// ErrEmptyPointSet is returned when a tree is requested for an organization
// with no members.
var ErrEmptyPointSet = errors.New("empty organization set")

// TreeNode is one country in an organization's link tree.
type TreeNode struct {
	Point model.Point3D
	// Distance is the greedy distance recorded for the node: the length of the
	// edge to its parent, 0 for the root, +Inf when unconnected.
	Distance float64
	// ParentIndex indexes the same point list. The root is its own parent;
	// NoParent means the node has no valid connection.
	ParentIndex int
}

// Connected reports whether the node has a usable parent.
func (n TreeNode) Connected() bool {
	return n.ParentIndex != NoParent
}

// ShortestPathTree is the parent-pointer tree of one organization, rooted at
// index 0.
type ShortestPathTree struct {
	Nodes []TreeNode
	// Walk is the sequence of current indices the expansion used, including
	// the terminal step that revisits the fallback index 0.
	Walk []int
}

// BuildShortestPathTree links points with a greedy nearest-neighbour walk
// starting at index 0.
//
// Each step marks the current node visited, then measures every unvisited
// node against the current node only. A node adopts the current node as
// parent when that distance is strictly smaller than the one it holds, and
// the walk moves to the unvisited node closest to the current one (index 0
// when none is strictly closer than +Inf). The walk stops once it has taken
// len(points)+1 steps.
//
// This is not Dijkstra or Prim: candidates are compared against the current
// node, never against the best known distance, so the resulting tree is not a
// shortest-path or minimum spanning tree. Downstream link layouts depend on
// exactly this topology.
func BuildShortestPathTree(points []model.Point3D) (*ShortestPathTree, error) {
	n := len(points)
	if n == 0 {
		return nil, ErrEmptyPointSet
	}

	nodes := make([]TreeNode, n)
	pos := make([]Vec3, n)
	for i, p := range points {
		nodes[i] = TreeNode{Point: p, Distance: math.Inf(1), ParentIndex: NoParent}
		pos[i] = PointVec(p)
	}
	nodes[0].Distance = 0
	nodes[0].ParentIndex = 0

	visited := make([]bool, n)
	walk := make([]int, 0, n+1)
	current := 0
	for len(walk) <= n {
		walk = append(walk, current)
		visited[current] = true

		next := 0
		minDistance := math.Inf(1)
		for i := range nodes {
			if visited[i] {
				continue
			}
			d := pos[current].DistanceTo(pos[i])
			if d < nodes[i].Distance {
				nodes[i].Distance = d
				nodes[i].ParentIndex = current
			}
			if d < minDistance {
				minDistance = d
				next = i
			}
		}
		current = next
	}

	return &ShortestPathTree{Nodes: nodes, Walk: walk}, nil
}

// Root returns the root node.
func (t *ShortestPathTree) Root() TreeNode {
	return t.Nodes[0]
}

// Unconnected returns the indices of nodes without a valid parent.
func (t *ShortestPathTree) Unconnected() []int {
	var out []int
	for i, node := range t.Nodes {
		if !node.Connected() {
			out = append(out, i)
		}
	}
	return out
}

// TreeEdge joins a node to its parent.
type TreeEdge struct {
	Child, Parent int
}

// Edges lists child->parent edges, skipping the root's self edge and
// unconnected nodes.
func (t *ShortestPathTree) Edges() []TreeEdge {
	edges := make([]TreeEdge, 0, len(t.Nodes))
	for i, node := range t.Nodes {
		if !node.Connected() || node.ParentIndex == i {
			continue
		}
		edges = append(edges, TreeEdge{Child: i, Parent: node.ParentIndex})
	}
	return edges
}

// FirstVisit returns the step at which index i became the current node, or -1
// if the walk never reached it.
func (t *ShortestPathTree) FirstVisit(i int) int {
	for step, idx := range t.Walk {
		if idx == i {
			return step
		}
	}
	return -1
}
