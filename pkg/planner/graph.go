package planner

import (
	"fmt"

	"github.com/jllopis/telos/pkg/errors"
)

// NodeStatus is the lifecycle state of a plan node. Transitions move
// strictly forward: pending, ready, running, then one of done, failed or
// skipped. Terminal states are final.
type NodeStatus string

const (
	StatusPending NodeStatus = "pending"
	StatusReady   NodeStatus = "ready"
	StatusRunning NodeStatus = "running"
	StatusDone    NodeStatus = "done"
	StatusFailed  NodeStatus = "failed"
	StatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s NodeStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// Node is one step in a plan graph.
type Node struct {
	ID         string
	Capability string
	Args       map[string]any
	Rationale  string
	Status     NodeStatus

	seq int
}

// Graph is a directed acyclic plan. Nodes keep insertion order, which is
// the scheduler's tie-break when several nodes are ready at once. The graph
// is mutated only by the scheduler that owns it; it carries no lock.
type Graph struct {
	nodes     []*Node
	index     map[string]*Node
	preds     map[string][]string
	succs     map[string][]string
	rationale string
	failFast  bool
}

// GraphOption configures graph construction.
type GraphOption func(*Graph)

// WithFailFast marks every transitive dependent of a failed node skipped
// instead of leaving it pending. Off by default: a failed prerequisite
// stalls its dependents, it does not cascade.
func WithFailFast() GraphOption {
	return func(g *Graph) { g.SetFailFast(true) }
}

// SetFailFast toggles the skip cascade after construction. Loaded and
// builder-produced graphs get their policy from the runtime config, which is
// only known after the graph exists.
func (g *Graph) SetFailFast(on bool) { g.failFast = on }

// Rationale returns the plan-level reasoning, when the builder recorded one.
func (g *Graph) Rationale() string { return g.rationale }

// SetRationale records the plan-level reasoning.
func (g *Graph) SetRationale(r string) { g.rationale = r }

// NewGraph creates an empty plan graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		index: make(map[string]*Node),
		preds: make(map[string][]string),
		succs: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode inserts a node in pending status. Node ids are unique per graph.
func (g *Graph) AddNode(n Node) (*Node, error) {
	if n.ID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if n.Capability == "" {
		return nil, fmt.Errorf("node %q missing capability", n.ID)
	}
	if _, ok := g.index[n.ID]; ok {
		return nil, fmt.Errorf("node %q already exists", n.ID)
	}
	n.Status = StatusPending
	n.seq = len(g.nodes)
	stored := n
	g.nodes = append(g.nodes, &stored)
	g.index[n.ID] = &stored
	return &stored, nil
}

// AddEdge records that from must complete before to. Both endpoints must
// already be nodes; self-edges are rejected. Duplicate edges collapse.
func (g *Graph) AddEdge(from, to string) error {
	if from == to {
		return fmt.Errorf("self-edge on %q", from)
	}
	if _, ok := g.index[from]; !ok {
		return fmt.Errorf("edge from %q not found", from)
	}
	if _, ok := g.index[to]; !ok {
		return fmt.Errorf("edge to %q not found", to)
	}
	for _, p := range g.preds[to] {
		if p == from {
			return nil
		}
	}
	g.preds[to] = append(g.preds[to], from)
	g.succs[from] = append(g.succs[from], to)
	return nil
}

// Validate checks that the edge set is acyclic. An empty graph is valid:
// builders may legally produce one when no candidate survives filtering.
func (g *Graph) Validate() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		for _, succ := range g.succs[id] {
			switch color[succ] {
			case grey:
				return fmt.Errorf("cycle detected at node %q", succ)
			case white:
				if err := visit(succ); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, n := range g.nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

// Nodes returns the nodes in insertion order. Callers must not change
// Status directly; use the Mark helpers.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Predecessors returns the ids of the nodes that must complete before id.
func (g *Graph) Predecessors(id string) []string {
	return append([]string(nil), g.preds[id]...)
}

// NextReady promotes every pending node whose predecessors are all done and
// returns the ready nodes in insertion order. The scheduler picks the first.
func (g *Graph) NextReady() []*Node {
	var ready []*Node
	for _, n := range g.nodes {
		switch n.Status {
		case StatusReady:
			ready = append(ready, n)
		case StatusPending:
			if g.predsDone(n.ID) {
				n.Status = StatusReady
				ready = append(ready, n)
			}
		}
	}
	return ready
}

func (g *Graph) predsDone(id string) bool {
	for _, p := range g.preds[id] {
		if g.index[p].Status != StatusDone {
			return false
		}
	}
	return true
}

// SetStatus applies a forward-only transition. A node becomes ready only
// when every predecessor is done; violations are INTERNAL errors because
// they indicate a scheduler bug, not bad input.
func (g *Graph) SetStatus(id string, status NodeStatus) error {
	n, ok := g.index[id]
	if !ok {
		return errors.New(errors.CodeInternal, fmt.Sprintf("plan node %q not found", id), nil)
	}
	if !validTransition(n.Status, status) {
		return errors.New(errors.CodeInternal,
			fmt.Sprintf("plan node %q cannot move from %s to %s", id, n.Status, status), nil)
	}
	if status == StatusReady && !g.predsDone(id) {
		return errors.New(errors.CodeInternal,
			fmt.Sprintf("plan node %q cannot become ready before its predecessors are done", id), nil)
	}
	n.Status = status
	if status == StatusFailed && g.failFast {
		g.skipDependents(id)
	}
	return nil
}

func validTransition(from, to NodeStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusReady || to == StatusSkipped
	case StatusReady:
		return to == StatusRunning || to == StatusSkipped
	case StatusRunning:
		return to == StatusDone || to == StatusFailed
	default:
		return false
	}
}

func (g *Graph) skipDependents(id string) {
	for _, succ := range g.succs[id] {
		n := g.index[succ]
		if n.Status == StatusPending || n.Status == StatusReady {
			n.Status = StatusSkipped
			g.skipDependents(succ)
		}
	}
}

// MarkRunning moves a ready node to running.
func (g *Graph) MarkRunning(id string) error { return g.SetStatus(id, StatusRunning) }

// MarkDone moves a running node to done.
func (g *Graph) MarkDone(id string) error { return g.SetStatus(id, StatusDone) }

// MarkFailed moves a running node to failed. With fail-fast enabled its
// transitive dependents are skipped.
func (g *Graph) MarkFailed(id string) error { return g.SetStatus(id, StatusFailed) }

// MarkSkipped skips a node that has not started.
func (g *Graph) MarkSkipped(id string) error { return g.SetStatus(id, StatusSkipped) }

// Terminal reports whether every node reached a final status.
func (g *Graph) Terminal() bool {
	for _, n := range g.nodes {
		if !n.Status.Terminal() {
			return false
		}
	}
	return true
}

// AllDone reports whether every node completed successfully.
func (g *Graph) AllDone() bool {
	for _, n := range g.nodes {
		if n.Status != StatusDone {
			return false
		}
	}
	return true
}

// Counts returns how many nodes hold each status.
func (g *Graph) Counts() map[NodeStatus]int {
	counts := make(map[NodeStatus]int, 6)
	for _, n := range g.nodes {
		counts[n.Status]++
	}
	return counts
}
