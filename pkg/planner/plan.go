package planner

import "fmt"

// Step is one step of a flat plan.
type Step struct {
	Capability string         `json:"capability" yaml:"capability"`
	Args       map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Rationale  string         `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// FlatPlan is an ordered sequence of steps with no explicit dependencies;
// step i must complete before step i+1.
type FlatPlan struct {
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Steps     []Step `json:"steps" yaml:"steps"`
}

// FromFlatPlan chains the steps of a flat plan into a linear graph with
// node ids s1..sN.
func FromFlatPlan(plan *FlatPlan, opts ...GraphOption) (*Graph, error) {
	g := NewGraph(opts...)
	if plan == nil {
		return g, nil
	}
	g.SetRationale(plan.Rationale)
	prev := ""
	for i, step := range plan.Steps {
		id := fmt.Sprintf("s%d", i+1)
		if _, err := g.AddNode(Node{
			ID:         id,
			Capability: step.Capability,
			Args:       step.Args,
			Rationale:  step.Rationale,
		}); err != nil {
			return nil, err
		}
		if prev != "" {
			if err := g.AddEdge(prev, id); err != nil {
				return nil, err
			}
		}
		prev = id
	}
	return g, nil
}
