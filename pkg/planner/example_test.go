package planner_test

import (
	"context"
	"fmt"

	"github.com/jllopis/telos/pkg/planner"
)

type exampleCaps []string

func (c exampleCaps) Names() []string { return c }

func ExampleChainBuilder() {
	builder := planner.NewChainBuilder(exampleCaps{"web.fetch", "fs.write"})
	graph, err := builder.BuildGraph(context.Background(), "save a brief of https://example.com")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for {
		ready := graph.NextReady()
		if len(ready) == 0 {
			break
		}
		node := ready[0]
		if err := graph.MarkRunning(node.ID); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(node.Capability)
		if err := graph.MarkDone(node.ID); err != nil {
			fmt.Println("error:", err)
			return
		}
	}
	// Output:
	// web.fetch
	// fs.write
}
