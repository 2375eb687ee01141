// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// graphFile is the on-disk form of a graph. A file with nodes but no edges
// describes a linear chain in file order.
type graphFile struct {
	Rationale string     `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Nodes     []fileNode `json:"nodes" yaml:"nodes"`
	Edges     []fileEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

type fileNode struct {
	ID         string         `json:"id" yaml:"id"`
	Capability string         `json:"capability" yaml:"capability"`
	Args       map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Rationale  string         `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

type fileEdge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// LoadGraph loads a planner graph from a YAML or JSON file.
func LoadGraph(path string) (*Graph, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("graph path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return parseGraphAuto(data)
	}
}

func parseGraphAuto(data []byte) (*Graph, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if graph, err := ParseJSON(data); err == nil {
			return graph, nil
		}
	}
	if graph, err := ParseYAML(data); err == nil {
		return graph, nil
	}
	if graph, err := ParseJSON(data); err == nil {
		return graph, nil
	}
	return nil, fmt.Errorf("unsupported graph format")
}

// ParseJSON loads a graph from JSON and validates it.
func ParseJSON(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var file graphFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse json graph: %w", err)
	}
	return buildGraph(file)
}

// ParseYAML loads a graph from YAML and validates it.
func ParseYAML(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse yaml graph: %w", err)
	}
	return buildGraph(file)
}

func buildGraph(file graphFile) (*Graph, error) {
	g := NewGraph()
	g.SetRationale(file.Rationale)
	for _, n := range file.Nodes {
		if _, err := g.AddNode(Node{
			ID:         n.ID,
			Capability: n.Capability,
			Args:       n.Args,
			Rationale:  n.Rationale,
		}); err != nil {
			return nil, err
		}
	}
	if len(file.Edges) == 0 && len(file.Nodes) > 1 {
		for i := 1; i < len(file.Nodes); i++ {
			if err := g.AddEdge(file.Nodes[i-1].ID, file.Nodes[i].ID); err != nil {
				return nil, err
			}
		}
	} else {
		for _, e := range file.Edges {
			if err := g.AddEdge(e.From, e.To); err != nil {
				return nil, err
			}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func exportGraph(graph *Graph) graphFile {
	file := graphFile{Rationale: graph.Rationale()}
	for _, n := range graph.Nodes() {
		file.Nodes = append(file.Nodes, fileNode{
			ID:         n.ID,
			Capability: n.Capability,
			Args:       n.Args,
			Rationale:  n.Rationale,
		})
		for _, to := range graph.succs[n.ID] {
			file.Edges = append(file.Edges, fileEdge{From: n.ID, To: to})
		}
	}
	return file
}

// MarshalJSON serializes a graph to JSON. Use pretty for indented output.
func MarshalJSON(graph *Graph, pretty bool) ([]byte, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	file := exportGraph(graph)
	if pretty {
		return json.MarshalIndent(file, "", "  ")
	}
	return json.Marshal(file)
}

// MarshalYAML serializes a graph to YAML.
func MarshalYAML(graph *Graph) ([]byte, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(exportGraph(graph))
}
