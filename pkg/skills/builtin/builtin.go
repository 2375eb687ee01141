// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package builtin provides the stock capability set: web.fetch, fs.read,
// fs.write, exec.run and rag.search. RegisterAll wires them into a registry
// from explicit dependencies; the registry's allow-list decides which of
// them actually land.
package builtin

import (
	"net/http"
	"time"

	"github.com/jllopis/telos/pkg/safety"
	"github.com/jllopis/telos/pkg/skills"
)

// Deps carries the collaborators the builtin capabilities run against.
// Nil entries skip the capabilities that need them: no Workspace means no
// fs.read/fs.write, no Searcher means no rag.search.
type Deps struct {
	Workspace      *safety.Workspace
	HTTPClient     *http.Client
	Searcher       Searcher
	Interpreter    string
	CommandTimeout time.Duration
	MaxFetchChars  int
	MaxOutputChars int
	TopK           int
}

// RegisterAll registers every builtin the dependencies support.
func RegisterAll(reg *skills.Registry, deps Deps) error {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	set := []skills.Skill{
		NewFetchSkill(client, deps.MaxFetchChars),
		NewRunSkill(deps.Interpreter, deps.CommandTimeout, deps.MaxOutputChars),
	}
	if deps.Workspace != nil {
		set = append(set, NewReadSkill(deps.Workspace), NewWriteSkill(deps.Workspace))
	}
	if deps.Searcher != nil {
		set = append(set, NewSearchSkill(deps.Searcher, deps.TopK))
	}

	for _, s := range set {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads an integer argument that may arrive as a decoded float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
