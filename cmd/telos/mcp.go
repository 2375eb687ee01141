// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jllopis/telos/pkg/mcp"
	"github.com/jllopis/telos/pkg/runtime"
)

// runMCP publishes the local capability registry over MCP stdio so another
// MCP-speaking agent can call this process's skills.
func runMCP(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 || args[0] != "serve" {
		fatal(fmt.Errorf("usage: telos mcp serve"))
	}
	ensureNoArgs(args[1:])

	cfg := loadConfig(global)

	// Stdout belongs to the protocol; telemetry stays off and logs go to
	// stderr via the default slog setup.
	app, err := runtime.New(ctx, cfg, runtime.WithoutMCP())
	if err != nil {
		fatal(err)
	}
	defer app.Close()

	server := mcp.NewServer(cfg.App.Name, version)
	published := server.PublishRegistry(app.Registry)
	fmt.Fprintf(os.Stderr, "serving %d capabilities over mcp stdio\n", published)

	if err := server.ServeStdio(); err != nil {
		fatal(err)
	}
}
