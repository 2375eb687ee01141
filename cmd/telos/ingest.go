// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jllopis/telos/pkg/runtime"
)

func runIngest(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("ingest", flag.ContinueOnError)
	path := cmd.String("path", "", "File or directory to ingest")
	collection := cmd.String("collection", "", "Override the target collection")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable telemetry output")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	target := strings.TrimSpace(*path)
	if target == "" && cmd.NArg() > 0 {
		target = cmd.Arg(0)
	}
	if target == "" {
		fatal(fmt.Errorf("usage: telos ingest -path <file-or-dir>"))
	}

	info, err := os.Stat(target)
	if err != nil {
		fatal(fmt.Errorf("cannot ingest %s: %w", target, err))
	}

	cfg := loadConfig(global)
	if strings.TrimSpace(*collection) != "" {
		cfg.Retrieval.Collection = strings.TrimSpace(*collection)
	}
	shutdown := setupTelemetry(cfg, *noTelemetry)
	defer shutdown()

	// Ingestion only needs the library; skip MCP server startup.
	app, err := runtime.New(ctx, cfg, runtime.WithoutMCP())
	if err != nil {
		fatal(err)
	}
	defer app.Close()

	var chunks int
	if info.IsDir() {
		chunks, err = app.Ingestor.IngestDir(ctx, target)
	} else {
		chunks, err = app.Ingestor.IngestFile(ctx, target)
	}
	if err != nil {
		fatal(fmt.Errorf("ingest failed: %w", err))
	}

	if global.JSON {
		printJSON(map[string]any{
			"path":       target,
			"collection": cfg.Retrieval.Collection,
			"chunks":     chunks,
		})
		return
	}
	fmt.Printf("Ingested %d chunks from %s into %q\n", chunks, target, cfg.Retrieval.Collection)
}
