// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/trace"
)

func runTraces(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: telos traces <list|show> ..."))
	}
	switch args[0] {
	case "list":
		tracesList(global, args[1:])
	case "show":
		tracesShow(ctx, global, args[1:])
	default:
		fatal(fmt.Errorf("unknown traces subcommand %q", args[0]))
	}
}

func tracesList(global globalFlags, args []string) {
	ensureNoArgs(args)

	if global.APIURL != "" {
		var payload struct {
			Runs []string `json:"runs"`
		}
		if err := apiGet(context.Background(), global, "/v1/runs", &payload); err != nil {
			fatal(err)
		}
		printRunIDs(global, payload.Runs)
		return
	}

	cfg := loadConfig(global)
	runs, err := trace.NewReader(cfg.Paths.TraceDir).List()
	if err != nil {
		fatal(err)
	}
	printRunIDs(global, runs)
}

func printRunIDs(global globalFlags, runs []string) {
	if global.JSON {
		printJSON(map[string]any{"runs": runs})
		return
	}
	if len(runs) == 0 {
		fmt.Println("No traced runs")
		return
	}
	for _, id := range runs {
		fmt.Println(id)
	}
}

func tracesShow(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("traces show", flag.ContinueOnError)
	follow := cmd.Bool("follow", false, "Stream events as they are appended")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 1 {
		fatal(fmt.Errorf("usage: telos traces show <run_id> [-follow]"))
	}
	runID := cmd.Arg(0)

	if global.APIURL != "" && !*follow {
		var payload struct {
			Events []core.Event `json:"events"`
		}
		if err := apiGet(ctx, global, "/v1/runs/"+runID, &payload); err != nil {
			fatal(err)
		}
		for _, event := range payload.Events {
			printEvent(global, event)
		}
		return
	}

	cfg := loadConfig(global)
	reader := trace.NewReader(cfg.Paths.TraceDir)

	if *follow {
		events, err := reader.Stream(ctx, runID)
		if err != nil {
			fatal(err)
		}
		for event := range events {
			printEvent(global, event)
			if event.Type == core.EventRunDone || event.Type == core.EventRunError {
				return
			}
		}
		return
	}

	events, err := reader.ReadAll(runID)
	if err != nil {
		fatal(err)
	}
	for _, event := range events {
		printEvent(global, event)
	}
}

func printEvent(global globalFlags, event core.Event) {
	if global.JSON {
		payload, err := json.Marshal(event)
		if err != nil {
			fatal(err)
		}
		fmt.Println(string(payload))
		return
	}
	detail := ""
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err == nil {
			detail = " " + string(raw)
		}
	}
	fmt.Printf("%s  %-20s%s\n", formatTime(event.Timestamp), event.Type, detail)
}
