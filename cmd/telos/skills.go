// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/jllopis/telos/pkg/runtime"
)

func runSkills(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 || args[0] != "list" {
		fatal(fmt.Errorf("usage: telos skills list"))
	}
	ensureNoArgs(args[1:])

	if global.APIURL != "" {
		var payload struct {
			Skills []string `json:"skills"`
		}
		if err := apiGet(ctx, global, "/v1/skills", &payload); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(payload)
			return
		}
		for _, name := range payload.Skills {
			fmt.Println(name)
		}
		return
	}

	cfg := loadConfig(global)
	app, err := runtime.New(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer app.Close()

	definitions := app.Registry.Definitions()
	if global.JSON {
		printJSON(map[string]any{"skills": definitions})
		return
	}
	if len(definitions) == 0 {
		fmt.Println("No capabilities registered")
		return
	}
	writer := newTabWriter()
	writeRow(writer, "NAME", "DESCRIPTION")
	for _, def := range definitions {
		writeRow(writer, def.Function.Name, truncateCell(def.Function.Description, 80))
	}
	_ = writer.Flush()
}
