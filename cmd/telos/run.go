// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jllopis/telos/pkg/agent"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/cost"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/planner"
	"github.com/jllopis/telos/pkg/runtime"
)

func runRun(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	goal := cmd.String("goal", "", "Goal to achieve")
	planPath := cmd.String("plan", "", "Path to explicit plan graph (YAML/JSON)")
	session := cmd.String("session", "", "Session id for the transcript")
	approvalMode := cmd.String("approval-mode", "", "Approvals: auto|console|deny|off")
	approvalTimeout := cmd.Duration("approval-timeout", 0, "How long approvals stay pending")
	maxSteps := cmd.Int("max-steps", 0, "Loop iteration limit")
	jsonOut := cmd.Bool("json", false, "JSON output")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable telemetry output")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	target := strings.TrimSpace(*goal)
	if target == "" && cmd.NArg() > 0 {
		target = strings.TrimSpace(strings.Join(cmd.Args(), " "))
	}
	if target == "" {
		fatal(fmt.Errorf("usage: telos run -goal \"...\""))
	}
	asJSON := *jsonOut || global.JSON

	cfg := loadConfig(global)
	shutdown := setupTelemetry(cfg, *noTelemetry)
	defer shutdown()

	opts := buildRuntimeOptions(cfg, *approvalMode, *approvalTimeout, asJSON)
	if *session != "" {
		opts = append(opts, runtime.WithSessionID(*session))
	}
	if *maxSteps > 0 {
		opts = append(opts, runtime.WithMaxSteps(*maxSteps))
	}
	if strings.TrimSpace(*planPath) != "" {
		graph, err := planner.LoadGraph(*planPath)
		if err != nil {
			fatal(fmt.Errorf("failed to load plan: %w", err))
		}
		opts = append(opts, runtime.WithGraph(graph))
	}

	app, err := runtime.New(ctx, cfg, opts...)
	if err != nil {
		fatal(err)
	}
	defer app.Close()
	app.Start(ctx)

	if !asJSON {
		fmt.Printf("Goal: %s\n", target)
		fmt.Printf("LLM: %s (%s)\n\n", cfg.LLM.Provider, cfg.LLM.Model)
	}

	result, err := app.Agent.Run(ctx, target)
	if err != nil {
		if asJSON {
			printJSON(map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	if asJSON {
		printJSON(result)
	} else {
		printRunResult(result)
	}
	os.Exit(exitCode(result.Status))
}

// buildRuntimeOptions maps approval flags to assembly options. Console mode
// needs a terminal; without one it degrades to deny so unattended runs
// never hang on a prompt nobody sees.
func buildRuntimeOptions(cfg *config.Config, mode string, timeout time.Duration, jsonOut bool) []runtime.Option {
	var opts []runtime.Option

	effective := cfg.Approvals.Mode
	if mode != "" {
		effective = mode
		opts = append(opts, runtime.WithApprovalMode(mode))
	}
	if timeout > 0 {
		opts = append(opts, runtime.WithApprovalTimeout(timeout))
	}

	if strings.EqualFold(effective, string(governance.ModeConsole)) {
		isTTY := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
		if isTTY && !jsonOut {
			resolverOpts := []governance.ConsoleOption{}
			if timeout > 0 {
				resolverOpts = append(resolverOpts, governance.WithConsoleTimeout(timeout))
			}
			opts = append(opts, runtime.WithResolver(governance.NewConsoleResolver(resolverOpts...)))
		} else {
			fmt.Fprintln(os.Stderr, "approval mode 'console' requires a TTY; falling back to deny")
			opts = append(opts, runtime.WithApprovalMode(string(governance.ModeDeny)))
		}
	}
	return opts
}

func printRunResult(result *agent.Result) {
	fmt.Printf("Run: %s (%s)\n", result.RunID, result.Status)
	if len(result.Steps) > 0 {
		writer := newTabWriter()
		writeRow(writer, "STEP", "CAPABILITY", "OK", "USEFULNESS", "ERROR")
		for i, step := range result.Steps {
			writeRow(writer,
				fmt.Sprintf("%d", i+1),
				step.Node.Capability,
				fmt.Sprintf("%t", step.Outcome.Success),
				fmt.Sprintf("%.2f", step.Feedback.Usefulness),
				truncateCell(step.Outcome.Error, 60),
			)
		}
		_ = writer.Flush()
	}
	if len(result.Cost) > 0 {
		fmt.Print("Cost:")
		for _, counter := range []string{cost.CounterSteps, cost.CounterPromptTokens, cost.CounterCompletionTokens, cost.CounterTokens} {
			if v, ok := result.Cost[counter]; ok {
				fmt.Printf(" %s=%d", counter, v)
			}
		}
		fmt.Println()
	}
	if result.Answer != "" {
		fmt.Printf("\n%s\n", result.Answer)
	}
}

func exitCode(status core.RunStatus) int {
	switch status {
	case core.RunStatusSuccess:
		return 0
	case core.RunStatusStopped:
		return 2
	default:
		return 1
	}
}
