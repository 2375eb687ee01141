// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/jllopis/telos/pkg/runtime"
)

func runChat(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("chat", flag.ContinueOnError)
	session := cmd.String("session", "", "Session id to continue; empty starts a fresh one")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable telemetry output")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	cfg := loadConfig(global)
	shutdown := setupTelemetry(cfg, *noTelemetry)
	defer shutdown()

	sessionID := strings.TrimSpace(*session)
	if sessionID == "" {
		sessionID = "chat-" + uuid.NewString()
	}

	app, err := runtime.New(ctx, cfg, runtime.WithSessionID(sessionID))
	if err != nil {
		fatal(err)
	}
	defer app.Close()
	app.Start(ctx)

	if isatty.IsTerminal(os.Stdin.Fd()) && !global.JSON {
		chatREPL(ctx, app, sessionID)
		return
	}
	chatPipe(ctx, app, sessionID, global.JSON)
}

func chatREPL(ctx context.Context, app *runtime.App, sessionID string) {
	fmt.Printf("Session: %s\n", sessionID)
	fmt.Println("Interactive mode. Type 'exit' or Ctrl+C to quit.")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")

		select {
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return
		default:
		}

		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println("Goodbye!")
			return
		}
		if strings.HasPrefix(input, "/") {
			handleChatCommand(app, input)
			continue
		}

		reply, err := app.Agent.Chat(ctx, sessionID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n", reply)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
	}
}

func chatPipe(ctx context.Context, app *runtime.App, sessionID string, jsonOut bool) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		reply, err := app.Agent.Chat(ctx, sessionID, input)
		if err != nil {
			if jsonOut {
				printJSON(map[string]string{"error": err.Error()})
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}
		if jsonOut {
			printJSON(map[string]string{"message": input, "reply": reply})
		} else {
			fmt.Println(reply)
		}
	}
}

func handleChatCommand(app *runtime.App, input string) {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help":
		fmt.Println(`Commands:
  /help      Show this help
  /skills    List available capabilities
  /exit      Exit the REPL`)
	case "/skills":
		names := app.Registry.Names()
		if len(names) == 0 {
			fmt.Println("No capabilities registered")
			return
		}
		fmt.Println("Capabilities:")
		for _, name := range names {
			fmt.Printf("  - %s\n", name)
		}
	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		os.Exit(0)
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", input)
	}
}
