// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/api"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/runtime"
)

func runServe(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := cmd.String("addr", "", "Listen address (overrides api.addr)")
	watch := cmd.Bool("watch", false, "Reload config when the file changes")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable telemetry output")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	ensureNoArgs(cmd.Args())

	cfg := loadConfig(global)
	shutdown := setupTelemetry(cfg, *noTelemetry)
	defer shutdown()
	logger := slog.Default()

	if *watch {
		watcher, _, err := config.WatchConfig(ctx, configPathFromArgs(global.ConfigArgs))
		if err != nil {
			fatal(fmt.Errorf("failed to watch config: %w", err))
		}
		defer watcher.Stop()
		// Live reassembly is not supported; the watcher surfaces drift so
		// an operator knows a restart is due.
		watcher.OnChange(func(*config.Config) {
			logger.Warn("telos.serve.config_changed", slog.String("hint", "restart to apply"))
		})
	}

	app, err := runtime.New(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer app.Close()
	app.Start(ctx)

	server := api.New(app.Approvals, app.TraceLog,
		api.WithRegistry(app.Registry),
		api.WithHealth(app.Health),
		api.WithLogger(logger),
	)

	listenAddr := strings.TrimSpace(*addr)
	if listenAddr == "" {
		listenAddr = cfg.API.Addr
	}
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("telos.serve.listening", slog.String("addr", listenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("telos.serve.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "shutdown:", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(err)
		}
	}
}

// configPathFromArgs recovers the --config value so the watcher knows which
// file to poll. An empty result watches nothing but still loads defaults.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(args[i], "--config=") {
			return strings.TrimPrefix(args[i], "--config=")
		}
	}
	return ""
}
