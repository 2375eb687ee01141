package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/telemetry"
)

const version = "0.1.0-dev"

type globalFlags struct {
	ConfigArgs []string
	APIURL     string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		runRun(ctx, global, args[1:])
	case "chat":
		runChat(ctx, global, args[1:])
	case "ingest":
		runIngest(ctx, global, args[1:])
	case "approvals":
		runApprovals(ctx, global, args[1:])
	case "traces":
		runTraces(ctx, global, args[1:])
	case "skills":
		runSkills(ctx, global, args[1:])
	case "serve":
		runServe(ctx, global, args[1:])
	case "mcp":
		runMCP(ctx, global, args[1:])
	case "version":
		ensureNoArgs(args[1:])
		printVersion()
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		APIURL:  getenv("TELOS_API_URL", ""),
		Timeout: 30 * time.Second,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile" || arg == "--env":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config=") || strings.HasPrefix(arg, "--set=") ||
			strings.HasPrefix(arg, "--profile=") || strings.HasPrefix(arg, "--env="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--api":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --api")
			}
			flags.APIURL = args[i+1]
			i++
		case strings.HasPrefix(arg, "--api="):
			flags.APIURL = strings.TrimPrefix(arg, "--api=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func loadConfig(global globalFlags) *config.Config {
	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(fmt.Errorf("failed to load config: %w", err))
	}
	return cfg
}

// setupTelemetry initializes tracing and metrics per config and returns the
// shutdown hook. Disabled exporters still configure slog.
func setupTelemetry(cfg *config.Config, disable bool) func() {
	exporter := cfg.Telemetry.Exporter
	if disable || exporter == "" {
		exporter = "none"
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.InitWithConfig(cfg.App.Name, version, telemetry.Config{
		Exporter:           exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		OTLPHeaders:        cfg.Telemetry.OTLPHeaders,
	})
	if err != nil {
		fatal(fmt.Errorf("failed to init telemetry: %w", err))
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func truncateCell(value string, limit int) string {
	value = normalizeCell(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}

func printVersion() {
	fmt.Println(version)
}

func printUsage() {
	fmt.Println(`Telos — goal-driven agent runtime

Usage:
  telos [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Config profile (dev, prod)
  --set key=value      Override config (repeatable)
  --api <url>          Admin API base URL for approvals/traces commands
  --timeout <dur>      Request timeout (default 30s)
  --json               JSON output

Commands:
  run -goal "..." [-plan <file>] [-session <id>] [-approval-mode auto|console|deny|off]
      [-approval-timeout <dur>] [-max-steps N] [-no-telemetry]
  chat [-session <id>]
  ingest -path <file-or-dir> [-collection <name>]
  approvals list [-status <status>]
  approvals approve <id> [-reason <text>]
  approvals reject <id> [-reason <text>]
  traces list
  traces show <run_id> [-follow]
  skills list
  serve [-watch] [-addr <host:port>]
  mcp serve
  version
  help`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args))
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
