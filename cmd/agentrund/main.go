// Package main is the entry point for the subagent orchestration daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/chloemays/openclaw/internal/announce"
	"github.com/chloemays/openclaw/internal/archive"
	"github.com/chloemays/openclaw/internal/config"
	"github.com/chloemays/openclaw/internal/logging"
	"github.com/chloemays/openclaw/internal/orchestrator"
	"github.com/chloemays/openclaw/internal/transport/natsgw"
)

// Build-time variables (set via ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	switch cmd := ctx.Command(); cmd {
	case "serve":
		runServe(&cli.Serve)
	case "list <requester>":
		runList(&cli.List)
	case "sweep":
		runSweep(&cli.Sweep)
	case "version":
		fmt.Printf("agentrund version %s (commit: %s)\n", version, commit)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		os.Exit(1)
	}
}

// loadConfig reads a daemon config file, tolerating a missing path by
// falling back to hard-coded defaults (spec §4.1).
func loadConfig(path string) *config.Config {
	if path == "" {
		cfg, err := config.LoadDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.New()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func toOrchestrationConfig(c config.OrchestrationCfg) orchestrator.OrchestrationConfig {
	return orchestrator.OrchestrationConfig{
		RetryOnFailure:             c.RetryOnFailure,
		MaxRetries:                 c.MaxRetries,
		BackoffMultiplier:          c.BackoffMultiplier,
		InitialDelayMs:             c.InitialDelayMs,
		MaxDelayMs:                 c.MaxDelayMs,
		VerifyCompletion:           c.VerifyCompletion,
		VerificationPrompt:         c.VerificationPrompt,
		VerificationTimeoutSeconds: c.VerificationTimeoutSeconds,
		RetryOnVerificationFailure: c.RetryOnVerificationFailure,
		VerificationHook:           c.VerificationHook,
	}
}

// installTracerProvider wires a real OTLP/HTTP exporter when telemetry is
// enabled with protocol="otel" (spec §6); otherwise otel's default noop
// global tracer provider is left in place, matching SPEC_FULL §4.7.
func installTracerProvider(cfg config.Telemetry) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Protocol != "otel" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newEngine(cfg *config.Config, natsURL string) (*orchestrator.Engine, *archive.Store, func(), error) {
	nc, err := natsgw.Connect(natsURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	if cfg.Agent.ID == "" {
		// No configured instance identity; mint one for this process's
		// lifetime. The logger attaches it as the run_id field, so it
		// appears on log lines that carry no run_id field of their own.
		cfg.Agent.ID = uuid.NewString()
	}
	logger := logging.New().WithTraceID(cfg.Agent.ID)

	stateDir, err := config.StateDir()
	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}

	archiveStore, err := archive.Open(config.ArchiveDBPath(stateDir))
	if err != nil {
		nc.Close()
		return nil, nil, nil, fmt.Errorf("failed to open archive store: %w", err)
	}

	shutdownTracer, err := installTracerProvider(cfg.Telemetry)
	if err != nil {
		archiveStore.Close()
		nc.Close()
		return nil, nil, nil, err
	}

	sub := cfg.Agents.Defaults.Subagents
	engine := orchestrator.New(orchestrator.Options{
		StatePath:           config.RunsFilePath(stateDir),
		Gateway:             natsgw.NewGateway(nc),
		Bus:                 natsgw.NewBus(nc, logger),
		Announcer:           announce.New(nc, logger),
		Archiver:            archiveStore,
		Logger:              logger,
		DefaultConfig:       toOrchestrationConfig(sub.Orchestration),
		ArchiveAfterMinutes: sub.ArchiveAfterMinutes,
		TracerName:          "github.com/chloemays/openclaw/cmd/agentrund",
	})

	cleanup := func() {
		engine.Stop()
		shutdownTracer(context.Background())
		archiveStore.Close()
		nc.Close()
	}
	return engine, archiveStore, cleanup, nil
}

func runServe(cmd *ServeCmd) {
	cfg := loadConfig(cmd.Config)

	engine, _, cleanup, err := newEngine(cfg, cmd.NatsURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := engine.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error starting engine: %v\n", err)
		os.Exit(1)
	}
	if err := engine.StartCrossWatch(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cross-process watch disabled: %v\n", err)
	}

	fmt.Fprintln(os.Stderr, "agentrund: serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "agentrund: shutting down")
}

func runList(cmd *ListCmd) {
	cfg := loadConfig(cmd.Config)

	engine, _, cleanup, err := newEngine(cfg, "nats://127.0.0.1:4222")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := engine.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error starting engine: %v\n", err)
		os.Exit(1)
	}

	runs := engine.ListForRequester(cmd.Requester)
	out, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding runs: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runSweep(cmd *SweepCmd) {
	cfg := loadConfig(cmd.Config)

	engine, _, cleanup, err := newEngine(cfg, "nats://127.0.0.1:4222")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := engine.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error starting engine: %v\n", err)
		os.Exit(1)
	}

	engine.Sweep()
	fmt.Fprintln(os.Stderr, "agentrund: sweep pass complete")
}
