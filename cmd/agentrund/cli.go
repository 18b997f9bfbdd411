// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface for the orchestration daemon.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Run the orchestration daemon"`
	List    ListCmd    `cmd:"" help:"List live runs for a requester session"`
	Sweep   SweepCmd   `cmd:"" help:"Force one archival sweep pass and exit"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ServeCmd starts the daemon: restores persisted runs, subscribes to the
// lifecycle event bus, and blocks until interrupted.
type ServeCmd struct {
	Config  string `help:"Config file path" default:"agentrund.toml"`
	NatsURL string `help:"NATS server URL" default:"nats://127.0.0.1:4222" env:"AGENTRUND_NATS_URL"`
}

// ListCmd prints live runs for a requester session key as JSON.
type ListCmd struct {
	Config    string `help:"Config file path" default:"agentrund.toml"`
	Requester string `arg:"" help:"Requester session key"`
}

// SweepCmd forces one archival sweep pass without starting the daemon loop.
type SweepCmd struct {
	Config string `help:"Config file path" default:"agentrund.toml"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
