// Package natsgw is the production wiring of the orchestrator's Gateway
// and EventBus contracts over NATS request-reply and pub-sub, per
// SPEC_FULL §3/§4.2: agent.start/agent.query/agent.wait/sessions.delete
// as request-reply subjects, and lifecycle.> as a subscription stream.
package natsgw

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/chloemays/openclaw/internal/orchestrator"
)

// Gateway implements orchestrator.Gateway over NATS request-reply.
type Gateway struct {
	nc *nats.Conn
}

// NewGateway wraps an already-connected NATS client.
func NewGateway(nc *nats.Conn) *Gateway {
	return &Gateway{nc: nc}
}

type startRequest struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
	RunID  string `json:"runId"`
}

type errorReply struct {
	Error string `json:"error,omitempty"`
}

// Start issues agent.start and treats a non-empty Error field in the
// reply as failure (spec §6: "success/failure by absence of error").
func (g *Gateway) Start(ctx context.Context, key, prompt, runID string) error {
	data, err := json.Marshal(startRequest{Key: key, Prompt: prompt, RunID: runID})
	if err != nil {
		return fmt.Errorf("failed to encode agent.start request: %w", err)
	}

	msg, err := g.nc.RequestWithContext(ctx, "agent.start", data)
	if err != nil {
		return fmt.Errorf("agent.start request failed: %w", err)
	}

	var reply errorReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("failed to decode agent.start reply: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("agent.start: %s", reply.Error)
	}
	return nil
}

type queryRequest struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
}

type queryReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Query issues agent.query against an existing child session.
func (g *Gateway) Query(ctx context.Context, key, prompt string) (string, error) {
	data, err := json.Marshal(queryRequest{Key: key, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to encode agent.query request: %w", err)
	}

	msg, err := g.nc.RequestWithContext(ctx, "agent.query", data)
	if err != nil {
		return "", fmt.Errorf("agent.query request failed: %w", err)
	}

	var reply queryReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("failed to decode agent.query reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("agent.query: %s", reply.Error)
	}
	return reply.Reply, nil
}

type waitRequest struct {
	RunID     string `json:"runId"`
	TimeoutMs int    `json:"timeoutMs"`
}

type waitReply struct {
	Status    string `json:"status"`
	StartedAt *int64 `json:"startedAt,omitempty"`
	EndedAt   *int64 `json:"endedAt,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Wait issues agent.wait and blocks (from the caller's perspective) for
// the NATS round trip, which the orchestrator bounds with its own outer
// context deadline (spec §5: timeout+10s).
func (g *Gateway) Wait(ctx context.Context, runID string, timeoutMs int) (orchestrator.WaitResult, error) {
	data, err := json.Marshal(waitRequest{RunID: runID, TimeoutMs: timeoutMs})
	if err != nil {
		return orchestrator.WaitResult{}, fmt.Errorf("failed to encode agent.wait request: %w", err)
	}

	msg, err := g.nc.RequestWithContext(ctx, "agent.wait", data)
	if err != nil {
		return orchestrator.WaitResult{}, fmt.Errorf("agent.wait request failed: %w", err)
	}

	var reply waitReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return orchestrator.WaitResult{}, fmt.Errorf("failed to decode agent.wait reply: %w", err)
	}

	return orchestrator.WaitResult{
		Status:    reply.Status,
		StartedAt: reply.StartedAt,
		EndedAt:   reply.EndedAt,
		Error:     reply.Error,
	}, nil
}

type deleteSessionRequest struct {
	Key              string `json:"key"`
	DeleteTranscript bool   `json:"deleteTranscript"`
}

// DeleteSession issues sessions.delete, used by the sweeper on archival.
func (g *Gateway) DeleteSession(ctx context.Context, key string, deleteTranscript bool) error {
	data, err := json.Marshal(deleteSessionRequest{Key: key, DeleteTranscript: deleteTranscript})
	if err != nil {
		return fmt.Errorf("failed to encode sessions.delete request: %w", err)
	}

	msg, err := g.nc.RequestWithContext(ctx, "sessions.delete", data)
	if err != nil {
		return fmt.Errorf("sessions.delete request failed: %w", err)
	}

	var reply errorReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("failed to decode sessions.delete reply: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("sessions.delete: %s", reply.Error)
	}
	return nil
}
