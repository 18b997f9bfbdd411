package orchestrator

import "context"

// WaitResult is the reply shape of the gateway's agent.wait RPC (spec §6).
type WaitResult struct {
	Status    string
	StartedAt *int64
	EndedAt   *int64
	Error     string
}

// Gateway is the single external call surface the engine consumes to
// start, query, and wait on child agent runs, and to delete sessions
// once a run is swept. It is a black box from the engine's perspective;
// internal/transport/natsgw is the production implementation.
type Gateway interface {
	// Start issues agent.start for a (possibly retry-derived) runID.
	Start(ctx context.Context, key, prompt, runID string) error
	// Query issues agent.query against an existing session, used by the
	// built-in verification path.
	Query(ctx context.Context, key, prompt string) (reply string, err error)
	// Wait issues agent.wait, blocking (from the caller's perspective) up
	// to timeoutMs for the run to terminate.
	Wait(ctx context.Context, runID string, timeoutMs int) (WaitResult, error)
	// DeleteSession issues sessions.delete, best-effort, from the sweeper.
	DeleteSession(ctx context.Context, key string, deleteTranscript bool) error
}
