package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// defaultProbeTimeoutMs is used when the policy gives no sharper signal
// (verifyCompletion is false, so verificationTimeoutSeconds has no
// natural meaning for this run). One hour comfortably covers a normal
// subagent task without blocking process shutdown forever; this value is
// chosen by this package, not named by spec.md.
const defaultProbeTimeoutMs = 60 * 60 * 1000

// probeTimeoutMs derives the agent.wait timeout from policy (spec §4.4).
func probeTimeoutMs(cfg OrchestrationConfig) int {
	if cfg.VerifyCompletion && cfg.VerificationTimeoutSeconds > 0 {
		return cfg.VerificationTimeoutSeconds * 1000
	}
	return defaultProbeTimeoutMs
}

// armProber launches a cooperative one-shot agent.wait RPC for runID.
// Its outer deadline is timeout+10s to survive jitter (spec §5).
func (e *Engine) armProber(runID string, cfg OrchestrationConfig) {
	if e.gateway == nil {
		return
	}
	timeoutMs := probeTimeoutMs(cfg)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("prober_panic", map[string]interface{}{"run_id": runID, "panic": fmt.Sprint(r)})
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs+10_000)*time.Millisecond)
		defer cancel()

		result, err := e.gateway.Wait(ctx, runID, timeoutMs)
		if err != nil {
			e.logger.Warn("wait_probe_failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
			return
		}

		if result.StartedAt != nil {
			e.applyStart(runID, result.StartedAt)
		}

		switch result.Status {
		case "ok":
			e.applyTerminal(runID, result.EndedAt, Outcome{Status: OutcomeOK})
		case "error":
			e.applyTerminal(runID, result.EndedAt, Outcome{Status: OutcomeError, Error: result.Error})
		default:
			// Any other status (e.g. still running when the outer context
			// expired) is not a terminal signal; the record is left as-is
			// for a future signal to resolve.
		}
	}()
}
