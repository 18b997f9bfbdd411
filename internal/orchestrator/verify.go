package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// verdictOutcome is the internal result of evaluateVerdict, before it is
// written into the record's VerificationResult field.
type verdictOutcome struct {
	result VerificationResult
	reason string
}

// enterVerification starts the verification pipeline for runID, guarded
// by pendingVerifications so a racing signal cannot run it twice (spec
// §4.5, §5).
func (e *Engine) enterVerification(runID string) {
	e.mu.Lock()
	if e.pendingVerifications[runID] {
		e.mu.Unlock()
		return
	}
	e.pendingVerifications[runID] = true
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.pendingVerifications, runID)
			e.mu.Unlock()
			if r := recover(); r != nil {
				e.logger.Error("verification_panic", map[string]interface{}{"run_id": runID, "panic": fmt.Sprint(r)})
			}
		}()
		e.runVerification(runID)
	}()
}

// runVerification implements spec §4.7 in full: hook lookup, the
// already-error defensive check, the built-in agent-query path, and the
// default pass, followed by the pass/fail/retry branching.
func (e *Engine) runVerification(runID string) {
	rec := e.snapshot(runID)
	if rec == nil || rec.isTerminal() {
		return
	}
	cfg := rec.OrchestrationConfig

	e.mutateIfLive(runID, func(r *RunRecord) { r.VerificationAttempted = true })
	e.persist()

	timeout := time.Duration(cfg.VerificationTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, span := e.startVerifySpan(context.Background(), runID, rec.RetryCount)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vo := e.evaluateVerdict(ctx, rec, cfg)
	e.logger.VerificationVerdict(runID, string(vo.result), vo.reason)

	if !e.mutateIfLive(runID, func(r *RunRecord) { r.VerificationResult = vo.result }) {
		return
	}
	e.persist()

	if vo.result != VerificationFailed {
		// Passed, or skipped (treated as passed per spec §4.7).
		e.beginCleanupAndAnnounce(runID)
		return
	}

	if cfg.RetryOnVerificationFailure {
		if !e.mutateIfLive(runID, func(r *RunRecord) {
			r.Outcome = &Outcome{Status: OutcomeError, Error: "Verification failed: " + vo.reason}
		}) {
			return
		}
		e.persist()
		e.evaluatePostCompletion(runID)
		return
	}
	e.beginCleanupAndAnnounce(runID)
}

// evaluateVerdict applies spec §4.7's selection order: named hook,
// then the already-error defensive check, then built-in agent-query
// verification, then pass-by-default.
func (e *Engine) evaluateVerdict(ctx context.Context, rec *RunRecord, cfg OrchestrationConfig) verdictOutcome {
	if cfg.VerificationHook != "" {
		hook, found := e.hooks.lookup(cfg.VerificationHook)
		if !found {
			return verdictOutcome{result: VerificationSkipped}
		}
		return e.runHook(ctx, hook, rec)
	}

	if rec.Outcome != nil && rec.Outcome.Status == OutcomeError {
		return verdictOutcome{result: VerificationFailed, reason: rec.Outcome.Error}
	}

	if cfg.VerificationPrompt != "" {
		if e.gateway == nil {
			return verdictOutcome{result: VerificationPassed}
		}
		reply, err := e.gateway.Query(ctx, rec.ChildSessionKey, cfg.VerificationPrompt)
		if err != nil {
			return verdictOutcome{result: VerificationFailed, reason: err.Error()}
		}
		return classifyVerificationReply(reply)
	}

	return verdictOutcome{result: VerificationPassed}
}

// runHook invokes a registered hook, racing it against ctx's deadline
// (spec §4.7: "race against the timeout").
func (e *Engine) runHook(ctx context.Context, hook HookFunc, rec *RunRecord) verdictOutcome {
	type hookResult struct {
		v   HookVerdict
		err error
	}
	ch := make(chan hookResult, 1)

	outcome := Outcome{}
	if rec.Outcome != nil {
		outcome = *rec.Outcome
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- hookResult{err: fmt.Errorf("verification hook panicked: %v", r)}
			}
		}()
		v, err := hook(rec.RunID, rec.Task, outcome, rec)
		ch <- hookResult{v: v, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return verdictOutcome{result: VerificationFailed, reason: res.err.Error()}
		}
		if res.v.Passed {
			return verdictOutcome{result: VerificationPassed}
		}
		return verdictOutcome{result: VerificationFailed, reason: res.v.Reason}
	case <-ctx.Done():
		return verdictOutcome{result: VerificationFailed, reason: "verification hook timed out"}
	}
}

// classifyVerificationReply implements spec §4.7's reply classification,
// grounded on the teacher's parseSupervisionResponse prefix/contains
// matching (internal/supervision/supervisor.go).
func classifyVerificationReply(reply string) verdictOutcome {
	trimmed := strings.TrimSpace(reply)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "yes") || strings.Contains(lower, "completed successfully"):
		return verdictOutcome{result: VerificationPassed}
	case strings.HasPrefix(lower, "no") || strings.Contains(lower, "failed") || strings.Contains(lower, "incomplete"):
		reason := trimmed
		if len(reason) > 200 {
			reason = reason[:200]
		}
		return verdictOutcome{result: VerificationFailed, reason: reason}
	default:
		return verdictOutcome{result: VerificationPassed, reason: "unclear response"}
	}
}
