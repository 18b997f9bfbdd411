package orchestrator

import "fmt"

// handleEvent is the subscription callback passed to EventBus.Subscribe.
// Only stream=="lifecycle" events for a known runId are acted on; every
// other combination is a silent no-op (spec §4.3, §7).
func (e *Engine) handleEvent(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listener_panic", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()

	if ev.Stream != "lifecycle" {
		return
	}
	e.logger.LifecycleEvent(ev.RunID, "bus", string(ev.Data.Phase))

	switch ev.Data.Phase {
	case PhaseStart:
		e.applyStart(ev.RunID, ev.Data.StartedAt)
	case PhaseEnd:
		e.applyTerminal(ev.RunID, ev.Data.EndedAt, Outcome{Status: OutcomeOK})
	case PhaseError:
		e.applyTerminal(ev.RunID, ev.Data.EndedAt, Outcome{Status: OutcomeError, Error: ev.Data.Error})
	}
}

// applyStart records a startedAt observation. A record that has already
// reached cleanupCompletedAt ignores it (invariant 6).
func (e *Engine) applyStart(runID string, startedAt *int64) {
	if startedAt == nil {
		return
	}
	e.mu.Lock()
	rec, ok := e.records[runID]
	if !ok || rec.isTerminal() {
		e.mu.Unlock()
		return
	}
	v := *startedAt
	rec.StartedAt = &v
	e.mu.Unlock()
	e.persist()
}

// applyTerminal is the shared terminal-transition path used by the
// listener, the wait prober, and the verification pipeline's outcome
// rewrite. It is idempotent: a record that already reached
// cleanupCompletedAt is left untouched, which is what keeps the listener
// and the prober from resurrecting a finished run if they race (spec
// §4.3, §4.4, §5). Conflicting timestamps from a racing source are
// resolved last-writer-wins, per the open-question decision in
// DESIGN.md.
func (e *Engine) applyTerminal(runID string, endedAtOverride *int64, outcome Outcome) {
	e.mu.Lock()
	rec, ok := e.records[runID]
	if !ok || rec.isTerminal() {
		e.mu.Unlock()
		return
	}
	endedAt := nowMs()
	if endedAtOverride != nil {
		endedAt = *endedAtOverride
	}
	rec.EndedAt = &endedAt
	rec.Outcome = &outcome
	e.mu.Unlock()

	e.persist()
	e.evaluatePostCompletion(runID)
}

// shouldRetry implements spec §4.5's retry predicate.
func shouldRetry(rec *RunRecord) bool {
	return rec.OrchestrationConfig.RetryOnFailure &&
		rec.RetryCount < rec.MaxRetries &&
		rec.Outcome != nil &&
		rec.Outcome.Status == OutcomeError
}

// evaluatePostCompletion applies spec §4.5's ordered policy on every
// terminal transition: retry, then verification, then cleanup.
func (e *Engine) evaluatePostCompletion(runID string) {
	rec := e.snapshot(runID)
	if rec == nil || rec.isTerminal() || rec.Outcome == nil {
		return
	}

	if rec.Outcome.Status == OutcomeError && shouldRetry(rec) {
		e.scheduleRetry(runID)
		return
	}
	if rec.Outcome.Status == OutcomeOK && rec.OrchestrationConfig.VerifyCompletion {
		e.enterVerification(runID)
		return
	}
	e.beginCleanupAndAnnounce(runID)
}
