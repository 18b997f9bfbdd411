package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"
)

// backoffDelayMs implements spec §4.6 step 1: delay =
// min(initialDelayMs * backoffMultiplier^retryCount, maxDelayMs), where
// retryCount is the number of retries already completed (pre-increment;
// the backoff convention fixed in DESIGN.md's Open Question decisions).
func backoffDelayMs(cfg OrchestrationConfig, retryCount int) int64 {
	delay := float64(cfg.InitialDelayMs) * math.Pow(cfg.BackoffMultiplier, float64(retryCount))
	if delay > float64(cfg.MaxDelayMs) {
		return int64(cfg.MaxDelayMs)
	}
	return int64(delay)
}

// buildRetryPrompt constructs the five-part retry prompt described in
// spec §4.6 step 4: attempt header, fenced previous-error block,
// directive paragraph, fenced original task, closing line.
func buildRetryPrompt(attempt, maxRetries int, prevError, task string) string {
	if prevError == "" {
		prevError = "Unknown error"
	}
	return fmt.Sprintf(
		"[RETRY ATTEMPT %d/%d]\n\n"+
			"The previous attempt failed with the following error:\n```\n%s\n```\n\n"+
			"Try a different approach this time. Do not repeat the same steps that led to "+
			"the error above; identify what went wrong and change course before proceeding.\n\n"+
			"Original task:\n```\n%s\n```\n\n"+
			"Complete the task above, accounting for the previous failure.",
		attempt, maxRetries, prevError, task,
	)
}

// scheduleRetry enqueues a retry, guarded by pendingRetries so a racing
// listener/prober signal cannot double-schedule (spec §4.5, §5).
func (e *Engine) scheduleRetry(runID string) {
	e.mu.Lock()
	if e.pendingRetries[runID] {
		e.mu.Unlock()
		return
	}
	e.pendingRetries[runID] = true
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.pendingRetries, runID)
			e.mu.Unlock()
			if r := recover(); r != nil {
				e.logger.Error("retry_panic", map[string]interface{}{"run_id": runID, "panic": fmt.Sprint(r)})
			}
		}()
		e.runRetry(runID)
	}()
}

// runRetry is the full retry sequence of spec §4.6, steps 1-7.
func (e *Engine) runRetry(runID string) {
	rec := e.snapshot(runID)
	if rec == nil || rec.isTerminal() {
		return
	}
	cfg := rec.OrchestrationConfig

	delay := backoffDelayMs(cfg, rec.RetryCount)
	attempt := rec.RetryCount + 1
	nextRetryAt := nowMs() + delay

	if !e.mutateIfLive(runID, func(r *RunRecord) {
		r.RetryCount = attempt
		r.NextRetryAt = &nextRetryAt
	}) {
		return
	}
	e.persist()
	e.logger.RetryScheduled(runID, attempt, time.Duration(delay)*time.Millisecond)

	time.Sleep(time.Duration(delay) * time.Millisecond)

	cur := e.snapshot(runID)
	if cur == nil || cur.isTerminal() {
		// Record gone or already in terminal cleanup: abandon (spec §5
		// cancellation rule).
		return
	}

	prevErr := ""
	if cur.Outcome != nil {
		prevErr = cur.Outcome.Error
	}
	prompt := buildRetryPrompt(attempt, cur.MaxRetries, prevErr, cur.Task)

	startedAt := nowMs()
	if !e.mutateIfLive(runID, func(r *RunRecord) {
		r.EndedAt = nil
		r.Outcome = nil
		r.CleanupHandled = false
		r.StartedAt = &startedAt
		r.IsRetry = true
	}) {
		return
	}
	e.persist()

	retryRunID := fmt.Sprintf("%s-retry-%d", runID, attempt)

	ctx, span := e.startRetrySpan(context.Background(), runID, attempt)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var dispatchErr error
	if e.gateway != nil {
		dispatchErr = e.gateway.Start(ctx, cur.ChildSessionKey, prompt, retryRunID)
	}
	e.logger.RetryDispatched(runID, retryRunID, dispatchErr)
	// Dispatch failures are logged and left as-is; the next completion
	// signal re-evaluates the record (spec §4.6 closing note).

	e.armProber(runID, cur.OrchestrationConfig)
}

// mutateIfLive applies fn to the live record under lock, skipping (and
// reporting false) if the record is gone or already terminal.
func (e *Engine) mutateIfLive(runID string, fn func(*RunRecord)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[runID]
	if !ok || rec.isTerminal() {
		return false
	}
	fn(rec)
	return true
}
