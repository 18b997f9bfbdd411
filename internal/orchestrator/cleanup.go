package orchestrator

import (
	"context"
	"time"
)

// RunSummary is the payload delivered to the Announcer: the entire run
// summary named in spec §4.8 (child session key, original run-ID,
// requester keys/origin, task, timings, label, outcome, retryCount, and
// verificationResult).
type RunSummary struct {
	RunID               string
	ChildSessionKey     string
	RequesterSessionKey string
	RequesterOrigin     string
	RequesterDisplayKey string
	Task                string
	Label               string
	CreatedAt           int64
	StartedAt           *int64
	EndedAt             *int64
	Outcome             *Outcome
	RetryCount          int
	VerificationResult  VerificationResult
}

func summaryFromRecord(rec *RunRecord) RunSummary {
	return RunSummary{
		RunID:               rec.RunID,
		ChildSessionKey:     rec.ChildSessionKey,
		RequesterSessionKey: rec.RequesterSessionKey,
		RequesterOrigin:     rec.RequesterOrigin,
		RequesterDisplayKey: rec.RequesterDisplayKey,
		Task:                rec.Task,
		Label:               rec.Label,
		CreatedAt:           rec.CreatedAt,
		StartedAt:           rec.StartedAt,
		EndedAt:             rec.EndedAt,
		Outcome:             rec.Outcome,
		RetryCount:          rec.RetryCount,
		VerificationResult:  rec.VerificationResult,
	}
}

// beginCleanup is the exactly-once guard from spec §4.8: it returns true
// only if the record exists, is not cleanupCompletedAt, and is not
// already cleanupHandled, atomically setting cleanupHandled=true under
// the engine lock and persisting once the lock is released. Callers must
// not proceed on false.
func (e *Engine) beginCleanup(runID string) bool {
	e.mu.Lock()
	rec, ok := e.records[runID]
	if !ok || rec.isTerminal() || rec.CleanupHandled {
		e.mu.Unlock()
		return false
	}
	rec.CleanupHandled = true
	e.mu.Unlock()

	e.persist()
	return true
}

// beginCleanupAndAnnounce runs the guard, the announce flow, and
// finalisation (spec §4.8).
func (e *Engine) beginCleanupAndAnnounce(runID string) {
	if !e.beginCleanup(runID) {
		return
	}
	e.logger.CleanupBegun(runID)

	rec := e.snapshot(runID)
	if rec == nil {
		return
	}
	summary := summaryFromRecord(rec)

	announceOK := true
	if e.announcer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		announceOK = e.announcer.Announce(ctx, summary)
		cancel()
	}

	e.finalizeCleanup(runID, announceOK)
}

// finalizeCleanup implements spec §4.8's finalisation rules.
func (e *Engine) finalizeCleanup(runID string, announceOK bool) {
	e.mu.Lock()
	rec, ok := e.records[runID]
	if !ok {
		e.mu.Unlock()
		return
	}

	deleted := false
	switch {
	case rec.Cleanup == CleanupDelete:
		delete(e.records, runID)
		delete(e.resumedRuns, runID)
		deleted = true
	case !announceOK:
		rec.CleanupHandled = false
	default:
		now := nowMs()
		rec.CleanupCompletedAt = &now
	}
	e.mu.Unlock()

	e.persist()
	e.logger.CleanupFinalized(runID, deleted, announceOK)
}
