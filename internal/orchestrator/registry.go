package orchestrator

import "fmt"

// RegisterParams describes a new run at registration time (spec §4.1).
type RegisterParams struct {
	RunID               string
	ChildSessionKey     string
	RequesterSessionKey string
	RequesterOrigin     string
	RequesterDisplayKey string
	Task                string
	Label               string
	Cleanup             CleanupPolicy
	// Override supplies per-call orchestration policy fields; nil fields
	// fall through to the engine's process configuration, itself already
	// overlaid onto the hard-coded defaults (spec §4.1's three layers).
	Override *OrchestrationOverride
	// ArchiveAfterMinutes overrides the engine default for this run; a
	// value <=0 means "never archive". Pass nil to use the engine default.
	ArchiveAfterMinutes *int
}

// Register creates a new record with retryCount=0, cleanupHandled=false,
// persists it, and arms the lifecycle listener and wait prober.
func (e *Engine) Register(p RegisterParams) error {
	if p.RunID == "" {
		return fmt.Errorf("register: runId is required")
	}

	cfg := overlay(e.defaultConfig, p.Override)

	archiveAfterMinutes := e.archiveAfterMinutes
	if p.ArchiveAfterMinutes != nil {
		archiveAfterMinutes = *p.ArchiveAfterMinutes
	}

	created := nowMs()
	rec := &RunRecord{
		RunID:               p.RunID,
		ChildSessionKey:     p.ChildSessionKey,
		RequesterSessionKey: p.RequesterSessionKey,
		RequesterOrigin:     p.RequesterOrigin,
		RequesterDisplayKey: p.RequesterDisplayKey,
		Task:                p.Task,
		Label:               p.Label,
		Cleanup:             p.Cleanup,
		CreatedAt:           created,
		CleanupHandled:      false,
		RetryCount:          0,
		MaxRetries:          cfg.MaxRetries,
		OrchestrationConfig: cfg,
	}
	if archiveAfterMinutes > 0 {
		at := created + int64(archiveAfterMinutes)*60_000
		rec.ArchiveAtMs = &at
	}

	e.mu.Lock()
	e.records[p.RunID] = rec
	e.mu.Unlock()

	e.persist()
	e.logger.RunRegistered(p.RunID, p.ChildSessionKey, p.RequesterSessionKey)

	e.armProber(rec.RunID, cfg)
	e.maybeStartSweeper()
	return nil
}

// Release removes a record unconditionally. Test/admin use only.
func (e *Engine) Release(runID string) bool {
	e.mu.Lock()
	_, ok := e.records[runID]
	if ok {
		delete(e.records, runID)
		delete(e.resumedRuns, runID)
	}
	e.mu.Unlock()
	if ok {
		e.persist()
	}
	return ok
}

// ListForRequester returns a snapshot of every record for a requester
// session key.
func (e *Engine) ListForRequester(requesterSessionKey string) []*RunRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*RunRecord
	for _, rec := range e.records {
		if rec.RequesterSessionKey == requesterSessionKey {
			out = append(out, rec.clone())
		}
	}
	return out
}

// getLocked returns the live record pointer under lock context assumptions;
// callers must hold e.mu or accept the race (used only for read-only
// snapshots taken while the lock is held by the caller).
func (e *Engine) getLocked(runID string) (*RunRecord, bool) {
	rec, ok := e.records[runID]
	return rec, ok
}

// snapshot returns a defensive copy of a record, or nil if absent.
func (e *Engine) snapshot(runID string) *RunRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[runID]
	if !ok {
		return nil
	}
	return rec.clone()
}

// persist writes the full in-memory map to disk, swallowing errors as
// operational warnings per spec §4.2/§7.
func (e *Engine) persist() {
	e.mu.Lock()
	snap := make(map[string]*RunRecord, len(e.records))
	for id, rec := range e.records {
		snap[id] = rec.clone()
	}
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	if err := e.store.save(snap, gen); err != nil {
		e.logger.PersistError("save", err)
		return
	}
	e.noteOwnWrite(gen)
}
