package orchestrator

// restore implements spec §4.10: read the snapshot exactly once per
// process, merge into the in-memory map without overwriting any record
// already registered this process (register-then-restore favours
// register), and resume each restored record at the right point in the
// state machine. resumedRuns prevents double-resume; per the Open
// Question decision in DESIGN.md it is trimmed whenever a record is
// deleted, so a reused runId after deletion is resumeable again.
func (e *Engine) restore() error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	e.mu.Unlock()

	loaded, gen, err := e.store.load()
	if err != nil {
		// Persistence errors are swallowed as operational warnings (spec
		// §4.2/§7); the engine starts with an empty registry rather than
		// failing to boot.
		e.logger.PersistError("load", err)
		return nil
	}

	e.mu.Lock()
	if gen > e.generation {
		e.generation = gen
	}
	var toResume []*RunRecord
	for id, rec := range loaded {
		if _, exists := e.records[id]; exists {
			continue
		}
		if e.resumedRuns[id] {
			continue
		}
		e.records[id] = rec
		e.resumedRuns[id] = true
		toResume = append(toResume, rec.clone())
	}
	e.mu.Unlock()

	for _, rec := range toResume {
		switch {
		case rec.CleanupCompletedAt != nil:
			// Already terminal; nothing to do.
		case rec.EndedAt != nil:
			e.beginCleanupAndAnnounce(rec.RunID)
		default:
			e.armProber(rec.RunID, rec.OrchestrationConfig)
		}
	}
	return nil
}
