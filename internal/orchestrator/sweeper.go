package orchestrator

import (
	"context"
	"fmt"
	"time"
)

const sweepInterval = 60 * time.Second

// maybeStartSweeper arms the periodic archival loop whenever any record
// carries an archiveAtMs and the sweeper isn't already running (spec
// §4.9). It is called after every registration and after restore.
func (e *Engine) maybeStartSweeper() {
	e.mu.Lock()
	if e.sweeperRunning {
		e.mu.Unlock()
		return
	}
	needed := false
	for _, rec := range e.records {
		if rec.ArchiveAtMs != nil {
			needed = true
			break
		}
	}
	if !needed {
		e.mu.Unlock()
		return
	}
	e.sweeperRunning = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	e.sweeperStop = stopCh
	e.sweeperDone = doneCh
	e.mu.Unlock()

	go e.runSweeper(stopCh, doneCh)
}

// runSweeper ticks every 60 seconds, archiving past-TTL records, and
// stops itself once the registry is empty (spec §4.9).
func (e *Engine) runSweeper(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.sweeperRunning = false
			e.mu.Unlock()
			e.logger.Error("sweeper_panic", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if e.sweepOnce() {
				e.mu.Lock()
				e.sweeperRunning = false
				e.mu.Unlock()
				return
			}
		}
	}
}

// Sweep forces one sweeper pass immediately, for the "sweep" one-shot
// CLI command (SPEC_FULL §4.1).
func (e *Engine) Sweep() {
	e.sweepOnce()
}

// sweepOnce removes every record past its archiveAtMs, issues a
// best-effort sessions.delete for each, and reports whether the
// registry is now empty.
func (e *Engine) sweepOnce() bool {
	now := nowMs()

	e.mu.Lock()
	var archived []*RunRecord
	for id, rec := range e.records {
		if rec.ArchiveAtMs != nil && *rec.ArchiveAtMs <= now {
			archived = append(archived, rec.clone())
			delete(e.records, id)
			delete(e.resumedRuns, id)
		}
	}
	empty := len(e.records) == 0
	e.mu.Unlock()

	if len(archived) > 0 {
		e.persist()
	}

	for _, rec := range archived {
		e.logger.RunArchived(rec.RunID)
		if e.archiver != nil {
			if err := e.archiver.Append(rec); err != nil {
				e.logger.Warn("archive_append_failed", map[string]interface{}{"run_id": rec.RunID, "error": err.Error()})
			}
		}
		if e.gateway != nil && rec.ChildSessionKey != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = e.gateway.DeleteSession(ctx, rec.ChildSessionKey, true)
			cancel()
		}
	}
	return empty
}
