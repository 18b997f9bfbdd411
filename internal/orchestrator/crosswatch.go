package orchestrator

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// noteOwnWrite records that this process itself just persisted
// generation gen, so the watcher ignores the resulting fsnotify event.
func (e *Engine) noteOwnWrite(gen int64) {
	e.mu.Lock()
	e.lastOwnGeneration = gen
	e.mu.Unlock()
}

// StartCrossWatch watches the persistence file's directory (not the file
// handle, since every save recreates it via rename) and reconciles
// terminal records written by a sibling process sharing the same state
// directory. This directly serves the cross-process lifecycle event
// reconciliation line named in spec §1, adapted from the teacher's
// replay.Pager.RunLive debounce loop (fsnotify + a short settle sleep
// before re-reading the file, since a rename can be observed mid-write
// on some filesystems).
func (e *Engine) StartCrossWatch() error {
	dir := filepath.Dir(e.store.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-e.watchStop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(e.store.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				time.Sleep(50 * time.Millisecond)
				e.reconcileFromDisk()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.Warn("crosswatch_error", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
	return nil
}

func (e *Engine) stopCrossWatch() {
	select {
	case <-e.watchStop:
		// already closed
	default:
		close(e.watchStop)
	}
}

// reconcileFromDisk adopts terminal records a sibling process finished,
// and drops local records the sibling already removed. It deliberately
// never re-runs announce/cleanup for anything it adopts: those side
// effects belong to whichever process actually drove the run to
// completion.
func (e *Engine) reconcileFromDisk() {
	loaded, gen, err := e.store.load()
	if err != nil {
		e.logger.PersistError("crosswatch_load", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != 0 && gen == e.lastOwnGeneration {
		return
	}

	for id, rec := range loaded {
		local, exists := e.records[id]
		if !exists {
			continue // a foreign-only record with no local registration is not ours to adopt
		}
		if local.isTerminal() {
			continue
		}
		if rec.CleanupCompletedAt != nil {
			e.records[id] = rec
		}
	}
	for id := range e.records {
		if _, stillOnDisk := loaded[id]; !stillOnDisk {
			delete(e.records, id)
			delete(e.resumedRuns, id)
		}
	}
}
