package orchestrator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chloemays/openclaw/internal/logging"
)

// TestRestore_TerminalRecordsUntouched covers testable property 5's first
// clause: a record with cleanupCompletedAt already set is restored as-is
// and never re-announced.
func TestRestore_TerminalRecordsUntouched(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "runs.json")
	s := newStore(statePath)

	completedAt := int64(999)
	rec := &RunRecord{
		RunID:               "run-terminal",
		ChildSessionKey:     "child",
		RequesterSessionKey: "req",
		Task:                "done long ago",
		Cleanup:             CleanupKeep,
		CreatedAt:           1,
		CleanupHandled:      true,
		CleanupCompletedAt:  &completedAt,
		OrchestrationConfig: defaultOrchestrationConfig(),
	}
	if err := s.save(map[string]*RunRecord{"run-terminal": rec}, 1); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := New(Options{StatePath: statePath, Gateway: gw, Bus: bus, Announcer: ann, Logger: quietLogger()})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(e.Stop)

	time.Sleep(50 * time.Millisecond) // let any erroneous restore work surface
	if ann.callCount() != 0 {
		t.Errorf("expected no announce for an already-terminal record, got %d", ann.callCount())
	}
	got := e.snapshot("run-terminal")
	if got == nil || got.CleanupCompletedAt == nil {
		t.Fatal("expected terminal record to remain present and terminal")
	}
}

// TestRestore_EndedWithoutCleanup_TriggersAnnounce covers testable
// property 5's second clause.
func TestRestore_EndedWithoutCleanup_TriggersAnnounce(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "runs.json")
	s := newStore(statePath)

	endedAt := int64(200)
	rec := &RunRecord{
		RunID:               "run-ended",
		ChildSessionKey:     "child",
		RequesterSessionKey: "req",
		Task:                "finished before the restart",
		Cleanup:             CleanupKeep,
		CreatedAt:           1,
		EndedAt:             &endedAt,
		Outcome:             &Outcome{Status: OutcomeOK},
		OrchestrationConfig: defaultOrchestrationConfig(),
	}
	if err := s.save(map[string]*RunRecord{"run-ended": rec}, 1); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := New(Options{StatePath: statePath, Gateway: gw, Bus: bus, Announcer: ann, Logger: quietLogger()})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(e.Stop)

	waitUntil(t, 2*time.Second, func() bool { return ann.callCount() == 1 })
}

// TestRestore_StartedOnly_RearmsProber covers testable property 5's
// third clause: a record with only startedAt re-arms the wait prober
// rather than treating the restore itself as a terminal signal.
func TestRestore_StartedOnly_RearmsProber(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "runs.json")
	s := newStore(statePath)

	startedAt := int64(150)
	rec := &RunRecord{
		RunID:               "run-started",
		ChildSessionKey:     "child",
		RequesterSessionKey: "req",
		Task:                "still running at restart",
		Cleanup:             CleanupKeep,
		CreatedAt:           1,
		StartedAt:           &startedAt,
		OrchestrationConfig: defaultOrchestrationConfig(),
	}
	if err := s.save(map[string]*RunRecord{"run-started": rec}, 1); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := New(Options{StatePath: statePath, Gateway: gw, Bus: bus, Announcer: ann, Logger: quietLogger()})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(e.Stop)

	gw.complete("run-started", WaitResult{Status: "ok", EndedAt: int64Ptr(300)})
	waitUntil(t, 2*time.Second, func() bool { return ann.callCount() == 1 })
}

// TestNoMutationAfterTerminal covers testable property 6: once
// cleanupCompletedAt is set, further lifecycle events are no-ops.
func TestNoMutationAfterTerminal(t *testing.T) {
	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := newTestEngine(t, gw, bus, ann, nil)

	if err := e.Register(RegisterParams{
		RunID:               "run-locked",
		ChildSessionKey:     "child",
		RequesterSessionKey: "req",
		Task:                "finish once",
		Cleanup:             CleanupKeep,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	bus.fire(Event{Stream: "lifecycle", RunID: "run-locked", Data: EventData{Phase: PhaseEnd}})
	waitUntil(t, 2*time.Second, func() bool {
		rec := e.snapshot("run-locked")
		return rec != nil && rec.CleanupCompletedAt != nil
	})

	before := e.snapshot("run-locked")

	// A late-arriving, stale error signal must not resurrect the run.
	bus.fire(Event{Stream: "lifecycle", RunID: "run-locked", Data: EventData{Phase: PhaseError, Error: "late straggler"}})
	time.Sleep(50 * time.Millisecond)

	after := e.snapshot("run-locked")
	if after.Outcome.Status != before.Outcome.Status {
		t.Errorf("outcome changed after terminal: before=%+v after=%+v", before.Outcome, after.Outcome)
	}
	if after.CleanupCompletedAt == nil || *after.CleanupCompletedAt != *before.CleanupCompletedAt {
		t.Error("expected cleanupCompletedAt to remain unchanged")
	}
	if ann.callCount() != 1 {
		t.Errorf("expected exactly one announce despite the late signal, got %d", ann.callCount())
	}
}

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetLevel(logging.LevelError)
	return l
}

func int64Ptr(v int64) *int64 { return &v }
