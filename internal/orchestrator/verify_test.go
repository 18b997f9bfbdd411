package orchestrator

import (
	"context"
	"testing"
)

func TestClassifyVerificationReply(t *testing.T) {
	cases := []struct {
		reply string
		want  VerificationResult
	}{
		{"Yes, the task completed successfully.", VerificationPassed},
		{"completed successfully, all good", VerificationPassed},
		{"No, the file is missing", VerificationFailed},
		{"The task failed because of a timeout", VerificationFailed},
		{"incomplete: missing step 3", VerificationFailed},
		{"I'm not sure what happened here", VerificationPassed},
	}

	for _, c := range cases {
		got := classifyVerificationReply(c.reply)
		if got.result != c.want {
			t.Errorf("classify(%q) = %q, want %q", c.reply, got.result, c.want)
		}
	}
}

func TestClassifyVerificationReply_ReasonTruncated(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	reply := "no " + string(long)
	got := classifyVerificationReply(reply)
	if got.result != VerificationFailed {
		t.Fatalf("expected failed verdict, got %q", got.result)
	}
	if len(got.reason) > 200 {
		t.Errorf("expected reason truncated to 200 chars, got %d", len(got.reason))
	}
}

// TestEvaluateVerdict_HookMissingSkips covers spec §4.7: a configured
// hook name with no registered implementation yields a skip, not a
// crash or a silent pass-through to the query path.
func TestEvaluateVerdict_HookMissingSkips(t *testing.T) {
	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := newTestEngine(t, gw, bus, ann, nil)

	rec := &RunRecord{
		RunID:   "run-hook",
		Outcome: &Outcome{Status: OutcomeOK},
	}
	cfg := OrchestrationConfig{VerificationHook: "does-not-exist"}

	vo := e.evaluateVerdict(context.Background(), rec, cfg)
	if vo.result != VerificationSkipped {
		t.Errorf("expected skipped, got %q", vo.result)
	}
}

// TestEvaluateVerdict_AlreadyErrorShortCircuits covers the defensive
// branch: an outcome that is already an error fails verification without
// consulting the gateway.
func TestEvaluateVerdict_AlreadyErrorShortCircuits(t *testing.T) {
	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := newTestEngine(t, gw, bus, ann, nil)

	rec := &RunRecord{
		RunID:   "run-already-error",
		Outcome: &Outcome{Status: OutcomeError, Error: "boom"},
	}
	cfg := OrchestrationConfig{VerificationPrompt: "done?"}

	vo := e.evaluateVerdict(context.Background(), rec, cfg)
	if vo.result != VerificationFailed || vo.reason != "boom" {
		t.Errorf("expected failed/boom, got %+v", vo)
	}
	if len(gw.queryCalls) != 0 {
		t.Error("expected the gateway query path to be skipped")
	}
}

// TestEvaluateVerdict_NoPromptPassesByDefault covers the final
// pass-by-default branch.
func TestEvaluateVerdict_NoPromptPassesByDefault(t *testing.T) {
	gw := newFakeGateway()
	bus := newFakeBus()
	ann := newFakeAnnouncer(true)
	e := newTestEngine(t, gw, bus, ann, nil)

	rec := &RunRecord{RunID: "run-no-prompt", Outcome: &Outcome{Status: OutcomeOK}}
	vo := e.evaluateVerdict(context.Background(), rec, OrchestrationConfig{})
	if vo.result != VerificationPassed {
		t.Errorf("expected passed, got %q", vo.result)
	}
}
