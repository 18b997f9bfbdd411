package orchestrator

import "testing"

func TestHookRegistry_RegisterLookupUnregister(t *testing.T) {
	h := newHookRegistry()

	h.Register("always-pass", func(runID, task string, outcome Outcome, rec *RunRecord) (HookVerdict, error) {
		return HookVerdict{Passed: true}, nil
	})

	fn, ok := h.lookup("always-pass")
	if !ok {
		t.Fatal("expected hook to be found")
	}
	v, err := fn("r1", "t1", Outcome{Status: OutcomeOK}, &RunRecord{})
	if err != nil || !v.Passed {
		t.Errorf("unexpected hook result: %+v, %v", v, err)
	}

	h.Unregister("always-pass")
	if _, ok := h.lookup("always-pass"); ok {
		t.Error("expected hook to be gone after unregister")
	}
}

func TestHookRegistry_Names(t *testing.T) {
	h := newHookRegistry()
	h.Register("a", func(string, string, Outcome, *RunRecord) (HookVerdict, error) { return HookVerdict{}, nil })
	h.Register("b", func(string, string, Outcome, *RunRecord) (HookVerdict, error) { return HookVerdict{}, nil })

	names := h.Names()
	if len(names) != 2 {
		t.Errorf("expected 2 names, got %d: %v", len(names), names)
	}
}

func TestHookRegistry_Reset(t *testing.T) {
	h := newHookRegistry()
	h.Register("a", func(string, string, Outcome, *RunRecord) (HookVerdict, error) { return HookVerdict{}, nil })
	h.reset()
	if len(h.Names()) != 0 {
		t.Error("expected empty registry after reset")
	}
}
