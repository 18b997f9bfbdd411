package orchestrator

import (
	"context"
	"sync"
)

// fakeGateway is an in-package stand-in for the Gateway contract. Calls
// are recorded for assertions; Wait blocks on a per-run channel until the
// test fires it via complete, mirroring a real agent.wait RPC.
type fakeGateway struct {
	mu          sync.Mutex
	startCalls  []fakeStartCall
	queryReply  string
	queryErr    error
	queryCalls  []fakeQueryCall
	deleteCalls []string
	waiters     map[string]chan WaitResult
}

type fakeStartCall struct {
	Key    string
	Prompt string
	RunID  string
}

type fakeQueryCall struct {
	Key    string
	Prompt string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{waiters: make(map[string]chan WaitResult)}
}

func (g *fakeGateway) Start(ctx context.Context, key, prompt, runID string) error {
	g.mu.Lock()
	g.startCalls = append(g.startCalls, fakeStartCall{Key: key, Prompt: prompt, RunID: runID})
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Query(ctx context.Context, key, prompt string) (string, error) {
	g.mu.Lock()
	g.queryCalls = append(g.queryCalls, fakeQueryCall{Key: key, Prompt: prompt})
	reply, err := g.queryReply, g.queryErr
	g.mu.Unlock()
	return reply, err
}

// Wait blocks until the test calls complete(runID, ...) or ctx expires.
// Tests that don't care about the prober leave it unresolved; it is
// cancelled when the engine's outer deadline trips.
func (g *fakeGateway) Wait(ctx context.Context, runID string, timeoutMs int) (WaitResult, error) {
	g.mu.Lock()
	ch, ok := g.waiters[runID]
	if !ok {
		ch = make(chan WaitResult, 1)
		g.waiters[runID] = ch
	}
	g.mu.Unlock()

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	}
}

func (g *fakeGateway) complete(runID string, r WaitResult) {
	g.mu.Lock()
	ch, ok := g.waiters[runID]
	if !ok {
		ch = make(chan WaitResult, 1)
		g.waiters[runID] = ch
	}
	g.mu.Unlock()
	ch <- r
}

func (g *fakeGateway) DeleteSession(ctx context.Context, key string, deleteTranscript bool) error {
	g.mu.Lock()
	g.deleteCalls = append(g.deleteCalls, key)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) startCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.startCalls)
}

func (g *fakeGateway) lastStartCall() fakeStartCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startCalls[len(g.startCalls)-1]
}

// fakeBus is an in-package EventBus whose test harness drives handlers
// directly via fire, rather than any real subscription transport.
type fakeBus struct {
	mu       sync.Mutex
	handlers []func(Event)
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) Subscribe(handler func(Event)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

func (b *fakeBus) fire(ev Event) {
	b.mu.Lock()
	handlers := make([]func(Event), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// fakeAnnouncer records every announce call and replies with a
// pre-programmed result, set at construction and changeable via setResult.
type fakeAnnouncer struct {
	mu        sync.Mutex
	summaries []RunSummary
	result    bool
}

func newFakeAnnouncer(result bool) *fakeAnnouncer {
	return &fakeAnnouncer{result: result}
}

func (a *fakeAnnouncer) Announce(ctx context.Context, summary RunSummary) bool {
	a.mu.Lock()
	a.summaries = append(a.summaries, summary)
	result := a.result
	a.mu.Unlock()
	return result
}

func (a *fakeAnnouncer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.summaries)
}

func (a *fakeAnnouncer) setResult(v bool) {
	a.mu.Lock()
	a.result = v
	a.mu.Unlock()
}

// fakeArchiver records every appended record.
type fakeArchiver struct {
	mu      sync.Mutex
	records []*RunRecord
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{}
}

func (a *fakeArchiver) Append(rec *RunRecord) error {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
	return nil
}

func (a *fakeArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}
