package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chloemays/openclaw/internal/logging"
)

// ArchiveWriter is the audit-trail sink the sweeper appends to when it
// removes a record past its TTL (internal/archive implements this).
type ArchiveWriter interface {
	Append(rec *RunRecord) error
}

// Announcer delivers a run summary back to the requester session and
// reports whether delivery succeeded (spec §6).
type Announcer interface {
	Announce(ctx context.Context, summary RunSummary) bool
}

// Options configures a new Engine.
type Options struct {
	StatePath           string
	Gateway             Gateway
	Bus                 EventBus
	Announcer           Announcer
	Archiver            ArchiveWriter // optional
	Logger              *logging.Logger
	DefaultConfig       OrchestrationConfig
	ArchiveAfterMinutes int // <=0 disables archival by default
	TracerName          string
}

// Engine owns the run registry, its persistence, and every background
// task (listener dispatch, wait probes, retry timers, the sweeper, and
// the cross-process watcher). One Engine must own a given state
// directory exclusively (spec §5, §9).
type Engine struct {
	mu      sync.Mutex
	records map[string]*RunRecord

	store     *store
	gateway   Gateway
	bus       EventBus
	announcer Announcer
	archiver  ArchiveWriter
	logger    *logging.Logger
	hooks     *hookRegistry
	tracer    trace.Tracer

	defaultConfig       OrchestrationConfig
	archiveAfterMinutes int

	pendingRetries       map[string]bool
	pendingVerifications map[string]bool
	resumedRuns          map[string]bool

	initialized       bool
	generation        int64
	lastOwnGeneration int64

	sweeperRunning bool
	sweeperStop    chan struct{}
	sweeperDone    chan struct{}

	watchStop chan struct{}
}

// New constructs an Engine. It does not read the persistence file or
// start any background task; call Start for that.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New()
	}
	logger = logger.WithComponent("orchestrator")

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "github.com/chloemays/openclaw/internal/orchestrator"
	}

	defaultConfig := opts.DefaultConfig
	if defaultConfig == (OrchestrationConfig{}) {
		// Caller did not supply a process-level policy at all (e.g. a
		// minimal construction in tests); fall back to the hard-coded
		// defaults from spec §4.1 rather than an all-zero policy.
		defaultConfig = defaultOrchestrationConfig()
	}

	return &Engine{
		records:              make(map[string]*RunRecord),
		store:                newStore(opts.StatePath),
		gateway:              opts.Gateway,
		bus:                  opts.Bus,
		announcer:            opts.Announcer,
		archiver:             opts.Archiver,
		logger:               logger,
		hooks:                newHookRegistry(),
		tracer:               otel.Tracer(tracerName),
		defaultConfig:        defaultConfig,
		archiveAfterMinutes:  opts.ArchiveAfterMinutes,
		pendingRetries:       make(map[string]bool),
		pendingVerifications: make(map[string]bool),
		resumedRuns:          make(map[string]bool),
		watchStop:            make(chan struct{}),
	}
}

// Start performs the one-time startup sequence: restore the snapshot
// (§4.10), subscribe the lifecycle listener, and arm the sweeper if any
// restored record needs it.
func (e *Engine) Start() error {
	if err := e.restore(); err != nil {
		return err
	}
	if e.bus != nil {
		e.bus.Subscribe(e.handleEvent)
	}
	e.maybeStartSweeper()
	return nil
}

// Stop halts the sweeper and the cross-process watcher, if running. It
// does not cancel in-flight retries or probes; those are cooperative and
// check record presence before acting.
func (e *Engine) Stop() {
	e.mu.Lock()
	running := e.sweeperRunning
	stopCh := e.sweeperStop
	doneCh := e.sweeperDone
	e.mu.Unlock()
	if running {
		close(stopCh)
		<-doneCh
	}
	e.stopCrossWatch()
}

// RegisterHook exposes the named verification hook registry to callers
// (spec §4.7, §9).
func (e *Engine) RegisterHook(name string, fn HookFunc) {
	e.hooks.Register(name, fn)
}

// UnregisterHook removes a named verification hook.
func (e *Engine) UnregisterHook(name string) {
	e.hooks.Unregister(name)
}

// HookNames lists the currently registered hooks.
func (e *Engine) HookNames() []string {
	return e.hooks.Names()
}

// Reset clears all engine state: records, hooks, pending sets, and the
// resumed-runs guard. For test/admin use only (spec §4.1).
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]*RunRecord)
	e.pendingRetries = make(map[string]bool)
	e.pendingVerifications = make(map[string]bool)
	e.resumedRuns = make(map[string]bool)
	e.hooks.reset()
	e.initialized = false
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
