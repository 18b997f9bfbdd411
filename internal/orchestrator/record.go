// Package orchestrator implements the subagent run registry, its
// lifecycle state machine, retry scheduling, verification, and cleanup.
package orchestrator

// CleanupPolicy controls what happens to the child session after announce.
type CleanupPolicy string

const (
	CleanupDelete CleanupPolicy = "delete"
	CleanupKeep   CleanupPolicy = "keep"
)

// OutcomeStatus is the terminal status of a run attempt.
type OutcomeStatus string

const (
	OutcomeOK    OutcomeStatus = "ok"
	OutcomeError OutcomeStatus = "error"
)

// Outcome is the latest terminal outcome of a run attempt.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// VerificationResult is the latest verdict from the verification pipeline.
type VerificationResult string

const (
	VerificationPassed  VerificationResult = "passed"
	VerificationFailed  VerificationResult = "failed"
	VerificationSkipped VerificationResult = "skipped"
)

// OrchestrationConfig is a snapshot of retry/verify policy, fixed at
// registration and never mutated for the life of the record.
type OrchestrationConfig struct {
	RetryOnFailure             bool    `json:"retryOnFailure"`
	MaxRetries                 int     `json:"maxRetries"`
	BackoffMultiplier          float64 `json:"backoffMultiplier"`
	InitialDelayMs             int     `json:"initialDelayMs"`
	MaxDelayMs                 int     `json:"maxDelayMs"`
	VerifyCompletion           bool    `json:"verifyCompletion"`
	VerificationPrompt         string  `json:"verificationPrompt"`
	VerificationTimeoutSeconds int     `json:"verificationTimeoutSeconds"`
	RetryOnVerificationFailure bool    `json:"retryOnVerificationFailure"`
	VerificationHook           string  `json:"verificationHook"`
}

// defaultOrchestrationConfig holds the hard-coded defaults from spec §4.1.
func defaultOrchestrationConfig() OrchestrationConfig {
	return OrchestrationConfig{
		RetryOnFailure:             false,
		MaxRetries:                 3,
		BackoffMultiplier:          2,
		InitialDelayMs:             1000,
		MaxDelayMs:                 60000,
		VerifyCompletion:           false,
		VerificationTimeoutSeconds: 30,
		RetryOnVerificationFailure: true,
	}
}

// OrchestrationOverride carries only the fields a caller wants to change;
// nil means "use the next layer down" (process config, then hard-coded
// defaults). This models the three-layer overlay from spec §4.1 without
// forcing every override site to know the full default set.
type OrchestrationOverride struct {
	RetryOnFailure             *bool
	MaxRetries                 *int
	BackoffMultiplier          *float64
	InitialDelayMs             *int
	MaxDelayMs                 *int
	VerifyCompletion           *bool
	VerificationPrompt         *string
	VerificationTimeoutSeconds *int
	RetryOnVerificationFailure *bool
	VerificationHook           *string
}

func overlay(base OrchestrationConfig, override *OrchestrationOverride) OrchestrationConfig {
	if override == nil {
		return base
	}
	if override.RetryOnFailure != nil {
		base.RetryOnFailure = *override.RetryOnFailure
	}
	if override.MaxRetries != nil {
		base.MaxRetries = *override.MaxRetries
	}
	if override.BackoffMultiplier != nil {
		base.BackoffMultiplier = *override.BackoffMultiplier
	}
	if override.InitialDelayMs != nil {
		base.InitialDelayMs = *override.InitialDelayMs
	}
	if override.MaxDelayMs != nil {
		base.MaxDelayMs = *override.MaxDelayMs
	}
	if override.VerifyCompletion != nil {
		base.VerifyCompletion = *override.VerifyCompletion
	}
	if override.VerificationPrompt != nil {
		base.VerificationPrompt = *override.VerificationPrompt
	}
	if override.VerificationTimeoutSeconds != nil {
		base.VerificationTimeoutSeconds = *override.VerificationTimeoutSeconds
	}
	if override.RetryOnVerificationFailure != nil {
		base.RetryOnVerificationFailure = *override.RetryOnVerificationFailure
	}
	if override.VerificationHook != nil {
		base.VerificationHook = *override.VerificationHook
	}
	return base
}

// RunRecord is the persistent orchestration state for a single run.
type RunRecord struct {
	RunID                string              `json:"runId"`
	ChildSessionKey      string              `json:"childSessionKey"`
	RequesterSessionKey  string              `json:"requesterSessionKey"`
	RequesterOrigin      string              `json:"requesterOrigin,omitempty"`
	RequesterDisplayKey  string              `json:"requesterDisplayKey,omitempty"`
	Task                 string              `json:"task"`
	Label                string              `json:"label,omitempty"`
	Cleanup              CleanupPolicy       `json:"cleanup"`
	CreatedAt            int64               `json:"createdAt"`
	StartedAt            *int64              `json:"startedAt,omitempty"`
	EndedAt              *int64              `json:"endedAt,omitempty"`
	Outcome              *Outcome            `json:"outcome,omitempty"`
	ArchiveAtMs          *int64              `json:"archiveAtMs,omitempty"`
	CleanupHandled       bool                `json:"cleanupHandled"`
	CleanupCompletedAt   *int64              `json:"cleanupCompletedAt,omitempty"`
	RetryCount           int                 `json:"retryCount"`
	MaxRetries           int                 `json:"maxRetries"`
	NextRetryAt          *int64              `json:"nextRetryAt,omitempty"`
	IsRetry              bool                `json:"isRetry"`
	VerificationAttempted bool               `json:"verificationAttempted"`
	VerificationResult   VerificationResult  `json:"verificationResult,omitempty"`
	OrchestrationConfig  OrchestrationConfig `json:"orchestrationConfig"`

	// Unknown fields preserved verbatim across a version-1 migration or a
	// forward-compatible round trip (spec §4.2, §6).
	extra map[string]interface{} `json:"-"`
}

// isTerminal reports whether the record has already completed cleanup,
// per invariant 6: a record with cleanupCompletedAt ignores further
// lifecycle events.
func (r *RunRecord) isTerminal() bool {
	return r.CleanupCompletedAt != nil
}

// clone returns a deep-enough copy for safe use outside the engine lock
// (listForRequester, persistence snapshots).
func (r *RunRecord) clone() *RunRecord {
	cp := *r
	if r.StartedAt != nil {
		v := *r.StartedAt
		cp.StartedAt = &v
	}
	if r.EndedAt != nil {
		v := *r.EndedAt
		cp.EndedAt = &v
	}
	if r.Outcome != nil {
		o := *r.Outcome
		cp.Outcome = &o
	}
	if r.ArchiveAtMs != nil {
		v := *r.ArchiveAtMs
		cp.ArchiveAtMs = &v
	}
	if r.CleanupCompletedAt != nil {
		v := *r.CleanupCompletedAt
		cp.CleanupCompletedAt = &v
	}
	if r.NextRetryAt != nil {
		v := *r.NextRetryAt
		cp.NextRetryAt = &v
	}
	if r.extra != nil {
		cp.extra = make(map[string]interface{}, len(r.extra))
		for k, v := range r.extra {
			cp.extra[k] = v
		}
	}
	return &cp
}
