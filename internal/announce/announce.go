// Package announce delivers a completed run's summary back to its
// requester session, implementing orchestrator.Announcer over NATS
// request-reply (spec §4.8, §6).
package announce

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/chloemays/openclaw/internal/logging"
	"github.com/chloemays/openclaw/internal/orchestrator"
)

// wirePayload is the on-the-wire announce request body.
type wirePayload struct {
	RunID               string                       `json:"runId"`
	ChildSessionKey     string                       `json:"childSessionKey"`
	RequesterSessionKey string                       `json:"requesterSessionKey"`
	RequesterOrigin     string                       `json:"requesterOrigin,omitempty"`
	RequesterDisplayKey string                       `json:"requesterDisplayKey,omitempty"`
	Task                string                       `json:"task"`
	Label               string                       `json:"label,omitempty"`
	CreatedAt           int64                        `json:"createdAt"`
	StartedAt           *int64                       `json:"startedAt,omitempty"`
	EndedAt             *int64                       `json:"endedAt,omitempty"`
	Outcome             *orchestrator.Outcome        `json:"outcome,omitempty"`
	RetryCount          int                          `json:"retryCount"`
	VerificationResult  orchestrator.VerificationResult `json:"verificationResult,omitempty"`
}

type wireReply struct {
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Notifier implements orchestrator.Announcer by issuing a
// "session.announce" NATS request to whichever process owns the
// requester's session. Delivery is considered successful only when the
// reply explicitly says so; a timeout, transport error, or malformed
// reply all count as failure, which re-opens cleanup for a later retry
// (spec §4.8).
type Notifier struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// New wraps an already-connected NATS client. logger may be nil.
func New(nc *nats.Conn, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.New()
	}
	return &Notifier{nc: nc, logger: logger.WithComponent("announce")}
}

// Announce implements orchestrator.Announcer.
func (n *Notifier) Announce(ctx context.Context, summary orchestrator.RunSummary) bool {
	payload := wirePayload{
		RunID:               summary.RunID,
		ChildSessionKey:     summary.ChildSessionKey,
		RequesterSessionKey: summary.RequesterSessionKey,
		RequesterOrigin:     summary.RequesterOrigin,
		RequesterDisplayKey: summary.RequesterDisplayKey,
		Task:                summary.Task,
		Label:               summary.Label,
		CreatedAt:           summary.CreatedAt,
		StartedAt:           summary.StartedAt,
		EndedAt:             summary.EndedAt,
		Outcome:             summary.Outcome,
		RetryCount:          summary.RetryCount,
		VerificationResult:  summary.VerificationResult,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("announce_encode_failed", map[string]interface{}{
			"run_id": summary.RunID,
			"error":  err.Error(),
		})
		return false
	}

	msg, err := n.nc.RequestWithContext(ctx, "session.announce", data)
	if err != nil {
		n.logger.Warn("announce_request_failed", map[string]interface{}{
			"run_id": summary.RunID,
			"error":  err.Error(),
		})
		return false
	}

	var reply wireReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		n.logger.Warn("announce_decode_failed", map[string]interface{}{
			"run_id": summary.RunID,
			"error":  err.Error(),
		})
		return false
	}
	if reply.Error != "" {
		n.logger.Warn("announce_rejected", map[string]interface{}{
			"run_id": summary.RunID,
			"error":  reply.Error,
		})
		return false
	}
	return reply.Delivered
}
