package natsgw

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/chloemays/openclaw/internal/logging"
	"github.com/chloemays/openclaw/internal/orchestrator"
)

// wireEvent is the on-the-wire shape published to lifecycle.<runId>.
type wireEvent struct {
	Stream    string                `json:"stream"`
	RunID     string                `json:"runId"`
	Phase     orchestrator.EventPhase `json:"phase"`
	StartedAt *int64                `json:"startedAt,omitempty"`
	EndedAt   *int64                `json:"endedAt,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Bus adapts NATS pub-sub on "lifecycle.>" into orchestrator.EventBus.
type Bus struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// NewBus wraps an already-connected NATS client. logger may be nil.
func NewBus(nc *nats.Conn, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.New()
	}
	return &Bus{nc: nc, logger: logger.WithComponent("natsgw")}
}

// Subscribe registers handler against every message on "lifecycle.>".
// Malformed payloads are logged and dropped rather than crashing the
// subscription, matching the listener's own defensive posture
// (orchestrator/listener.go's handleEvent panic recovery).
func (b *Bus) Subscribe(handler func(orchestrator.Event)) {
	_, err := b.nc.Subscribe("lifecycle.>", func(msg *nats.Msg) {
		var wire wireEvent
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			b.logger.Warn("lifecycle_decode_failed", map[string]interface{}{
				"subject": msg.Subject,
				"error":   err.Error(),
			})
			return
		}
		handler(orchestrator.Event{
			Stream: wire.Stream,
			RunID:  wire.RunID,
			Data: orchestrator.EventData{
				Phase:     wire.Phase,
				StartedAt: wire.StartedAt,
				EndedAt:   wire.EndedAt,
				Error:     wire.Error,
			},
		})
	})
	if err != nil {
		b.logger.Error("lifecycle_subscribe_failed", map[string]interface{}{"error": err.Error()})
	}
}

// PublishEvent is a helper for a source adapter (not the orchestrator
// itself) to publish a lifecycle event onto "lifecycle.<runId>", used by
// the child side of an agent.start implementation when it relays
// lifecycle transitions back over the same bus this package reads.
func PublishEvent(nc *nats.Conn, ev orchestrator.Event) error {
	data, err := json.Marshal(wireEvent{
		Stream:    ev.Stream,
		RunID:     ev.RunID,
		Phase:     ev.Data.Phase,
		StartedAt: ev.Data.StartedAt,
		EndedAt:   ev.Data.EndedAt,
		Error:     ev.Data.Error,
	})
	if err != nil {
		return err
	}
	return nc.Publish("lifecycle."+ev.RunID, data)
}
