package transfer

import (
	"context"
	"log"

	"github.com/bigfin/bigfind/internal/provider"
)

// Dispatcher turns raw provider webhooks into orchestrator status updates.
// Transport hands it the exact raw body plus the signature header values.
type Dispatcher struct {
	orch   *Orchestrator
	secret []byte
}

// NewDispatcher creates a dispatcher verifying with the given webhook
// secret.
func NewDispatcher(orch *Orchestrator, secret []byte) *Dispatcher {
	return &Dispatcher{orch: orch, secret: secret}
}

// Dispatch verifies, parses and routes one webhook delivery. Non-transfer
// and unknown event types are acknowledged without side effects so the
// provider does not retry them. Event redelivery is harmless: ingestion
// dedups by provider_ref and the monotonic status guard.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, timestamp string, body []byte, signature string) error {
	if err := provider.VerifySignature(d.secret, timestamp, body, signature); err != nil {
		return err
	}
	ev, err := provider.ParseEvent(body)
	if err != nil {
		return err
	}

	up, isTransfer, err := provider.StatusUpdateFromEvent(ev)
	if err != nil {
		return err
	}
	if !isTransfer {
		if !provider.KnownEventType(ev.Type) {
			log.Printf("webhook: ignoring unknown event type %q (event %s)", ev.Type, ev.EventID)
		}
		return nil
	}
	return d.orch.ProcessStatusUpdate(ctx, tenantID, *up)
}
