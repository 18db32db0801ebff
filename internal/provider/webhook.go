package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bigfin/bigfind/internal/core/errs"
)

// Webhook signature scheme: lowercase-hex HMAC-SHA256 over
// timestamp + "." + raw body. Verification is constant time and rejects
// length mismatches before comparing.

// VerifySignature checks the provider signature for a raw webhook body.
func VerifySignature(secret []byte, timestamp string, body []byte, signature string) error {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return errs.New(errs.CodeUnauthorized, "webhook signature is not valid hex")
	}
	// hmac.Equal is constant time and rejects length mismatches without
	// data-dependent branching.
	if !hmac.Equal(expected, got) {
		return errs.New(errs.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// Sign computes the signature for a payload. Used by the in-memory provider
// and tests to emit verifiable webhooks.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Event types the dispatcher recognises. Unknown types are logged and
// acknowledged so the provider does not retry them.
const (
	EventTransferCreated       = "transfer.created"
	EventTransferPending       = "transfer.pending"
	EventTransferCompleted     = "transfer.completed"
	EventTransferFailed        = "transfer.failed"
	EventTransferReversed      = "transfer.reversed"
	EventBankAccountCreated    = "bank-account.created"
	EventBankAccountUpdated    = "bank-account.updated"
	EventCardCreated           = "card.created"
	EventCardUpdated           = "card.updated"
	EventPaymentMethodEnabled  = "payment-method.enabled"
	EventPaymentMethodDisabled = "payment-method.disabled"
)

// Event is the parsed webhook envelope.
type Event struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedOn time.Time       `json:"created_on"`
}

// TransferEventData is the payload of transfer.* events.
type TransferEventData struct {
	TransferID    string `json:"transfer_id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount_cents"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ParseEvent decodes and validates a webhook envelope. A payload missing
// event_id, type or data is rejected.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidRequest, err, "malformed webhook payload")
	}
	if ev.EventID == "" {
		return nil, errs.InvalidRequest("webhook payload missing event_id")
	}
	if ev.Type == "" {
		return nil, errs.InvalidRequest("webhook payload missing type")
	}
	if len(ev.Data) == 0 {
		return nil, errs.InvalidRequest("webhook payload missing data")
	}
	return &ev, nil
}

// transferStatusForEvent maps a transfer.* event type to the provider
// status it implies when the data payload omits one.
func transferStatusForEvent(eventType string) (TransferStatus, bool) {
	switch eventType {
	case EventTransferCreated:
		return StatusCreated, true
	case EventTransferPending:
		return StatusPending, true
	case EventTransferCompleted:
		return StatusCompleted, true
	case EventTransferFailed:
		return StatusFailed, true
	case EventTransferReversed:
		return StatusReturned, true
	}
	return "", false
}

// StatusUpdate is the normalized outcome of a transfer webhook, handed to
// the orchestrator's ingestion path.
type StatusUpdate struct {
	ProviderRef   string
	Status        TransferStatus
	FailureReason string
	OccurredAt    time.Time
}

// StatusUpdateFromEvent extracts a StatusUpdate from a transfer.* event.
// Returns false for non-transfer event types.
func StatusUpdateFromEvent(ev *Event) (*StatusUpdate, bool, error) {
	implied, ok := transferStatusForEvent(ev.Type)
	if !ok {
		return nil, false, nil
	}
	var data TransferEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return nil, true, errs.Wrap(errs.CodeInvalidRequest, err, "malformed transfer event data")
	}
	if data.TransferID == "" {
		return nil, true, errs.InvalidRequest("transfer event missing transfer_id")
	}
	status := implied
	if data.Status != "" {
		status = TransferStatus(data.Status)
	}
	return &StatusUpdate{
		ProviderRef:   data.TransferID,
		Status:        status,
		FailureReason: data.FailureReason,
		OccurredAt:    ev.CreatedOn,
	}, true, nil
}

// KnownEventType reports whether the dispatcher recognises the event type.
func KnownEventType(t string) bool {
	switch t {
	case EventTransferCreated, EventTransferPending, EventTransferCompleted,
		EventTransferFailed, EventTransferReversed,
		EventBankAccountCreated, EventBankAccountUpdated,
		EventCardCreated, EventCardUpdated,
		EventPaymentMethodEnabled, EventPaymentMethodDisabled:
		return true
	}
	return false
}

// EncodeEvent serialises an event envelope. Helper for the in-memory
// provider's synchronous webhook emission.
func EncodeEvent(ev *Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode webhook event: %w", err)
	}
	return body, nil
}
