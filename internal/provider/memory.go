package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

// MemoryProvider is an in-memory PaymentProvider with deterministic ids,
// scriptable per-rail failures and synchronous webhook emission. It backs
// tests and standalone mode.
type MemoryProvider struct {
	mu sync.Mutex

	seq       int
	transfers map[string]*Transfer
	byKey     map[string]string // idempotency key -> transfer id
	methods   map[string][]PaymentMethod

	// failMethodTypes makes CreateTransfer fail when the destination
	// payment method type is listed. Scripts rail-level outages.
	failMethodTypes map[string]bool

	// onEvent, when set, receives a signed webhook for every status
	// change, synchronously.
	onEvent func(timestamp string, body []byte, signature string)
	secret  []byte

	clock func() time.Time
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		transfers:       make(map[string]*Transfer),
		byKey:           make(map[string]string),
		methods:         make(map[string][]PaymentMethod),
		failMethodTypes: make(map[string]bool),
		clock:           time.Now,
	}
}

// WithClock overrides the provider clock. Test hook.
func (p *MemoryProvider) WithClock(clock func() time.Time) *MemoryProvider {
	p.clock = clock
	return p
}

// SetWebhookSink registers a callback receiving signed webhook payloads.
func (p *MemoryProvider) SetWebhookSink(secret []byte, sink func(timestamp string, body []byte, signature string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secret = secret
	p.onEvent = sink
}

// RegisterPaymentMethods attaches payment methods to an account reference.
func (p *MemoryProvider) RegisterPaymentMethods(accountRef string, methods ...PaymentMethod) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.methods[accountRef] = append(p.methods[accountRef], methods...)
}

// FailMethodType scripts CreateTransfer failures for a destination payment
// method type ("rtp-credit", "fednow-credit", ...).
func (p *MemoryProvider) FailMethodType(methodType string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failMethodTypes[methodType] = fail
}

// methodTypeOf finds the registered type for a payment method id.
func (p *MemoryProvider) methodTypeOf(id string) string {
	for _, methods := range p.methods {
		for _, m := range methods {
			if m.ID == id {
				return m.Type
			}
		}
	}
	return ""
}

// CreateTransfer initiates a transfer. Replays on the same idempotency key
// return the original transfer without creating a new one.
func (p *MemoryProvider) CreateTransfer(ctx context.Context, in CreateTransferInput) (*Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if in.IdempotencyKey != "" {
		if id, ok := p.byKey[in.IdempotencyKey]; ok {
			t := *p.transfers[id]
			return &t, nil
		}
	}
	if destType := p.methodTypeOf(in.DestinationPaymentMethodID); p.failMethodTypes[destType] {
		return nil, errs.New(errs.CodeProviderError, "transfer rejected for %s", destType)
	}
	if in.AmountCents <= 0 {
		return nil, errs.New(errs.CodeProviderError, "amount must be positive")
	}

	p.seq++
	t := &Transfer{
		ID:          fmt.Sprintf("mem-transfer-%06d", p.seq),
		Status:      StatusProcessing,
		AmountCents: in.AmountCents,
		CreatedAt:   p.clock(),
		Metadata:    cloneMetadata(in.Metadata),
	}
	p.transfers[t.ID] = t
	if in.IdempotencyKey != "" {
		p.byKey[in.IdempotencyKey] = t.ID
	}
	out := *t
	return &out, nil
}

// GetTransfer fetches a transfer by id.
func (p *MemoryProvider) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.transfers[id]
	if !ok {
		return nil, errs.NotFound("transfer", id)
	}
	out := *t
	return &out, nil
}

// ListTransfers returns transfers created inside the window.
func (p *MemoryProvider) ListTransfers(ctx context.Context, w Window) ([]Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Transfer
	for _, t := range p.transfers {
		if t.CreatedAt.Before(w.Start) || t.CreatedAt.After(w.End) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

// ListPaymentMethods returns the methods registered for an account.
func (p *MemoryProvider) ListPaymentMethods(ctx context.Context, accountRef string) ([]PaymentMethod, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PaymentMethod(nil), p.methods[accountRef]...), nil
}

// Cancel marks a transfer canceled. Idempotent; terminal transfers are left
// untouched.
func (p *MemoryProvider) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	t, ok := p.transfers[id]
	if !ok {
		p.mu.Unlock()
		return errs.NotFound("transfer", id)
	}
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusReturned, StatusCanceled:
		p.mu.Unlock()
		return nil
	}
	t.Status = StatusCanceled
	p.mu.Unlock()

	p.emit(id, StatusCanceled, "")
	return nil
}

// SettleTransfer drives a transfer to a terminal status and emits the
// matching webhook. Test and standalone control surface.
func (p *MemoryProvider) SettleTransfer(id string, status TransferStatus, failureReason string) error {
	p.mu.Lock()
	t, ok := p.transfers[id]
	if !ok {
		p.mu.Unlock()
		return errs.NotFound("transfer", id)
	}
	t.Status = status
	if status == StatusCompleted {
		now := p.clock()
		t.CompletedAt = &now
	}
	p.mu.Unlock()

	p.emit(id, status, failureReason)
	return nil
}

// OverrideAmount rewrites a transfer's amount. Reconciliation tests use it
// to fabricate amount mismatches.
func (p *MemoryProvider) OverrideAmount(id string, amount money.Cents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.transfers[id]; ok {
		t.AmountCents = amount
	}
}

// emit builds, signs and delivers the webhook for a status change.
func (p *MemoryProvider) emit(id string, status TransferStatus, failureReason string) {
	p.mu.Lock()
	sink := p.onEvent
	secret := p.secret
	t := p.transfers[id]
	now := p.clock()
	p.mu.Unlock()
	if sink == nil || t == nil {
		return
	}

	eventType := map[TransferStatus]string{
		StatusCreated:    EventTransferCreated,
		StatusPending:    EventTransferPending,
		StatusProcessing: EventTransferPending,
		StatusCompleted:  EventTransferCompleted,
		StatusFailed:     EventTransferFailed,
		StatusReturned:   EventTransferReversed,
		StatusCanceled:   EventTransferFailed,
	}[status]
	if eventType == "" {
		return
	}

	data, _ := EncodeEvent(&Event{
		EventID:   fmt.Sprintf("mem-event-%s-%s", id, status),
		Type:      eventType,
		Data:      mustJSON(TransferEventData{TransferID: id, Status: string(status), AmountCents: int64(t.AmountCents), FailureReason: failureReason}),
		CreatedOn: now,
	})
	ts := fmt.Sprintf("%d", now.Unix())
	sink(ts, data, Sign(secret, ts, data))
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
