package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

func newTransfer(t *testing.T, p *MemoryProvider, key string) *Transfer {
	t.Helper()
	tr, err := p.CreateTransfer(context.Background(), CreateTransferInput{
		SourcePaymentMethodID:      "pm-src",
		DestinationPaymentMethodID: "pm-dst",
		AmountCents:                10_000,
		Currency:                   "USD",
		IdempotencyKey:             key,
	})
	require.NoError(t, err)
	return tr
}

func TestCreateTransferIdempotent(t *testing.T) {
	p := NewMemoryProvider()

	first := newTransfer(t, p, "key-1")
	replay := newTransfer(t, p, "key-1")
	assert.Equal(t, first.ID, replay.ID)

	other := newTransfer(t, p, "key-2")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreateTransferScriptedFailure(t *testing.T) {
	p := NewMemoryProvider()
	p.RegisterPaymentMethods("acct-1", PaymentMethod{ID: "pm-rtp", Type: "rtp-credit"})
	p.FailMethodType("rtp-credit", true)

	_, err := p.CreateTransfer(context.Background(), CreateTransferInput{
		SourcePaymentMethodID:      "pm-src",
		DestinationPaymentMethodID: "pm-rtp",
		AmountCents:                10_000,
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeProviderError, errs.CodeOf(err))

	p.FailMethodType("rtp-credit", false)
	_, err = p.CreateTransfer(context.Background(), CreateTransferInput{
		SourcePaymentMethodID:      "pm-src",
		DestinationPaymentMethodID: "pm-rtp",
		AmountCents:                10_000,
	})
	require.NoError(t, err)
}

func TestSettleTransferEmitsSignedWebhook(t *testing.T) {
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	p := NewMemoryProvider().WithClock(func() time.Time { return now })

	var gotTS string
	var gotBody []byte
	var gotSig string
	p.SetWebhookSink(secret, func(ts string, body []byte, sig string) {
		gotTS, gotBody, gotSig = ts, body, sig
	})

	tr := newTransfer(t, p, "")
	require.NoError(t, p.SettleTransfer(tr.ID, StatusCompleted, ""))

	require.NotEmpty(t, gotBody)
	require.NoError(t, VerifySignature(secret, gotTS, gotBody, gotSig))

	ev, err := ParseEvent(gotBody)
	require.NoError(t, err)
	assert.Equal(t, EventTransferCompleted, ev.Type)

	up, isTransfer, err := StatusUpdateFromEvent(ev)
	require.NoError(t, err)
	require.True(t, isTransfer)
	assert.Equal(t, tr.ID, up.ProviderRef)
	assert.Equal(t, StatusCompleted, up.Status)

	got, err := p.GetTransfer(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestCancelIsIdempotentOnTerminalTransfers(t *testing.T) {
	p := NewMemoryProvider()
	tr := newTransfer(t, p, "")

	require.NoError(t, p.SettleTransfer(tr.ID, StatusCompleted, ""))

	// Cancel after completion leaves the transfer untouched.
	require.NoError(t, p.Cancel(context.Background(), tr.ID))
	got, err := p.GetTransfer(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	err = p.Cancel(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestListTransfersWindow(t *testing.T) {
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	p := NewMemoryProvider().WithClock(func() time.Time { return now })

	inside := newTransfer(t, p, "a")

	now = now.Add(48 * time.Hour)
	outside := newTransfer(t, p, "b")

	got, err := p.ListTransfers(context.Background(), Window{
		Start: inside.CreatedAt.Add(-time.Hour),
		End:   inside.CreatedAt.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)
	assert.NotEqual(t, outside.ID, got[0].ID)
}

func TestOverrideAmount(t *testing.T) {
	p := NewMemoryProvider()
	tr := newTransfer(t, p, "")

	p.OverrideAmount(tr.ID, money.Cents(123))
	got, err := p.GetTransfer(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(123), got.AmountCents)
}
