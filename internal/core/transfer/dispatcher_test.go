package transfer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/provider"
)

var webhookSecret = []byte("whsec-test")

// TestWebhookDrivenSettlement wires the provider's webhook sink straight
// into the dispatcher: settling a transfer on the provider side lands the
// contract activation through the normal ingestion path.
func TestWebhookDrivenSettlement(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	dispatcher := transfer.NewDispatcher(f.orch, webhookSecret)
	f.pp.SetWebhookSink(webhookSecret, func(timestamp string, body []byte, signature string) {
		require.NoError(t, dispatcher.Dispatch(ctx, tenantID, timestamp, body, signature))
	})

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.NoError(t, err)

	require.NoError(t, f.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, d.Status)

	c, err := f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusActive, c.Status)
}

func TestDispatchRejectsBadSignature(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	dispatcher := transfer.NewDispatcher(f.orch, webhookSecret)

	body, err := provider.EncodeEvent(&provider.Event{
		EventID:   "evt-1",
		Type:      provider.EventTransferCompleted,
		Data:      json.RawMessage(`{"transfer_id":"mem-transfer-000001","status":"completed"}`),
		CreatedOn: time.Now(),
	})
	require.NoError(t, err)

	ts := "1770000000"
	err = dispatcher.Dispatch(context.Background(), tenantID, ts, body, "deadbeef")
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))

	// Signing over a different timestamp must also fail.
	err = dispatcher.Dispatch(context.Background(), tenantID, ts, body, provider.Sign(webhookSecret, "1770000001", body))
	require.Error(t, err)
}

func TestDispatchIgnoresNonTransferEvents(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	dispatcher := transfer.NewDispatcher(f.orch, webhookSecret)

	for _, eventType := range []string{provider.EventBankAccountUpdated, "something.new"} {
		body, err := provider.EncodeEvent(&provider.Event{
			EventID:   "evt-2",
			Type:      eventType,
			Data:      json.RawMessage(`{}`),
			CreatedOn: time.Now(),
		})
		require.NoError(t, err)

		ts := "1770000000"
		require.NoError(t, dispatcher.Dispatch(context.Background(), tenantID, ts, body, provider.Sign(webhookSecret, ts, body)))
	}
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	dispatcher := transfer.NewDispatcher(f.orch, webhookSecret)

	ts := "1770000000"
	body := []byte(`{"type":"transfer.completed"}`) // missing event_id
	err := dispatcher.Dispatch(context.Background(), tenantID, ts, body, provider.Sign(webhookSecret, ts, body))
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
}
