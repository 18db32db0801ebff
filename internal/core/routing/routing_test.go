package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return NewEngine(DefaultFeeSchedule(), NewArrivalEstimator(loc))
}

func verifiedBank() Capabilities {
	return Capabilities{Type: InstrumentBankAccount, Verified: true}
}

func TestStandardSpeedRoutesACH(t *testing.T) {
	eng := newTestEngine(t)
	dest := verifiedBank()

	d, err := eng.Route(Request{
		Speed:       SpeedStandard,
		Direction:   DirectionCredit,
		AmountCents: 100_000,
		Destination: &dest,
		Now:         time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, RailACH, d.Rail)
	assert.Equal(t, money.Zero, d.FeeCents)
	assert.Empty(t, d.FallbackRails)
}

func TestStandardSpeedWithoutACHFails(t *testing.T) {
	eng := newTestEngine(t)
	card := Capabilities{Type: InstrumentDebitCard}

	_, err := eng.Route(Request{
		Speed:       SpeedStandard,
		Direction:   DirectionCredit,
		Destination: &card,
		Now:         time.Now(),
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInstrumentInvalid, errs.CodeOf(err))
}

func TestInstantPriorityAndFallbacks(t *testing.T) {
	eng := newTestEngine(t)
	now := time.Now()

	cases := []struct {
		name      string
		caps      Capabilities
		wantRail  Rail
		wantChain []Rail
	}{
		{
			name:      "verified bank gets rtp",
			caps:      verifiedBank(),
			wantRail:  RailRTP,
			wantChain: []Rail{RailFedNow, RailACH},
		},
		{
			name:      "unverified bank only ach",
			caps:      Capabilities{Type: InstrumentBankAccount},
			wantRail:  RailACH,
			wantChain: nil,
		},
		{
			name:      "debit card push to card",
			caps:      Capabilities{Type: InstrumentDebitCard},
			wantRail:  RailPushToCard,
			wantChain: nil,
		},
		{
			name:      "explicit rails are authoritative",
			caps:      Capabilities{Type: InstrumentBankAccount, Verified: true, SupportedRails: []Rail{RailFedNow, RailPushToCard, RailACH}},
			wantRail:  RailFedNow,
			wantChain: []Rail{RailPushToCard, RailACH},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caps := tc.caps
			d, err := eng.Route(Request{
				Speed:       SpeedInstant,
				Direction:   DirectionCredit,
				AmountCents: 50_000,
				Destination: &caps,
				Now:         now,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantRail, d.Rail)
			assert.Equal(t, tc.wantChain, d.FallbackRails)
			assert.NotContains(t, d.FallbackRails, d.Rail)
		})
	}
}

func TestDebitRoutesOnSource(t *testing.T) {
	eng := newTestEngine(t)
	d, err := eng.Route(Request{
		Speed:     SpeedInstant,
		Direction: DirectionDebit,
		Source:    verifiedBank(),
		Now:       time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, RailRTP, d.Rail)
}

func TestCreditWithoutDestinationFails(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Route(Request{
		Speed:     SpeedInstant,
		Direction: DirectionCredit,
		Source:    verifiedBank(),
		Now:       time.Now(),
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
}

func TestFeeBands(t *testing.T) {
	s := DefaultFeeSchedule()

	cases := []struct {
		amount money.Cents
		fee    money.Cents
	}{
		{1, 299},
		{50_000, 299}, // inclusive upper bound
		{50_001, 499},
		{200_000, 499},
		{500_000, 799},
		{1_000_000, 999},
		{2_500_000, 1_499},
		{5_000_000, 1_999},
		{9_999_999, 1_999}, // above the last band
	}
	for _, tc := range cases {
		assert.Equal(t, tc.fee, s.Fee(SpeedInstant, tc.amount), "amount %d", tc.amount)
	}
	assert.Equal(t, money.Zero, s.Fee(SpeedStandard, 1_000_000))
}

type stubPrefund struct {
	available money.Cents
	err       error
}

func (s stubPrefund) AvailableBalance(ctx context.Context, tenantID, customerID string) (money.Cents, error) {
	return s.available, s.err
}

func TestQuoteExpressFeeWaiver(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	q, err := eng.QuoteExpressFee(ctx, stubPrefund{available: 100_000}, "t", "lender", 100_000)
	require.NoError(t, err)
	assert.True(t, q.Waived)
	assert.Equal(t, money.Zero, q.FeeCents)

	// Partial coverage does not discount, the waiver is binary.
	q, err = eng.QuoteExpressFee(ctx, stubPrefund{available: 99_999}, "t", "lender", 100_000)
	require.NoError(t, err)
	assert.False(t, q.Waived)
	assert.Equal(t, money.Cents(499), q.FeeCents)

	// No reader, no waiver.
	q, err = eng.QuoteExpressFee(ctx, nil, "t", "", 100_000)
	require.NoError(t, err)
	assert.False(t, q.Waived)
}

func TestArrivalEstimates(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	est := NewArrivalEstimator(loc)

	// Tuesday 2026-03-03 10:00 local.
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, loc)

	assert.Equal(t, now, est.Estimate(RailRTP, now))
	assert.Equal(t, now, est.Estimate(RailFedNow, now))
	assert.Equal(t, now.Add(30*time.Minute), est.Estimate(RailPushToCard, now))

	// 4 business hours from Tuesday 10:00 land Tuesday 14:00.
	assert.Equal(t, time.Date(2026, 3, 3, 14, 0, 0, 0, loc), est.Estimate(RailSameDayACH, now))

	// 24 business hours span three full days: Tue 10:00 -> Fri 10:00.
	assert.Equal(t, time.Date(2026, 3, 6, 10, 0, 0, 0, loc), est.Estimate(RailACH, now))
}

func TestArrivalSkipsWeekend(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	est := NewArrivalEstimator(loc)

	// Friday 2026-03-06 16:00: one business hour left today.
	now := time.Date(2026, 3, 6, 16, 0, 0, 0, loc)
	got := est.Estimate(RailSameDayACH, now)
	// 1h Friday + 3h Monday morning.
	assert.Equal(t, time.Date(2026, 3, 9, 12, 0, 0, 0, loc), got)

	// Saturday initiation starts counting Monday 09:00.
	sat := time.Date(2026, 3, 7, 11, 0, 0, 0, loc)
	got = est.Estimate(RailSameDayACH, sat)
	assert.Equal(t, time.Date(2026, 3, 9, 13, 0, 0, 0, loc), got)
}
