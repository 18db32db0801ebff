package routing

import (
	"context"
	"fmt"

	"github.com/bigfin/bigfind/internal/core/money"
)

// feeBand prices express funding for principals up to and including
// UpToCents.
type feeBand struct {
	UpToCents money.Cents
	FeeCents  money.Cents
}

// Express fee bands, inclusive at the upper end. Amounts above the last
// band pay its fee.
var defaultFeeBands = []feeBand{
	{UpToCents: 50_000, FeeCents: 299},
	{UpToCents: 200_000, FeeCents: 499},
	{UpToCents: 500_000, FeeCents: 799},
	{UpToCents: 1_000_000, FeeCents: 999},
	{UpToCents: 2_500_000, FeeCents: 1_499},
	{UpToCents: 5_000_000, FeeCents: 1_999},
}

// FeeSchedule prices a transfer for a requested speed. Standard is always
// free; instant is banded by amount.
type FeeSchedule struct {
	bands []feeBand
}

// DefaultFeeSchedule returns the production fee bands.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{bands: defaultFeeBands}
}

// Fee returns the fee in cents for the given speed and amount. Monotone
// non-decreasing in the amount for instant speed.
func (s FeeSchedule) Fee(speed Speed, amount money.Cents) money.Cents {
	if speed != SpeedInstant {
		return 0
	}
	for _, band := range s.bands {
		if amount <= band.UpToCents {
			return band.FeeCents
		}
	}
	return s.bands[len(s.bands)-1].FeeCents
}

// PrefundReader exposes the one prefund fact fee waiving needs: the
// lender's currently available custodial balance (the latest COMPLETED
// prefund transaction's available_after).
type PrefundReader interface {
	AvailableBalance(ctx context.Context, tenantID, customerID string) (money.Cents, error)
}

// FeeQuote is the waiver-aware fee outcome.
type FeeQuote struct {
	FeeCents money.Cents
	Waived   bool
	Reason   string
}

// QuoteExpressFee applies the prefund waiver on top of the banded fee. The
// waiver is binary: full coverage of the principal waives the whole fee.
func (e *Engine) QuoteExpressFee(ctx context.Context, prefund PrefundReader, tenantID, lenderID string, principal money.Cents) (FeeQuote, error) {
	fee := e.fees.Fee(SpeedInstant, principal)
	if prefund != nil && lenderID != "" {
		available, err := prefund.AvailableBalance(ctx, tenantID, lenderID)
		if err != nil {
			return FeeQuote{}, err
		}
		if available >= principal {
			return FeeQuote{
				FeeCents: 0,
				Waived:   true,
				Reason:   fmt.Sprintf("express fee waived: prefund balance %s covers principal %s", available, principal),
			}, nil
		}
	}
	return FeeQuote{FeeCents: fee, Reason: "banded express fee"}, nil
}
