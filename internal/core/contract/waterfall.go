package contract

import (
	"github.com/bigfin/bigfind/internal/core/money"
)

// Split is the outcome of applying a cash receipt to a contract's
// outstanding balances, in strict fees -> interest -> principal order.
type Split struct {
	FeeCents       money.Cents
	InterestCents  money.Cents
	PrincipalCents money.Cents
}

// Total is the cash the split accounts for.
func (s Split) Total() money.Cents {
	return s.FeeCents + s.InterestCents + s.PrincipalCents
}

// ApplyWaterfall splits amount across the contract's current balances in
// strict order. Each bucket takes min(remaining, balance); anything the
// schedule did not yet require but the principal balance can absorb is a
// principal prepayment and is accepted. The returned residual is the part
// of the amount exceeding the whole outstanding balance; callers reject a
// non-zero residual so no component balance can go negative.
func ApplyWaterfall(c *Contract, amount money.Cents) (Split, money.Cents) {
	var s Split
	remaining := amount

	s.FeeCents = money.Min(remaining, c.FeesBalanceCents)
	remaining -= s.FeeCents

	s.InterestCents = money.Min(remaining, c.InterestBalanceCents)
	remaining -= s.InterestCents

	s.PrincipalCents = money.Min(remaining, c.PrincipalBalanceCents)
	remaining -= s.PrincipalCents

	return s, remaining
}
