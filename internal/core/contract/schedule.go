package contract

import (
	"time"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

// ScheduleItem is one planned installment of a contract.
type ScheduleItem struct {
	ID             string
	TenantID       string
	ContractID     string
	Sequence       int
	DueDate        time.Time
	PrincipalCents money.Cents
	InterestCents  money.Cents
	TotalCents     money.Cents
}

// periodsPerYear returns the number of payment periods in a year for the
// frequency.
func periodsPerYear(f PaymentFrequency) int64 {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	default:
		return 12
	}
}

// installmentCount converts a term in months to the number of installments
// at the given frequency.
func installmentCount(termMonths int, f PaymentFrequency) int {
	switch f {
	case FrequencyWeekly:
		return termMonths * 52 / 12
	case FrequencyBiweekly:
		return termMonths * 26 / 12
	default:
		return termMonths
	}
}

// nextDueDate advances a due date by one period.
func nextDueDate(d time.Time, f PaymentFrequency) time.Time {
	switch f {
	case FrequencyWeekly:
		return d.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return d.AddDate(0, 0, 14)
	default:
		return d.AddDate(0, 1, 0)
	}
}

// GenerateSchedule builds an equal-principal amortization schedule for the
// contract: each installment repays the same principal slice, so total
// payments shrink as the balance declines. Interest per period is simple
// periodic interest on the declining balance (apr_bps / periods-per-year,
// in basis points, rounded half-up); the final installment absorbs rounding
// so principal sums exactly to the contract principal. Balloon,
// interest-only and variable-rate structures are not supported.
func GenerateSchedule(c *Contract) ([]ScheduleItem, error) {
	if c.PrincipalCents <= 0 {
		return nil, errs.InvalidRequest("contract principal must be positive")
	}
	if c.TermMonths <= 0 {
		return nil, errs.InvalidRequest("contract term must be positive")
	}
	n := installmentCount(c.TermMonths, c.PaymentFrequency)
	if n <= 0 {
		return nil, errs.InvalidRequest("term %d months yields no installments at %s frequency", c.TermMonths, c.PaymentFrequency)
	}

	// Periodic rate in basis points of the balance.
	periods := periodsPerYear(c.PaymentFrequency)

	// Level principal with per-period interest on the declining balance.
	// Exact integer arithmetic throughout; no floats.
	basePrincipal := c.PrincipalCents / money.Cents(n)
	remainder := c.PrincipalCents - basePrincipal*money.Cents(n)

	items := make([]ScheduleItem, 0, n)
	balance := c.PrincipalCents
	due := c.FirstPaymentDate
	for i := 0; i < n; i++ {
		principal := basePrincipal
		if i == n-1 {
			principal += remainder
		}
		// interest = balance * apr_bps / periods / 10000, rounded half-up
		num := int64(balance)*c.APRBps + periods*10_000/2
		interest := money.Cents(num / (periods * 10_000))

		items = append(items, ScheduleItem{
			TenantID:       c.TenantID,
			ContractID:     c.ID,
			Sequence:       i + 1,
			DueDate:        due,
			PrincipalCents: principal,
			InterestCents:  interest,
			TotalCents:     principal + interest,
		})
		balance -= principal
		due = nextDueDate(due, c.PaymentFrequency)
	}
	return items, nil
}
