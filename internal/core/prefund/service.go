package prefund

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
)

// Service appends prefund trail rows and posts the matching custody
// journals in the same transaction.
type Service struct {
	uow    UnitOfWork
	ledger *ledger.Engine
	clock  func() time.Time
}

// NewService creates a prefund service.
func NewService(uow UnitOfWork, eng *ledger.Engine) *Service {
	return &Service{uow: uow, ledger: eng, clock: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// AvailableBalance implements routing.PrefundReader: the latest COMPLETED
// transaction's available_after, zero when no history exists.
func (s *Service) AvailableBalance(ctx context.Context, tenantID, customerID string) (money.Cents, error) {
	var available money.Cents
	err := s.uow.WithinTx(ctx, func(tx Tx) error {
		latest, err := tx.Prefund().LatestCompleted(ctx, tenantID, customerID)
		if err != nil {
			if errors.Is(err, ErrNoTransactions) {
				return nil
			}
			return err
		}
		available = latest.AvailableAfterCents
		return nil
	})
	return available, err
}

// Deposit adds lender cash to custody and posts the deposit journal.
func (s *Service) Deposit(ctx context.Context, tenantID, customerID string, amount money.Cents, actor string) (*Transaction, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("deposit amount must be positive")
	}
	return s.append(ctx, tenantID, customerID, TypeDeposit, amount, func(tx Tx) error {
		_, err := s.ledger.PrefundDepositJournal(ctx, tx.Ledger(), tenantID, amount, actor)
		return err
	})
}

// Withdraw returns custody cash to the lender. Fails with
// INSUFFICIENT_FUNDS when the available balance cannot cover it.
func (s *Service) Withdraw(ctx context.Context, tenantID, customerID string, amount money.Cents, actor string) (*Transaction, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("withdrawal amount must be positive")
	}
	return s.append(ctx, tenantID, customerID, TypeWithdrawal, amount, func(tx Tx) error {
		_, err := s.ledger.PrefundWithdrawalJournal(ctx, tx.Ledger(), tenantID, amount, actor)
		return err
	})
}

// Hold encumbers available funds for a pending disbursement. No cash moves,
// so no journal is posted; the hold only reduces availability.
func (s *Service) Hold(ctx context.Context, tenantID, customerID string, amount money.Cents) (*Transaction, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("hold amount must be positive")
	}
	return s.append(ctx, tenantID, customerID, TypeDisbursementHold, amount, nil)
}

// Release frees a previously held amount (disbursement failed or was
// cancelled).
func (s *Service) Release(ctx context.Context, tenantID, customerID string, amount money.Cents) (*Transaction, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("release amount must be positive")
	}
	return s.append(ctx, tenantID, customerID, TypeDisbursementRelease, amount, nil)
}

// Append writes one COMPLETED trail row with balances recomputed from the
// latest row. Exported so transfer settlement can move prefund balances
// inside its own storage transaction.
func Append(ctx context.Context, st Store, tenantID, customerID string, typ TransactionType, amount money.Cents, at time.Time) (*Transaction, error) {
	var balance, available money.Cents
	latest, err := st.LatestCompleted(ctx, tenantID, customerID)
	if err != nil && !errors.Is(err, ErrNoTransactions) {
		return nil, err
	}
	if latest != nil {
		balance = latest.BalanceAfterCents
		available = latest.AvailableAfterCents
	}

	delta := money.Cents(typ.Sign()) * amount
	switch typ {
	case TypeDisbursementHold, TypeDisbursementRelease:
		// Holds move availability only; the cash stays in custody.
		available += delta
	default:
		balance += delta
		available += delta
	}
	if balance < 0 || available < 0 {
		return nil, errs.New(errs.CodeInsufficientFunds, "prefund balance for %s cannot cover %s of %s", customerID, typ, amount)
	}

	row := &Transaction{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		CustomerID:          customerID,
		Type:                typ,
		AmountCents:         amount,
		Status:              StatusCompleted,
		BalanceAfterCents:   balance,
		AvailableAfterCents: available,
		CreatedAt:           at,
	}
	if err := st.AppendTransaction(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// append writes one trail row, running extra (the optional journal posting)
// in the same transaction.
func (s *Service) append(ctx context.Context, tenantID, customerID string, typ TransactionType, amount money.Cents, extra func(tx Tx) error) (*Transaction, error) {
	var out *Transaction
	err := s.uow.WithinTx(ctx, func(tx Tx) error {
		row, err := Append(ctx, tx.Prefund(), tenantID, customerID, typ, amount, s.clock())
		if err != nil {
			return err
		}
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
