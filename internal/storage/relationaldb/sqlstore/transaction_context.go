package sqlstore

import (
	"database/sql"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/transfer"
)

// TransactionContext exposes every repository bound to one open *sql.Tx.
// It satisfies both the prefund and the transfer transaction contracts, so
// a single commit covers record updates, contract transitions, prefund
// trail rows and journal postings together.
type TransactionContext struct {
	tx     *sql.Tx
	driver string
}

func newTransactionContext(tx *sql.Tx, driver string) *TransactionContext {
	return &TransactionContext{tx: tx, driver: driver}
}

func (tc *TransactionContext) Ledger() ledger.TxStore {
	return NewLedgerRepository(tc.tx, tc.driver)
}

func (tc *TransactionContext) Prefund() prefund.Store {
	return NewPrefundRepository(tc.tx, tc.driver)
}

func (tc *TransactionContext) Contracts() contract.Store {
	return NewContractRepository(tc.tx, tc.driver)
}

func (tc *TransactionContext) Disbursements() transfer.DisbursementStore {
	return NewTransferRepository(tc.tx, tc.driver)
}

func (tc *TransactionContext) Repayments() transfer.RepaymentStore {
	return NewTransferRepository(tc.tx, tc.driver)
}

func (tc *TransactionContext) Instruments() transfer.InstrumentStore {
	return NewInstrumentRepository(tc.tx, tc.driver)
}
