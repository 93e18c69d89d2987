package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidAmount occurs when a requested amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidCategory occurs when an operation names an unknown category or
	// a category the operation may not originate (debits never post wallet_fund).
	ErrInvalidCategory = errors.New("invalid category for operation")

	// ErrInsufficientFunds occurs when the account balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates the external reference was already
	// consumed by a prior successful credit on the same account.
	ErrDuplicateReference = errors.New("duplicate external reference")

	// ErrMissingReference indicates a wallet funding credit arrived without
	// the gateway reference that proves the payment happened.
	ErrMissingReference = errors.New("external reference is required")

	// ErrAccountNotFound indicates the account does not exist in the store.
	ErrAccountNotFound = errors.New("account not found")

	// ErrConflict indicates a concurrent writer moved the balance between the
	// admission read and the commit. Callers must re-read and retry.
	ErrConflict = errors.New("balance changed since read")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("ledger store unavailable")

	// ErrCorrupt indicates persisted state violates the balance invariant.
	// It is never auto-repaired.
	ErrCorrupt = errors.New("ledger state corrupt")
)

// Direction marks which side of the balance an entry moves.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Category identifies the product an entry paid for or the funding source.
type Category string

const (
	CategoryAirtime     Category = "airtime"
	CategoryData        Category = "data"
	CategoryElectricity Category = "electricity"
	CategoryCable       Category = "cable"
	CategoryWalletFund  Category = "wallet_fund"
)

// Valid reports whether the category is one the ledger knows about.
func (c Category) Valid() bool {
	switch c {
	case CategoryAirtime, CategoryData, CategoryElectricity, CategoryCable, CategoryWalletFund:
		return true
	default:
		return false
	}
}

// Status tracks the lifecycle of an entry. Success and failed are terminal;
// pending exists only while an external verification is outstanding.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// FundingDestination is the pre-provisioned receiving account used for
// external bank-transfer top-ups. Immutable once assigned.
type FundingDestination struct {
	BankName      string
	AccountNumber string
	AccountName   string
}

// Account holds the balance for one principal. Balance is in minor currency
// units (kobo) and never goes negative.
type Account struct {
	ID                 string
	Balance            int64
	FundingDestination FundingDestination
	CreatedAt          time.Time
}

// Entry is one immutable record of a balance-affecting event. Entries are
// append-only; a failed attempt is never retried in place, a new attempt gets
// a new id and reference.
type Entry struct {
	ID                string
	AccountID         string
	Direction         Direction
	Category          Category
	Amount            int64
	BalanceBefore     int64
	BalanceAfter      int64
	Status            Status
	ExternalReference string
	Metadata          map[string]string
	CreatedAt         time.Time
}

// arithmeticOK reports whether the entry's balance snapshots agree with its
// direction and amount. Metadata never participates in this check.
func (e Entry) arithmeticOK() bool {
	if e.Amount <= 0 {
		return false
	}
	switch e.Direction {
	case DirectionCredit:
		return e.BalanceAfter == e.BalanceBefore+e.Amount
	case DirectionDebit:
		return e.BalanceAfter == e.BalanceBefore-e.Amount
	default:
		return false
	}
}

// Store is the durable, authoritative record of accounts and entries, and the
// only writer of truth. Commit is the sole mutation point for balances.
type Store interface {
	// CreateAccount registers a new account. The balance must start at zero.
	CreateAccount(ctx context.Context, account Account) error

	// Account returns the account record as of the latest committed write.
	Account(ctx context.Context, id string) (Account, error)

	// Balance returns the latest committed balance, never a cached value.
	Balance(ctx context.Context, id string) (int64, error)

	// Commit atomically verifies the balance still equals expectedPrior,
	// appends the entry and moves the balance to entry.BalanceAfter. It fails
	// with ErrConflict when a concurrent writer got there first and with
	// ErrDuplicateReference when the entry's external reference was already
	// consumed by a successful entry. The store assigns CreatedAt at commit
	// time so per-account ordering follows commit order.
	Commit(ctx context.Context, accountID string, expectedPrior int64, entry Entry) (Entry, error)

	// Entries lists the account's ledger, most recent first.
	Entries(ctx context.Context, accountID string) ([]Entry, error)

	// ReferenceUsed reports whether a successful entry already carries the
	// given external reference for this account.
	ReferenceUsed(ctx context.Context, accountID, reference string) (bool, error)
}
