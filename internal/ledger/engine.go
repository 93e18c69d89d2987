package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// commitAttempts bounds how often an operation re-reads and retries after a
// concurrent writer wins the optimistic guard.
const commitAttempts = 3

// Notifier is told after each successful commit so observers can re-project.
// Notification failures never affect the committed result.
type Notifier interface {
	AccountChanged(ctx context.Context, accountID string)
}

// Engine decides whether a requested operation is admissible and materializes
// the resulting entry plus balance update as a single unit through the store.
// It performs no network I/O; verifying external payments is the caller's job.
type Engine struct {
	store    Store
	notifier Notifier
}

// NewEngine builds a ledger engine. The notifier may be nil.
func NewEngine(store Store, notifier Notifier) *Engine {
	return &Engine{store: store, notifier: notifier}
}

// Debit admits and commits a purchase against the account balance. It fails
// with ErrInsufficientFunds when the amount exceeds the current balance; the
// admission read and the commit are tied together by the store's optimistic
// guard, so a stale read can never produce an inconsistent commit.
func (e *Engine) Debit(ctx context.Context, accountID string, category Category, amount int64, metadata map[string]string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	if !category.Valid() || category == CategoryWalletFund {
		return Entry{}, ErrInvalidCategory
	}

	var lastErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		balance, err := e.store.Balance(ctx, accountID)
		if err != nil {
			return Entry{}, err
		}
		if amount > balance {
			return Entry{}, ErrInsufficientFunds
		}

		entry := Entry{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Direction:     DirectionDebit,
			Category:      category,
			Amount:        amount,
			BalanceBefore: balance,
			BalanceAfter:  balance - amount,
			Status:        StatusSuccess,
			Metadata:      cloneMetadata(metadata),
		}

		committed, err := e.store.Commit(ctx, accountID, balance, entry)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return Entry{}, err
		}

		e.notify(ctx, accountID)
		return committed, nil
	}

	return Entry{}, lastErr
}

// Credit admits and commits a credit. Wallet funding credits must carry a
// non-empty external reference that the caller already verified with the
// payment gateway; the amount passed here must be the gateway-verified amount,
// never a client-reported one. Replaying a reference fails with
// ErrDuplicateReference, crediting at most once.
func (e *Engine) Credit(ctx context.Context, accountID string, category Category, amount int64, metadata map[string]string, externalReference string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	if !category.Valid() {
		return Entry{}, ErrInvalidCategory
	}
	if category == CategoryWalletFund && externalReference == "" {
		return Entry{}, ErrMissingReference
	}

	if externalReference != "" {
		used, err := e.store.ReferenceUsed(ctx, accountID, externalReference)
		if err != nil {
			return Entry{}, err
		}
		if used {
			return Entry{}, ErrDuplicateReference
		}
	}

	var lastErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		balance, err := e.store.Balance(ctx, accountID)
		if err != nil {
			return Entry{}, err
		}

		entry := Entry{
			ID:                uuid.NewString(),
			AccountID:         accountID,
			Direction:         DirectionCredit,
			Category:          category,
			Amount:            amount,
			BalanceBefore:     balance,
			BalanceAfter:      balance + amount,
			Status:            StatusSuccess,
			ExternalReference: externalReference,
			Metadata:          cloneMetadata(metadata),
		}

		committed, err := e.store.Commit(ctx, accountID, balance, entry)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return Entry{}, err
		}

		e.notify(ctx, accountID)
		return committed, nil
	}

	return Entry{}, lastErr
}

func (e *Engine) notify(ctx context.Context, accountID string) {
	if e.notifier != nil {
		e.notifier.AccountChanged(ctx, accountID)
	}
}

// cloneMetadata keeps the committed entry independent of the caller's map.
func cloneMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	return clone
}
