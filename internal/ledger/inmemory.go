package ledger

import (
	"context"
	"sync"
	"time"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	entries  map[string][]Entry
}

// NewInMemory creates a concurrency-safe in-memory store. Used by unit tests
// and by dev mode when no database is configured.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts: make(map[string]Account),
		entries:  make(map[string][]Entry),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return ErrConflict
	}
	account.Balance = 0
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *inMemoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *inMemoryStore) Balance(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return account.Balance, nil
}

func (s *inMemoryStore) Commit(_ context.Context, accountID string, expectedPrior int64, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return Entry{}, ErrAccountNotFound
	}
	if account.Balance != expectedPrior {
		return Entry{}, ErrConflict
	}
	if entry.ExternalReference != "" && s.referenceUsedLocked(accountID, entry.ExternalReference) {
		return Entry{}, ErrDuplicateReference
	}
	if entry.BalanceBefore != account.Balance || !entry.arithmeticOK() || entry.BalanceAfter < 0 {
		return Entry{}, ErrCorrupt
	}

	entry.CreatedAt = time.Now().UTC()
	account.Balance = entry.BalanceAfter
	s.accounts[accountID] = account
	s.entries[accountID] = append(s.entries[accountID], entry)
	return entry, nil
}

func (s *inMemoryStore) Entries(_ context.Context, accountID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	stored := s.entries[accountID]
	// Commit order is append order, so newest-first is a reversal.
	out := make([]Entry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

func (s *inMemoryStore) ReferenceUsed(_ context.Context, accountID, reference string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referenceUsedLocked(accountID, reference), nil
}

func (s *inMemoryStore) referenceUsedLocked(accountID, reference string) bool {
	for _, entry := range s.entries[accountID] {
		if entry.ExternalReference == reference && entry.Status == StatusSuccess {
			return true
		}
	}
	return false
}
