package ledger

// SeedBalance is a test helper that forces an account balance when using the
// in-memory store. It bypasses the commit path on purpose.
func SeedBalance(s Store, accountID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		account, exists := mem.accounts[accountID]
		if !exists {
			account = Account{ID: accountID}
		}
		account.Balance = amount
		mem.accounts[accountID] = account
	}
}
