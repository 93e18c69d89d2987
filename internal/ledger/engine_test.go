package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestAccount(t *testing.T, store Store, id string) {
	t.Helper()
	err := store.CreateAccount(context.Background(), Account{
		ID: id,
		FundingDestination: FundingDestination{
			BankName:      "Wema Bank",
			AccountNumber: "7829102931",
			AccountName:   "DATAHUB - Test User",
		},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
}

func TestEngineCreditWalletFund(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")

	entry, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, 100_000, map[string]string{"method": "card"}, "R1")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if entry.Direction != DirectionCredit || entry.Status != StatusSuccess {
		t.Fatalf("unexpected entry shape: %+v", entry)
	}
	if entry.BalanceBefore != 0 || entry.BalanceAfter != 100_000 {
		t.Fatalf("expected balances 0/100000, got %d/%d", entry.BalanceBefore, entry.BalanceAfter)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("store did not assign CreatedAt")
	}

	balance, err := store.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100_000 {
		t.Fatalf("expected balance 100000, got %d", balance)
	}
}

func TestEngineDebit(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")
	SeedBalance(store, "acct-1", 100_000)

	entry, err := engine.Debit(ctx, "acct-1", CategoryData, 50_000, map[string]string{"network": "MTN", "plan": "1GB"})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.Direction != DirectionDebit || entry.Status != StatusSuccess {
		t.Fatalf("unexpected entry shape: %+v", entry)
	}
	if entry.BalanceBefore != 100_000 || entry.BalanceAfter != 50_000 {
		t.Fatalf("expected balances 100000/50000, got %d/%d", entry.BalanceBefore, entry.BalanceAfter)
	}
}

func TestEngineDebitInsufficientFunds(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")
	SeedBalance(store, "acct-1", 50_000)

	if _, err := engine.Debit(ctx, "acct-1", CategoryAirtime, 60_000, nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := store.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50_000 {
		t.Fatalf("balance moved on rejected debit: %d", balance)
	}
	entries, err := store.Entries(ctx, "acct-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected debit produced %d entries", len(entries))
	}
}

func TestEngineDuplicateReference(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")

	if _, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, 5_000, nil, "R2"); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if _, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, 5_000, nil, "R2"); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	balance, _ := store.Balance(ctx, "acct-1")
	if balance != 5_000 {
		t.Fatalf("reference replay double-credited, balance=%d", balance)
	}
}

func TestEngineAdmissionValidation(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")

	if _, err := engine.Debit(ctx, "acct-1", CategoryData, 0, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero debit: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, -5, nil, "R"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative credit: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", CategoryWalletFund, 100, nil); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("wallet_fund debit: expected ErrInvalidCategory, got %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", Category("loans"), 100, nil); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("unknown category: expected ErrInvalidCategory, got %v", err)
	}
	if _, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, 100, nil, ""); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("unreferenced funding: expected ErrMissingReference, got %v", err)
	}
	if _, err := engine.Debit(ctx, "missing", CategoryData, 100, nil); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unknown account: expected ErrAccountNotFound, got %v", err)
	}
}

// conflictingStore injects one concurrent debit right before the first commit,
// forcing the optimistic guard to fail exactly once.
type conflictingStore struct {
	Store
	engine *Engine
	once   sync.Once
}

func (c *conflictingStore) Commit(ctx context.Context, accountID string, expectedPrior int64, entry Entry) (Entry, error) {
	c.once.Do(func() {
		if _, err := c.engine.Debit(ctx, accountID, CategoryAirtime, 1_000, nil); err != nil {
			panic(err)
		}
	})
	return c.Store.Commit(ctx, accountID, expectedPrior, entry)
}

func TestEngineRetriesAfterConflict(t *testing.T) {
	inner := NewInMemory()
	ctx := context.Background()
	newTestAccount(t, inner, "acct-1")
	SeedBalance(inner, "acct-1", 10_000)

	store := &conflictingStore{Store: inner, engine: NewEngine(inner, nil)}
	engine := NewEngine(store, nil)

	entry, err := engine.Debit(ctx, "acct-1", CategoryData, 2_000, nil)
	if err != nil {
		t.Fatalf("debit after conflict: %v", err)
	}
	// The re-read must see the concurrent debit already applied.
	if entry.BalanceBefore != 9_000 || entry.BalanceAfter != 7_000 {
		t.Fatalf("expected balances 9000/7000, got %d/%d", entry.BalanceBefore, entry.BalanceAfter)
	}

	balance, _ := inner.Balance(ctx, "acct-1")
	if balance != 7_000 {
		t.Fatalf("expected serialized final balance 7000, got %d", balance)
	}
}

func TestEngineConcurrentDebitsSingleWinner(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")
	SeedBalance(store, "acct-1", 100_000)

	// Balance covers exactly one of the two debits.
	const amount = int64(60_000)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Debit(ctx, "acct-1", CategoryElectricity, amount, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrConflict):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || rejections != 1 {
		t.Fatalf("expected exactly one winner, got %d successes / %d rejections", successes, rejections)
	}

	balance, _ := store.Balance(ctx, "acct-1")
	if balance != 40_000 {
		t.Fatalf("expected balance 40000, got %d", balance)
	}
}

func TestBalanceMatchesEntrySums(t *testing.T) {
	store := NewInMemory()
	engine := NewEngine(store, nil)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")

	if _, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, 250_000, nil, "fund-1"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", CategoryData, 50_000, nil); err != nil {
		t.Fatalf("debit data: %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", CategoryCable, 30_000, nil); err != nil {
		t.Fatalf("debit cable: %v", err)
	}

	entries, err := store.Entries(ctx, "acct-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		if e.Status != StatusSuccess {
			continue
		}
		switch e.Direction {
		case DirectionCredit:
			sum += e.Amount
		case DirectionDebit:
			sum -= e.Amount
		}
	}
	balance, _ := store.Balance(ctx, "acct-1")
	if balance != sum {
		t.Fatalf("invariant broken: balance=%d entry sum=%d", balance, sum)
	}
	if balance != 170_000 {
		t.Fatalf("expected balance 170000, got %d", balance)
	}
}

type notedAccounts struct {
	mu  sync.Mutex
	ids []string
}

func (n *notedAccounts) AccountChanged(_ context.Context, accountID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, accountID)
}

func TestEngineNotifiesAfterCommit(t *testing.T) {
	store := NewInMemory()
	noted := &notedAccounts{}
	engine := NewEngine(store, noted)
	ctx := context.Background()
	newTestAccount(t, store, "acct-1")

	if _, err := engine.Credit(ctx, "acct-1", CategoryWalletFund, 1_000, nil, "fund-1"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", CategoryAirtime, 1_000, nil); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", CategoryAirtime, 1_000, nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	noted.mu.Lock()
	defer noted.mu.Unlock()
	if len(noted.ids) != 2 {
		t.Fatalf("expected 2 notifications for 2 commits, got %d", len(noted.ids))
	}
}
