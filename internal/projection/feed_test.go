package projection

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
	"github.com/datahub-africa/datahub_pay/internal/logging"
)

func newLedger(t *testing.T, accountID string) (ledger.Store, *Feed) {
	t.Helper()
	store := ledger.NewInMemory()
	if err := store.CreateAccount(context.Background(), ledger.Account{ID: accountID}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return store, NewFeed(store, logging.Discard())
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snapshot := <-ch:
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestFeedDeliversCommittedSnapshots(t *testing.T) {
	store, feed := newLedger(t, "acct-1")
	engine := ledger.NewEngine(store, feed)
	ctx := context.Background()

	received := make(chan Snapshot, 8)
	sub := feed.Subscribe("acct-1", func(s Snapshot) { received <- s })
	defer sub.Cancel()

	initial := waitSnapshot(t, received)
	if initial.Balance != 0 || len(initial.Entries) != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	if _, err := engine.Credit(ctx, "acct-1", ledger.CategoryWalletFund, 100_000, nil, "R1"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	snapshot := waitSnapshot(t, received)
	if snapshot.Balance != 100_000 {
		t.Fatalf("expected projected balance 100000, got %d", snapshot.Balance)
	}
	if len(snapshot.Entries) != 1 || snapshot.Entries[0].ExternalReference != "R1" {
		t.Fatalf("unexpected projected entries: %+v", snapshot.Entries)
	}
}

func TestFeedSnapshotSatisfiesInvariant(t *testing.T) {
	store, feed := newLedger(t, "acct-1")
	engine := ledger.NewEngine(store, feed)
	ctx := context.Background()

	if _, err := engine.Credit(ctx, "acct-1", ledger.CategoryWalletFund, 200_000, nil, "R1"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := engine.Debit(ctx, "acct-1", ledger.CategoryAirtime, 25_000, nil); err != nil {
		t.Fatalf("debit: %v", err)
	}

	snapshot, err := feed.Snapshot(ctx, "acct-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var sum int64
	for _, e := range snapshot.Entries {
		if e.Status != ledger.StatusSuccess {
			continue
		}
		if e.Direction == ledger.DirectionCredit {
			sum += e.Amount
		} else {
			sum -= e.Amount
		}
	}
	if snapshot.Balance != sum {
		t.Fatalf("projected balance %d does not match entry sum %d", snapshot.Balance, sum)
	}
	// Newest first.
	if len(snapshot.Entries) != 2 || snapshot.Entries[0].Direction != ledger.DirectionDebit {
		t.Fatalf("entries not newest-first: %+v", snapshot.Entries)
	}
}

// commitBetweenReads delegates to the wrapped store but commits a pending
// entry right after the first Balance call, reproducing a commit landing
// between the feed's two reads.
type commitBetweenReads struct {
	ledger.Store
	commit func()
	done   bool
}

func (s *commitBetweenReads) Balance(ctx context.Context, id string) (int64, error) {
	balance, err := s.Store.Balance(ctx, id)
	if !s.done {
		s.done = true
		s.commit()
	}
	return balance, err
}

func TestSnapshotConsistentWhenCommitLandsBetweenReads(t *testing.T) {
	inner := ledger.NewInMemory()
	if err := inner.CreateAccount(context.Background(), ledger.Account{ID: "acct-1"}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	engine := ledger.NewEngine(inner, nil)
	store := &commitBetweenReads{Store: inner}
	store.commit = func() {
		if _, err := engine.Credit(context.Background(), "acct-1", ledger.CategoryWalletFund, 100_000, nil, "R1"); err != nil {
			t.Errorf("credit: %v", err)
		}
	}
	feed := NewFeed(store, logging.Discard())

	snapshot, err := feed.Snapshot(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	var sum int64
	for _, e := range snapshot.Entries {
		if e.Status != ledger.StatusSuccess {
			continue
		}
		if e.Direction == ledger.DirectionCredit {
			sum += e.Amount
		} else {
			sum -= e.Amount
		}
	}
	if snapshot.Balance != sum {
		t.Fatalf("projected balance %d does not match entry sum %d", snapshot.Balance, sum)
	}
	if snapshot.Balance != 100_000 {
		t.Fatalf("expected the snapshot to reflect the interleaved credit, got balance %d", snapshot.Balance)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	store, feed := newLedger(t, "acct-1")
	engine := ledger.NewEngine(store, feed)
	ctx := context.Background()

	received := make(chan Snapshot, 8)
	sub := feed.Subscribe("acct-1", func(s Snapshot) { received <- s })
	waitSnapshot(t, received) // initial

	sub.Cancel()
	sub.Cancel() // idempotent

	if _, err := engine.Credit(ctx, "acct-1", ledger.CategoryWalletFund, 1_000, nil, "R1"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	select {
	case s := <-received:
		t.Fatalf("received snapshot after cancel: %+v", s)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBridgeRelaysChanges(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, feed := newLedger(t, "acct-1")
	bridge := NewRedisBridge(client, feed, logging.Discard())
	engine := ledger.NewEngine(store, bridge)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go bridge.Run(runCtx) // nolint:errcheck
	// Give the pub/sub consumer a moment to register before publishing.
	time.Sleep(100 * time.Millisecond)

	received := make(chan Snapshot, 8)
	sub := feed.Subscribe("acct-1", func(s Snapshot) { received <- s })
	defer sub.Cancel()
	waitSnapshot(t, received) // initial

	if _, err := engine.Credit(context.Background(), "acct-1", ledger.CategoryWalletFund, 42_000, nil, "R-bridge"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	snapshot := waitSnapshot(t, received)
	if snapshot.Balance != 42_000 {
		t.Fatalf("expected relayed balance 42000, got %d", snapshot.Balance)
	}
}
