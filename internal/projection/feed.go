package projection

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
)

// Snapshot is one consistent view of an account: the committed balance and the
// full entry history, newest first. The balance always equals what the entry
// list implies because it is derived from the newest successful entry.
type Snapshot struct {
	AccountID string
	Balance   int64
	Entries   []ledger.Entry
	AsOf      time.Time
}

// Feed pushes account snapshots to observers whenever the ledger commits a
// change for that account. Delivery is at-least-once: an observer may see a
// slightly stale snapshot immediately followed by the current one.
type Feed struct {
	store  ledger.Store
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
}

// Subscription is the handle returned by Subscribe. Cancel stops delivery and
// releases the subscriber goroutine.
type Subscription struct {
	feed      *Feed
	accountID string
	id        uint64
	updates   chan Snapshot
	done      chan struct{}
	once      sync.Once
}

// NewFeed builds a projection feed over the given store.
func NewFeed(store ledger.Store, logger *slog.Logger) *Feed {
	return &Feed{
		store:  store,
		logger: logger,
		subs:   make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe registers onUpdate for the account and immediately queues the
// current snapshot. The callback runs on a dedicated goroutine per
// subscription, so slow observers never stall the commit path.
func (f *Feed) Subscribe(accountID string, onUpdate func(Snapshot)) *Subscription {
	f.mu.Lock()
	f.nextID++
	sub := &Subscription{
		feed:      f,
		accountID: accountID,
		id:        f.nextID,
		updates:   make(chan Snapshot, 4),
		done:      make(chan struct{}),
	}
	if f.subs[accountID] == nil {
		f.subs[accountID] = make(map[uint64]*Subscription)
	}
	f.subs[accountID][sub.id] = sub
	f.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case snapshot := <-sub.updates:
				onUpdate(snapshot)
			}
		}
	}()

	// Initial snapshot so the observer starts from the committed state.
	if snapshot, err := f.snapshot(context.Background(), accountID); err == nil {
		sub.push(snapshot)
	}

	return sub
}

// Cancel stops delivery and releases the subscription's resources. Safe to
// call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		if subs := s.feed.subs[s.accountID]; subs != nil {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.feed.subs, s.accountID)
			}
		}
		s.feed.mu.Unlock()
		close(s.done)
	})
}

// push queues a snapshot without blocking. When the buffer is full the oldest
// queued snapshot is dropped; the newest always survives, so the observer
// converges on the current state.
func (s *Subscription) push(snapshot Snapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.updates <- snapshot:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// AccountChanged loads a fresh snapshot and fans it out to every subscriber
// of the account. It satisfies ledger.Notifier.
func (f *Feed) AccountChanged(ctx context.Context, accountID string) {
	f.mu.Lock()
	if len(f.subs[accountID]) == 0 {
		f.mu.Unlock()
		return
	}
	targets := make([]*Subscription, 0, len(f.subs[accountID]))
	for _, sub := range f.subs[accountID] {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	snapshot, err := f.snapshot(ctx, accountID)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("projection snapshot failed", "account_id", accountID, "error", err)
		}
		return
	}
	for _, sub := range targets {
		sub.push(snapshot)
	}
}

// Snapshot returns the current committed view of the account.
func (f *Feed) Snapshot(ctx context.Context, accountID string) (Snapshot, error) {
	return f.snapshot(ctx, accountID)
}

func (f *Feed) snapshot(ctx context.Context, accountID string) (Snapshot, error) {
	// The balance read only establishes that the account exists; its value is
	// not used. A commit may land between this read and the entry listing, so
	// the balance is derived from the entries themselves below and the
	// snapshot is internally consistent whatever the interleaving.
	if _, err := f.store.Balance(ctx, accountID); err != nil {
		return Snapshot{}, err
	}
	entries, err := f.store.Entries(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}
	// Stores promise newest-first but a degraded read path may lose the
	// ordering; re-sorting here keeps the contract either way.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	var balance int64
	for _, e := range entries {
		if e.Status == ledger.StatusSuccess {
			balance = e.BalanceAfter
			break
		}
	}
	return Snapshot{
		AccountID: accountID,
		Balance:   balance,
		Entries:   entries,
		AsOf:      time.Now().UTC(),
	}, nil
}
