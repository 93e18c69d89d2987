package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists accounts and ledger entries in PostgreSQL. Commit
// runs in a single transaction with a row lock on the account, so the balance
// guard, the append and the balance update land together or not at all.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS accounts (
            id              TEXT PRIMARY KEY,
            balance         BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
            bank_name       TEXT NOT NULL,
            account_number  TEXT NOT NULL,
            account_name    TEXT NOT NULL,
            created_at      TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS ledger_entries (
            id                 TEXT PRIMARY KEY,
            account_id         TEXT NOT NULL REFERENCES accounts (id),
            direction          TEXT NOT NULL,
            category           TEXT NOT NULL,
            amount             BIGINT NOT NULL CHECK (amount > 0),
            balance_before     BIGINT NOT NULL,
            balance_after      BIGINT NOT NULL,
            status             TEXT NOT NULL,
            external_reference TEXT NOT NULL DEFAULT '',
            metadata           JSONB,
            created_at         TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS ledger_entries_account_created
            ON ledger_entries (account_id, created_at DESC);
        CREATE UNIQUE INDEX IF NOT EXISTS ledger_entries_success_reference
            ON ledger_entries (account_id, external_reference)
            WHERE status = 'success' AND external_reference <> '';`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrUnavailable, err)
	}
	return nil
}

// CreateAccount inserts a fresh zero-balance account with its funding destination.
func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, balance, bank_name, account_number, account_name, created_at)
        VALUES ($1, 0, $2, $3, $4, $5)`,
		account.ID, account.FundingDestination.BankName, account.FundingDestination.AccountNumber,
		account.FundingDestination.AccountName, createdAt.UTC())
	if err != nil {
		// A duplicate id is a deterministic failure, not a transient one.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: account %s already exists", ErrConflict, account.ID)
		}
		return fmt.Errorf("%w: create account: %v", ErrUnavailable, err)
	}
	return nil
}

// Account fetches the account record by id.
func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT id, balance, bank_name, account_number, account_name, created_at
        FROM accounts WHERE id = $1`, id)
	var (
		account   Account
		createdAt time.Time
	)
	if err := row.Scan(&account.ID, &account.Balance, &account.FundingDestination.BankName,
		&account.FundingDestination.AccountNumber, &account.FundingDestination.AccountName, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("%w: read account: %v", ErrUnavailable, err)
	}
	account.CreatedAt = createdAt.UTC()
	if account.Balance < 0 {
		return Account{}, fmt.Errorf("%w: account %s has negative balance", ErrCorrupt, id)
	}
	return account, nil
}

// Balance returns the latest committed balance for the account.
func (s *PostgresStore) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	if err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("%w: read balance: %v", ErrUnavailable, err)
	}
	if balance < 0 {
		return 0, fmt.Errorf("%w: account %s has negative balance", ErrCorrupt, id)
	}
	return balance, nil
}

// Commit appends the entry and moves the balance inside one transaction. The
// row lock plus the expectedPrior guard serializes writers per account.
func (s *PostgresStore) Commit(ctx context.Context, accountID string, expectedPrior int64, entry Entry) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, fmt.Errorf("%w: begin commit: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrAccountNotFound
		}
		return Entry{}, fmt.Errorf("%w: lock account: %v", ErrUnavailable, err)
	}
	if balance != expectedPrior {
		return Entry{}, ErrConflict
	}

	if entry.ExternalReference != "" {
		var used bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (
            SELECT 1 FROM ledger_entries
            WHERE account_id = $1 AND external_reference = $2 AND status = $3)`,
			accountID, entry.ExternalReference, StatusSuccess).Scan(&used); err != nil {
			return Entry{}, fmt.Errorf("%w: reference lookup: %v", ErrUnavailable, err)
		}
		if used {
			return Entry{}, ErrDuplicateReference
		}
	}

	if entry.BalanceBefore != balance || !entry.arithmeticOK() || entry.BalanceAfter < 0 {
		return Entry{}, fmt.Errorf("%w: entry arithmetic does not match locked balance", ErrCorrupt)
	}

	entry.CreatedAt = time.Now().UTC()

	var metadata []byte
	if len(entry.Metadata) > 0 {
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return Entry{}, fmt.Errorf("encode metadata: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
        (id, account_id, direction, category, amount, balance_before, balance_after, status, external_reference, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.AccountID, string(entry.Direction), string(entry.Category), entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, string(entry.Status), entry.ExternalReference,
		metadata, entry.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("%w: append entry: %v", ErrUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, entry.BalanceAfter, accountID); err != nil {
		return Entry{}, fmt.Errorf("%w: move balance: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}

	return entry, nil
}

// Entries lists the account's ledger newest-first.
func (s *PostgresStore) Entries(ctx context.Context, accountID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, account_id, direction, category, amount, balance_before, balance_after,
        status, external_reference, metadata, created_at
        FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			direction string
			category  string
			status    string
			metadata  []byte
			createdAt time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.AccountID, &direction, &category, &entry.Amount,
			&entry.BalanceBefore, &entry.BalanceAfter, &status, &entry.ExternalReference,
			&metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", ErrUnavailable, err)
		}
		entry.Direction = Direction(direction)
		entry.Category = Category(category)
		entry.Status = Status(status)
		entry.CreatedAt = createdAt.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("%w: entry %s metadata unreadable", ErrCorrupt, entry.ID)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrUnavailable, err)
	}
	return entries, nil
}

// ReferenceUsed reports whether a success entry already carries the reference.
func (s *PostgresStore) ReferenceUsed(ctx context.Context, accountID, reference string) (bool, error) {
	var used bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (
        SELECT 1 FROM ledger_entries
        WHERE account_id = $1 AND external_reference = $2 AND status = $3)`,
		accountID, reference, StatusSuccess).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("%w: reference lookup: %v", ErrUnavailable, err)
	}
	return used, nil
}
