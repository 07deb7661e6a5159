package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

// ErrAccountExists is returned when an open account with the same name exists
var ErrAccountExists = errors.New("ledger account already exists")

// LedgerStore is a self-hosted ledger backed by PostgreSQL. It implements
// sync.LedgerStore with the same idempotency contract as the Actual API:
// transactions are keyed on (account_id, imported_id).
type LedgerStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that LedgerStore implements sync.LedgerStore
var _ sync.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new PostgreSQL ledger store
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// ListAccounts returns the open ledger accounts ordered by name
func (s *LedgerStore) ListAccounts(ctx context.Context) ([]sync.LedgerAccount, error) {
	query := `
		SELECT id, name
		FROM accounts
		WHERE NOT closed
		ORDER BY name
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []sync.LedgerAccount
	for rows.Next() {
		var acc sync.LedgerAccount
		if err := rows.Scan(&acc.ID, &acc.Name); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// CreateAccount creates an open account and returns its id
func (s *LedgerStore) CreateAccount(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("account name is required")
	}

	id := uuid.NewString()
	query := `
		INSERT INTO accounts (id, name, closed, created_at)
		VALUES ($1, $2, FALSE, $3)
	`

	_, err := s.pool.Exec(ctx, query, id, name, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%w: %s", ErrAccountExists, name)
		}
		return "", fmt.Errorf("failed to create account: %w", err)
	}

	return id, nil
}

// upsertTransactionQuery inserts a transaction or updates the row with the same
// imported id. Rows whose fields did not change return nothing; xmax = 0 tells
// an insert apart from an update.
const upsertTransactionQuery = `
	INSERT INTO transactions (id, account_id, imported_id, date, amount, payee_name, notes, cleared, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	ON CONFLICT (account_id, imported_id) DO UPDATE SET
		date = EXCLUDED.date,
		amount = EXCLUDED.amount,
		payee_name = EXCLUDED.payee_name,
		notes = EXCLUDED.notes,
		cleared = EXCLUDED.cleared,
		updated_at = EXCLUDED.updated_at
	WHERE (transactions.date, transactions.amount, transactions.payee_name, transactions.notes, transactions.cleared)
		IS DISTINCT FROM (EXCLUDED.date, EXCLUDED.amount, EXCLUDED.payee_name, EXCLUDED.notes, EXCLUDED.cleared)
	RETURNING (xmax = 0) AS inserted
`

// ImportTransactions upserts the batch in one database transaction
func (s *LedgerStore) ImportTransactions(ctx context.Context, accountID string, txs []sync.NormalizedTransaction) (sync.ImportResult, error) {
	var result sync.ImportResult
	if len(txs) == 0 {
		return result, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op after a successful commit
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND NOT closed)`, accountID).Scan(&exists); err != nil {
		return result, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return result, fmt.Errorf("ledger account not found: %s", accountID)
	}

	now := time.Now().UTC()
	for _, t := range txs {
		date, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return sync.ImportResult{}, fmt.Errorf("invalid date %q for transaction %s: %w", t.Date, t.ExternalID, err)
		}

		var inserted bool
		err = tx.QueryRow(ctx, upsertTransactionQuery,
			uuid.NewString(),
			accountID,
			t.ExternalID,
			date,
			t.Amount,
			t.PayeeName,
			t.Note,
			t.Cleared,
			now,
		).Scan(&inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// unchanged
		case err != nil:
			return sync.ImportResult{}, fmt.Errorf("failed to import transaction %s: %w", t.ExternalID, err)
		case inserted:
			result.Added++
		default:
			result.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return sync.ImportResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// GetBalance returns the sum of the account's transactions in minor units
func (s *LedgerStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM transactions WHERE account_id = $1`, accountID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
