// Package identity provides storage adapters for users and their linked NEAR
// accounts.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

const providerID = "siwn"

// PostgresStore is a PostgreSQL implementation of the IdentityStore
// interface. A unique index on near_accounts (account_id, network) makes
// concurrent first-time sign-ins converge on a single user row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindAccount(ctx context.Context, accountID, network string) (*core.NearAccount, error) {
	query := `SELECT user_id, account_id, network, public_key, is_primary, created_at
		 FROM near_accounts
		 WHERE account_id = $1 AND network = $2`

	return s.scanAccount(s.db.QueryRowContext(ctx, query, accountID, network))
}

func (s *PostgresStore) FindAccountAnyNetwork(ctx context.Context, accountID string) (*core.NearAccount, error) {
	query := `SELECT user_id, account_id, network, public_key, is_primary, created_at
		 FROM near_accounts
		 WHERE account_id = $1
		 ORDER BY created_at
		 LIMIT 1`

	return s.scanAccount(s.db.QueryRowContext(ctx, query, accountID))
}

func (s *PostgresStore) scanAccount(row *sql.Row) (*core.NearAccount, error) {
	account := &core.NearAccount{}
	err := row.Scan(&account.UserID, &account.AccountID, &account.Network,
		&account.PublicKey, &account.IsPrimary, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*core.User, error) {
	query := `SELECT id, name, email, image, created_at FROM users WHERE id = $1`

	user := &core.User{}
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&user.ID, &user.Name, &user.Email, &user.Image, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}

	return user, nil
}

// CreateUserWithAccount creates the user and its primary link in one
// transaction. If another request raced us to the same (accountId, network),
// the insert hits the unique index, the transaction rolls back and the
// already-created owning user is returned instead.
func (s *PostgresStore) CreateUserWithAccount(ctx context.Context, user *core.User, account *core.NearAccount) (*core.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	insertUser := `INSERT INTO users (id, name, email, image, created_at)
		 VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insertUser,
		user.ID, user.Name, user.Email, user.Image, user.CreatedAt); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	insertAccount := `INSERT INTO near_accounts (user_id, account_id, network, public_key, is_primary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_id, network) DO NOTHING`
	res, err := tx.ExecContext(ctx, insertAccount,
		account.UserID, account.AccountID, account.Network,
		account.PublicKey, account.IsPrimary, account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating account link: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error reading insert result: %w", err)
	}
	if inserted == 0 {
		// Lost the race: give up our user row and adopt the winner's.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return nil, fmt.Errorf("error rolling back: %w", err)
		}
		existing, err := s.FindAccount(ctx, account.AccountID, account.Network)
		if err != nil {
			return nil, err
		}
		return s.GetUser(ctx, existing.UserID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	return user, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account *core.NearAccount) error {
	query := `INSERT INTO near_accounts (user_id, account_id, network, public_key, is_primary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_id, network) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		account.UserID, account.AccountID, account.Network,
		account.PublicKey, account.IsPrimary, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating account link: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading insert result: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("account %s on %s: %w", account.AccountID, account.Network, core.ErrAccountAlreadyLinked)
	}

	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, userID string) ([]core.NearAccount, error) {
	query := `SELECT user_id, account_id, network, public_key, is_primary, created_at
		 FROM near_accounts
		 WHERE user_id = $1
		 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var accounts []core.NearAccount
	for rows.Next() {
		var account core.NearAccount
		if err := rows.Scan(&account.UserID, &account.AccountID, &account.Network,
			&account.PublicKey, &account.IsPrimary, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, userID, accountID, network string) error {
	query := `DELETE FROM near_accounts
		 WHERE user_id = $1 AND account_id = $2 AND network = $3`

	res, err := s.db.ExecContext(ctx, query, userID, accountID, network)
	if err != nil {
		return fmt.Errorf("error deleting account link: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading delete result: %w", err)
	}
	if deleted == 0 {
		return core.ErrNotFound
	}

	return nil
}

func (s *PostgresStore) RegisterProvider(ctx context.Context, userID, providerAccountID string) error {
	query := `INSERT INTO provider_accounts (user_id, provider_id, provider_account_id, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (provider_id, provider_account_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, userID, providerID, providerAccountID); err != nil {
		return fmt.Errorf("error registering provider association: %w", err)
	}

	return nil
}

var _ ports.IdentityStore = (*PostgresStore)(nil)
