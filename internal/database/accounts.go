package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crossposter/internal/models"
)

const accountColumns = `id, owner, platform_id, account_name, username, account_id,
       credentials, is_active, created_at, updated_at`

// CreateAccount inserts a connected platform account.
func (db *DB) CreateAccount(ctx context.Context, account *models.PlatformAccount) error {
	creds, err := marshalJSON(account.Credentials)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `INSERT INTO accounts (owner, platform_id, account_name, username, account_id, credentials, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		account.Owner, account.PlatformID, account.AccountName, account.Username,
		account.AccountID, creds, account.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccount returns an account by id.
func (db *DB) GetAccount(ctx context.Context, id int64) (*models.PlatformAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	account, err := scanAccount(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return account, err
}

// GetAllAccounts returns every connected account.
func (db *DB) GetAllAccounts(ctx context.Context) ([]*models.PlatformAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.PlatformAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// UpdateAccountCredentials persists a rotated token pair. Dispatchers call
// this after a successful refresh, before retrying the original request.
func (db *DB) UpdateAccountCredentials(ctx context.Context, id int64, creds models.Credentials) error {
	raw, err := marshalJSON(creds)
	if err != nil {
		return err
	}

	query := `UPDATE accounts SET credentials = ?, updated_at = ? WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, raw, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update account credentials: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// SyncAccounts приводит аккаунты в базе к описанию из accounts.yaml.
// Совпадение ищется по (owner, platform_id, account_name); существующие
// записи обновляются, новые создаются. Лишние аккаунты не трогаем.
func (db *DB) SyncAccounts(ctx context.Context, accounts []models.PlatformAccount) error {
	for i := range accounts {
		account := &accounts[i]
		creds, err := marshalJSON(account.Credentials)
		if err != nil {
			return err
		}

		var id int64
		query := `SELECT id FROM accounts WHERE owner = ? AND platform_id = ? AND account_name = ?`
		err = db.db.QueryRowContext(ctx, query, account.Owner, account.PlatformID, account.AccountName).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := db.CreateAccount(ctx, account); err != nil {
				return err
			}
			db.log.Info().Int64("account_id", account.ID).Str("platform", account.PlatformID).Msg("Аккаунт добавлен")
		case err != nil:
			return fmt.Errorf("failed to sync accounts: %w", err)
		default:
			update := `UPDATE accounts SET username = ?, account_id = ?, credentials = ?, is_active = ?, updated_at = ? WHERE id = ?`
			if _, err := db.db.ExecContext(ctx, update,
				account.Username, account.AccountID, creds, account.IsActive, time.Now(), id,
			); err != nil {
				return fmt.Errorf("failed to sync accounts: %w", err)
			}
			account.ID = id
		}
	}
	return nil
}

// SetAccountActive включает или выключает аккаунт. Выключенный аккаунт
// пропускается пуллерами и отклоняется при публикации.
func (db *DB) SetAccountActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update account state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanAccount(row rowScanner) (*models.PlatformAccount, error) {
	var account models.PlatformAccount
	var name, username, accountID sql.NullString
	var creds string

	err := row.Scan(
		&account.ID, &account.Owner, &account.PlatformID, &name, &username, &accountID,
		&creds, &account.IsActive, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.AccountName = name.String
	account.Username = username.String
	account.AccountID = accountID.String
	if err := unmarshalJSON(creds, &account.Credentials); err != nil {
		return nil, err
	}
	return &account, nil
}
