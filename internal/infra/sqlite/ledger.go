package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ideaforge/ideaforge/internal/domain"
)

// ─── Credit Ledger Operations ───────────────────────────────────────────────
// Debit is the single money-moving operation of the workflow. It runs inside
// one transaction: balance check, decrement, and ledger append commit
// together or not at all. No partial debit is ever observable.

// EnsureAccount creates the account with an initial grant if it does not
// exist. Existing accounts are left untouched.
func (db *DB) EnsureAccount(ctx context.Context, userID string, signupGrant int64) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO credit_accounts (user_id, balance) VALUES (?, ?)
	`, userID, signupGrant)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	if n, _ := res.RowsAffected(); n == 1 && signupGrant > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credit_ledger (user_id, tx_type, entry_type, amount, description, balance)
			VALUES (?, ?, ?, ?, 'signup grant', ?)
		`, userID, domain.TxGrant, domain.EntryCredit, signupGrant, signupGrant)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
		}
	}
	return tx.Commit()
}

// Debit atomically charges amount credits from userID for feature. On success
// it returns the post-debit balance; the caller must refresh any cached
// balance from this value. ErrInsufficientCredits leaves no trace in the
// ledger and no balance change.
func (db *DB) Debit(ctx context.Context, userID, feature string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM credit_accounts WHERE user_id = ?
	`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if balance < amount {
		return balance, domain.ErrInsufficientCredits
	}

	// The balance guard in the WHERE clause re-checks under the write lock,
	// so a concurrent debit can never push the balance negative.
	res, err := tx.ExecContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance - ?, updated_at = datetime('now')
		WHERE user_id = ? AND balance >= ?
	`, amount, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return balance, domain.ErrInsufficientCredits
	}

	newBalance := balance - amount
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (user_id, tx_type, entry_type, feature, amount, description, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, userID, domain.TxSpend, domain.EntryDebit, feature, amount, description, newBalance)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return newBalance, nil
}

// Grant atomically adds amount credits (top-up or manual refund) and appends
// the matching ledger entry. Returns the new balance.
func (db *DB) Grant(ctx context.Context, userID string, amount int64, txType domain.TransactionType, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO credit_accounts (user_id, balance) VALUES (?, 0)
	`, userID); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	var newBalance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance + ?, updated_at = datetime('now')
		WHERE user_id = ?
		RETURNING balance
	`, amount, userID).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (user_id, tx_type, entry_type, amount, description, balance)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, txType, domain.EntryCredit, amount, description, newBalance); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return newBalance, nil
}

// Balance returns the current balance for a user. Unknown users read as 0.
func (db *DB) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := db.db.QueryRowContext(ctx, `
		SELECT balance FROM credit_accounts WHERE user_id = ?
	`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return balance, nil
}

// Entries returns recent ledger entries for a user, newest first.
func (db *DB) Entries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, tx_type, entry_type, feature, amount, description, balance, created_at
		FROM credit_ledger WHERE user_id = ? ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var createdStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.EntryType, &e.Feature, &e.Amount, &e.Description, &e.Balance, &createdStr); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse("2006-01-02 15:04:05", createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntryCount returns the total number of ledger entries for a user.
func (db *DB) EntryCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM credit_ledger WHERE user_id = ?
	`, userID).Scan(&count)
	return count, err
}
