package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/credits"
)

// Ledger keeps balances in users and appends to credit_transactions.
type Ledger struct {
	db      *sql.DB
	dialect Dialect
}

func NewLedger(db *sql.DB, d Dialect) *Ledger {
	return &Ledger{db: db, dialect: d}
}

// Debit runs guard, decrement, read-back and ledger append in one transaction.
// The guard clause is evaluated by the database at write time, so two
// concurrent debits can never both pass against the same balance.
func (l *Ledger) Debit(ctx context.Context, d domain.Debit) (*domain.Transaction, error) {
	if d.Cost <= 0 {
		return nil, fmt.Errorf("debit cost must be positive, got %d", d.Cost)
	}
	at := utc(d.At)

	var out *domain.Transaction
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, l.dialect.Rebind(
			`UPDATE users SET credit_balance = credit_balance - ?, updated_at = ? WHERE id = ? AND credit_balance >= ?`),
			d.Cost, at, d.UserID, d.Cost)
		if err != nil {
			return fmt.Errorf("decrementing balance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading affected rows: %w", err)
		}
		if n == 0 {
			if _, err := l.balance(ctx, tx, d.UserID); err != nil {
				return err
			}
			return domain.ErrInsufficientFunds
		}

		after, err := l.balance(ctx, tx, d.UserID)
		if err != nil {
			return err
		}
		out = &domain.Transaction{
			ID:              uuid.New().String(),
			UserID:          d.UserID,
			Amount:          -d.Cost,
			Type:            d.Type,
			Description:     d.Description,
			RelatedScanID:   d.RelatedScanID,
			TransactionDate: at,
			BalanceAfter:    after,
		}
		return l.insertTx(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Grant credits amount, creating the profile first when create is set.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, description string, create bool) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	at := time.Now().UTC()

	var out *domain.Transaction
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		if create {
			prefix, suffix := l.dialect.insertIgnore()
			q := prefix + ` users (id, email, credit_balance, created_at, updated_at) VALUES (?,?,?,?,?)` + suffix
			if _, err := tx.ExecContext(ctx, l.dialect.Rebind(q), userID, "", 0, at, at); err != nil {
				return fmt.Errorf("creating user profile: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, l.dialect.Rebind(
			`UPDATE users SET credit_balance = credit_balance + ?, updated_at = ? WHERE id = ?`),
			amount, at, userID)
		if err != nil {
			return fmt.Errorf("incrementing balance: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("reading affected rows: %w", err)
		} else if n == 0 {
			return domain.ErrProfileNotFound
		}

		after, err := l.balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = &domain.Transaction{
			ID:              uuid.New().String(),
			UserID:          userID,
			Amount:          amount,
			Type:            domain.TypeGrant,
			Description:     description,
			TransactionDate: at,
			BalanceAfter:    after,
		}
		return l.insertTx(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the user's profile or ErrProfileNotFound.
func (l *Ledger) Balance(ctx context.Context, userID string) (*domain.User, error) {
	const q = `SELECT id, email, credit_balance, created_at, updated_at FROM users WHERE id = ?`
	var u domain.User
	err := l.db.QueryRowContext(ctx, l.dialect.Rebind(q), userID).
		Scan(&u.ID, &u.Email, &u.CreditBalance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading user profile: %w", err)
	}
	return &u, nil
}

// Transactions lists a user's ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id, user_id, amount, type, description, related_scan_id, transaction_date, balance_after
FROM credit_transactions
WHERE user_id = ?
ORDER BY transaction_date DESC, id DESC
LIMIT ?`
	rows, err := l.db.QueryContext(ctx, l.dialect.Rebind(q), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	out := []*domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.RelatedScanID, &t.TransactionDate, &t.BalanceAfter); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (l *Ledger) balance(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	var bal int64
	err := tx.QueryRowContext(ctx, l.dialect.Rebind(`SELECT credit_balance FROM users WHERE id = ?`), userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance: %w", err)
	}
	return bal, nil
}

func (l *Ledger) insertTx(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	const q = `INSERT INTO credit_transactions
 (id, user_id, amount, type, description, related_scan_id, transaction_date, balance_after)
VALUES (?,?,?,?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, l.dialect.Rebind(q),
		t.ID, t.UserID, t.Amount, string(t.Type), t.Description, t.RelatedScanID, t.TransactionDate, t.BalanceAfter,
	); err != nil {
		return fmt.Errorf("appending credit transaction: %w", err)
	}
	return nil
}

func (l *Ledger) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// EnsureUser creates a profile with balance when it does not exist yet.
func (l *Ledger) EnsureUser(ctx context.Context, userID, email string, balance int64) error {
	at := time.Now().UTC()
	prefix, suffix := l.dialect.insertIgnore()
	q := prefix + ` users (id, email, credit_balance, created_at, updated_at) VALUES (?,?,?,?,?)` + suffix
	if _, err := l.db.ExecContext(ctx, l.dialect.Rebind(q), userID, email, balance, at, at); err != nil {
		return fmt.Errorf("ensuring user %s: %w", userID, err)
	}
	return nil
}
