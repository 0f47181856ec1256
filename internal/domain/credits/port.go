package credits

import "context"

// Ledger owns user balances and the transaction log.
type Ledger interface {
	// Debit atomically decrements the balance by d.Cost only when the balance
	// covers it, and appends the matching Transaction in the same unit of work.
	// It returns ErrProfileNotFound or ErrInsufficientFunds without mutating anything.
	Debit(ctx context.Context, d Debit) (*Transaction, error)
	// Grant adds amount to the balance, creating the profile when create is set.
	Grant(ctx context.Context, userID string, amount int64, description string, create bool) (*Transaction, error)
	Balance(ctx context.Context, userID string) (*User, error)
	Transactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}
