package credits

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/credits"
	"github.com/bryanwahyu/iaccessible/internal/logging"
)

// ErrInvalidAmount is returned by Grant for non-positive amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Service exposes the server-authoritative balance and ledger to callers.
type Service struct {
	Ledger domain.Ledger
	Logger *zap.Logger
}

func NewService(ledger domain.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Ledger: ledger, Logger: logger.With(logging.Component("credits"))}
}

// Balance returns the caller's profile with its current balance.
func (s *Service) Balance(ctx context.Context, userID string) (*domain.User, error) {
	return s.Ledger.Balance(ctx, userID)
}

// History returns the most recent ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Ledger.Transactions(ctx, userID, limit)
}

// Grant tops up a balance. create provisions a missing profile.
func (s *Service) Grant(ctx context.Context, userID string, amount int64, note string, create bool) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if note == "" {
		note = fmt.Sprintf("Credit grant of %d", amount)
	}
	tx, err := s.Ledger.Grant(ctx, userID, amount, note, create)
	if err != nil {
		return nil, fmt.Errorf("granting credits: %w", err)
	}
	s.Logger.Info("credits granted", logging.UserID(userID), zap.Int64("amount", amount), zap.Int64("balance_after", tx.BalanceAfter))
	return tx, nil
}
