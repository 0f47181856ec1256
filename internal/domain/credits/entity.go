package credits

import (
	"errors"
	"time"
)

var (
	ErrProfileNotFound   = errors.New("user profile not found")
	ErrInsufficientFunds = errors.New("insufficient credits")
)

// TransactionType tags a ledger entry.
type TransactionType string

const (
	TypeScanUsageWebpageAccessibility TransactionType = "scan_usage_webpage_accessibility"
	TypeGrant                         TransactionType = "grant"
)

// SettlementStatus is reported back to the caller in place of settlement errors.
type SettlementStatus string

const (
	// StatusPending means settlement was never attempted: the ScanRecord could
	// not be stored, so there is no scan id to bill against. The caller is not charged.
	StatusPending           SettlementStatus = "pending"
	StatusSuccess           SettlementStatus = "success"
	StatusInsufficientFunds SettlementStatus = "failed_insufficient_funds"
	StatusProfileNotFound   SettlementStatus = "error_user_profile_not_found"
	StatusDeductionFailed   SettlementStatus = "error_deduction_failed"
	StatusNoUserID          SettlementStatus = "error_no_userid"
)

// User is the externally owned profile; only the balance matters here.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	CreditBalance int64     `json:"creditBalance"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Amount          int64           `json:"amount"`
	Type            TransactionType `json:"type"`
	Description     string          `json:"description"`
	RelatedScanID   string          `json:"relatedScanId,omitempty"`
	TransactionDate time.Time       `json:"transactionDate"`
	BalanceAfter    int64           `json:"balanceAfter"`
}

// Debit describes one settlement attempt.
type Debit struct {
	UserID        string
	Cost          int64
	Type          TransactionType
	Description   string
	RelatedScanID string
	At            time.Time
}
