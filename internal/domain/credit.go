package domain

import "time"

// ─── Credit Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules: paid
// features consume prepaid credits, and every debit leaves an audit trail.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a credit operation.
type TransactionType string

const (
	TxSpend  TransactionType = "SPEND"  // paid feature invocation
	TxGrant  TransactionType = "GRANT"  // purchase or admin top-up
	TxRefund TransactionType = "REFUND" // manual compensation only
)

// CreditAccount is a user's prepaid balance. It is mutated only through the
// ledger's atomic debit/grant operations; clients never compute a balance by
// local subtraction.
type CreditAccount struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// LedgerEntry is a single row in the append-only credit ledger. An entry of
// type SPEND exists if and only if the corresponding debit succeeded.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        TransactionType `json:"type"`
	EntryType   EntryType       `json:"entry_type"`
	UserID      string          `json:"user_id"`
	Feature     string          `json:"feature,omitempty"`
	Amount      int64           `json:"amount"`
	Description string          `json:"description,omitempty"`
	Balance     int64           `json:"balance"` // balance after this entry
}
