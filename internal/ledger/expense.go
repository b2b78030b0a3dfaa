package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/expense"
)

// Source records which pipeline produced an expense
type Source string

const (
	SourceEmail Source = "email"
	SourceBill  Source = "bill"
)

// Expense is a stored expense record belonging to one user
type Expense struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Title       string             `json:"title"`
	Date        time.Time          `json:"date"`
	Total       decimal.Decimal    `json:"total"`
	Items       []expense.LineItem `json:"items"`
	Source      Source             `json:"source"`
	MessageID   string             `json:"message_id,omitempty"` // idempotency key of the source email
	Filename    string             `json:"filename,omitempty"`   // storage path of the bill image
	ContentType string             `json:"content_type,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CategoryTotal is the spend in one category
type CategoryTotal struct {
	Category expense.Category `json:"category"`
	Total    decimal.Decimal  `json:"total"`
	Items    int              `json:"items"`
}

// Summary aggregates a user's expenses
type Summary struct {
	UserID     string          `json:"user_id"`
	Expenses   int             `json:"expenses"`
	Total      decimal.Decimal `json:"total"`
	ByCategory []CategoryTotal `json:"by_category"`
}
