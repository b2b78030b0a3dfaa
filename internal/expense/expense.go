package expense

import "github.com/shopspring/decimal"

// AmountCandidate is a monetary amount located in source text
type AmountCandidate struct {
	Value       decimal.Decimal
	MatchedText string
	Offset      int // byte offset of MatchedText in the source
}

// span returns the byte range of the match in the source
func (c AmountCandidate) span() (int, int) {
	return c.Offset, c.Offset + len(c.MatchedText)
}

// LineItem is a single detected transaction line
type LineItem struct {
	Amount   decimal.Decimal `json:"amount"`
	Title    string          `json:"title"`
	Category Category        `json:"category"`
}

// ExpenseData is the output of both extraction pipelines
type ExpenseData struct {
	Total decimal.Decimal `json:"total"`
	Items []LineItem      `json:"items"`
}
