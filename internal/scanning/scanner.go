package scanning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zombor/expense-tracker/internal/expense"
)

// ErrNoStructure is returned when a model's answer holds no bill breakdown at all
var ErrNoStructure = errors.New("no bill breakdown in model response")

// Scanner defines the interface for bill scanning operations
type Scanner interface {
	// ScanBill analyzes a bill image/PDF and extracts its total and line items
	ScanBill(imageData []byte, contentType string) (*expense.ExpenseData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// billScanPrompt is the shared prompt used by all LLM providers for scanning bills
var billScanPrompt = `You are analyzing a photographed bill, receipt or invoice. Read all text in the image and break the bill down into line items.

For every purchased item or charge, give its amount, a short title, and a category. The category must be exactly one of: ` + categoryList() + `. Use "unknown" when none fits.

Answer in this exact markdown layout and nothing else:

**Total Bill Amount:** 0.00

- **Amount:** 0.00
  **Title:** Item name
  **Category:** food

Repeat the three-line bullet group for each item. Amounts are plain numbers in the bill's currency, without symbols or thousands separators. The total is the final amount due, including tax and tip.`

func categoryList() string {
	labels := make([]string, 0, len(expense.Categories()))
	for _, c := range expense.Categories() {
		labels = append(labels, string(c))
	}
	return strings.Join(labels, ", ")
}

// parseBillResponse turns a model's answer into expense data
func parseBillResponse(text string) (*expense.ExpenseData, error) {
	data, ok, err := expense.ParseStructuredResponse(text)
	if err != nil {
		return nil, fmt.Errorf("validating bill breakdown: %w", err)
	}
	if !ok {
		return nil, ErrNoStructure
	}
	return data, nil
}
