package expense

import (
	"errors"
	"fmt"
)

// ErrNoAmountFound is returned by ExtractExpense when the text holds no usable amount
var ErrNoAmountFound = errors.New("no amount found")

// ErrInvalidResult matches any *InvalidResultError through errors.Is
var ErrInvalidResult = errors.New("invalid extraction result")

// InvalidResultError reports a structured response that parsed but is semantically incomplete
type InvalidResultError struct {
	Reason string
}

func (e *InvalidResultError) Error() string {
	return fmt.Sprintf("invalid extraction result: %s", e.Reason)
}

func (e *InvalidResultError) Is(target error) bool {
	return target == ErrInvalidResult
}
