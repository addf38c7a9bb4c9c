package parser

import (
	"errors"
	"fmt"
)

// ErrPaginatorMissing means the page carried no paginator block at all, as
// opposed to a paginator without a next link (the last page).
var ErrPaginatorMissing = errors.New("paginator missing")

// ExtractionError reports a page whose layout did not match the expected
// structure. Index is the item position on the page, or -1 for page-level
// failures.
type ExtractionError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Index < 0 {
		return fmt.Sprintf("extract %s: %s", e.Field, msg)
	}
	return fmt.Sprintf("extract item %d %s: %s", e.Index, e.Field, msg)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func fieldError(index int, field, reason string) error {
	return &ExtractionError{Index: index, Field: field, Reason: reason}
}
