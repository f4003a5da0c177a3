package domain

import "fmt"

// MalformedDateError reports a date column header that does not parse under
// the source's fixed month/day/2-digit-year format. A single bad header
// aborts the run: without a consistent date axis the series cannot be
// normalized.
type MalformedDateError struct {
	Column string
	Err    error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date column %q: %v", e.Column, e.Err)
}

func (e *MalformedDateError) Unwrap() error {
	return e.Err
}
