package record

import "fmt"

// EmptyInputError reports that a source table has no rows.
type EmptyInputError struct {
	Source string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: no rows", e.Source)
}

// MissingReferenceError reports that a mandatory reference table was not supplied.
type MissingReferenceError struct {
	Table string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("reference table %q is required", e.Table)
}

// MalformedRowError reports a row whose cells could not be coerced to the
// expected types.
type MalformedRowError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("%s:%d: column %s: cannot parse %q: %v", e.Source, e.Line, e.Column, e.Value, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// UnmappedValueWarning counts keys that had no entry in a reference table.
// It is not an error: the affected fields stay null.
type UnmappedValueWarning struct {
	Table string
	Key   string
	Count int
}

func (w UnmappedValueWarning) String() string {
	return fmt.Sprintf("%s: %s has no match (%d records)", w.Table, w.Key, w.Count)
}
