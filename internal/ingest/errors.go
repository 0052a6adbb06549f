package ingest

import "errors"

var (
	// ErrStructure marks a source that cannot be shaped into a dashboard.
	ErrStructure = errors.New("ingest: structural error")
	// ErrTooFewRows is returned when the source lacks a header plus one data row.
	ErrTooFewRows = fmtErr("fewer than 2 rows")
	// ErrNoDatedRows is returned when no row carries a valid date.
	ErrNoDatedRows = fmtErr("no valid dated rows")
	// ErrNoResolvedRows is returned when no dated row matches a registry site.
	ErrNoResolvedRows = fmtErr("no rows matched a registered site")
)

type structuralError struct {
	msg string
}

func fmtErr(msg string) error {
	return &structuralError{msg: msg}
}

func (e *structuralError) Error() string {
	return "ingest: " + e.msg
}

func (e *structuralError) Unwrap() error {
	return ErrStructure
}
