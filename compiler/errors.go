package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProgram is returned when a block table breaks one of its
// structural invariants (dangling reference, missing entry, misplaced
// terminator). It indicates a compiler bug, not a user error.
var ErrInvalidProgram = errors.New("invalid program")

// SyntaxError is a positioned error produced by the parser or by lowering.
type SyntaxError struct {
	Span Span
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Span.Start, e.Msg)
}

// ErrorList collects syntax errors in source order.
type ErrorList []*SyntaxError

// Add appends a new error.
func (l *ErrorList) Add(span Span, format string, args ...interface{}) {
	*l = append(*l, &SyntaxError{Span: span, Msg: fmt.Sprintf(format, args...)})
}

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var b strings.Builder
	b.WriteString(l[0].Error())
	fmt.Fprintf(&b, " (and %d more errors)", len(l)-1)
	return b.String()
}

// Err returns nil for an empty list, otherwise the list itself.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Unwrap exposes the individual errors to errors.As.
func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}
