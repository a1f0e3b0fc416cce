package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/frospy/compiler"
)

// Runtime error kinds. Errors returned by Machine and Evaluate wrap one of
// these; test with errors.Is.
var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrUnbound        = errors.New("unbound name")
	ErrInvalidApply   = errors.New("cannot apply value")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrBareQuote      = errors.New("quote with nothing to quote")
)

func unbound(name string) error {
	return fmt.Errorf("%w %s", ErrUnbound, name)
}

func invalidApply(v Value) error {
	return fmt.Errorf("%w of type %s", ErrInvalidApply, TypeName(v))
}

// RuntimeError is a fatal trampoline error. Span is the last source span
// seen before the failure; synthesized instructions have none.
type RuntimeError struct {
	Block string
	Span  compiler.Span
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Span.IsZero() {
		return fmt.Sprintf("runtime error in block %s: %v", e.Block, e.Err)
	}
	return fmt.Sprintf("runtime error in block %s at %s: %v", e.Block, e.Span.Start, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// EvalError is a reference evaluator error with the spans of the active
// applications, innermost first.
type EvalError struct {
	Trace []compiler.Span
	Err   error
}

func (e *EvalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eval error: %v", e.Err)
	for _, s := range e.Trace {
		fmt.Fprintf(&b, "\n\tat %s", s)
	}
	return b.String()
}

func (e *EvalError) Unwrap() error { return e.Err }
