package vm

import (
	"fmt"
	"strings"
)

// Stack is the operand stack shared by all blocks and natives.
type Stack struct {
	items []Value
	peak  int
}

// NewStack returns a stack holding values, bottom first.
func NewStack(values ...Value) *Stack {
	s := &Stack{items: append([]Value(nil), values...)}
	s.peak = len(s.items)
	return s
}

// Push pushes v.
func (s *Stack) Push(v Value) {
	s.items = append(s.items, v)
	if len(s.items) > s.peak {
		s.peak = len(s.items)
	}
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (Value, error) {
	n := len(s.items)
	if n == 0 {
		return nil, ErrStackUnderflow
	}
	v := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return v, nil
}

// PopInt pops an integer.
func (s *Stack) PopInt() (Int, error) {
	v, err := s.Pop()
	if err != nil {
		return 0, err
	}
	i, ok := v.(Int)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer, got %s", ErrTypeMismatch, TypeName(v))
	}
	return i, nil
}

// PopAtom pops an atom.
func (s *Stack) PopAtom() (Atom, error) {
	v, err := s.Pop()
	if err != nil {
		return "", err
	}
	a, ok := v.(Atom)
	if !ok {
		return "", fmt.Errorf("%w: expected atom, got %s", ErrTypeMismatch, TypeName(v))
	}
	return a, nil
}

// Swap exchanges the two topmost values.
func (s *Stack) Swap() error {
	n := len(s.items)
	if n < 2 {
		return ErrStackUnderflow
	}
	s.items[n-1], s.items[n-2] = s.items[n-2], s.items[n-1]
	return nil
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int { return len(s.items) }

// Peak returns the largest depth the stack has reached.
func (s *Stack) Peak() int { return s.peak }

// Values returns a copy of the stack contents, bottom first.
func (s *Stack) Values() []Value {
	return append([]Value(nil), s.items...)
}

// String renders the values bottom first, separated by spaces.
func (s *Stack) String() string {
	return FormatValues(s.items)
}

// FormatValues renders values separated by spaces.
func FormatValues(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}
