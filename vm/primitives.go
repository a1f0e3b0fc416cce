package vm

import (
	"fmt"
	"io"
	"sort"
)

// ---------------------------------------------------------------------------
// Native primitives
// ---------------------------------------------------------------------------

// NativeDocs describes each builtin bound in the initial environment.
var NativeDocs = map[string]string{
	"inc":     "n inc -> n+1",
	"pop":     "value 'name pop -> (binds name; the binding is local to the native)",
	"push":    "'name push -> value",
	"println": "value println -> (prints value)",
	"cswap":   "a b 't cswap -> b a; any other atom leaves a b",
}

// nativeOrder fixes the binding order of the initial environment.
var nativeOrder = []string{"pop", "push", "inc", "println", "cswap"}

// NativeNames returns the builtin names in sorted order.
func NativeNames() []string {
	names := make([]string, 0, len(NativeDocs))
	for name := range NativeDocs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Natives returns the builtins. println writes to stdout.
func Natives(stdout io.Writer) map[string]NativeFunc {
	return map[string]NativeFunc{
		"inc":     primInc,
		"pop":     primBind,
		"push":    primLookup,
		"println": printer(stdout),
		"cswap":   primCswap,
	}
}

// NewGlobals returns the initial environment with every builtin bound.
func NewGlobals(stdout io.Writer) *Env {
	natives := Natives(stdout)
	var env *Env
	for _, name := range nativeOrder {
		env = env.Insert(name, &Native{Name: name, Fn: natives[name]})
	}
	return env
}

func primInc(env *Env, s *Stack) (*Env, error) {
	n, err := s.PopInt()
	if err != nil {
		return env, err
	}
	s.Push(n + 1)
	return env, nil
}

// primBind pops a name and a value and binds them.
func primBind(env *Env, s *Stack) (*Env, error) {
	name, err := s.PopAtom()
	if err != nil {
		return env, err
	}
	v, err := s.Pop()
	if err != nil {
		return env, err
	}
	return env.Insert(string(name), v), nil
}

// primLookup pops a name and pushes its value.
func primLookup(env *Env, s *Stack) (*Env, error) {
	name, err := s.PopAtom()
	if err != nil {
		return env, err
	}
	v, ok := env.Lookup(string(name))
	if !ok {
		return env, unbound(string(name))
	}
	s.Push(v)
	return env, nil
}

func printer(w io.Writer) NativeFunc {
	return func(env *Env, s *Stack) (*Env, error) {
		v, err := s.Pop()
		if err != nil {
			return env, err
		}
		if _, err := fmt.Fprintln(w, v.String()); err != nil {
			return env, fmt.Errorf("println: %w", err)
		}
		return env, nil
	}
}

// primCswap swaps the two values below the top when the top is 't.
func primCswap(env *Env, s *Stack) (*Env, error) {
	v, err := s.Pop()
	if err != nil {
		return env, err
	}
	if v == Value(Atom("t")) {
		return env, s.Swap()
	}
	return env, nil
}
