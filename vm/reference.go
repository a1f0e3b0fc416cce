package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/frospy/compiler"
)

// ---------------------------------------------------------------------------
// Reference evaluator
// ---------------------------------------------------------------------------

// Evaluate runs a parsed program with a direct-style recursive evaluator
// and returns the final stack. It defines the semantics the trampoline must
// reproduce and is used to cross-check it; it is not tail-call safe.
//
// The evaluator works on surface syntax: quote is the only special form,
// every other atom is looked up and applied. The initial environment holds
// the trampoline builtins plus force.
func Evaluate(exprs []compiler.Expr, stdout io.Writer) ([]Value, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	ev := &evaluator{stack: NewStack()}

	env := NewGlobals(stdout)
	env = env.Insert("force", &Native{Name: "force", Fn: ev.force})

	if _, err := ev.eval(exprs, env); err != nil {
		return nil, err
	}
	return ev.stack.Values(), nil
}

type evaluator struct {
	stack *Stack
}

// eval runs exprs in env and returns the environment left at the end.
func (ev *evaluator) eval(exprs []compiler.Expr, env *Env) (*Env, error) {
	for i := 0; i < len(exprs); i++ {
		switch e := exprs[i].(type) {
		case *compiler.IntLiteral:
			ev.stack.Push(Int(e.Value))

		case *compiler.Group:
			ev.stack.Push(&Closure{Env: env, Block: &Block{
				Name: "group@" + e.SpanVal.Start.String(),
				Span: e.SpanVal,
				body: e.Body,
			}})

		case *compiler.Atom:
			if e.Name == compiler.KeywordQuote {
				if i+1 >= len(exprs) {
					return env, withSpan(ErrBareQuote, e.SpanVal)
				}
				i++
				switch q := exprs[i].(type) {
				case *compiler.IntLiteral:
					ev.stack.Push(Int(q.Value))
				case *compiler.Atom:
					ev.stack.Push(Atom(q.Name))
				default:
					return env, withSpan(fmt.Errorf("%w: cannot quote a group", ErrTypeMismatch), q.Span())
				}
				continue
			}

			v, ok := env.Lookup(e.Name)
			if !ok {
				return env, withSpan(unbound(e.Name), e.SpanVal)
			}
			var err error
			if env, err = ev.apply(v, env); err != nil {
				return env, withSpan(err, e.SpanVal)
			}
		}
	}
	return env, nil
}

// apply runs v. A closure runs in its own captured environment and leaves
// the caller's untouched; a native may replace the caller's environment.
func (ev *evaluator) apply(v Value, env *Env) (*Env, error) {
	switch v := v.(type) {
	case *Closure:
		_, err := ev.eval(v.Block.body, v.Env)
		return env, err
	case *Native:
		return v.Fn(env, ev.stack)
	}
	return env, invalidApply(v)
}

func (ev *evaluator) force(env *Env, s *Stack) (*Env, error) {
	v, err := s.Pop()
	if err != nil {
		return env, err
	}
	return ev.apply(v, env)
}

// withSpan records span on err's trace, creating the EvalError if needed.
func withSpan(err error, span compiler.Span) error {
	var ee *EvalError
	if errors.As(err, &ee) {
		ee.Trace = append(ee.Trace, span)
		return ee
	}
	return &EvalError{Trace: []compiler.Span{span}, Err: err}
}
