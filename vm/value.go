package vm

import (
	"strconv"

	"github.com/chazu/frospy/compiler"
)

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Value is a runtime value: Int, Atom, *Closure or *Native.
type Value interface {
	String() string
	value() // marker method
}

// Int is a 64-bit integer.
type Int int64

// Atom is a name used as data.
type Atom string

// Closure is a block paired with the environment captured when the block
// reference was executed.
type Closure struct {
	Env   *Env
	Block *Block
}

// NativeFunc implements a builtin. It receives the caller's environment and
// the operand stack and returns the environment the caller should continue
// with. The trampoline discards the returned environment: a native called
// through force transfers to its continuation, which has its own.
type NativeFunc func(env *Env, stack *Stack) (*Env, error)

// Native is a builtin function value.
type Native struct {
	Name string
	Fn   NativeFunc
}

func (Int) value()      {}
func (Atom) value()     {}
func (*Closure) value() {}
func (*Native) value()  {}

func (v Int) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v Atom) String() string     { return "'" + string(v) }
func (v *Closure) String() string { return "&" + v.Block.Name }
func (v *Native) String() string  { return "&" + v.Name }

// TypeName returns the user-facing name of v's type.
func TypeName(v Value) string {
	switch v.(type) {
	case Int:
		return "integer"
	case Atom:
		return "atom"
	case *Closure:
		return "closure"
	case *Native:
		return "native"
	case nil:
		return "nothing"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// Block is a unit of deferred code a closure can enter. Blocks linked from
// a compiler.Program carry flat instructions; blocks created by the
// reference evaluator carry the source body of a group.
type Block struct {
	Name string
	Span compiler.Span

	code []instr
	body []compiler.Expr
}

// instr is a linked instruction: literals are pre-boxed and block
// references resolved to pointers.
type instr struct {
	op     compiler.Opcode
	value  Value
	target *Block
	span   compiler.Span
	src    compiler.Instr
}
