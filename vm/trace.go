package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/frospy/compiler"
)

// TraceOptions selects diagnostic output. Each flag is independent and
// none of them changes program behavior.
type TraceOptions struct {
	Exec         bool // EXEC <block> before each block
	Env          bool // ENV <bindings> before each block
	Instructions bool // INST <instr> before each instruction
	Stack        bool // STACK <values> after each block
}

// TraceAll enables every trace flag.
func TraceAll() TraceOptions {
	return TraceOptions{Exec: true, Env: true, Instructions: true, Stack: true}
}

// Any reports whether any flag is set.
func (o TraceOptions) Any() bool {
	return o.Exec || o.Env || o.Instructions || o.Stack
}

// tracer writes trace lines to the diagnostic stream.
type tracer struct {
	w    io.Writer
	opts TraceOptions
}

func (t *tracer) block(name string, env *Env) {
	if t.opts.Exec {
		fmt.Fprintf(t.w, "EXEC %s\n", name)
	}
	if t.opts.Env {
		fmt.Fprintf(t.w, "ENV %s\n", env)
	}
}

func (t *tracer) instr(in compiler.Instr) {
	if t.opts.Instructions {
		fmt.Fprintf(t.w, "INST %s\n", TraceInstr(in))
	}
}

func (t *tracer) stack(s *Stack) {
	if t.opts.Stack {
		var b strings.Builder
		b.WriteString("STACK")
		for _, v := range s.items {
			b.WriteByte(' ')
			b.WriteString(v.String())
		}
		b.WriteByte('\n')
		io.WriteString(t.w, b.String())
	}
}

// TraceInstr renders an instruction the way INST trace lines show it:
// "int 5", "atom x", "tr b1", "force-cc", ...
func TraceInstr(in compiler.Instr) string {
	switch in.Op {
	case compiler.OpInt:
		return fmt.Sprintf("int %d", in.Int)
	case compiler.OpAtom:
		return "atom " + in.Name
	case compiler.OpBlock:
		return "tr " + in.Name
	}
	return in.Op.String()
}
