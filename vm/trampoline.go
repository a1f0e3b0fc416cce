package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/frospy/compiler"
)

var log = commonlog.GetLogger("frospy.vm")

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

// Linked is a program whose block references are resolved.
type Linked struct {
	Entry  *Block
	Blocks map[string]*Block
}

// Link resolves every block reference of prog. A reference to a missing
// block wraps compiler.ErrInvalidProgram.
func Link(prog *compiler.Program) (*Linked, error) {
	blocks := make(map[string]*Block, len(prog.Blocks))
	for _, b := range prog.Blocks {
		blocks[b.Name] = &Block{Name: b.Name, Span: b.Span}
	}

	for _, b := range prog.Blocks {
		lb := blocks[b.Name]
		lb.code = make([]instr, len(b.Code))
		for i, in := range b.Code {
			li := instr{op: in.Op, span: in.Span, src: in}
			switch in.Op {
			case compiler.OpInt:
				li.value = Int(in.Int)
			case compiler.OpAtom:
				li.value = Atom(in.Name)
			case compiler.OpBlock:
				target, ok := blocks[in.Name]
				if !ok {
					return nil, fmt.Errorf("%w: block %s references unknown block %s",
						compiler.ErrInvalidProgram, b.Name, in.Name)
				}
				li.target = target
			}
			lb.code[i] = li
		}
	}

	entry, ok := blocks[compiler.EntryBlock]
	if !ok {
		return nil, fmt.Errorf("%w: no entry block", compiler.ErrInvalidProgram)
	}
	return &Linked{Entry: entry, Blocks: blocks}, nil
}

// ---------------------------------------------------------------------------
// Machine: the trampoline driver
// ---------------------------------------------------------------------------

// Options configures a Machine.
type Options struct {
	Trace TraceOptions

	// MaxSteps bounds the number of blocks entered by one Run; 0 means no
	// limit.
	MaxSteps uint64

	// Stdout receives println output. Defaults to os.Stdout.
	Stdout io.Writer

	// Tracer receives trace lines. Defaults to os.Stderr.
	Tracer io.Writer
}

// Stats counts the work done by a Machine across runs.
type Stats struct {
	Transfers    uint64 // blocks entered
	Instructions uint64 // instructions executed
	NativeCalls  uint64
	MaxStack     int // peak operand stack depth
}

// Machine interprets linked block tables with a flat dispatch loop. Forcing
// a closure replaces the current frame instead of recursing, so host stack
// depth stays constant no matter how deep the program's tail calls go.
//
// The global environment and the operand stack persist between runs, which
// lets a REPL compile and run one line at a time.
type Machine struct {
	opts    Options
	globals *Env
	stack   *Stack
	stats   Stats
	trace   *tracer
}

// frame is the single live activation: a block and its environment.
type frame struct {
	block *Block
	env   *Env
}

// NewMachine returns a machine whose globals hold the builtins.
func NewMachine(opts Options) *Machine {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Tracer == nil {
		opts.Tracer = os.Stderr
	}
	m := &Machine{
		opts:    opts,
		globals: NewGlobals(opts.Stdout),
		stack:   NewStack(),
	}
	if opts.Trace.Any() {
		m.trace = &tracer{w: opts.Tracer, opts: opts.Trace}
	}
	return m
}

// Define binds a native in the global environment.
func (m *Machine) Define(name string, fn NativeFunc) {
	m.globals = m.globals.Insert(name, &Native{Name: name, Fn: fn})
}

// Globals returns the current global environment.
func (m *Machine) Globals() *Env { return m.globals }

// Stack returns the operand stack contents, bottom first.
func (m *Machine) Stack() []Value { return m.stack.Values() }

// Stats returns the accumulated counters.
func (m *Machine) Stats() Stats {
	s := m.stats
	s.MaxStack = m.stack.Peak()
	return s
}

// Execute runs prog on a fresh machine and returns the final stack.
func Execute(prog *compiler.Program, opts Options) ([]Value, error) {
	return NewMachine(opts).Run(prog)
}

// Run links and runs prog from its entry block under the current globals.
// On Terminate the environment of the terminating frame becomes the new
// globals and the stack is returned. On error the stack is left as it was
// at the failure.
func (m *Machine) Run(prog *compiler.Program) ([]Value, error) {
	linked, err := Link(prog)
	if err != nil {
		return nil, err
	}
	return m.RunLinked(linked)
}

// RunLinked runs an already linked program.
func (m *Machine) RunLinked(l *Linked) ([]Value, error) {
	before := m.stats.Transfers
	env, err := m.loop(frame{block: l.Entry, env: m.globals})
	log.Debugf("run: %d transfers, stack depth %d", m.stats.Transfers-before, m.stack.Len())
	if err != nil {
		return nil, err
	}
	m.globals = env
	return m.stack.Values(), nil
}

// loop is the trampoline. Every block ends in exactly one transfer, which
// replaces fr; the loop exits only on Terminate or an error.
func (m *Machine) loop(fr frame) (*Env, error) {
	var (
		steps uint64
		span  compiler.Span
	)
	s := m.stack

	fail := func(err error) (*Env, error) {
		return nil, &RuntimeError{Block: fr.block.Name, Span: span, Err: err}
	}

	for {
		steps++
		if m.opts.MaxSteps > 0 && steps > m.opts.MaxSteps {
			return fail(fmt.Errorf("%w (%d)", ErrStepLimit, m.opts.MaxSteps))
		}
		m.stats.Transfers++

		b := fr.block
		if m.trace != nil {
			m.trace.block(b.Name, fr.env)
		}

		for i := range b.code {
			in := &b.code[i]
			m.stats.Instructions++
			if !in.span.IsZero() {
				span = in.span
			}
			if m.trace != nil {
				m.trace.instr(in.src)
			}

			switch in.op {
			case compiler.OpInt, compiler.OpAtom:
				s.Push(in.value)

			case compiler.OpBlock:
				s.Push(&Closure{Env: fr.env, Block: in.target})

			case compiler.OpBind:
				name, err := s.PopAtom()
				if err != nil {
					return fail(err)
				}
				v, err := s.Pop()
				if err != nil {
					return fail(err)
				}
				fr.env = fr.env.Insert(string(name), v)

			case compiler.OpLookup:
				name, err := s.PopAtom()
				if err != nil {
					return fail(err)
				}
				v, ok := fr.env.Lookup(string(name))
				if !ok {
					return fail(unbound(string(name)))
				}
				s.Push(v)

			case compiler.OpForceCCBare:
				v, err := s.Pop()
				if err != nil {
					return fail(err)
				}
				c, ok := v.(*Closure)
				if !ok {
					return fail(invalidApply(v))
				}
				fr = frame{block: c.Block, env: c.Env}

			case compiler.OpForceCC:
				cc, err := s.Pop()
				if err != nil {
					return fail(err)
				}
				callee, err := s.Pop()
				if err != nil {
					return fail(err)
				}
				switch callee := callee.(type) {
				case *Closure:
					s.Push(cc)
					fr = frame{block: callee.Block, env: callee.Env}
				case *Native:
					m.stats.NativeCalls++
					if _, err := callee.Fn(fr.env, s); err != nil {
						return fail(fmt.Errorf("%s: %w", callee.Name, err))
					}
					k, ok := cc.(*Closure)
					if !ok {
						return fail(invalidApply(cc))
					}
					fr = frame{block: k.Block, env: k.Env}
				default:
					return fail(invalidApply(callee))
				}

			case compiler.OpTerminate:
				return fr.env, nil

			default:
				return fail(fmt.Errorf("%w: opcode %s", compiler.ErrInvalidProgram, in.op))
			}
		}

		if m.trace != nil {
			m.trace.stack(s)
		}
	}
}
