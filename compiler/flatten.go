package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Block table: flat instructions grouped into named blocks
// ---------------------------------------------------------------------------

// EntryBlock is the name of the block that runs first.
const EntryBlock = "entry"

// Opcode identifies a flat instruction.
type Opcode uint8

const (
	OpInt         Opcode = iota // push Int
	OpAtom                      // push Atom Name
	OpBlock                     // push closure over block Name
	OpForceCC                   // pop cc, pop callee, transfer
	OpForceCCBare               // pop closure, transfer
	OpTerminate                 // halt
	OpBind                      // pop name, pop value, bind
	OpLookup                    // pop name, push value
)

var opcodeNames = [...]string{
	OpInt:         "int",
	OpAtom:        "atom",
	OpBlock:       "tr",
	OpForceCC:     "force-cc",
	OpForceCCBare: "force-cc-bare",
	OpTerminate:   "terminate",
	OpBind:        "pop",
	OpLookup:      "push",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	return op == OpForceCC || op == OpForceCCBare || op == OpTerminate
}

// Instr is a single flat instruction. Int is set for OpInt; Name holds the
// atom for OpAtom and the target block for OpBlock.
type Instr struct {
	Op   Opcode
	Int  int64
	Name string
	Span Span
}

// String renders the instruction in disassembly form.
func (in Instr) String() string {
	switch in.Op {
	case OpInt:
		return fmt.Sprintf("%d", in.Int)
	case OpAtom:
		return "'" + in.Name
	case OpBlock:
		return "&" + in.Name
	case OpForceCC:
		return "-forceCC"
	case OpForceCCBare:
		return "-forceCCbare"
	case OpTerminate:
		return "-terminate"
	case OpBind:
		return "-pop"
	case OpLookup:
		return "-push"
	}
	return in.Op.String()
}

// Block is a named straight-line sequence ending in one terminator.
type Block struct {
	Name string
	Span Span // span of the group the block was compiled from
	Code []Instr
}

// Program is an ordered block table. Blocks[0] is always the entry block.
type Program struct {
	Blocks []*Block
	index  map[string]int
}

// NewProgram builds a program from blocks, indexing them by name.
func NewProgram(blocks []*Block) *Program {
	p := &Program{Blocks: blocks, index: make(map[string]int, len(blocks))}
	for i, b := range blocks {
		if _, dup := p.index[b.Name]; !dup {
			p.index[b.Name] = i
		}
	}
	return p
}

// Block returns the block with the given name, or nil.
func (p *Program) Block(name string) *Block {
	if i, ok := p.index[name]; ok {
		return p.Blocks[i]
	}
	return nil
}

// Entry returns the entry block.
func (p *Program) Entry() *Block {
	return p.Block(EntryBlock)
}

// Validate checks the structural invariants of the block table. Every
// failure wraps ErrInvalidProgram.
func (p *Program) Validate() error {
	if len(p.Blocks) == 0 {
		return fmt.Errorf("%w: no blocks", ErrInvalidProgram)
	}
	if p.Blocks[0].Name != EntryBlock {
		return fmt.Errorf("%w: first block is %q, not %q", ErrInvalidProgram, p.Blocks[0].Name, EntryBlock)
	}

	seen := make(map[string]bool, len(p.Blocks))
	for _, b := range p.Blocks {
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate block %q", ErrInvalidProgram, b.Name)
		}
		seen[b.Name] = true
	}

	for _, b := range p.Blocks {
		if len(b.Code) == 0 {
			return fmt.Errorf("%w: block %s is empty", ErrInvalidProgram, b.Name)
		}
		for i, in := range b.Code {
			last := i == len(b.Code)-1
			if in.Op.IsTerminator() != last {
				if last {
					return fmt.Errorf("%w: block %s does not end in a terminator", ErrInvalidProgram, b.Name)
				}
				return fmt.Errorf("%w: block %s has %s before its end", ErrInvalidProgram, b.Name, in.Op)
			}
			if in.Op == OpBlock && !seen[in.Name] {
				return fmt.Errorf("%w: block %s references unknown block %s", ErrInvalidProgram, b.Name, in.Name)
			}
			if in.Op > OpLookup {
				return fmt.Errorf("%w: block %s has unknown opcode %d", ErrInvalidProgram, b.Name, in.Op)
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Flattening
// ---------------------------------------------------------------------------

// Flatten lifts every group in a CPS sequence into its own block and
// replaces it with an OpBlock reference. The sequence itself becomes the
// entry block. The result is validated before it is returned.
func Flatten(exprs []CPSExpr, gen *NameGen) (*Program, error) {
	f := &flattener{gen: gen}

	entry := &Block{Name: EntryBlock, Span: sequenceSpan(exprs)}
	f.blocks = append(f.blocks, entry)

	code, err := f.flatten(exprs)
	if err != nil {
		return nil, err
	}
	entry.Code = code

	prog := NewProgram(f.blocks)
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return prog, nil
}

type flattener struct {
	gen    *NameGen
	blocks []*Block
}

func (f *flattener) flatten(exprs []CPSExpr) ([]Instr, error) {
	code := make([]Instr, 0, len(exprs))

	for _, e := range exprs {
		switch e := e.(type) {
		case *CPSInt:
			code = append(code, Instr{Op: OpInt, Int: e.Value, Span: e.SpanVal})
		case *CPSAtom:
			code = append(code, Instr{Op: OpAtom, Name: e.Name, Span: e.SpanVal})
		case *CPSGroup:
			b := &Block{Name: f.gen.Block(), Span: e.SpanVal}
			// Reserve the slot first so blocks appear in discovery order.
			f.blocks = append(f.blocks, b)
			body, err := f.flatten(e.Body)
			if err != nil {
				return nil, err
			}
			b.Code = body
			code = append(code, Instr{Op: OpBlock, Name: b.Name, Span: e.SpanVal})
		case *CPSForceCC:
			code = append(code, Instr{Op: OpForceCC, Span: e.SpanVal})
		case *CPSForceCCBare:
			code = append(code, Instr{Op: OpForceCCBare, Span: e.SpanVal})
		case *CPSTerminate:
			code = append(code, Instr{Op: OpTerminate, Span: e.SpanVal})
		case *CPSBind:
			code = append(code, Instr{Op: OpBind, Span: e.SpanVal})
		case *CPSLookup:
			code = append(code, Instr{Op: OpLookup, Span: e.SpanVal})
		case *CPSForce:
			return nil, fmt.Errorf("%w: force outside of CPS form at %s", ErrInvalidProgram, e.SpanVal)
		default:
			return nil, fmt.Errorf("%w: unknown CPS expression %T", ErrInvalidProgram, e)
		}
	}

	return code, nil
}

func sequenceSpan(exprs []CPSExpr) Span {
	var first, last Span
	for _, e := range exprs {
		if s := e.Span(); !s.IsZero() {
			if first.IsZero() {
				first = s
			}
			last = s
		}
	}
	if first.IsZero() {
		return NoSpan
	}
	return Combine(first, last)
}
