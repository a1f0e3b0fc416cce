package compiler

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble renders the block table, one block per line:
//
//	entry -> [&b1 'cc#1 -pop ... -forceCC]
func (p *Program) Disassemble() string {
	var b strings.Builder
	p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the disassembly to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, blk := range p.Blocks {
		n, err := fmt.Fprintf(w, "%s -> %s\n", blk.Name, blk.Disassemble())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Disassemble renders the block's instructions in brackets.
func (b *Block) Disassemble() string {
	parts := make([]string, len(b.Code))
	for i, in := range b.Code {
		parts[i] = in.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// InnermostBlock returns the non-entry block whose source span most
// tightly encloses offset, falling back to the entry block. Continuation
// blocks share the span of the force that created them and are skipped
// in favour of the group that contains the force.
func (p *Program) InnermostBlock(offset int) *Block {
	best := p.Entry()
	bestLen := -1
	for _, b := range p.Blocks[1:] {
		if b.Span.IsZero() || !b.Span.Contains(offset) || !isGroupSpan(b) {
			continue
		}
		n := b.Span.End.Offset - b.Span.Start.Offset
		if bestLen < 0 || n < bestLen {
			best, bestLen = b, n
		}
	}
	return best
}

// isGroupSpan reports whether b was compiled from a parenthesized group,
// which always binds its continuation first.
func isGroupSpan(b *Block) bool {
	return len(b.Code) >= 2 && b.Code[0].Op == OpAtom && b.Code[1].Op == OpBind &&
		strings.HasPrefix(b.Code[0].Name, "cc#")
}
