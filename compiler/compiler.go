// Package compiler turns frospy source into a trampoline block table.
//
// The pipeline is Parse -> Lower -> CPS transform -> Flatten. The result is
// a Program whose blocks each end in exactly one control transfer, ready to
// be interpreted by vm.Machine or emitted as Go by vm.AOTCompiler.
package compiler

import (
	"github.com/tliron/commonlog"
)

// Version identifies the compiler output format. Cached images compiled by
// a different version are ignored.
const Version = "frospy-0.3.0"

var log = commonlog.GetLogger("frospy.compiler")

// Options configures a compilation.
type Options struct {
	// Debug logs the CPS form and the block table at debug level.
	Debug bool

	// Names is shared across compilations when set, keeping block and
	// continuation names unique between them. A fresh generator is used
	// otherwise.
	Names *NameGen
}

// Result holds every stage of a compilation.
type Result struct {
	Exprs   []Expr
	CPS     []CPSExpr
	Program *Program
}

// Compile runs the whole pipeline on src.
func Compile(src string, opts Options) (*Result, error) {
	exprs, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return CompileExprs(exprs, opts)
}

// CompileExprs runs the pipeline on an already parsed program.
func CompileExprs(exprs []Expr, opts Options) (*Result, error) {
	gen := opts.Names
	if gen == nil {
		gen = &NameGen{}
	}

	cps, err := Transform(exprs, gen)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		log.Debugf("cps: %s", FormatCPS(cps))
	}

	prog, err := Flatten(cps, gen)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		for _, b := range prog.Blocks {
			log.Debugf("%s -> %s", b.Name, b.Disassemble())
		}
	}
	log.Debugf("compiled %d expressions into %d blocks", len(exprs), len(prog.Blocks))

	return &Result{Exprs: exprs, CPS: cps, Program: prog}, nil
}
