package vm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/frospy/compiler"
)

// AOTCompiler translates a block table into a self-contained Go program.
// The program carries its own value model, environment, stack and natives
// and runs the blocks with the same trampoline Machine uses: one switch
// arm per block inside a single loop. Runtime errors print to stderr as
// "runtime error in block NAME: ..." and exit with status 1; the final
// stack is printed to stdout as "s i: v" lines.
type AOTCompiler struct {
	trace TraceOptions

	blockIDs map[string]string
}

// NewAOTCompiler creates a code generator. trace selects the trace
// statements compiled into the program.
func NewAOTCompiler(trace TraceOptions) *AOTCompiler {
	return &AOTCompiler{trace: trace}
}

// Generate returns the formatted Go source for prog.
func (c *AOTCompiler) Generate(prog *compiler.Program) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.GenerateTo(&buf, prog); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateTo writes the Go source for prog to w.
func (c *AOTCompiler) GenerateTo(w io.Writer, prog *compiler.Program) error {
	if err := prog.Validate(); err != nil {
		return err
	}

	c.blockIDs = make(map[string]string, len(prog.Blocks))
	for i, b := range prog.Blocks {
		c.blockIDs[b.Name] = fmt.Sprintf("Block%d", i)
	}

	f := jen.NewFile("main")
	f.HeaderComment("Code generated by frospy " + compiler.Version + ". DO NOT EDIT.")

	c.genValues(f)
	c.genEnv(f)
	c.genStack(f)
	c.genNatives(f)
	c.genBlocks(f, prog)
	c.genTransfers(f)
	c.genRun(f, prog)
	c.genMain(f)

	if err := f.Render(w); err != nil {
		return fmt.Errorf("render generated program: %w", err)
	}
	log.Debugf("generated Go program with %d blocks", len(prog.Blocks))
	return nil
}

// ---------------------------------------------------------------------------
// Runtime prelude
// ---------------------------------------------------------------------------

func stringMethod(recv, typ string, body ...jen.Code) jen.Code {
	return jen.Func().Params(jen.Id(recv).Id(typ)).Id("String").Params().String().Block(body...)
}

func (c *AOTCompiler) genValues(f *jen.File) {
	f.Comment("Value is Int, Atom, *Closure or *Native.")
	f.Type().Id("Value").Interface(jen.Id("String").Params().String())

	f.Type().Id("Int").Int64()
	f.Add(stringMethod("v", "Int",
		jen.Return(jen.Qual("strconv", "FormatInt").Call(jen.Int64().Call(jen.Id("v")), jen.Lit(10)))))

	f.Type().Id("Atom").String()
	f.Add(stringMethod("v", "Atom",
		jen.Return(jen.Lit("'").Op("+").String().Call(jen.Id("v")))))

	f.Type().Id("Closure").Struct(
		jen.Id("Env").Op("*").Id("Env"),
		jen.Id("Block").Id("Block"),
	)
	f.Add(stringMethod("v", "*Closure",
		jen.Return(jen.Lit("&").Op("+").Id("v").Dot("Block").Dot("String").Call())))

	f.Type().Id("Native").Struct(
		jen.Id("Name").String(),
		jen.Id("Fn").Func().Params(jen.Id("env").Op("*").Id("Env"), jen.Id("stack").Op("*").Id("Stack")),
	)
	f.Add(stringMethod("v", "*Native",
		jen.Return(jen.Lit("&").Op("+").Id("v").Dot("Name"))))

	f.Func().Id("typeName").Params(jen.Id("v").Id("Value")).String().Block(
		jen.Switch(jen.Id("v").Assert(jen.Type())).Block(
			jen.Case(jen.Id("Int")).Block(jen.Return(jen.Lit("integer"))),
			jen.Case(jen.Id("Atom")).Block(jen.Return(jen.Lit("atom"))),
			jen.Case(jen.Op("*").Id("Closure")).Block(jen.Return(jen.Lit("closure"))),
			jen.Case(jen.Op("*").Id("Native")).Block(jen.Return(jen.Lit("native"))),
		),
		jen.Return(jen.Lit("nothing")),
	)

	f.Comment("fatalf reports a runtime error in the current block and exits.")
	f.Func().Id("fatalf").Params(jen.Id("format").String(), jen.Id("args").Op("...").Interface()).Block(
		jen.Qual("fmt", "Fprintf").Call(
			jen.Qual("os", "Stderr"),
			jen.Lit("runtime error in block %s: %s\n"),
			jen.Id("cur"),
			jen.Qual("fmt", "Sprintf").Call(jen.Id("format"), jen.Id("args").Op("...")),
		),
		jen.Qual("os", "Exit").Call(jen.Lit(1)),
	)
}

func (c *AOTCompiler) genEnv(f *jen.File) {
	f.Comment("Env is a persistent chain of bindings, most recent first.")
	f.Type().Id("Env").Struct(
		jen.Id("name").String(),
		jen.Id("value").Id("Value"),
		jen.Id("next").Op("*").Id("Env"),
	)

	f.Func().Params(jen.Id("e").Op("*").Id("Env")).Id("Lookup").Params(jen.Id("name").String()).Id("Value").Block(
		jen.For(
			jen.Id("n").Op(":=").Id("e"),
			jen.Id("n").Op("!=").Nil(),
			jen.Id("n").Op("=").Id("n").Dot("next"),
		).Block(
			jen.If(jen.Id("n").Dot("name").Op("==").Id("name")).Block(jen.Return(jen.Id("n").Dot("value"))),
		),
		jen.Id("fatalf").Call(jen.Lit("unbound name %s"), jen.Id("name")),
		jen.Return(jen.Nil()),
	)

	f.Comment("Insert removes the first binding for name, copying only the nodes")
	f.Comment("before it, and prepends the new binding.")
	f.Func().Params(jen.Id("e").Op("*").Id("Env")).Id("Insert").Params(
		jen.Id("name").String(), jen.Id("value").Id("Value"),
	).Op("*").Id("Env").Block(
		jen.Var().Id("prefix").Index().Op("*").Id("Env"),
		jen.Id("n").Op(":=").Id("e"),
		jen.For(
			jen.Empty(),
			jen.Id("n").Op("!=").Nil().Op("&&").Id("n").Dot("name").Op("!=").Id("name"),
			jen.Id("n").Op("=").Id("n").Dot("next"),
		).Block(
			jen.Id("prefix").Op("=").Append(jen.Id("prefix"), jen.Id("n")),
		),
		jen.Id("tail").Op(":=").Id("e"),
		jen.If(jen.Id("n").Op("!=").Nil()).Block(
			jen.Id("tail").Op("=").Id("n").Dot("next"),
			jen.For(
				jen.Id("i").Op(":=").Len(jen.Id("prefix")).Op("-").Lit(1),
				jen.Id("i").Op(">=").Lit(0),
				jen.Id("i").Op("--"),
			).Block(
				jen.Id("tail").Op("=").Op("&").Id("Env").Values(jen.Dict{
					jen.Id("name"):  jen.Id("prefix").Index(jen.Id("i")).Dot("name"),
					jen.Id("value"): jen.Id("prefix").Index(jen.Id("i")).Dot("value"),
					jen.Id("next"):  jen.Id("tail"),
				}),
			),
		),
		jen.Return(jen.Op("&").Id("Env").Values(jen.Dict{
			jen.Id("name"):  jen.Id("name"),
			jen.Id("value"): jen.Id("value"),
			jen.Id("next"):  jen.Id("tail"),
		})),
	)

	f.Func().Params(jen.Id("e").Op("*").Id("Env")).Id("String").Params().String().Block(
		jen.Var().Id("parts").Index().String(),
		jen.For(
			jen.Id("n").Op(":=").Id("e"),
			jen.Id("n").Op("!=").Nil(),
			jen.Id("n").Op("=").Id("n").Dot("next"),
		).Block(
			jen.If(
				jen.List(jen.Id("_"), jen.Id("ok")).Op(":=").Id("n").Dot("value").Assert(jen.Op("*").Id("Native")),
				jen.Id("ok"),
			).Block(jen.Continue()),
			jen.Id("parts").Op("=").Append(jen.Id("parts"),
				jen.Id("n").Dot("name").Op("+").Lit("=").Op("+").Id("n").Dot("value").Dot("String").Call()),
		),
		jen.Return(jen.Qual("strings", "Join").Call(jen.Id("parts"), jen.Lit(" "))),
	)
}

func (c *AOTCompiler) genStack(f *jen.File) {
	f.Type().Id("Stack").Struct(jen.Id("items").Index().Id("Value"))

	f.Func().Params(jen.Id("s").Op("*").Id("Stack")).Id("Push").Params(jen.Id("v").Id("Value")).Block(
		jen.Id("s").Dot("items").Op("=").Append(jen.Id("s").Dot("items"), jen.Id("v")),
	)

	f.Func().Params(jen.Id("s").Op("*").Id("Stack")).Id("Pop").Params().Id("Value").Block(
		jen.Id("n").Op(":=").Len(jen.Id("s").Dot("items")),
		jen.If(jen.Id("n").Op("==").Lit(0)).Block(
			jen.Id("fatalf").Call(jen.Lit("stack underflow")),
		),
		jen.Id("v").Op(":=").Id("s").Dot("items").Index(jen.Id("n").Op("-").Lit(1)),
		jen.Id("s").Dot("items").Op("=").Id("s").Dot("items").Index(jen.Empty(), jen.Id("n").Op("-").Lit(1)),
		jen.Return(jen.Id("v")),
	)

	f.Func().Params(jen.Id("s").Op("*").Id("Stack")).Id("PopAtom").Params().Id("Atom").Block(
		jen.Id("v").Op(":=").Id("s").Dot("Pop").Call(),
		jen.List(jen.Id("a"), jen.Id("ok")).Op(":=").Id("v").Assert(jen.Id("Atom")),
		jen.If(jen.Op("!").Id("ok")).Block(
			jen.Id("fatalf").Call(jen.Lit("type mismatch: expected atom, got %s"), jen.Id("typeName").Call(jen.Id("v"))),
		),
		jen.Return(jen.Id("a")),
	)

	f.Func().Params(jen.Id("s").Op("*").Id("Stack")).Id("String").Params().String().Block(
		jen.Var().Id("b").Qual("strings", "Builder"),
		jen.For(jen.List(jen.Id("_"), jen.Id("v")).Op(":=").Range().Id("s").Dot("items")).Block(
			jen.Id("b").Dot("WriteString").Call(jen.Lit(" ")),
			jen.Id("b").Dot("WriteString").Call(jen.Id("v").Dot("String").Call()),
		),
		jen.Return(jen.Id("b").Dot("String").Call()),
	)
}

func nativeFunc(name string, body ...jen.Code) jen.Code {
	return jen.Func().Id(name).Params(
		jen.Id("env").Op("*").Id("Env"),
		jen.Id("s").Op("*").Id("Stack"),
	).Block(body...)
}

func (c *AOTCompiler) genNatives(f *jen.File) {
	f.Add(nativeFunc("nativeInc",
		jen.Id("v").Op(":=").Id("s").Dot("Pop").Call(),
		jen.List(jen.Id("n"), jen.Id("ok")).Op(":=").Id("v").Assert(jen.Id("Int")),
		jen.If(jen.Op("!").Id("ok")).Block(
			jen.Id("fatalf").Call(jen.Lit("inc: type mismatch: expected integer, got %s"), jen.Id("typeName").Call(jen.Id("v"))),
		),
		jen.Id("s").Dot("Push").Call(jen.Id("n").Op("+").Lit(1)),
	))

	f.Comment("nativePop binds into a copy of env that is then dropped, as a native")
	f.Comment("called through force continues in its continuation's environment.")
	f.Add(nativeFunc("nativePop",
		jen.Id("name").Op(":=").Id("s").Dot("PopAtom").Call(),
		jen.Id("v").Op(":=").Id("s").Dot("Pop").Call(),
		jen.Id("_").Op("=").Id("env").Dot("Insert").Call(jen.String().Call(jen.Id("name")), jen.Id("v")),
	))

	f.Add(nativeFunc("nativePush",
		jen.Id("name").Op(":=").Id("s").Dot("PopAtom").Call(),
		jen.Id("s").Dot("Push").Call(jen.Id("env").Dot("Lookup").Call(jen.String().Call(jen.Id("name")))),
	))

	f.Add(nativeFunc("nativePrintln",
		jen.Qual("fmt", "Println").Call(jen.Id("s").Dot("Pop").Call().Dot("String").Call()),
	))

	f.Add(nativeFunc("nativeCswap",
		jen.If(jen.Id("s").Dot("Pop").Call().Op("!=").Id("Value").Call(jen.Id("Atom").Call(jen.Lit("t")))).Block(
			jen.Return(),
		),
		jen.Id("n").Op(":=").Len(jen.Id("s").Dot("items")),
		jen.If(jen.Id("n").Op("<").Lit(2)).Block(
			jen.Id("fatalf").Call(jen.Lit("cswap: stack underflow")),
		),
		jen.List(
			jen.Id("s").Dot("items").Index(jen.Id("n").Op("-").Lit(1)),
			jen.Id("s").Dot("items").Index(jen.Id("n").Op("-").Lit(2)),
		).Op("=").List(
			jen.Id("s").Dot("items").Index(jen.Id("n").Op("-").Lit(2)),
			jen.Id("s").Dot("items").Index(jen.Id("n").Op("-").Lit(1)),
		),
	))

	natives := map[string]string{
		"pop":     "nativePop",
		"push":    "nativePush",
		"inc":     "nativeInc",
		"println": "nativePrintln",
		"cswap":   "nativeCswap",
	}
	body := []jen.Code{jen.Var().Id("env").Op("*").Id("Env")}
	for _, name := range nativeOrder {
		body = append(body, jen.Id("env").Op("=").Id("env").Dot("Insert").Call(
			jen.Lit(name),
			jen.Op("&").Id("Native").Values(jen.Dict{
				jen.Id("Name"): jen.Lit(name),
				jen.Id("Fn"):   jen.Id(natives[name]),
			}),
		))
	}
	body = append(body, jen.Return(jen.Id("env")))
	f.Func().Id("makeEnv").Params().Op("*").Id("Env").Block(body...)
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

func (c *AOTCompiler) genBlocks(f *jen.File, prog *compiler.Program) {
	f.Comment("Block enumerates the compiled blocks.")
	f.Type().Id("Block").Int()

	f.Const().DefsFunc(func(g *jen.Group) {
		for i, b := range prog.Blocks {
			if i == 0 {
				g.Id(c.blockIDs[b.Name]).Id("Block").Op("=").Iota().Comment(b.Name)
				continue
			}
			g.Id(c.blockIDs[b.Name]).Comment(b.Name)
		}
	})

	names := make([]jen.Code, len(prog.Blocks))
	for i, b := range prog.Blocks {
		names[i] = jen.Lit(b.Name)
	}
	f.Var().Id("blockNames").Op("=").Index(jen.Op("...")).String().Values(names...)

	f.Add(stringMethod("b", "Block",
		jen.If(jen.Id("b").Op("<").Lit(0).Op("||").Int().Call(jen.Id("b")).Op(">=").Len(jen.Id("blockNames"))).Block(
			jen.Return(jen.Lit("block").Op("+").Qual("strconv", "Itoa").Call(jen.Int().Call(jen.Id("b")))),
		),
		jen.Return(jen.Id("blockNames").Index(jen.Id("b")))))

	f.Comment("cur is the block being run.")
	f.Var().Id("cur").Id("Block")
}

func (c *AOTCompiler) genTransfers(f *jen.File) {
	result := []jen.Code{jen.Id("Block"), jen.Op("*").Id("Env")}

	f.Func().Id("bind").Params(jen.Id("env").Op("*").Id("Env"), jen.Id("stack").Op("*").Id("Stack")).Op("*").Id("Env").Block(
		jen.Id("name").Op(":=").Id("stack").Dot("PopAtom").Call(),
		jen.Id("v").Op(":=").Id("stack").Dot("Pop").Call(),
		jen.Return(jen.Id("env").Dot("Insert").Call(jen.String().Call(jen.Id("name")), jen.Id("v"))),
	)

	f.Func().Id("lookup").Params(jen.Id("env").Op("*").Id("Env"), jen.Id("stack").Op("*").Id("Stack")).Block(
		jen.Id("name").Op(":=").Id("stack").Dot("PopAtom").Call(),
		jen.Id("stack").Dot("Push").Call(jen.Id("env").Dot("Lookup").Call(jen.String().Call(jen.Id("name")))),
	)

	f.Comment("forceCC pops a continuation and a callee. A closure callee receives")
	f.Comment("the continuation on the stack; a native runs and then the")
	f.Comment("continuation is entered.")
	f.Func().Id("forceCC").Params(jen.Id("stack").Op("*").Id("Stack"), jen.Id("env").Op("*").Id("Env")).Params(result...).Block(
		jen.Id("cc").Op(":=").Id("stack").Dot("Pop").Call(),
		jen.Id("callee").Op(":=").Id("stack").Dot("Pop").Call(),
		jen.Switch(jen.Id("fn").Op(":=").Id("callee").Assert(jen.Type())).Block(
			jen.Case(jen.Op("*").Id("Closure")).Block(
				jen.Id("stack").Dot("Push").Call(jen.Id("cc")),
				jen.Return(jen.Id("fn").Dot("Block"), jen.Id("fn").Dot("Env")),
			),
			jen.Case(jen.Op("*").Id("Native")).Block(
				jen.Id("fn").Dot("Fn").Call(jen.Id("env"), jen.Id("stack")),
				jen.List(jen.Id("k"), jen.Id("ok")).Op(":=").Id("cc").Assert(jen.Op("*").Id("Closure")),
				jen.If(jen.Op("!").Id("ok")).Block(
					jen.Id("fatalf").Call(jen.Lit("cannot apply value of type %s"), jen.Id("typeName").Call(jen.Id("cc"))),
				),
				jen.Return(jen.Id("k").Dot("Block"), jen.Id("k").Dot("Env")),
			),
		),
		jen.Id("fatalf").Call(jen.Lit("cannot apply value of type %s"), jen.Id("typeName").Call(jen.Id("callee"))),
		jen.Return(jen.Lit(0), jen.Nil()),
	)

	f.Func().Id("forceCCBare").Params(jen.Id("stack").Op("*").Id("Stack")).Params(result...).Block(
		jen.Id("v").Op(":=").Id("stack").Dot("Pop").Call(),
		jen.List(jen.Id("c"), jen.Id("ok")).Op(":=").Id("v").Assert(jen.Op("*").Id("Closure")),
		jen.If(jen.Op("!").Id("ok")).Block(
			jen.Id("fatalf").Call(jen.Lit("cannot apply value of type %s"), jen.Id("typeName").Call(jen.Id("v"))),
		),
		jen.Return(jen.Id("c").Dot("Block"), jen.Id("c").Dot("Env")),
	)
}

func traceLine(format string, args ...jen.Code) jen.Code {
	return jen.Qual("fmt", "Fprintf").Call(append([]jen.Code{jen.Qual("os", "Stderr"), jen.Lit(format)}, args...)...)
}

func (c *AOTCompiler) genRun(f *jen.File, prog *compiler.Program) {
	var cases []jen.Code
	for _, b := range prog.Blocks {
		body := []jen.Code{jen.Comment(b.Name + " -> " + b.Disassemble())}
		for _, in := range b.Code {
			if c.trace.Instructions {
				body = append(body, traceLine("INST "+TraceInstr(in)+"\n"))
			}
			body = append(body, c.instr(in))
		}
		cases = append(cases, jen.Case(jen.Id(c.blockIDs[b.Name])).Block(body...))
	}
	cases = append(cases, jen.Default().Block(
		jen.Id("fatalf").Call(jen.Lit("unknown block %d"), jen.Int().Call(jen.Id("cur"))),
	))

	var loop []jen.Code
	if c.trace.Exec {
		loop = append(loop, traceLine("EXEC %s\n", jen.Id("cur")))
	}
	if c.trace.Env {
		loop = append(loop, traceLine("ENV %s\n", jen.Id("env")))
	}
	loop = append(loop, jen.Switch(jen.Id("cur")).Block(cases...))
	if c.trace.Stack {
		loop = append(loop, traceLine("STACK%s\n", jen.Id("stack")))
	}

	f.Comment("run is the trampoline: every block ends by selecting the next")
	f.Comment("block and environment, or by returning on terminate.")
	f.Func().Id("run").Params(jen.Id("env").Op("*").Id("Env"), jen.Id("stack").Op("*").Id("Stack")).Block(
		jen.Id("cur").Op("=").Id(c.blockIDs[compiler.EntryBlock]),
		jen.For().Block(loop...),
	)
}

func (c *AOTCompiler) instr(in compiler.Instr) jen.Code {
	switch in.Op {
	case compiler.OpInt:
		return jen.Id("stack").Dot("Push").Call(jen.Id("Int").Call(jen.Lit(int(in.Int))))
	case compiler.OpAtom:
		return jen.Id("stack").Dot("Push").Call(jen.Id("Atom").Call(jen.Lit(in.Name)))
	case compiler.OpBlock:
		return jen.Id("stack").Dot("Push").Call(jen.Op("&").Id("Closure").Values(jen.Dict{
			jen.Id("Env"):   jen.Id("env"),
			jen.Id("Block"): jen.Id(c.blockIDs[in.Name]),
		}))
	case compiler.OpBind:
		return jen.Id("env").Op("=").Id("bind").Call(jen.Id("env"), jen.Id("stack"))
	case compiler.OpLookup:
		return jen.Id("lookup").Call(jen.Id("env"), jen.Id("stack"))
	case compiler.OpForceCC:
		return jen.List(jen.Id("cur"), jen.Id("env")).Op("=").Id("forceCC").Call(jen.Id("stack"), jen.Id("env"))
	case compiler.OpForceCCBare:
		return jen.List(jen.Id("cur"), jen.Id("env")).Op("=").Id("forceCCBare").Call(jen.Id("stack"))
	case compiler.OpTerminate:
		return jen.Return()
	}
	return jen.Id("fatalf").Call(jen.Lit("unknown instruction " + in.Op.String()))
}

func (c *AOTCompiler) genMain(f *jen.File) {
	f.Func().Id("main").Params().Block(
		jen.Id("stack").Op(":=").Op("&").Id("Stack").Values(),
		jen.Id("run").Call(jen.Id("makeEnv").Call(), jen.Id("stack")),
		jen.For(jen.List(jen.Id("i"), jen.Id("v")).Op(":=").Range().Id("stack").Dot("items")).Block(
			jen.Qual("fmt", "Printf").Call(jen.Lit("s %d: %s\n"), jen.Id("i"), jen.Id("v")),
		),
	)
}
