package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/frospy/cache"
	"github.com/chazu/frospy/compiler"
	"github.com/chazu/frospy/image"
	"github.com/chazu/frospy/manifest"
	"github.com/chazu/frospy/vm"
)

// ---------------------------------------------------------------------------
// Flag and source helpers
// ---------------------------------------------------------------------------

func (c *cli) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: frospy %s %s\n\nOptions:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

type traceFlags struct {
	all, exec, env, inst, stack *bool
}

func addTraceFlags(fs *flag.FlagSet) *traceFlags {
	return &traceFlags{
		all:   fs.Bool("trace", false, "Enable every trace below"),
		exec:  fs.Bool("trace-exec", false, "Trace each block entered (EXEC)"),
		env:   fs.Bool("trace-env", false, "Trace the environment on block entry (ENV)"),
		inst:  fs.Bool("trace-inst", false, "Trace each instruction (INST)"),
		stack: fs.Bool("trace-stack", false, "Trace the operand stack after each block (STACK)"),
	}
}

// options applies the trace flags given on the command line to base.
// Visit runs in lexical order, so -trace is applied before the
// individual flags refine it.
func (t *traceFlags) options(fs *flag.FlagSet, base vm.TraceOptions) vm.TraceOptions {
	opts := base
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "trace":
			if *t.all {
				opts = vm.TraceAll()
			} else {
				opts = vm.TraceOptions{}
			}
		case "trace-exec":
			opts.Exec = *t.exec
		case "trace-env":
			opts.Env = *t.env
		case "trace-inst":
			opts.Instructions = *t.inst
		case "trace-stack":
			opts.Stack = *t.stack
		}
	})
	return opts
}

// source is a program text and where it came from.
type source struct {
	name     string
	text     string
	manifest *manifest.Manifest // nil outside a project
	entry    bool               // read from the manifest entry
}

// readSource reads the file argument, or the manifest entry when there is
// none, or stdin when there is no manifest either. "-" forces stdin.
func (c *cli) readSource(fs *flag.FlagSet) (*source, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected at most one source file, got %d", fs.NArg())
	}

	src := &source{manifest: m}
	var path string
	switch {
	case fs.NArg() == 1 && fs.Arg(0) != "-":
		path = fs.Arg(0)
	case fs.NArg() == 0 && m != nil:
		path = m.EntryPath()
		src.entry = true
	}

	if path == "" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		src.name, src.text = "<stdin>", string(data)
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	src.name, src.text = path, string(data)
	log.Debugf("read %s (%d bytes)", path, len(data))
	return src, nil
}

// baseTrace returns the manifest trace options, or none.
func (s *source) baseTrace() vm.TraceOptions {
	if s.manifest == nil {
		return vm.TraceOptions{}
	}
	return s.manifest.TraceOptions()
}

// compileSource compiles src, going through the compile cache when asked.
// A cache that cannot be opened is skipped with a warning.
func compileSource(src *source, useCache bool) (*compiler.Program, error) {
	if useCache {
		ch, err := cache.OpenDefault()
		if err == nil {
			defer ch.Close()
			prog, err := ch.Compile(src.text)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", src.name, err)
			}
			return prog, nil
		}
		log.Warningf("compile cache unavailable: %s", err)
	}

	res, err := compiler.Compile(src.text, compiler.Options{Debug: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.name, err)
	}
	return res.Program, nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// evalCommand processes `frospy eval`.
func (c *cli) evalCommand(args []string) error {
	fs := c.newFlagSet("eval", "[file]")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	src, err := c.readSource(fs)
	if err != nil {
		return err
	}

	exprs, err := compiler.Parse(src.text)
	if err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}
	values, err := vm.Evaluate(exprs, c.stdout)
	if err != nil {
		return err
	}
	printStack(c.stdout, values)
	return nil
}

// runCommand processes `frospy run`.
func (c *cli) runCommand(args []string) error {
	fs := c.newFlagSet("run", "[-image file] [-max-steps n] [-trace...] [-no-cache] [file]")
	imagePath := fs.String("image", "", "Run a prebuilt image instead of compiling source")
	maxSteps := fs.Uint64("max-steps", 0, "Stop after this many blocks (0 = no limit)")
	noCache := fs.Bool("no-cache", false, "Bypass the compile cache")
	stats := fs.Bool("stats", false, "Print execution statistics to stderr")
	tf := addTraceFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return err
	}
	opts := vm.Options{Stdout: c.stdout, Tracer: c.stderr}
	useCache := true
	if m != nil {
		opts.Trace = m.TraceOptions()
		opts.MaxSteps = m.Run.MaxSteps
		useCache = m.Run.Cache
	}
	opts.Trace = tf.options(fs, opts.Trace)
	if isSet(fs, "max-steps") {
		opts.MaxSteps = *maxSteps
	}
	if *noCache {
		useCache = false
	}

	var prog *compiler.Program
	if *imagePath != "" {
		if fs.NArg() > 0 {
			return fmt.Errorf("-image and a source file are mutually exclusive")
		}
		prog, err = image.ReadFile(*imagePath)
	} else {
		var src *source
		src, err = c.readSource(fs)
		if err != nil {
			return err
		}
		prog, err = compileSource(src, useCache)
	}
	if err != nil {
		return err
	}

	machine := vm.NewMachine(opts)
	values, err := machine.Run(prog)
	if *stats {
		st := machine.Stats()
		fmt.Fprintf(c.stderr, "transfers: %d, instructions: %d, native calls: %d, max stack: %d\n",
			st.Transfers, st.Instructions, st.NativeCalls, st.MaxStack)
	}
	if err != nil {
		return err
	}
	printStack(c.stdout, values)
	return nil
}

// compileCommand processes `frospy compile`.
func (c *cli) compileCommand(args []string) error {
	fs := c.newFlagSet("compile", "[-o out.go] [-trace...] [file]")
	output := fs.String("o", "", "Output file (default stdout, or the manifest output for the project entry)")
	tf := addTraceFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	src, err := c.readSource(fs)
	if err != nil {
		return err
	}

	res, err := compiler.Compile(src.text, compiler.Options{Debug: true})
	if err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}
	gen := vm.NewAOTCompiler(tf.options(fs, src.baseTrace()))

	out := *output
	if out == "" && src.entry {
		out = src.manifest.OutputPath()
	}
	if out == "" || out == "-" {
		return gen.GenerateTo(c.stdout, res.Program)
	}

	code, err := gen.Generate(res.Program)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, code, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	log.Infof("wrote %s (%d blocks)", out, len(res.Program.Blocks))
	return nil
}

// buildCommand processes `frospy build`.
func (c *cli) buildCommand(args []string) error {
	fs := c.newFlagSet("build", "[-o out.fspi] [file]")
	output := fs.String("o", "", "Image file (default: the source name with a .fspi extension)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	src, err := c.readSource(fs)
	if err != nil {
		return err
	}

	res, err := compiler.Compile(src.text, compiler.Options{Debug: true})
	if err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}

	out := *output
	switch {
	case out != "":
	case src.entry:
		out = src.manifest.ImagePath()
	case src.name != "<stdin>":
		out = strings.TrimSuffix(src.name, filepath.Ext(src.name)) + ".fspi"
	default:
		out = "main.fspi"
	}
	if err := image.WriteFile(out, res.Program); err != nil {
		return err
	}
	log.Infof("wrote %s", out)
	return nil
}

// dumpCommand processes `frospy dump`.
func (c *cli) dumpCommand(args []string) error {
	fs := c.newFlagSet("dump", "[file]")
	imagePath := fs.String("image", "", "Dump a prebuilt image instead of compiling source")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *imagePath != "" {
		prog, err := image.ReadFile(*imagePath)
		if err != nil {
			return err
		}
		_, err = prog.WriteTo(c.stdout)
		return err
	}

	src, err := c.readSource(fs)
	if err != nil {
		return err
	}
	res, err := compiler.Compile(src.text, compiler.Options{})
	if err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}

	fmt.Fprintf(c.stdout, "cps: %s\n\n", compiler.FormatCPS(res.CPS))
	_, err = res.Program.WriteTo(c.stdout)
	return err
}
