// frospy CLI - compile, run and inspect frospy programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/frospy/compiler"
	"github.com/chazu/frospy/server"
	"github.com/chazu/frospy/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("frospy.cli")

// errUsage marks errors already reported by a FlagSet.
var errUsage = errors.New("usage")

// cli carries the process streams so commands can be tested.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	color  bool // color error messages
}

func main() {
	c := &cli{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		color:  isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
	os.Exit(c.run(os.Args[1:]))
}

func (c *cli) usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(c.stderr, "Usage: frospy [-v] <command> [options] [file]\n\n")
		fmt.Fprintf(c.stderr, "Commands:\n")
		fmt.Fprintf(c.stderr, "  eval      Run a program with the reference evaluator\n")
		fmt.Fprintf(c.stderr, "  run       Compile a program and run it on the trampoline\n")
		fmt.Fprintf(c.stderr, "  compile   Emit a self-contained Go program\n")
		fmt.Fprintf(c.stderr, "  build     Write a compiled program image\n")
		fmt.Fprintf(c.stderr, "  dump      Print the CPS form and the block table\n")
		fmt.Fprintf(c.stderr, "  repl      Start an interactive session\n")
		fmt.Fprintf(c.stderr, "  lsp       Start the language server on stdio\n")
		fmt.Fprintf(c.stderr, "\nSource is read from the file argument, the frospy.toml entry, or stdin.\n\n")
		fmt.Fprintf(c.stderr, "Options:\n")
		fs.PrintDefaults()
	}
}

// run executes one command line and returns the exit status.
func (c *cli) run(args []string) int {
	fs := flag.NewFlagSet("frospy", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = c.usage(fs)
	verbose := fs.Bool("v", false, "Verbose (debug) logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(-1, nil)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	log.Debugf("command %s %v", cmd, rest)

	var err error
	switch cmd {
	case "eval":
		err = c.evalCommand(rest)
	case "run":
		err = c.runCommand(rest)
	case "compile":
		err = c.compileCommand(rest)
	case "build":
		err = c.buildCommand(rest)
	case "dump":
		err = c.dumpCommand(rest)
	case "repl":
		err = c.replCommand(rest)
	case "lsp":
		err = server.NewLSP().Run()
	case "version":
		fmt.Fprintln(c.stdout, compiler.Version)
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			return 2
		}
		c.printError(err)
		return 1
	}
	return 0
}

// printError reports err on stderr, in red when stderr is a terminal.
func (c *cli) printError(err error) {
	if c.color {
		fmt.Fprintf(c.stderr, "\033[31mError: %v\033[0m\n", err)
		return
	}
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
}

// printStack writes one "s i: value" line per stack entry, bottom first.
func printStack(w io.Writer, values []vm.Value) {
	for i, v := range values {
		fmt.Fprintf(w, "s %d: %s\n", i, v)
	}
}
