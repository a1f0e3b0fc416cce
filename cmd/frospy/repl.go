package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/frospy/compiler"
	"github.com/chazu/frospy/vm"
)

// session is the state of an interactive session. Globals and the operand
// stack live in the machine and carry over between lines; block and
// continuation names stay unique through the shared generator.
type session struct {
	opts    vm.Options
	machine *vm.Machine
	names   *compiler.NameGen
}

func newSession(opts vm.Options) *session {
	s := &session{opts: opts}
	s.reset()
	return s
}

func (s *session) reset() {
	s.machine = vm.NewMachine(s.opts)
	s.names = &compiler.NameGen{}
}

// eval compiles and runs one line.
func (s *session) eval(input string) ([]vm.Value, error) {
	res, err := compiler.Compile(input, compiler.Options{Names: s.names})
	if err != nil {
		return nil, err
	}
	return s.machine.Run(res.Program)
}

// command handles REPL meta-commands
func (s *session) command(w io.Writer, input string) {
	cmd, arg, _ := strings.Cut(input, " ")
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(w, "REPL Commands:")
		fmt.Fprintln(w, "  :help, :h, :?     Show this help")
		fmt.Fprintln(w, "  :stack            Show the operand stack")
		fmt.Fprintln(w, "  :env              Show the global bindings")
		fmt.Fprintln(w, "  :dump <source>    Show the blocks compiled from source")
		fmt.Fprintln(w, "  :stats            Show execution statistics")
		fmt.Fprintln(w, "  :reset            Clear bindings and stack")
		fmt.Fprintln(w, "  exit, quit        Exit REPL")
	case ":stack":
		printStack(w, s.machine.Stack())
	case ":env":
		fmt.Fprintln(w, s.machine.Globals())
	case ":dump":
		res, err := compiler.Compile(arg, compiler.Options{Names: &compiler.NameGen{}})
		if err != nil {
			fmt.Fprintf(w, "Compile error: %v\n", err)
			return
		}
		res.Program.WriteTo(w)
	case ":stats":
		st := s.machine.Stats()
		fmt.Fprintf(w, "transfers: %d, instructions: %d, native calls: %d, max stack: %d\n",
			st.Transfers, st.Instructions, st.NativeCalls, st.MaxStack)
	case ":reset":
		s.reset()
		fmt.Fprintln(w, "Session reset")
	default:
		fmt.Fprintf(w, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// complete offers builtin and bound names for the word before the cursor.
func (s *session) complete(line string) []string {
	i := strings.LastIndexAny(line, " \t()'$^")
	head, word := line[:i+1], line[i+1:]

	seen := map[string]bool{}
	var out []string
	for _, name := range append(vm.NativeNames(), s.machine.Globals().Names()...) {
		if strings.HasPrefix(name, word) && !seen[name] {
			seen[name] = true
			out = append(out, head+name)
		}
	}
	sort.Strings(out)
	return out
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".frospy_history")
}

// replCommand processes `frospy repl`.
func (c *cli) replCommand(args []string) error {
	fs := c.newFlagSet("repl", "[-trace...]")
	tf := addTraceFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	sess := newSession(vm.Options{
		Trace:  tf.options(fs, vm.TraceOptions{}),
		Stdout: c.stdout,
		Tracer: c.stderr,
	})

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(sess.complete)

	hpath := historyPath()
	if hpath != "" {
		if f, err := os.Open(hpath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintf(c.stdout, "frospy REPL %s (type 'exit' to quit, ':help' for commands)\n", compiler.Version)

	for {
		input, err := line.Prompt(">> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			break // EOF
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			break
		}
		if strings.HasPrefix(input, ":") {
			sess.command(c.stdout, input)
			continue
		}

		values, err := sess.eval(input)
		if err != nil {
			c.printError(err)
			continue
		}
		printStack(c.stdout, values)
	}
	fmt.Fprintln(c.stdout)

	if hpath != "" {
		if f, err := os.Create(hpath); err == nil {
			line.WriteHistory(f)
			f.Close()
		} else {
			log.Warningf("cannot save history: %s", err)
		}
	}
	return nil
}
