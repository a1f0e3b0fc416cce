package integration_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/frospy/compiler"
	"github.com/chazu/frospy/image"
	"github.com/chazu/frospy/manifest"
	"github.com/chazu/frospy/vm"
)

// ---------------------------------------------------------------------------
// Integration test helpers
// ---------------------------------------------------------------------------

const examplesDir = "../../examples"

// outcome is what running a program produced.
type outcome struct {
	stack  string
	output string
	err    error
}

func stackString(values []vm.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func readExample(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(examplesDir, name))
	if err != nil {
		t.Fatalf("reading example %s: %v", name, err)
	}
	return string(data)
}

// trampoline compiles src and runs it on a fresh machine.
func trampoline(t *testing.T, src string) outcome {
	t.Helper()
	res, err := compiler.Compile(src, compiler.Options{})
	if err != nil {
		t.Fatalf("compile error: %v\nsource: %s", err, src)
	}
	var out bytes.Buffer
	values, err := vm.Execute(res.Program, vm.Options{Stdout: &out, MaxSteps: 1_000_000})
	return outcome{stack: stackString(values), output: out.String(), err: err}
}

// reference runs src with the direct evaluator.
func reference(t *testing.T, src string) outcome {
	t.Helper()
	exprs, err := compiler.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v\nsource: %s", err, src)
	}
	var out bytes.Buffer
	values, err := vm.Evaluate(exprs, &out)
	return outcome{stack: stackString(values), output: out.String(), err: err}
}

// ---------------------------------------------------------------------------
// Example programs
// ---------------------------------------------------------------------------

func TestExamples(t *testing.T) {
	loopOutput := func() string {
		var b strings.Builder
		for i := 0; i < 50; i++ {
			fmt.Fprintf(&b, "%d\n", i)
		}
		return b.String()
	}()

	tests := []struct {
		file    string
		stack   string
		output  string
		wantErr error
	}{
		{file: "closure.fy", stack: "[1 2]"},
		{file: "shadow.fy", stack: "[2 11]"},
		{file: "swap.fy", stack: "[]", output: "1\n2\n2\n1\n"},
		{file: "loop/main.fy", stack: "[50]", output: loopOutput},
		{file: "unbound.fy", wantErr: vm.ErrUnbound},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			src := readExample(t, tt.file)

			for name, got := range map[string]outcome{
				"trampoline": trampoline(t, src),
				"reference":  reference(t, src),
			} {
				if tt.wantErr != nil {
					if !errors.Is(got.err, tt.wantErr) {
						t.Errorf("%s: error = %v, want %v", name, got.err, tt.wantErr)
					}
					continue
				}
				if got.err != nil {
					t.Fatalf("%s: %v", name, got.err)
				}
				if got.stack != tt.stack {
					t.Errorf("%s: stack = %s, want %s", name, got.stack, tt.stack)
				}
				if got.output != tt.output {
					t.Errorf("%s: output = %q, want %q", name, got.output, tt.output)
				}
			}
		})
	}
}

func TestUnboundErrorNamesTheAtom(t *testing.T) {
	got := trampoline(t, readExample(t, "unbound.fy"))

	var rerr *vm.RuntimeError
	if !errors.As(got.err, &rerr) {
		t.Fatalf("error = %v, want *vm.RuntimeError", got.err)
	}
	if !strings.Contains(rerr.Error(), "nope") {
		t.Errorf("error %q does not name the unbound atom", rerr)
	}
	if rerr.Span.Start.Line != 3 {
		t.Errorf("error reported at line %d, want 3", rerr.Span.Start.Line)
	}
}

// ---------------------------------------------------------------------------
// Project and image round trips
// ---------------------------------------------------------------------------

func TestLoopProject(t *testing.T) {
	m, err := manifest.Load(filepath.Join(examplesDir, "loop"))
	if err != nil {
		t.Fatalf("loading manifest: %v", err)
	}
	if m.Project.Name != "loop" {
		t.Errorf("project name = %q, want loop", m.Project.Name)
	}

	data, err := os.ReadFile(m.EntryPath())
	if err != nil {
		t.Fatal(err)
	}
	res, err := compiler.Compile(string(data), compiler.Options{})
	if err != nil {
		t.Fatal(err)
	}

	// The manifest step limit is generous enough for the whole loop.
	var out bytes.Buffer
	machine := vm.NewMachine(vm.Options{Stdout: &out, MaxSteps: m.Run.MaxSteps, Trace: m.TraceOptions()})
	if _, err := machine.Run(res.Program); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := strings.Count(out.String(), "\n"); n != 50 {
		t.Errorf("printed %d lines, want 50", n)
	}
}

func TestImageRunsLikeSource(t *testing.T) {
	for _, file := range []string{"closure.fy", "shadow.fy", "swap.fy", "loop/main.fy"} {
		src := readExample(t, file)
		res, err := compiler.Compile(src, compiler.Options{})
		if err != nil {
			t.Fatal(err)
		}

		path := filepath.Join(t.TempDir(), "prog.fspi")
		if err := image.WriteFile(path, res.Program); err != nil {
			t.Fatal(err)
		}
		prog, err := image.ReadFile(path)
		if err != nil {
			t.Fatalf("%s: %v", file, err)
		}

		var out bytes.Buffer
		values, err := vm.Execute(prog, vm.Options{Stdout: &out})
		if err != nil {
			t.Fatalf("%s: %v", file, err)
		}
		want := trampoline(t, src)
		if got := stackString(values); got != want.stack || out.String() != want.output {
			t.Errorf("%s: image run = %s %q, source run = %s %q", file, got, out.String(), want.stack, want.output)
		}
	}
}

func TestAOTForExamples(t *testing.T) {
	for _, file := range []string{"closure.fy", "loop/main.fy"} {
		res, err := compiler.Compile(readExample(t, file), compiler.Options{})
		if err != nil {
			t.Fatal(err)
		}
		code, err := vm.NewAOTCompiler(vm.TraceAll()).Generate(res.Program)
		if err != nil {
			t.Fatalf("%s: %v", file, err)
		}
		if !bytes.Contains(code, []byte("func main()")) {
			t.Errorf("%s: generated program has no main", file)
		}
	}
}
