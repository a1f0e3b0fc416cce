package main

import (
	"bytes"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/frospy/vm"
)

const scenarioOne = "1 $x (^x) $f 2 $x ^f force ^x"

// runCLI runs one command line with src on stdin and returns the exit
// status, stdout and stderr.
func runCLI(t *testing.T, src string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := &cli{stdin: strings.NewReader(src), stdout: &stdout, stderr: &stderr}
	code := c.run(args)
	return code, stdout.String(), stderr.String()
}

// isolate moves the test into an empty directory with its own cache.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FROSPY_CACHE", filepath.Join(dir, "cache", "cache.db"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEvalAndRunAgree(t *testing.T) {
	isolate(t)
	want := "s 0: 1\ns 1: 2\n"

	for _, args := range [][]string{
		{"eval"},
		{"run", "-no-cache"},
		{"run"},
		{"run"}, // served from the cache
	} {
		code, out, errOut := runCLI(t, scenarioOne, args...)
		if code != 0 {
			t.Fatalf("%v: exit %d, stderr %q", args, code, errOut)
		}
		if out != want {
			t.Errorf("%v: stdout = %q, want %q", args, out, want)
		}
	}

	if _, err := os.Stat(filepath.Join("cache", "cache.db")); err != nil {
		t.Errorf("cache database not created: %v", err)
	}
}

func TestRunPrintln(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "5 println 6 inc", "run")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if out != "5\ns 0: 7\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		src  string
		args []string
		want string
	}{
		{"unbound", "nope", nil, "unbound name nope"},
		{"syntax", "(1", nil, "unclosed '('"},
		{"step limit", "(1) force", []string{"-max-steps", "1"}, "step limit exceeded"},
	}
	for _, tt := range tests {
		args := append([]string{"run", "-no-cache"}, tt.args...)
		code, _, errOut := runCLI(t, tt.src, args...)
		if code != 1 {
			t.Errorf("%s: exit %d, want 1", tt.name, code)
		}
		if !strings.Contains(errOut, tt.want) {
			t.Errorf("%s: stderr = %q, want it to contain %q", tt.name, errOut, tt.want)
		}
		if strings.Contains(errOut, "\033[") {
			t.Errorf("%s: colored output on a non-terminal", tt.name)
		}
	}
}

func TestRunTrace(t *testing.T) {
	isolate(t)
	code, out, errOut := runCLI(t, "1 inc", "run", "-no-cache", "-trace-exec", "-trace-stack")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if out != "s 0: 2\n" {
		t.Errorf("stdout = %q, want only the final stack", out)
	}
	for _, want := range []string{"EXEC entry\n", "STACK 2\n", "EXEC b1\n"} {
		if !strings.Contains(errOut, want) {
			t.Errorf("stderr lacks %q:\n%s", want, errOut)
		}
	}
	if strings.Contains(errOut, "INST") {
		t.Error("instruction trace enabled without -trace-inst")
	}
}

func TestCompileCommand(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "prog.fy")
	writeFile(t, src, scenarioOne)
	out := filepath.Join(dir, "gen", "main.go")

	code, _, errOut := runCLI(t, "", "compile", "-o", out, src)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), out, data, 0); err != nil {
		t.Errorf("generated program does not parse: %v", err)
	}

	// Without -o the program goes to stdout.
	code, stdout, _ := runCLI(t, scenarioOne, "compile")
	if code != 0 || !strings.HasPrefix(stdout, "// Code generated by frospy") {
		t.Errorf("compile to stdout: exit %d, output starts %q", code, firstLine(stdout))
	}
}

func TestBuildAndRunImage(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "prog.fy")
	writeFile(t, src, scenarioOne)

	if code, _, errOut := runCLI(t, "", "build", src); code != 0 {
		t.Fatalf("build: exit %d: %s", code, errOut)
	}
	img := filepath.Join(dir, "prog.fspi")
	if _, err := os.Stat(img); err != nil {
		t.Fatalf("image not written: %v", err)
	}

	code, out, errOut := runCLI(t, "", "run", "-image", img)
	if code != 0 {
		t.Fatalf("run -image: exit %d: %s", code, errOut)
	}
	if out != "s 0: 1\ns 1: 2\n" {
		t.Errorf("stdout = %q", out)
	}

	code, out, _ = runCLI(t, "", "dump", "-image", img)
	if code != 0 || !strings.HasPrefix(out, "entry -> [") {
		t.Errorf("dump -image: exit %d, output %q", code, firstLine(out))
	}
}

func TestDumpCommand(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "1 inc", "dump")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.HasPrefix(out, "cps: 1 'inc push") {
		t.Errorf("dump starts %q", firstLine(out))
	}
	if !strings.Contains(out, "\nentry -> [") {
		t.Errorf("dump lacks the entry block:\n%s", out)
	}
}

func TestManifestProject(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "frospy.toml"), `
[project]
name = "demo"
entry = "demo.fy"

[trace]
exec = true

[run]
cache = false

[build]
output = "out/demo.go"
`)
	writeFile(t, filepath.Join(dir, "demo.fy"), "41 inc")

	code, out, errOut := runCLI(t, "", "run")
	if code != 0 {
		t.Fatalf("run: exit %d: %s", code, errOut)
	}
	if out != "s 0: 42\n" {
		t.Errorf("run stdout = %q, want s 0: 42", out)
	}
	if !strings.Contains(errOut, "EXEC entry") {
		t.Errorf("manifest trace missing from stderr: %q", errOut)
	}

	// Flags override the manifest.
	_, _, errOut = runCLI(t, "", "run", "-trace-exec=false")
	if strings.Contains(errOut, "EXEC") {
		t.Errorf("-trace-exec=false did not override the manifest: %q", errOut)
	}

	if code, _, errOut := runCLI(t, "", "compile"); code != 0 {
		t.Fatalf("compile: exit %d: %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "demo.go")); err != nil {
		t.Errorf("manifest output not written: %v", err)
	}
}

func TestUsage(t *testing.T) {
	isolate(t)
	if code, _, _ := runCLI(t, ""); code != 2 {
		t.Errorf("no command: exit %d, want 2", code)
	}
	if code, _, errOut := runCLI(t, "", "frobnicate"); code != 2 || !strings.Contains(errOut, "Unknown command") {
		t.Errorf("unknown command: exit %d, stderr %q", code, errOut)
	}
	if code, _, _ := runCLI(t, "", "run", "-bogus"); code != 2 {
		t.Errorf("bad flag: exit %d, want 2", code)
	}
	if code, out, _ := runCLI(t, "", "version"); code != 0 || !strings.HasPrefix(out, "frospy-") {
		t.Errorf("version: exit %d, output %q", code, out)
	}
}

func TestSession(t *testing.T) {
	var out bytes.Buffer
	s := newSession(vmOptions(&out))

	if _, err := s.eval("1 $x (^x inc) $next"); err != nil {
		t.Fatal(err)
	}
	values, err := s.eval("^next force")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0].String() != "2" {
		t.Errorf("stack = %v, want [2]", values)
	}

	if got := s.complete("1 ^ne"); len(got) != 1 || got[0] != "1 ^next" {
		t.Errorf("complete = %v, want [1 ^next]", got)
	}

	s.command(&out, ":reset")
	if _, err := s.eval("^next"); err == nil {
		t.Error("binding survived :reset")
	}

	out.Reset()
	s.command(&out, ":dump 1")
	if !strings.HasPrefix(out.String(), "entry -> [") {
		t.Errorf(":dump output = %q", out.String())
	}
}

func vmOptions(w io.Writer) vm.Options {
	return vm.Options{Stdout: w, Tracer: w}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
