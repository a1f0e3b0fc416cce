package vm

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"testing"
)

// alternatingSource runs n iterations that alternate between a, which adds
// one to the counter, and b, which adds two. Each tail-forces the next
// procedure found on the stack.
func alternatingSource(n int) string {
	var b strings.Builder
	b.WriteString("($n $next ^n mark inc ^next force) $a\n")
	b.WriteString("($n $next ^n mark inc inc ^next force) $b\n")
	b.WriteString("() $done\n^done")
	for i := n; i >= 2; i-- {
		if i%2 == 1 {
			b.WriteString(" ^a")
		} else {
			b.WriteString(" ^b")
		}
	}
	b.WriteString("\n0 ^a force\n")
	return b.String()
}

// recordDepth returns a native that records the host stack depth each time
// it runs, leaving the stack untouched.
func recordDepth(depths *[]int) NativeFunc {
	return func(env *Env, s *Stack) (*Env, error) {
		pcs := make([]uintptr, 256)
		*depths = append(*depths, runtime.Callers(0, pcs))
		return env, nil
	}
}

func TestMutualTailCallsDoNotGrowHostStack(t *testing.T) {
	const n = 10000

	var depths []int
	m := NewMachine(Options{Stdout: &bytes.Buffer{}})
	m.Define("mark", recordDepth(&depths))

	stack, err := m.Run(compileProgram(t, alternatingSource(n)))
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	// n/2 iterations of a add 1, n/2 iterations of b add 2.
	if got, want := stackString(stack), fmt.Sprintf("[%d]", n/2+n); got != want {
		t.Errorf("stack = %s, want %s", got, want)
	}
	if len(depths) != n {
		t.Fatalf("mark ran %d times, want %d", len(depths), n)
	}
	for i, d := range depths {
		if d != depths[0] {
			t.Fatalf("host stack depth at iteration %d = %d, want %d", i, d, depths[0])
		}
	}
}

func TestNonTailForceInLoopBody(t *testing.T) {
	// The body forces a helper before continuing, so every iteration builds
	// a continuation block. The host stack must still stay flat.
	const n = 2000

	var depths []int
	m := NewMachine(Options{Stdout: &bytes.Buffer{}})
	m.Define("mark", recordDepth(&depths))

	stack, err := m.Run(compileProgram(t, loopSource("(mark) force", n)))
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got, want := stackString(stack), fmt.Sprintf("[%d]", n); got != want {
		t.Errorf("stack = %s, want %s", got, want)
	}
	if len(depths) != n {
		t.Fatalf("mark ran %d times, want %d", len(depths), n)
	}
	for i, d := range depths {
		if d != depths[0] {
			t.Fatalf("host stack depth at iteration %d = %d, want %d", i, d, depths[0])
		}
	}
}

func TestDeeplyNestedGroups(t *testing.T) {
	const depth = 500

	// (((1) force inc) force inc) ... nests depth non-tail forces.
	src := "1"
	for i := 0; i < depth; i++ {
		src = "(" + src + ") force inc"
	}

	stack, _, err := runSource(t, src)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got, want := stackString(stack), fmt.Sprintf("[%d]", depth+1); got != want {
		t.Errorf("stack = %s, want %s", got, want)
	}

	ref, _, err := evalSource(t, src)
	if err != nil {
		t.Fatalf("reference error: %v", err)
	}
	if stackString(ref) != stackString(stack) {
		t.Errorf("reference stack = %s, trampoline stack = %s", stackString(ref), stackString(stack))
	}
}
