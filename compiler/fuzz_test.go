package compiler

import (
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzCompile: the pipeline never panics, and whatever compiles validates.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		``, `1`, `( )`, `'x`, `$x`, `^x`, `quote`, `quote (x)`,
		`1 $x (^x) $f 2 $x ^f force ^x`,
		`(^loop force) $loop`,
		"# comment\n1 println",
		`((((1))))`, `)(`, `'`, `99999999999999999999999`,
		`force force force`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, src string) {
		res, err := Compile(src, Options{})
		if err != nil {
			return
		}
		if err := res.Program.Validate(); err != nil {
			t.Fatalf("Compile(%q) produced invalid program: %v", src, err)
		}
	})
}

func FuzzLexer(f *testing.F) {
	f.Add("( ) 42 foo 'bar $baz ^qux # comment")
	f.Add("\x00\xff")

	f.Fuzz(func(t *testing.T, src string) {
		tokens := Tokenize(src)
		if tokens[len(tokens)-1].Type != TokenEOF {
			t.Fatalf("Tokenize(%q) does not end in EOF", src)
		}
	})
}
