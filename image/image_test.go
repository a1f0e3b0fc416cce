package image

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/frospy/compiler"
)

func compile(t *testing.T, src string) *compiler.Program {
	t.Helper()
	res, err := compiler.Compile(src, compiler.Options{})
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return res.Program
}

func TestImageRoundTrip(t *testing.T) {
	prog := compile(t, "1 $x (^x) $f 2 $x ^f force ^x")

	data, err := Marshal(prog)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Disassemble() != prog.Disassemble() {
		t.Errorf("disassembly changed:\n got:\n%s\nwant:\n%s", got.Disassemble(), prog.Disassemble())
	}
	for i, b := range prog.Blocks {
		if got.Blocks[i].Span != b.Span {
			t.Errorf("block %s span = %v, want %v", b.Name, got.Blocks[i].Span, b.Span)
		}
		for j, in := range b.Code {
			if got.Blocks[i].Code[j] != in {
				t.Errorf("block %s instr %d = %+v, want %+v", b.Name, j, got.Blocks[i].Code[j], in)
			}
		}
	}
}

func TestImageDeterministic(t *testing.T) {
	prog := compile(t, "((a) (b) force) force")
	a, err := Marshal(prog)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(prog)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same program differ")
	}
}

func TestImageRejects(t *testing.T) {
	prog := compile(t, "1")

	wrongMagic := FromProgram(prog)
	wrongMagic.Magic = "NOPE"
	data, _ := cbor.Marshal(wrongMagic)
	if _, err := Unmarshal(data); !errors.Is(err, ErrBadMagic) {
		t.Errorf("wrong magic: error = %v, want ErrBadMagic", err)
	}

	wrongVersion := FromProgram(prog)
	wrongVersion.Format = FormatVersion + 1
	data, _ = cbor.Marshal(wrongVersion)
	if _, err := Unmarshal(data); !errors.Is(err, ErrVersion) {
		t.Errorf("wrong version: error = %v, want ErrVersion", err)
	}

	oldCompiler := FromProgram(prog)
	oldCompiler.Compiler = "frospy-0.0.0"
	data, _ = cbor.Marshal(oldCompiler)
	if _, err := Unmarshal(data); !errors.Is(err, ErrCompilerVersion) {
		t.Errorf("other compiler: error = %v, want ErrCompilerVersion", err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrCompilerVersion) {
		t.Errorf("other compiler: Decode error = %v, want ErrCompilerVersion", err)
	}

	dangling := FromProgram(prog)
	dangling.Blocks[0].Code[0] = Instr{Op: uint8(compiler.OpBlock), Name: "b99"}
	data, _ = cbor.Marshal(dangling)
	if _, err := Unmarshal(data); !errors.Is(err, compiler.ErrInvalidProgram) {
		t.Errorf("dangling ref: error = %v, want ErrInvalidProgram", err)
	}

	if _, err := Unmarshal([]byte("not cbor at all")); err == nil {
		t.Error("garbage input accepted")
	}
}

func TestImageFile(t *testing.T) {
	prog := compile(t, "(1 inc) force")
	path := filepath.Join(t.TempDir(), "prog.fspi")

	if err := WriteFile(path, prog); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Disassemble() != prog.Disassemble() {
		t.Error("program changed after file round trip")
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ReadFile of a missing file succeeded")
	}
}
