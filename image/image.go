// Package image serializes compiled frospy programs as CBOR images, so a
// program can be built once and run later without recompiling.
package image

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/frospy/compiler"
)

// Magic identifies a frospy image.
const Magic = "FRSP"

// FormatVersion is bumped whenever the image layout changes.
const FormatVersion uint16 = 1

var (
	// ErrBadMagic is returned for data that is not a frospy image.
	ErrBadMagic = errors.New("image: not a frospy image")

	// ErrVersion is returned for images written in another format version.
	ErrVersion = errors.New("image: unsupported format version")

	// ErrCompilerVersion is returned for images built by another compiler
	// version; rebuild them from source.
	ErrCompilerVersion = errors.New("image: built by another compiler version")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Image is the serialized form of a compiler.Program.
type Image struct {
	Magic    string  `cbor:"1,keyasint"`
	Format   uint16  `cbor:"2,keyasint"`
	Compiler string  `cbor:"3,keyasint"` // compiler.Version that produced it
	Blocks   []Block `cbor:"4,keyasint"`
}

// Block is one serialized block.
type Block struct {
	Name string  `cbor:"1,keyasint"`
	Span Span    `cbor:"2,keyasint"`
	Code []Instr `cbor:"3,keyasint"`
}

// Instr is one serialized instruction.
type Instr struct {
	Op   uint8  `cbor:"1,keyasint"`
	Int  int64  `cbor:"2,keyasint,omitempty"`
	Name string `cbor:"3,keyasint,omitempty"`
	Span Span   `cbor:"4,keyasint"`
}

// Span is a source range encoded as a six-element array.
type Span struct {
	_         struct{} `cbor:",toarray"`
	StartOff  int
	StartLine int
	StartCol  int
	EndOff    int
	EndLine   int
	EndCol    int
}

func fromSpan(s compiler.Span) Span {
	return Span{
		StartOff: s.Start.Offset, StartLine: s.Start.Line, StartCol: s.Start.Column,
		EndOff: s.End.Offset, EndLine: s.End.Line, EndCol: s.End.Column,
	}
}

func (s Span) toSpan() compiler.Span {
	return compiler.Span{
		Start: compiler.Position{Offset: s.StartOff, Line: s.StartLine, Column: s.StartCol},
		End:   compiler.Position{Offset: s.EndOff, Line: s.EndLine, Column: s.EndCol},
	}
}

// FromProgram converts a program to its image form.
func FromProgram(prog *compiler.Program) *Image {
	img := &Image{
		Magic:    Magic,
		Format:   FormatVersion,
		Compiler: compiler.Version,
		Blocks:   make([]Block, len(prog.Blocks)),
	}
	for i, b := range prog.Blocks {
		code := make([]Instr, len(b.Code))
		for j, in := range b.Code {
			code[j] = Instr{Op: uint8(in.Op), Int: in.Int, Name: in.Name, Span: fromSpan(in.Span)}
		}
		img.Blocks[i] = Block{Name: b.Name, Span: fromSpan(b.Span), Code: code}
	}
	return img
}

// Program rebuilds and validates the program held by the image.
func (img *Image) Program() (*compiler.Program, error) {
	blocks := make([]*compiler.Block, len(img.Blocks))
	for i, b := range img.Blocks {
		code := make([]compiler.Instr, len(b.Code))
		for j, in := range b.Code {
			code[j] = compiler.Instr{Op: compiler.Opcode(in.Op), Int: in.Int, Name: in.Name, Span: in.Span.toSpan()}
		}
		blocks[i] = &compiler.Block{Name: b.Name, Span: b.Span.toSpan(), Code: code}
	}
	prog := compiler.NewProgram(blocks)
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return prog, nil
}

// Marshal serializes prog to canonical CBOR.
func Marshal(prog *compiler.Program) ([]byte, error) {
	data, err := encMode.Marshal(FromProgram(prog))
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	return data, nil
}

// Decode deserializes an image without rebuilding the program. Images from
// another format or compiler version are rejected.
func Decode(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, ErrBadMagic
	}
	if img.Format != FormatVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrVersion, img.Format, FormatVersion)
	}
	if img.Compiler != compiler.Version {
		return nil, fmt.Errorf("%w: %q (want %q)", ErrCompilerVersion, img.Compiler, compiler.Version)
	}
	return &img, nil
}

// Unmarshal deserializes and validates a program.
func Unmarshal(data []byte) (*compiler.Program, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return img.Program()
}

// WriteFile writes prog as an image file.
func WriteFile(path string, prog *compiler.Program) error {
	data, err := Marshal(prog)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and validates an image file.
func ReadFile(path string) (*compiler.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
