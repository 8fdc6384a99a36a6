// Package compile is the public façade tying the lexer, parser, and code
// generator into one call: source in, bytecode out. It is the single
// entry point a host embedding the compiler should call; it does not
// reimplement any phase's logic.
package compile

import (
	"fmt"

	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/codegen"
	"github.com/chazu/minic/pkg/parser"
)

// CompileError wraps whichever phase error occurred during Compile, so
// callers see a single error type; errors.As unwraps to the specific
// *parser.ParseError or *codegen.CodegenError when the caller needs
// position detail.
type CompileError struct {
	Phase string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile lexes, parses, and generates bytecode for source, returning the
// first compile error encountered by any phase.
func Compile(source string) (*bytecode.Program, error) {
	program, err := parser.Parse(source)
	if err != nil {
		return nil, &CompileError{Phase: "parse", Err: err}
	}
	code, err := codegen.Generate(program)
	if err != nil {
		return nil, &CompileError{Phase: "codegen", Err: err}
	}
	return code, nil
}
