// Package compiler contains the core of cc32: a three-step process
// over a single source file.
//
//  1. The lexer tokenizes the source text.
//
//  2. The parser turns the token stream into an ast.Program.
//
//  3. The code generator walks the program, emitting x86 assembly for
//     each declaration.
//
// There's no intermediate representation and no optimization pass:
// the generator lowers straight from AST to text in one walk.
package compiler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/skx/cc32/target"
)

// Compiler holds the configuration for one compilation.
type Compiler struct {
	// source holds the program text being compiled.
	source string

	// debug controls whether an int3 breakpoint is inserted at the
	// start of every function body.
	debug bool

	// target is the platform configuration code generation targets.
	// Resolved from the running kernel unless overridden with
	// WithTarget.
	target target.Config

	// newFormatter lets tests swap in a Formatter with different
	// column widths; defaults to the fixed 16/8/40 layout.
	newFormatter func(w io.Writer) *Formatter
}

// Option configures a Compiler at construction time.
type Option func(*Compiler)

// WithDebug toggles whether an int3 breakpoint is emitted at the start
// of every function body.
func WithDebug(debug bool) Option {
	return func(c *Compiler) { c.debug = debug }
}

// WithTarget overrides the auto-detected platform configuration.
func WithTarget(cfg target.Config) Option {
	return func(c *Compiler) { c.target = cfg }
}

// WithFormat overrides the assembly output's column widths, for tests
// that want to assert against unpadded text.
func WithFormat(newFormatter func(w io.Writer) *Formatter) Option {
	return func(c *Compiler) { c.newFormatter = newFormatter }
}

// New creates a compiler for the given source text. The platform
// target is auto-detected unless WithTarget overrides it.
func New(source string, opts ...Option) (*Compiler, error) {
	c := &Compiler{source: source, newFormatter: NewFormatter}

	cfg, err := target.Detect()
	if err != nil {
		return nil, err
	}
	c.target = cfg

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Result is the outcome of a successful compilation: the generated
// assembly text plus any non-fatal warnings the code generator raised.
type Result struct {
	Assembly string
	Warnings []string
}

// Compile runs the lexer, parser and code generator in sequence. A
// syntax error doesn't stop the parser: it records a *ParseError and
// resynchronizes to the next declaration, so the code generator still
// runs over whatever of the program did parse and gets a chance to
// raise its own, independent semantic checks. A *CompilationError from
// the generator is reported first, since it's detected later in the
// pipeline and takes priority over an already-recorded syntax error;
// only once generation succeeds outright does the first *ParseError
// (if any were recorded) get surfaced.
func (c *Compiler) Compile() (*Result, error) {
	p := NewParser(c.source)
	prog := p.ParseProgram()

	var buf bytes.Buffer
	gen := NewCodeGenerator(c.newFormatter(&buf), c.target)
	gen.debug = c.debug

	if err := gen.Generate(prog); err != nil {
		return nil, err
	}
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	if err := gen.out.Flush(); err != nil {
		return nil, fmt.Errorf("compiler: flushing output: %w", err)
	}

	return &Result{Assembly: buf.String(), Warnings: gen.Warnings()}, nil
}
