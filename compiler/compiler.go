// The compiler-package contains the core of our compiler.
//
// In brief we go through a pipeline of stages:
//
//  1. The lexer tokenizes the source text.
//
//  2. The parser converts the tokens into an abstract syntax tree.
//
//  3. The lowerer walks the tree, producing three-address code for
//     each function and for the top-level declarations.
//
//  4. The backend walks the three-address code, allocating stack slots
//     and emitting an abstract assembly instruction list.
//
//  5. The printer renders that list as AT&T-syntax assembly text.
package compiler

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skx/c64c/asmprint"
	"github.com/skx/c64c/backend"
	"github.com/skx/c64c/lexer"
	"github.com/skx/c64c/lower"
	"github.com/skx/c64c/parser"
)

// Compiler holds our object-state.
type Compiler struct {

	// debug holds a flag to decide if debugging output is logged
	// as the pipeline runs.
	debug bool

	// source holds the C-subset program we're compiling.
	source string
}

// New creates a new compiler, given the source text in the constructor.
func New(input string) *Compiler {
	return &Compiler{source: input}
}

// SetDebug changes the debug-flag for our output.
func (c *Compiler) SetDebug(val bool) {
	c.debug = val
	if val {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// Compile converts the input program into AT&T-syntax x86-64 assembly
// language text.
func (c *Compiler) Compile() (string, error) {
	toks := lexer.New(c.source).All()
	logrus.WithField("count", len(toks)).Debug("lexing complete")

	prog, err := parser.Parse(toks)
	if err != nil {
		return "", errors.Wrap(err, "parsing")
	}

	ir, err := lower.Lower(prog)
	if err != nil {
		return "", errors.Wrap(err, "lowering")
	}

	var lines []asmprint.Line
	lines = append(lines, asmprint.DirectiveLine(".text"))

	for _, fn := range ir.Funcs {
		fnLines, err := backend.Emit(fn)
		if err != nil {
			return "", errors.Wrapf(err, "generating code for %q", fn.Name)
		}
		lines = append(lines, fnLines...)
	}

	if len(ir.Globals) > 0 {
		lines = append(lines, asmprint.DirectiveLine(".data"))
		for _, g := range ir.Globals {
			lines = append(lines, asmprint.LabelLine(g.Name))
			lines = append(lines, asmprint.DirectiveLine(".long "+strconv.FormatInt(g.Init, 10)))
		}
	}

	return asmprint.Print(lines), nil
}
