// Package tac defines the three-address-code intermediate representation
// produced by the lowerer and consumed by the backend.
//
// A function body is a flat, ordered list of Lines. Each Line pairs an
// Instr with an optional defining ID — the temporary or variable slot
// that receives the instruction's result, if any. Operands are always
// IDs: every constant is materialized into a temporary by an Alloc
// instruction before it can participate in an operation, so the
// backend never has to special-case immediates deep in an expression
// tree.
package tac

import "fmt"

// IDKind distinguishes a named source-level variable from a
// compiler-generated temporary. Each kind has its own dense numbering
// per function, not a single shared counter: the lowerer keeps one
// counter for variables and one for temporaries.
type IDKind int

const (
	VarID IDKind = iota
	TempID
)

// ID identifies a value slot within one function. IDs are unique within
// a function (per Kind) and stable across the Lines that reference
// them.
type ID struct {
	N    int
	Kind IDKind
}

func (id ID) String() string {
	if id.Kind == TempID {
		return fmt.Sprintf("t%d", id.N)
	}
	return fmt.Sprintf("v%d", id.N)
}

// Label is a function-local branch target, unique within a function.
type Label int

// BinOp is a binary arithmetic/relational/equality/bitwise operator.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
	BitAnd
	BitOr
	BitXor
	CmpEq
	CmpNeq
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (o BinOp) String() string {
	names := [...]string{"+", "-", "*", "/", "%", "<<", ">>", "&", "|", "^", "==", "!=", "<", "<=", ">", ">="}
	if int(o) < len(names) {
		return names[o]
	}
	return "?"
}

// UnOp is a unary operator.
type UnOp int

const (
	Neg UnOp = iota // arithmetic negation
	BitComplement
	LogicNeg
)

func (o UnOp) String() string {
	names := [...]string{"-", "~", "!"}
	if int(o) < len(names) {
		return names[o]
	}
	return "?"
}

// Instr is implemented by every TAC instruction variant.
type Instr interface{ instrNode() }

// Alloc materializes a constant into its defining temporary.
type Alloc struct{ Value int64 }

// Copy assigns Src's current value into the defining ID.
type Copy struct{ Src ID }

// Bin applies Op to A and B, left evaluated first, producing the
// defining ID.
type Bin struct {
	Op   BinOp
	A, B ID
}

// Unary applies Op to A, producing the defining ID.
type Unary struct {
	Op UnOp
	A  ID
}

// Call invokes Name with Args already evaluated into IDs; PopSize is
// len(Args) * WordSize, kept as IR metadata only: the backend computes
// the real caller-side stack cleanup from the calling convention and
// does not read it. Produces the defining ID holding the return value.
type Call struct {
	Name    string
	Args    []ID
	PopSize int
}

// LabelMark places a branch target at this point in the stream. Never
// has a defining ID.
type LabelMark struct{ L Label }

// Goto is an unconditional jump to L.
type Goto struct{ L Label }

// IfZeroGoto jumps to L when Cond's value is zero — spec-pinned
// semantics (see design notes): the canonical cond-false skip used by
// if/while/for/ternary lowering.
type IfZeroGoto struct {
	Cond ID
	L    Label
}

// Return returns Value from the enclosing function.
type Return struct{ Value ID }

// GlobalLoad reads a top-level (non-local) declaration by symbol name
// into the defining ID. Globals are addressed by name rather than ID,
// the same way the backend will ultimately address them in the
// assembled program (a symbol, not a stack slot).
type GlobalLoad struct{ Name string }

// GlobalStore writes Src into the named global symbol. Never has a
// defining ID.
type GlobalStore struct {
	Name string
	Src  ID
}

func (Alloc) instrNode()      {}
func (Copy) instrNode()       {}
func (Bin) instrNode()        {}
func (Unary) instrNode()      {}
func (Call) instrNode()       {}
func (LabelMark) instrNode()  {}
func (Goto) instrNode()       {}
func (IfZeroGoto) instrNode() {}
func (Return) instrNode()     {}
func (GlobalLoad) instrNode() {}
func (GlobalStore) instrNode() {}

// Global is a top-level declaration lowered once for the whole program,
// materialized by the backend as a data symbol.
type Global struct {
	Name string
	Init int64 // zero when no initializer was given
}

// Line is one TAC instruction plus the ID it defines, if any.
type Line struct {
	Def   *ID
	Instr Instr
}

// FuncDef is one function's complete lowered body.
type FuncDef struct {
	Name      string
	Params    []ID
	FrameSize int // bytes; = allocated slots * word size
	Lines     []Line
	Symbols   map[string]ID // for debugging/pretty-printing only
}

// WordSize is the size in bytes of one storage slot in this
// integer-only model (a 32-bit doubleword).
const WordSize = 4
