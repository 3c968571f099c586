// Package lower walks an ast.Program and emits tac.FuncDef values,
// managing lexical scopes, symbol-to-ID resolution, temporaries,
// labels, and loop contexts along the way.
package lower

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skx/c64c/ast"
	"github.com/skx/c64c/tac"
	"github.com/skx/c64c/token"
)

// Result is the output of lowering a whole Program.
type Result struct {
	Globals []tac.Global
	Funcs   []tac.FuncDef
}

// loopFrame is one entry of the loop-context stack: the innermost
// frame is the target of break (End) and continue (Cont).
type loopFrame struct {
	Cont tac.Label
	End  tac.Label
}

// funcState is per-function lowering state. Nothing here is ever
// shared across functions or threaded through a process-global.
type funcState struct {
	scopes  []map[string]tac.ID
	loops   []loopFrame
	lines   []tac.Line
	symbols map[string]tac.ID

	varCounter  int
	tempCounter int
	labelCtr    int
	allocated   int

	globals map[string]bool
	errs    *multierror.Error
}

func newFuncState(globals map[string]bool) *funcState {
	return &funcState{
		scopes:  []map[string]tac.ID{{}},
		symbols: map[string]tac.ID{},
		globals: globals,
	}
}

func (f *funcState) pushScope() { f.scopes = append(f.scopes, map[string]tac.ID{}) }
func (f *funcState) popScope()  { f.scopes = f.scopes[:len(f.scopes)-1] }

func (f *funcState) newTemp() tac.ID {
	id := tac.ID{N: f.tempCounter, Kind: tac.TempID}
	f.tempCounter++
	f.allocated++
	return id
}

func (f *funcState) newVar() tac.ID {
	id := tac.ID{N: f.varCounter, Kind: tac.VarID}
	f.varCounter++
	f.allocated++
	return id
}

func (f *funcState) newLabel() tac.Label {
	l := tac.Label(f.labelCtr)
	f.labelCtr++
	return l
}

func (f *funcState) emit(instr tac.Instr, def *tac.ID) {
	f.lines = append(f.lines, tac.Line{Instr: instr, Def: def})
}

// declare introduces name in the innermost scope, returning its fresh
// ID. It fails if name is already declared in that same scope —
// shadowing an outer scope is fine, redeclaring within one is not.
func (f *funcState) declare(name string) (tac.ID, error) {
	top := f.scopes[len(f.scopes)-1]
	if _, dup := top[name]; dup {
		return tac.ID{}, &DuplicateDeclaration{Name: name}
	}
	id := f.newVar()
	top[name] = id
	f.symbols[name] = id
	return id, nil
}

// resolve looks up name from the innermost scope outward.
func (f *funcState) resolve(name string) (tac.ID, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if id, ok := f.scopes[i][name]; ok {
			return id, true
		}
	}
	return tac.ID{}, false
}

func (f *funcState) pushLoop(cont, end tac.Label) { f.loops = append(f.loops, loopFrame{Cont: cont, End: end}) }
func (f *funcState) popLoop()                      { f.loops = f.loops[:len(f.loops)-1] }
func (f *funcState) currentLoop() (loopFrame, bool) {
	if len(f.loops) == 0 {
		return loopFrame{}, false
	}
	return f.loops[len(f.loops)-1], true
}

var binOps = map[token.Kind]tac.BinOp{
	token.PLUS: tac.Add, token.MINUS: tac.Sub, token.STAR: tac.Mul,
	token.SLASH: tac.Div, token.PERCENT: tac.Mod,
	token.SHL: tac.Shl, token.SHR: tac.Shr,
	token.AMP: tac.BitAnd, token.PIPE: tac.BitOr, token.CARET: tac.BitXor,
	token.EQ: tac.CmpEq, token.NEQ: tac.CmpNeq,
	token.LT: tac.CmpLt, token.LE: tac.CmpLe, token.GT: tac.CmpGt, token.GE: tac.CmpGe,
}

var unOps = map[token.Kind]tac.UnOp{
	token.MINUS: tac.Neg, token.TILDE: tac.BitComplement, token.BANG: tac.LogicNeg,
}

// --- Expressions ---------------------------------------------------------

func (f *funcState) lowerExpr(e ast.Expr) (tac.ID, error) {
	switch x := e.(type) {

	case *ast.IntLit:
		t := f.newTemp()
		f.emit(tac.Alloc{Value: x.Value}, &t)
		return t, nil

	case *ast.Var:
		return f.lowerRead(x.Name)

	case *ast.Assign:
		rhs, err := f.lowerExpr(x.Value)
		if err != nil {
			return tac.ID{}, err
		}
		return f.lowerWrite(x.Name, rhs)

	case *ast.CompoundAssign:
		expanded := &ast.Assign{
			Name: x.Name,
			Value: &ast.Binary{
				Op:  x.Op,
				X:   &ast.Var{Name: x.Name, Pos: x.Pos},
				Y:   x.Value,
				Pos: x.Pos,
			},
			Pos: x.Pos,
		}
		return f.lowerExpr(expanded)

	case *ast.IncDec:
		return f.lowerIncDec(x)

	case *ast.Unary:
		xi, err := f.lowerExpr(x.X)
		if err != nil {
			return tac.ID{}, err
		}
		t := f.newTemp()
		f.emit(tac.Unary{Op: unOps[x.Op], A: xi}, &t)
		return t, nil

	case *ast.Binary:
		if x.Op == token.AND_AND || x.Op == token.OR_OR {
			return f.lowerShortCircuit(x)
		}
		a, err := f.lowerExpr(x.X)
		if err != nil {
			return tac.ID{}, err
		}
		b, err := f.lowerExpr(x.Y)
		if err != nil {
			return tac.ID{}, err
		}
		t := f.newTemp()
		f.emit(tac.Bin{Op: binOps[x.Op], A: a, B: b}, &t)
		return t, nil

	case *ast.Ternary:
		return f.lowerTernary(x)

	case *ast.Call:
		var args []tac.ID
		for _, a := range x.Args {
			id, err := f.lowerExpr(a)
			if err != nil {
				return tac.ID{}, err
			}
			args = append(args, id)
		}
		t := f.newTemp()
		f.emit(tac.Call{Name: x.Callee, Args: args, PopSize: len(args) * tac.WordSize}, &t)
		return t, nil
	}
	panic("lower: unhandled expression node")
}

// lowerRead resolves a variable reference for reading.
func (f *funcState) lowerRead(name string) (tac.ID, error) {
	if id, ok := f.resolve(name); ok {
		return id, nil
	}
	if f.globals[name] {
		t := f.newTemp()
		f.emit(tac.GlobalLoad{Name: name}, &t)
		return t, nil
	}
	return tac.ID{}, &UnresolvedIdentifier{Name: name}
}

// lowerWrite resolves name for writing rhs into it, returning the ID
// holding the assigned value (so `a = b = c` can chain).
func (f *funcState) lowerWrite(name string, rhs tac.ID) (tac.ID, error) {
	if id, ok := f.resolve(name); ok {
		dst := id
		f.emit(tac.Copy{Src: rhs}, &dst)
		return dst, nil
	}
	if f.globals[name] {
		f.emit(tac.GlobalStore{Name: name, Src: rhs}, nil)
		return rhs, nil
	}
	return tac.ID{}, &UnresolvedIdentifier{Name: name}
}

// lowerIncDec implements prefix/postfix ++/-- by reading the old value,
// computing new = old +/- 1, writing it back, and returning old (postfix)
// or new (prefix).
func (f *funcState) lowerIncDec(x *ast.IncDec) (tac.ID, error) {
	old, err := f.lowerRead(x.Name)
	if err != nil {
		return tac.ID{}, err
	}
	one := f.newTemp()
	f.emit(tac.Alloc{Value: 1}, &one)

	op := tac.Add
	if x.Op == token.DEC {
		op = tac.Sub
	}
	updated := f.newTemp()
	f.emit(tac.Bin{Op: op, A: old, B: one}, &updated)

	if _, err := f.lowerWrite(x.Name, updated); err != nil {
		return tac.ID{}, err
	}
	if x.Side == ast.Postfix {
		return old, nil
	}
	return updated, nil
}

// lowerShortCircuit implements && / || without a dedicated TAC
// operator: it allocates a result temporary and emits explicit
// branches so the right operand is only evaluated when the left
// doesn't already determine the result. This resolves the ambiguity
// spec.md's design notes leave open in favor of control flow at
// lowering time rather than a special backend-only node.
func (f *funcState) lowerShortCircuit(x *ast.Binary) (tac.ID, error) {
	result := f.newTemp()
	lEnd := f.newLabel()

	a, err := f.lowerExpr(x.X)
	if err != nil {
		return tac.ID{}, err
	}

	if x.Op == token.AND_AND {
		// a == 0 already decides the result (false) without
		// evaluating b.
		lFalse := f.newLabel()
		f.emit(tac.IfZeroGoto{Cond: a, L: lFalse}, nil)

		b, err := f.lowerExpr(x.Y)
		if err != nil {
			return tac.ID{}, err
		}
		f.emit(tac.IfZeroGoto{Cond: b, L: lFalse}, nil)

		trueVal := result
		f.emit(tac.Alloc{Value: 1}, &trueVal)
		f.emit(tac.Goto{L: lEnd}, nil)

		f.emit(tac.LabelMark{L: lFalse}, nil)
		falseVal := result
		f.emit(tac.Alloc{Value: 0}, &falseVal)
		f.emit(tac.LabelMark{L: lEnd}, nil)
		return result, nil
	}

	// OR_OR: a != 0 already decides the result (true) without
	// evaluating b.
	lCheckB := f.newLabel()
	lFalse := f.newLabel()
	f.emit(tac.IfZeroGoto{Cond: a, L: lCheckB}, nil)

	trueVal1 := result
	f.emit(tac.Alloc{Value: 1}, &trueVal1)
	f.emit(tac.Goto{L: lEnd}, nil)

	f.emit(tac.LabelMark{L: lCheckB}, nil)
	b, err := f.lowerExpr(x.Y)
	if err != nil {
		return tac.ID{}, err
	}
	f.emit(tac.IfZeroGoto{Cond: b, L: lFalse}, nil)

	trueVal2 := result
	f.emit(tac.Alloc{Value: 1}, &trueVal2)
	f.emit(tac.Goto{L: lEnd}, nil)

	f.emit(tac.LabelMark{L: lFalse}, nil)
	falseVal := result
	f.emit(tac.Alloc{Value: 0}, &falseVal)
	f.emit(tac.LabelMark{L: lEnd}, nil)
	return result, nil
}

func (f *funcState) lowerTernary(x *ast.Ternary) (tac.ID, error) {
	result := f.newTemp()
	lElse := f.newLabel()
	lEnd := f.newLabel()

	cond, err := f.lowerExpr(x.Cond)
	if err != nil {
		return tac.ID{}, err
	}
	f.emit(tac.IfZeroGoto{Cond: cond, L: lElse}, nil)

	thenID, err := f.lowerExpr(x.Then)
	if err != nil {
		return tac.ID{}, err
	}
	r1 := result
	f.emit(tac.Copy{Src: thenID}, &r1)
	f.emit(tac.Goto{L: lEnd}, nil)

	f.emit(tac.LabelMark{L: lElse}, nil)
	elseID, err := f.lowerExpr(x.Else)
	if err != nil {
		return tac.ID{}, err
	}
	r2 := result
	f.emit(tac.Copy{Src: elseID}, &r2)
	f.emit(tac.LabelMark{L: lEnd}, nil)
	return result, nil
}

// --- Statements ------------------------------------------------------

func (f *funcState) lowerStmt(s ast.Stmt) error {
	switch x := s.(type) {

	case *ast.Return:
		id, err := f.lowerExpr(x.Value)
		if err != nil {
			return err
		}
		f.emit(tac.Return{Value: id}, nil)
		return nil

	case *ast.ExprStmt:
		if x.Value == nil {
			return nil
		}
		_, err := f.lowerExpr(x.Value)
		return err

	case *ast.Block:
		f.pushScope()
		defer f.popScope()
		return f.lowerBlockItems(x.Items)

	case *ast.If:
		return f.lowerIf(x)

	case *ast.While:
		return f.lowerWhile(x)

	case *ast.DoWhile:
		return f.lowerDoWhile(x)

	case *ast.For:
		return f.lowerFor(x)

	case *ast.Break:
		lp, ok := f.currentLoop()
		if !ok {
			return &BreakOutsideLoop{}
		}
		f.emit(tac.Goto{L: lp.End}, nil)
		return nil

	case *ast.Continue:
		lp, ok := f.currentLoop()
		if !ok {
			return &ContinueOutsideLoop{}
		}
		f.emit(tac.Goto{L: lp.Cont}, nil)
		return nil
	}
	panic("lower: unhandled statement node")
}

func (f *funcState) lowerIf(x *ast.If) error {
	cond, err := f.lowerExpr(x.Cond)
	if err != nil {
		return err
	}
	if x.Else == nil {
		lEnd := f.newLabel()
		f.emit(tac.IfZeroGoto{Cond: cond, L: lEnd}, nil)
		if err := f.lowerStmt(x.Then); err != nil {
			return err
		}
		f.emit(tac.LabelMark{L: lEnd}, nil)
		return nil
	}
	lElse := f.newLabel()
	lEnd := f.newLabel()
	f.emit(tac.IfZeroGoto{Cond: cond, L: lElse}, nil)
	if err := f.lowerStmt(x.Then); err != nil {
		return err
	}
	f.emit(tac.Goto{L: lEnd}, nil)
	f.emit(tac.LabelMark{L: lElse}, nil)
	if err := f.lowerStmt(x.Else); err != nil {
		return err
	}
	f.emit(tac.LabelMark{L: lEnd}, nil)
	return nil
}

func (f *funcState) lowerWhile(x *ast.While) error {
	lBegin := f.newLabel()
	lEnd := f.newLabel()
	f.emit(tac.LabelMark{L: lBegin}, nil)
	cond, err := f.lowerExpr(x.Cond)
	if err != nil {
		return err
	}
	f.emit(tac.IfZeroGoto{Cond: cond, L: lEnd}, nil)

	f.pushLoop(lBegin, lEnd)
	err = f.lowerStmt(x.Body)
	f.popLoop()
	if err != nil {
		return err
	}
	f.emit(tac.Goto{L: lBegin}, nil)
	f.emit(tac.LabelMark{L: lEnd}, nil)
	return nil
}

func (f *funcState) lowerDoWhile(x *ast.DoWhile) error {
	lBegin := f.newLabel()
	lCond := f.newLabel()
	lEnd := f.newLabel()
	f.emit(tac.LabelMark{L: lBegin}, nil)

	f.pushLoop(lCond, lEnd)
	err := f.lowerStmt(x.Body)
	f.popLoop()
	if err != nil {
		return err
	}

	f.emit(tac.LabelMark{L: lCond}, nil)
	cond, err := f.lowerExpr(x.Cond)
	if err != nil {
		return err
	}
	f.emit(tac.IfZeroGoto{Cond: cond, L: lEnd}, nil)
	f.emit(tac.Goto{L: lBegin}, nil)
	f.emit(tac.LabelMark{L: lEnd}, nil)
	return nil
}

func (f *funcState) lowerFor(x *ast.For) error {
	f.pushScope()
	defer f.popScope()

	if x.Init != nil {
		if x.Init.Decl != nil {
			if err := f.lowerDecl(x.Init.Decl); err != nil {
				return err
			}
		} else if x.Init.Expr != nil {
			if _, err := f.lowerExpr(x.Init.Expr); err != nil {
				return err
			}
		}
	}

	lBegin := f.newLabel()
	lEnd := f.newLabel()
	lStep := lBegin
	if x.Step != nil {
		lStep = f.newLabel()
	}

	f.emit(tac.LabelMark{L: lBegin}, nil)
	if x.Cond != nil {
		cond, err := f.lowerExpr(x.Cond)
		if err != nil {
			return err
		}
		f.emit(tac.IfZeroGoto{Cond: cond, L: lEnd}, nil)
	}

	f.pushLoop(lStep, lEnd)
	f.pushScope()
	err := f.lowerStmt(x.Body)
	f.popScope()
	f.popLoop()
	if err != nil {
		return err
	}

	if x.Step != nil {
		f.emit(tac.LabelMark{L: lStep}, nil)
		if _, err := f.lowerExpr(x.Step); err != nil {
			return err
		}
	}
	f.emit(tac.Goto{L: lBegin}, nil)
	f.emit(tac.LabelMark{L: lEnd}, nil)
	return nil
}

func (f *funcState) lowerDecl(d *ast.Decl) error {
	id, err := f.declare(d.Name)
	if err != nil {
		return err
	}
	if d.Init == nil {
		return nil
	}
	val, err := f.lowerExpr(d.Init)
	if err != nil {
		return err
	}
	f.emit(tac.Copy{Src: val}, &id)
	return nil
}

func (f *funcState) lowerBlockItems(items []ast.BlockItem) error {
	for _, bi := range items {
		var err error
		if bi.Decl != nil {
			err = f.lowerDecl(bi.Decl)
		} else {
			err = f.lowerStmt(bi.Stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// --- Entry points --------------------------------------------------------

// LowerFunction lowers a single function definition. It returns
// MissingFunctionBody if fn is a forward declaration.
func LowerFunction(fn *ast.FunctionDecl, globals map[string]bool) (*tac.FuncDef, error) {
	if fn.Body == nil {
		return nil, &MissingFunctionBody{Name: fn.Name}
	}
	if globals == nil {
		globals = map[string]bool{}
	}

	f := newFuncState(globals)
	var params []tac.ID
	for _, p := range fn.Params {
		id, err := f.declare(p.Name)
		if err != nil {
			return nil, err
		}
		params = append(params, id)
	}

	if err := f.lowerBlockItems(fn.Body); err != nil {
		return nil, err
	}

	return &tac.FuncDef{
		Name:      fn.Name,
		Params:    params,
		FrameSize: f.allocated * tac.WordSize,
		Lines:     f.lines,
		Symbols:   f.symbols,
	}, nil
}

// foldConstant evaluates the small constant-expression subset allowed
// for a global initializer: integer literals and unary minus over one.
func foldConstant(e ast.Expr) (int64, bool) {
	switch x := e.(type) {
	case *ast.IntLit:
		return x.Value, true
	case *ast.Unary:
		if x.Op == token.MINUS {
			if v, ok := foldConstant(x.X); ok {
				return -v, true
			}
		}
	}
	return 0, false
}

// Lower lowers a whole Program: global declarations first (collected
// for resolution by every function, regardless of source order, since
// assembly symbols have program-wide visibility), then every function
// definition with a body. Lowering of one function does not stop
// lowering of the rest; every error encountered is accumulated and
// returned together.
func Lower(prog *ast.Program) (*Result, error) {
	globals := map[string]bool{}
	for _, item := range prog.Items {
		if item.Decl != nil {
			globals[item.Decl.Name] = true
		}
	}

	res := &Result{}
	var errs *multierror.Error

	for _, item := range prog.Items {
		switch {
		case item.Decl != nil:
			init := int64(0)
			if item.Decl.Init != nil {
				v, ok := foldConstant(item.Decl.Init)
				if !ok {
					errs = multierror.Append(errs, errors.Errorf("global %q: initializer must be a constant expression", item.Decl.Name))
					continue
				}
				init = v
			}
			res.Globals = append(res.Globals, tac.Global{Name: item.Decl.Name, Init: init})

		case item.Func != nil && item.Func.Body != nil:
			logrus.WithField("func", item.Func.Name).Debug("lowering function")
			fn, err := LowerFunction(item.Func, globals)
			if err != nil {
				logrus.WithField("func", item.Func.Name).WithError(err).Error("lowering failed")
				errs = multierror.Append(errs, errors.Wrapf(err, "lowering function %q", item.Func.Name))
				continue
			}
			res.Funcs = append(res.Funcs, *fn)

		default:
			// Forward declaration: nothing to lower.
		}
	}

	return res, errs.ErrorOrNil()
}
