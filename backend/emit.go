package backend

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skx/c64c/asmprint"
	"github.com/skx/c64c/tac"
)

// emitter holds the per-function backend state: the Id -> Place memory
// map and the abstract instruction list built up so far. Like the
// lowerer, nothing here is process-global.
type emitter struct {
	fn     tac.FuncDef
	places map[tac.ID]Place
	offset int // next free stack offset (positive magnitude)
	lines  []asmprint.Line
}

// Emit lowers one TAC function into a complete abstract assembly
// instruction list: the `.globl`/label pair, prologue, body, and
// epilogue.
func Emit(fn tac.FuncDef) ([]asmprint.Line, error) {
	e := &emitter{fn: fn, places: map[tac.ID]Place{}}
	logrus.WithField("func", fn.Name).Debug("emitting backend instructions")

	e.lines = append(e.lines, asmprint.DirectiveLine(".globl "+symbolName(fn.Name)))
	e.lines = append(e.lines, asmprint.LabelLine(symbolName(fn.Name)))
	e.lines = append(e.lines, asmprint.I("push", reg("rbp")))
	e.lines = append(e.lines, asmprint.I("mov", reg("rsp"), reg("rbp")))
	if fn.FrameSize > 0 {
		e.lines = append(e.lines, asmprint.I("sub", asmprint.Imm{Value: int64(fn.FrameSize)}, reg("rsp")))
	}

	e.bindParams(fn.Params)

	epilogue := localLabel(fn.Name, -1)
	debug := logrus.IsLevelEnabled(logrus.DebugLevel)
	for i, line := range fn.Lines {
		if debug {
			e.lines = append(e.lines, asmprint.CommentLine(fmt.Sprintf("%v", line.Instr)))
		}
		if err := e.emitLine(line, epilogue); err != nil {
			return nil, errors.Wrapf(err, "function %q, instruction %d", fn.Name, i)
		}
	}

	// Fallthrough path: no explicit return occurred.
	e.lines = append(e.lines, asmprint.I("mov", asmprint.Imm{Value: 0}, reg(regAX.name(Doubleword))))
	e.lines = append(e.lines, asmprint.LabelLine(epilogue))
	e.lines = append(e.lines, asmprint.I("mov", reg("rbp"), reg("rsp")))
	e.lines = append(e.lines, asmprint.I("pop", reg("rbp")))
	e.lines = append(e.lines, asmprint.I("ret"))

	return e.lines, nil
}

// symbolName applies the platform leading-underscore convention for
// every function except main (spec.md 4.5); this backend targets a
// System V ELF toolchain, so it's the identity function, kept as a
// named seam for a Mach-O target.
func symbolName(name string) string { return name }

func localLabel(fn string, n int) string {
	if n < 0 {
		return fmt.Sprintf(".Lepilogue_%s", fn)
	}
	return fmt.Sprintf(".L%s_%d", fn, n)
}

func reg(name string) asmprint.Reg { return asmprint.Reg{Name: name} }

// place returns id's place, allocating a fresh stack slot on first
// reference (a store, a read, or, for parameters, at bind time). A read
// of an ID that was never stored is not reported as an error.
func (e *emitter) place(id tac.ID) Place {
	if p, ok := e.places[id]; ok {
		return p
	}
	p := Place{StackOffset: e.offset + tac.WordSize, Size: Doubleword}
	e.offset += tac.WordSize
	e.places[id] = p
	return p
}

func (e *emitter) mem(id tac.ID) asmprint.Mem {
	p := e.place(id)
	return asmprint.Mem{Offset: -p.StackOffset, Base: "rbp"}
}

// bindParams stores the incoming System V argument registers (and any
// stack-passed overflow) into each parameter's stack slot at function
// entry.
func (e *emitter) bindParams(params []tac.ID) {
	for i, p := range params {
		dst := e.mem(p)
		if i < len(argRegs) {
			e.lines = append(e.lines, asmprint.I("mov", reg(argRegs[i].name(Doubleword)), dst))
			continue
		}
		stackOff := 16 + (i-len(argRegs))*8
		e.lines = append(e.lines, asmprint.I("mov", asmprint.Mem{Offset: stackOff, Base: "rbp"}, reg(regAX.name(Doubleword))))
		e.lines = append(e.lines, asmprint.I("mov", reg(regAX.name(Doubleword)), dst))
	}
}

func (e *emitter) loadTo(id tac.ID, r register) {
	e.lines = append(e.lines, asmprint.I("mov", e.mem(id), reg(r.name(Doubleword))))
}

func (e *emitter) storeFrom(r register, dst tac.ID) {
	e.lines = append(e.lines, asmprint.I("mov", reg(r.name(Doubleword)), e.mem(dst)))
}

func (e *emitter) emitLine(l tac.Line, epilogue string) error {
	switch instr := l.Instr.(type) {

	case tac.Alloc:
		e.lines = append(e.lines, asmprint.I("mov", asmprint.Imm{Value: instr.Value}, reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, *l.Def)

	case tac.Copy:
		e.loadTo(instr.Src, regAX)
		e.storeFrom(regAX, *l.Def)

	case tac.Bin:
		return e.emitBin(instr, *l.Def)

	case tac.Unary:
		return e.emitUnary(instr, *l.Def)

	case tac.Call:
		e.emitCall(instr, l.Def)

	case tac.LabelMark:
		e.lines = append(e.lines, asmprint.LabelLine(e.label(instr.L)))

	case tac.Goto:
		e.lines = append(e.lines, asmprint.I("jmp", asmprint.Sym{Name: e.label(instr.L)}))

	case tac.IfZeroGoto:
		// No register operand disambiguates the operand size here, so
		// the mnemonic must carry an explicit suffix (cmpl) or `as`
		// rejects it as ambiguous.
		e.lines = append(e.lines, asmprint.I("cmpl", asmprint.Imm{Value: 0}, e.mem(instr.Cond)))
		e.lines = append(e.lines, asmprint.I("je", asmprint.Sym{Name: e.label(instr.L)}))

	case tac.Return:
		e.loadTo(instr.Value, regAX)
		e.lines = append(e.lines, asmprint.I("jmp", asmprint.Sym{Name: epilogue}))

	case tac.GlobalLoad:
		e.lines = append(e.lines, asmprint.I("mov", asmprint.RIPMem{Name: instr.Name}, reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, *l.Def)

	case tac.GlobalStore:
		e.loadTo(instr.Src, regAX)
		e.lines = append(e.lines, asmprint.I("mov", reg(regAX.name(Doubleword)), asmprint.RIPMem{Name: instr.Name}))

	default:
		return errors.Errorf("backend: unhandled TAC instruction %T", instr)
	}
	return nil
}

// label renders a control-flow label qualified by the enclosing
// function name, so two functions each containing a conditional don't
// both emit ".L0" into the same assembly file.
func (e *emitter) label(l tac.Label) string { return localLabel(e.fn.Name, int(l)) }

func (e *emitter) emitBin(instr tac.Bin, dst tac.ID) error {
	switch instr.Op {
	case tac.Add:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("add", e.mem(instr.B), reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.Sub:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("sub", e.mem(instr.B), reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.Mul:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("imul", e.mem(instr.B), reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.Div, tac.Mod:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("cdq"))
		// idiv's sole operand is memory-only here, so the mnemonic
		// needs an explicit size suffix (idivl) for the same reason
		// cmpl does above.
		e.lines = append(e.lines, asmprint.I("idivl", e.mem(instr.B)))
		if instr.Op == tac.Div {
			e.storeFrom(regAX, dst)
		} else {
			e.storeFrom(regDX, dst)
		}

	case tac.Shl, tac.Shr:
		e.loadTo(instr.A, regAX)
		e.loadTo(instr.B, regCX)
		mnem := "sal"
		if instr.Op == tac.Shr {
			mnem = "sar"
		}
		e.lines = append(e.lines, asmprint.I(mnem, reg(regCX.name(Byte)), reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.BitAnd, tac.BitOr, tac.BitXor:
		mnem := map[tac.BinOp]string{tac.BitAnd: "and", tac.BitOr: "or", tac.BitXor: "xor"}[instr.Op]
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I(mnem, e.mem(instr.B), reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.CmpEq, tac.CmpNeq, tac.CmpLt, tac.CmpLe, tac.CmpGt, tac.CmpGe:
		setcc := map[tac.BinOp]string{
			tac.CmpEq: "sete", tac.CmpNeq: "setne",
			tac.CmpLt: "setl", tac.CmpLe: "setle",
			tac.CmpGt: "setg", tac.CmpGe: "setge",
		}[instr.Op]
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("cmp", e.mem(instr.B), reg(regAX.name(Doubleword))))
		e.lines = append(e.lines, asmprint.I("mov", asmprint.Imm{Value: 0}, reg(regAX.name(Doubleword))))
		e.lines = append(e.lines, asmprint.I(setcc, reg(regAX.name(Byte))))
		e.storeFrom(regAX, dst)

	default:
		return errors.Errorf("backend: unhandled binary operator %v", instr.Op)
	}
	return nil
}

func (e *emitter) emitUnary(instr tac.Unary, dst tac.ID) error {
	switch instr.Op {
	case tac.Neg:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("neg", reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.BitComplement:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("not", reg(regAX.name(Doubleword))))
		e.storeFrom(regAX, dst)

	case tac.LogicNeg:
		e.loadTo(instr.A, regAX)
		e.lines = append(e.lines, asmprint.I("cmp", asmprint.Imm{Value: 0}, reg(regAX.name(Doubleword))))
		e.lines = append(e.lines, asmprint.I("mov", asmprint.Imm{Value: 0}, reg(regAX.name(Doubleword))))
		e.lines = append(e.lines, asmprint.I("sete", reg(regAX.name(Byte))))
		e.storeFrom(regAX, dst)

	default:
		return errors.Errorf("backend: unhandled unary operator %v", instr.Op)
	}
	return nil
}

// emitCall implements the System V AMD64 integer calling convention:
// the first six arguments in registers, the rest pushed right-to-left,
// cleaned up by the caller after the call returns.
func (e *emitter) emitCall(instr tac.Call, def *tac.ID) {
	n := len(instr.Args)
	stackArgs := 0
	if n > len(argRegs) {
		stackArgs = n - len(argRegs)
	}

	for i := n - 1; i >= len(argRegs); i-- {
		e.lines = append(e.lines, asmprint.I("mov", e.mem(instr.Args[i]), reg(regAX.name(Doubleword))))
		e.lines = append(e.lines, asmprint.I("push", reg(regAX.name(Quadword))))
	}
	for i := 0; i < n && i < len(argRegs); i++ {
		e.lines = append(e.lines, asmprint.I("mov", e.mem(instr.Args[i]), reg(argRegs[i].name(Doubleword))))
	}

	e.lines = append(e.lines, asmprint.I("call", asmprint.Sym{Name: symbolName(instr.Name)}))
	if stackArgs > 0 {
		e.lines = append(e.lines, asmprint.I("add", asmprint.Imm{Value: int64(stackArgs * 8)}, reg("rsp")))
	}
	if def != nil {
		e.storeFrom(regAX, *def)
	}
}
