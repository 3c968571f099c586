package backend

import (
	"strings"
	"testing"

	"github.com/skx/c64c/asmprint"
	"github.com/skx/c64c/tac"
)

func v(n int) tac.ID  { return tac.ID{N: n, Kind: tac.VarID} }
func tmp(n int) tac.ID { return tac.ID{N: n, Kind: tac.TempID} }

func render(t *testing.T, fn tac.FuncDef) string {
	t.Helper()
	lines, err := Emit(fn)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	return asmprint.Print(lines)
}

func TestEmitPrologueAndEpilogue(t *testing.T) {
	a := v(0)
	fn := tac.FuncDef{
		Name:      "main",
		FrameSize: 4,
		Lines: []tac.Line{
			{Def: &a, Instr: tac.Alloc{Value: 0}},
			{Instr: tac.Return{Value: a}},
		},
	}
	out := render(t, fn)
	for _, want := range []string{
		".globl main",
		"main:",
		"push %rbp",
		"mov %rsp, %rbp",
		"sub $4, %rsp",
		"mov %rbp, %rsp",
		"pop %rbp",
		"ret",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestEmitReturnJumpsToSharedEpilogue(t *testing.T) {
	a := v(0)
	fn := tac.FuncDef{
		Name: "f",
		Lines: []tac.Line{
			{Def: &a, Instr: tac.Alloc{Value: 7}},
			{Instr: tac.Return{Value: a}},
		},
	}
	out := render(t, fn)
	if !strings.Contains(out, "jmp .Lepilogue_f") {
		t.Errorf("return should jump to the shared epilogue label:\n%s", out)
	}
	if strings.Count(out, ".Lepilogue_f:") != 1 {
		t.Errorf("expected exactly one epilogue label:\n%s", out)
	}
}

func TestEmitDivAndModUseCdqIdiv(t *testing.T) {
	a, b, d := v(0), v(1), tmp(0)
	fn := tac.FuncDef{
		Name: "f",
		Lines: []tac.Line{
			{Def: &d, Instr: tac.Bin{Op: tac.Mod, A: a, B: b}},
			{Instr: tac.Return{Value: d}},
		},
	}
	out := render(t, fn)
	if !strings.Contains(out, "cdq") || !strings.Contains(out, "idivl ") {
		t.Errorf("expected cdq/idivl sequence for %%:\n%s", out)
	}
}

func TestEmitComparisonZeroesBeforeSetcc(t *testing.T) {
	a, b, d := v(0), v(1), tmp(0)
	fn := tac.FuncDef{
		Name: "f",
		Lines: []tac.Line{
			{Def: &d, Instr: tac.Bin{Op: tac.CmpLt, A: a, B: b}},
			{Instr: tac.Return{Value: d}},
		},
	}
	out := render(t, fn)
	cmpIdx := strings.Index(out, "cmp ")
	movZeroIdx := strings.Index(out, "mov $0, %eax")
	setIdx := strings.Index(out, "setl %al")
	if cmpIdx < 0 || movZeroIdx < 0 || setIdx < 0 {
		t.Fatalf("missing expected instructions:\n%s", out)
	}
	if !(cmpIdx < movZeroIdx && movZeroIdx < setIdx) {
		t.Errorf("expected order cmp, zero eax, setl; got:\n%s", out)
	}
}

func TestEmitIfZeroGotoComparesMemoryDirectly(t *testing.T) {
	cond := v(0)
	fn := tac.FuncDef{
		Name: "f",
		Lines: []tac.Line{
			{Instr: tac.IfZeroGoto{Cond: cond, L: tac.Label(1)}},
			{Instr: tac.LabelMark{L: tac.Label(1)}},
			{Instr: tac.Return{Value: cond}},
		},
	}
	out := render(t, fn)
	// Neither operand is a register here, so the mnemonic must carry
	// an explicit size suffix or `as` rejects it as ambiguous.
	if !strings.Contains(out, "cmpl $0, -4(%rbp)") {
		t.Errorf("expected a sized direct memory compare:\n%s", out)
	}
	if !strings.Contains(out, "je .Lf_1") {
		t.Errorf("expected je to the function-qualified label:\n%s", out)
	}
}

func TestEmitLabelsAreQualifiedPerFunction(t *testing.T) {
	// Two functions each with a conditional must not emit the same
	// bare ".L0"/".L1" labels into the same assembly file.
	cond := v(0)
	mk := func(name string) tac.FuncDef {
		return tac.FuncDef{
			Name: name,
			Lines: []tac.Line{
				{Instr: tac.IfZeroGoto{Cond: cond, L: tac.Label(0)}},
				{Instr: tac.LabelMark{L: tac.Label(0)}},
				{Instr: tac.Return{Value: cond}},
			},
		}
	}
	outA := render(t, mk("alpha"))
	outB := render(t, mk("beta"))
	if !strings.Contains(outA, ".Lalpha_0:") {
		t.Errorf("expected function-qualified label in alpha:\n%s", outA)
	}
	if !strings.Contains(outB, ".Lbeta_0:") {
		t.Errorf("expected function-qualified label in beta:\n%s", outB)
	}
	if strings.Contains(outA, ".L0:") || strings.Contains(outB, ".L0:") {
		t.Errorf("labels must not be bare/unqualified across functions")
	}
}

func TestEmitCallPassesFirstSixArgsInRegisters(t *testing.T) {
	args := []tac.ID{v(0), v(1), v(2), v(3), v(4), v(5), v(6)}
	result := tmp(0)
	fn := tac.FuncDef{
		Name: "f",
		Lines: []tac.Line{
			{Def: &result, Instr: tac.Call{Name: "callee", Args: args}},
			{Instr: tac.Return{Value: result}},
		},
	}
	out := render(t, fn)
	for _, reg := range []string{"%edi", "%esi", "%edx", "%ecx", "%r8d", "%r9d"} {
		if !strings.Contains(out, reg) {
			t.Errorf("expected argument register %s in:\n%s", reg, out)
		}
	}
	if !strings.Contains(out, "push %rax") {
		t.Errorf("expected the 7th argument to be pushed:\n%s", out)
	}
	if !strings.Contains(out, "call callee") {
		t.Errorf("expected a call instruction:\n%s", out)
	}
	if !strings.Contains(out, "add $8, %rsp") {
		t.Errorf("expected caller-side stack cleanup of 8 bytes:\n%s", out)
	}
}

func TestEmitGlobalsUseRIPRelativeAddressing(t *testing.T) {
	d := tmp(0)
	fn := tac.FuncDef{
		Name: "f",
		Lines: []tac.Line{
			{Def: &d, Instr: tac.GlobalLoad{Name: "counter"}},
			{Instr: tac.GlobalStore{Name: "counter", Src: d}},
			{Instr: tac.Return{Value: d}},
		},
	}
	out := render(t, fn)
	if !strings.Contains(out, "counter(%rip)") {
		t.Errorf("expected RIP-relative global access:\n%s", out)
	}
}

func TestEmitParamsBoundFromArgumentRegisters(t *testing.T) {
	p0, p1 := v(0), v(1)
	fn := tac.FuncDef{
		Name:   "add2",
		Params: []tac.ID{p0, p1},
		Lines: []tac.Line{
			{Instr: tac.Return{Value: p0}},
		},
	}
	out := render(t, fn)
	if !strings.Contains(out, "mov %edi, -4(%rbp)") {
		t.Errorf("expected first param bound from %%edi:\n%s", out)
	}
	if !strings.Contains(out, "mov %esi, -8(%rbp)") {
		t.Errorf("expected second param bound from %%esi:\n%s", out)
	}
}

