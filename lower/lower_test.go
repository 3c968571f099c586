package lower

import (
	"testing"

	"github.com/skx/c64c/ast"
	"github.com/skx/c64c/lexer"
	"github.com/skx/c64c/parser"
	"github.com/skx/c64c/tac"
)

func lowerSrc(t *testing.T, src string) *Result {
	t.Helper()
	toks := lexer.New(src).All()
	prog, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	res, err := Lower(prog)
	if err != nil {
		t.Fatalf("lower error: %v", err)
	}
	return res
}

func labelsReferencedAndDefined(t *testing.T, fn tac.FuncDef) {
	t.Helper()
	defined := map[tac.Label]int{}
	referenced := map[tac.Label]bool{}
	for _, l := range fn.Lines {
		switch i := l.Instr.(type) {
		case tac.LabelMark:
			defined[i.L]++
		case tac.Goto:
			referenced[i.L] = true
		case tac.IfZeroGoto:
			referenced[i.L] = true
		}
	}
	for l, n := range defined {
		if n > 1 {
			t.Errorf("label %v defined %d times, want unique", l, n)
		}
	}
	for l := range referenced {
		if defined[l] == 0 {
			t.Errorf("label %v referenced but never defined", l)
		}
	}
}

func TestFrameSizing(t *testing.T) {
	res := lowerSrc(t, "int main(){ int a = 1; int b = 2; return a + b; }")
	fn := res.Funcs[0]
	// 2 vars + however many temporaries the expression lowering needs.
	wantSlots := 0
	for _, l := range fn.Lines {
		if l.Def != nil {
			wantSlots++
		}
	}
	if fn.FrameSize != wantSlots*tac.WordSize {
		t.Errorf("FrameSize = %d, want %d (slots=%d)", fn.FrameSize, wantSlots*tac.WordSize, wantSlots)
	}
}

func TestLabelUniquenessAcrossConstructs(t *testing.T) {
	res := lowerSrc(t, `int main(){
		int i = 0;
		while (i < 10) {
			if (i == 5) break;
			i = i + 1;
		}
		for (int j = 0; j < 5; j = j + 1) {
			if (j == 2) continue;
		}
		return i ? 1 : 0;
	}`)
	labelsReferencedAndDefined(t, res.Funcs[0])
}

func TestScopeIsolationShadowing(t *testing.T) {
	_, err := parser.Parse(lexer.New(`int main(){
		int x = 1;
		{ int x = 2; }
		return x;
	}`).All())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	res := lowerSrc(t, `int main(){
		int x = 1;
		{ int x = 2; }
		return x;
	}`)
	if len(res.Funcs) != 1 {
		t.Fatalf("expected one function")
	}
	// After the inner block ends, `x` must resolve to the outer x (the
	// first variable declared, v0), not the shadowing inner one.
	lines := res.Funcs[0].Lines
	ret, ok := lines[len(lines)-1].Instr.(tac.Return)
	if !ok {
		t.Fatalf("expected the last line to be a return, got %#v", lines[len(lines)-1].Instr)
	}
	if ret.Value != (tac.ID{N: 0, Kind: tac.VarID}) {
		t.Errorf("return x resolved to %v, want the outer x (v0)", ret.Value)
	}
}

func TestUnresolvedIdentifier(t *testing.T) {
	toks := lexer.New("int main(){ return x; }").All()
	prog, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = Lower(prog)
	if err == nil {
		t.Fatal("expected unresolved identifier error")
	}
}

func TestDuplicateDeclaration(t *testing.T) {
	toks := lexer.New("int main(){ int x; int x; return x; }").All()
	prog, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = Lower(prog)
	if err == nil {
		t.Fatal("expected duplicate declaration error")
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	toks := lexer.New("int main(){ break; return 0; }").All()
	prog, _ := parser.Parse(toks)
	_, err := Lower(prog)
	if err == nil {
		t.Fatal("expected break-outside-loop error")
	}
}

func TestContinueOutsideLoop(t *testing.T) {
	toks := lexer.New("int main(){ continue; return 0; }").All()
	prog, _ := parser.Parse(toks)
	_, err := Lower(prog)
	if err == nil {
		t.Fatal("expected continue-outside-loop error")
	}
}

func TestForLoopContinueTargetsStepNotBegin(t *testing.T) {
	// With an explicit step, the continue target must be a label
	// distinct from the loop's begin label (spec.md design note #3):
	// the first Goto in the body is the one emitted for `continue`, and
	// the first label placed is the loop's begin label.
	res := lowerSrc(t, `int main(){
		int s = 0;
		for (int i = 0; i < 3; i = i + 1) {
			if (i == 1) continue;
			s = s + i;
		}
		return s;
	}`)
	fn := res.Funcs[0]
	defined := map[tac.Label]bool{}
	for _, l := range fn.Lines {
		if lm, ok := l.Instr.(tac.LabelMark); ok {
			defined[lm.L] = true
		}
	}
	if len(defined) < 3 {
		t.Errorf("expected >=3 distinct labels for a for-loop with a step, got %d", len(defined))
	}

	var begin, cont tac.Label
	haveBegin, haveCont := false, false
	for _, l := range fn.Lines {
		switch i := l.Instr.(type) {
		case tac.LabelMark:
			if !haveBegin {
				begin, haveBegin = i.L, true
			}
		case tac.Goto:
			if !haveCont {
				cont, haveCont = i.L, true
			}
		}
	}
	if !haveBegin || !haveCont {
		t.Fatalf("expected a begin label and a continue jump")
	}
	if cont == begin {
		t.Errorf("continue jumps to the begin label %v, want the step label", begin)
	}
}

func TestMissingFunctionBodyOnPrototype(t *testing.T) {
	fn := &ast.FunctionDecl{Name: "proto", Body: nil}
	_, err := LowerFunction(fn, nil)
	if err == nil {
		t.Fatal("expected MissingFunctionBody error")
	}
	if _, ok := err.(*MissingFunctionBody); !ok {
		t.Fatalf("expected *MissingFunctionBody, got %T", err)
	}
}

func TestGlobalDeclaration(t *testing.T) {
	res := lowerSrc(t, `int counter = 5;
	int main(){ counter = counter + 1; return counter; }`)
	if len(res.Globals) != 1 || res.Globals[0].Name != "counter" || res.Globals[0].Init != 5 {
		t.Fatalf("unexpected globals: %+v", res.Globals)
	}
}
