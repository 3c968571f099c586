package parser

import (
	"testing"

	"github.com/skx/c64c/ast"
	"github.com/skx/c64c/lexer"
	"github.com/skx/c64c/token"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	toks := lexer.New(src).All()
	prog, err := Parse(toks)
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", src, err)
	}
	return prog
}

// firstReturnExpr digs out the expression of the first `return` in main.
func firstReturnExpr(t *testing.T, prog *ast.Program) ast.Expr {
	t.Helper()
	fn := prog.Items[0].Func
	for _, bi := range fn.Body {
		if bi.Stmt != nil {
			if ret, ok := bi.Stmt.(*ast.Return); ok {
				return ret.Value
			}
		}
	}
	t.Fatal("no return statement found")
	return nil
}

func TestPrecedenceAdditiveVsMultiplicative(t *testing.T) {
	prog := mustParse(t, "int main(){ return 2 + 3 * 4; }")
	e := firstReturnExpr(t, prog)

	bin, ok := e.(*ast.Binary)
	if !ok || bin.Op != token.PLUS {
		t.Fatalf("expected top-level '+', got %#v", e)
	}
	rhs, ok := bin.Y.(*ast.Binary)
	if !ok || rhs.Op != token.STAR {
		t.Fatalf("expected '*' on the right of '+', got %#v", bin.Y)
	}
}

func TestLeftAssociativity(t *testing.T) {
	prog := mustParse(t, "int main(){ return 1 - 2 - 3; }")
	e := firstReturnExpr(t, prog)

	outer, ok := e.(*ast.Binary)
	if !ok || outer.Op != token.MINUS {
		t.Fatalf("expected outer '-', got %#v", e)
	}
	inner, ok := outer.X.(*ast.Binary)
	if !ok || inner.Op != token.MINUS {
		t.Fatalf("expected '(1 - 2) - 3' shape, got %#v", outer.X)
	}
	if _, ok := outer.Y.(*ast.IntLit); !ok {
		t.Fatalf("expected literal 3 on the right, got %#v", outer.Y)
	}
}

func TestAssignmentRightAssociative(t *testing.T) {
	prog := mustParse(t, "int main(){ int a; int b; int c; a = b = c; return a; }")
	fn := prog.Items[0].Func
	var assign *ast.Assign
	for _, bi := range fn.Body {
		if bi.Stmt != nil {
			if es, ok := bi.Stmt.(*ast.ExprStmt); ok {
				if a, ok := es.Value.(*ast.Assign); ok {
					assign = a
				}
			}
		}
	}
	if assign == nil {
		t.Fatal("no assignment found")
	}
	if assign.Name != "a" {
		t.Fatalf("expected outer assignment to 'a', got %q", assign.Name)
	}
	inner, ok := assign.Value.(*ast.Assign)
	if !ok || inner.Name != "b" {
		t.Fatalf("expected 'a = (b = c)', got %#v", assign.Value)
	}
}

func TestTernaryRightAssociative(t *testing.T) {
	prog := mustParse(t, "int main(){ int a; int b; int c; int d; int e; return a ? b : c ? d : e; }")
	e := firstReturnExpr(t, prog)
	tern, ok := e.(*ast.Ternary)
	if !ok {
		t.Fatalf("expected ternary, got %#v", e)
	}
	if _, ok := tern.Else.(*ast.Ternary); !ok {
		t.Fatalf("expected 'a ? b : (c ? d : e)', got else = %#v", tern.Else)
	}
}

func TestCompoundAssignmentExpandsOperator(t *testing.T) {
	prog := mustParse(t, "int main(){ int a; a += 3; return a; }")
	fn := prog.Items[0].Func
	es := fn.Body[1].Stmt.(*ast.ExprStmt)
	ca, ok := es.Value.(*ast.CompoundAssign)
	if !ok || ca.Op != token.PLUS {
		t.Fatalf("expected CompoundAssign with PLUS, got %#v", es.Value)
	}
}

func TestPostfixVsPrefixIncDec(t *testing.T) {
	prog := mustParse(t, "int main(){ int a; a++; ++a; return a; }")
	fn := prog.Items[0].Func

	post := fn.Body[1].Stmt.(*ast.ExprStmt).Value.(*ast.IncDec)
	if post.Side != ast.Postfix || post.Op != token.INC {
		t.Fatalf("expected postfix ++, got %#v", post)
	}
	pre := fn.Body[2].Stmt.(*ast.ExprStmt).Value.(*ast.IncDec)
	if pre.Side != ast.Prefix || pre.Op != token.INC {
		t.Fatalf("expected prefix ++, got %#v", pre)
	}
}

func TestParseErrorMissingExpression(t *testing.T) {
	toks := lexer.New("int main(){ return }").All()
	_, err := Parse(toks)
	if err == nil {
		t.Fatal("expected parse error for missing return expression")
	}
}

func TestParseErrorMissingSemicolon(t *testing.T) {
	toks := lexer.New("int main(){ return 1 }").All()
	_, err := Parse(toks)
	if err == nil {
		t.Fatal("expected parse error for missing semicolon")
	}
}

func TestForLoopBothInitForms(t *testing.T) {
	p1 := mustParse(t, "int main(){ int s=0; for(int i=0;i<10;i=i+1) s=s+i; return s; }")
	forNode := p1.Items[0].Func.Body[1].Stmt.(*ast.For)
	if forNode.Init == nil || forNode.Init.Decl == nil {
		t.Fatalf("expected declaration-form init, got %#v", forNode.Init)
	}

	p2 := mustParse(t, "int main(){ int i=0; for(i=0;i<10;i=i+1) ; return i; }")
	forNode2 := p2.Items[0].Func.Body[1].Stmt.(*ast.For)
	if forNode2.Init == nil || forNode2.Init.Expr == nil {
		t.Fatalf("expected expression-form init, got %#v", forNode2.Init)
	}
}

func TestFunctionPrototype(t *testing.T) {
	prog := mustParse(t, "int helper(int x); int main(){ return helper(1); }")
	if prog.Items[0].Func.Body != nil {
		t.Fatalf("expected prototype with nil body")
	}
}
