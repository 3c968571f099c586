package compiler

import (
	"strings"
	"testing"
)

// We try to compile several bogus programs, and confirm each is
// rejected.
func TestBogusInput(t *testing.T) {

	tests := []string{

		// stray token at top level, not a declaration
		"+",

		// unresolved identifier
		"int main(){ return x; }",

		// duplicate declaration
		"int main(){ int x; int x; return x; }",

		// break outside a loop
		"int main(){ break; return 0; }",

		// unbalanced braces
		"int main(){ return 0; ",
	}

	for _, test := range tests {
		c := New(test)
		_, err := c.Compile()
		if err == nil {
			t.Errorf("expected an error compiling %q, got none", test)
		}
	}
}

// Test that some valid programs produce assembly containing the
// expected landmarks.
func TestValidPrograms(t *testing.T) {

	tests := []struct {
		src  string
		want []string
	}{
		{
			src:  "int main(){ return 2 + 3 * 4; }",
			want: []string{".globl main", "main:", "ret"},
		},
		{
			src:  "int add(int a, int b){ return a + b; } int main(){ return add(1, 2); }",
			want: []string{".globl add", ".globl main", "call add"},
		},
		{
			src:  "int counter = 5; int main(){ counter = counter + 1; return counter; }",
			want: []string{".data", "counter:", "(%rip)"},
		},
	}

	for _, test := range tests {
		c := New(test.src)
		out, err := c.Compile()
		if err != nil {
			t.Fatalf("unexpected error compiling %q: %s", test.src, err)
		}
		for _, want := range test.want {
			if !strings.Contains(out, want) {
				t.Errorf("compiling %q: expected output to contain %q, got:\n%s", test.src, want, out)
			}
		}
	}
}

func TestSetDebugDoesNotBreakCompilation(t *testing.T) {
	c := New("int main(){ return 0; }")
	c.SetDebug(true)
	if _, err := c.Compile(); err != nil {
		t.Fatalf("unexpected error with debug enabled: %s", err)
	}
}
