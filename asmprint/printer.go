// Package asmprint renders an abstract assembly tree built by the
// backend to AT&T-syntax text: one instruction per line, tab-indented
// except for labels and directives; constants prefixed with '$',
// registers with '%', memory references as offset(%base); operand
// order source, destination.
package asmprint

import (
	"fmt"
	"strings"
)

// Operand is implemented by every addressing-mode kind the backend
// emits.
type Operand interface{ operand() string }

// Reg is an already size-resolved register name, e.g. "eax" or "al".
type Reg struct{ Name string }

func (r Reg) operand() string { return "%" + r.Name }

// Imm is an integer literal operand.
type Imm struct{ Value int64 }

func (i Imm) operand() string { return fmt.Sprintf("$%d", i.Value) }

// Mem is a base+displacement memory operand: Offset(%Base).
type Mem struct {
	Offset int
	Base   string
}

func (m Mem) operand() string { return fmt.Sprintf("%d(%%%s)", m.Offset, m.Base) }

// RIPMem is a RIP-relative symbol reference: Name(%rip).
type RIPMem struct{ Name string }

func (m RIPMem) operand() string { return m.Name + "(%rip)" }

// Sym is a bare symbol used as a call/jump target.
type Sym struct{ Name string }

func (s Sym) operand() string { return s.Name }

// Line is one emitted line: exactly one of Label, Directive, or Instr
// is set, or only Comment. Comment is printed alone or trailing an
// Instr; on a Label or Directive line it is not printed.
type Line struct {
	Label     string // "NAME:" or ".Ln:", printed with no indent
	Directive string // e.g. ".globl main", printed with no indent
	Instr     *Instr
	Comment   string // printed as "# text", alone or trailing an Instr
}

// Instr is one machine instruction: a mnemonic and its operands in
// AT&T order (source before destination).
type Instr struct {
	Mnemonic string
	Operands []Operand
}

// Print renders lines as AT&T-syntax assembly text.
func Print(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		switch {
		case l.Label != "":
			b.WriteString(l.Label)
			b.WriteString(":\n")
		case l.Directive != "":
			b.WriteString(l.Directive)
			b.WriteString("\n")
		case l.Instr != nil:
			b.WriteString("\t")
			b.WriteString(l.Instr.Mnemonic)
			if len(l.Instr.Operands) > 0 {
				b.WriteString(" ")
				parts := make([]string, len(l.Instr.Operands))
				for i, op := range l.Instr.Operands {
					parts[i] = op.operand()
				}
				b.WriteString(strings.Join(parts, ", "))
			}
			if l.Comment != "" {
				b.WriteString("\t# ")
				b.WriteString(l.Comment)
			}
			b.WriteString("\n")
		case l.Comment != "":
			b.WriteString("\t# ")
			b.WriteString(l.Comment)
			b.WriteString("\n")
		default:
			b.WriteString("\n")
		}
	}
	return b.String()
}

// I builds an instruction Line with no comment.
func I(mnemonic string, operands ...Operand) Line {
	return Line{Instr: &Instr{Mnemonic: mnemonic, Operands: operands}}
}

// LabelLine builds a bare label Line.
func LabelLine(name string) Line { return Line{Label: name} }

// DirectiveLine builds a bare directive Line.
func DirectiveLine(text string) Line { return Line{Directive: text} }

// CommentLine builds a standalone comment Line.
func CommentLine(text string) Line { return Line{Comment: text} }
