// Package backend walks three-address code and allocates a place — a
// stack slot — for each value, materializing an abstract assembly
// instruction list for one function at a time.
package backend

import "github.com/skx/c64c/tac"

// Size is the width of a value or register view, in bytes.
type Size int

const (
	Byte       Size = 1
	Word       Size = 2
	Doubleword Size = 4
	Quadword   Size = 8
)

// Place is where a value lives at runtime: always a stack slot in this
// backend (no register allocator — see DESIGN.md). StackOffset is
// recorded as a positive magnitude; the emitter renders it as a
// negative displacement from %rbp (locals live below the saved frame
// pointer).
type Place struct {
	StackOffset int
	Size        Size
}

// register is a logical, size-independent register identity; Name
// resolves it to the concrete symbolic form for a given Size.
type register int

const (
	regAX register = iota
	regCX
	regDX
	regBX
	regSI
	regDI
	regR8
	regR9
)

var regNames = map[register]map[Size]string{
	regAX: {Byte: "al", Doubleword: "eax", Quadword: "rax"},
	regCX: {Byte: "cl", Doubleword: "ecx", Quadword: "rcx"},
	regDX: {Byte: "dl", Doubleword: "edx", Quadword: "rdx"},
	regBX: {Byte: "bl", Doubleword: "ebx", Quadword: "rbx"},
	regSI: {Byte: "sil", Doubleword: "esi", Quadword: "rsi"},
	regDI: {Byte: "dil", Doubleword: "edi", Quadword: "rdi"},
	regR8: {Byte: "r8b", Doubleword: "r8d", Quadword: "r8"},
	regR9: {Byte: "r9b", Doubleword: "r9d", Quadword: "r9"},
}

// name resolves r's symbolic form at the given size (its size cast).
func (r register) name(sz Size) string { return regNames[r][sz] }

// argRegs lists the System V AMD64 integer argument registers in
// order, for the first six arguments of a call.
var argRegs = []register{regDI, regSI, regDX, regCX, regR8, regR9}

// UnresolvedID describes an invariant violation upstream: TAC
// referencing an ID with no place and no prior definition. Emit never
// returns it: the emitter allocates a slot for any ID it has not seen,
// whether that first reference is a store or a read.
type UnresolvedID struct{ ID tac.ID }

func (e *UnresolvedID) Error() string { return "backend: unresolved id " + e.ID.String() }
