package bytecode

import "github.com/chazu/minic/pkg/value"

// Instruction is one ISA entry: an opcode plus an optional operand. Which
// field of Operand is meaningful depends on Op; see the Op* constants'
// doc comments in opcodes.go.
type Instruction struct {
	Op      Opcode
	Operand Operand
}

// Operand carries whichever payload an instruction needs. Instructions
// that take no operand leave this zero. Instructions here are an
// in-memory struct slice rather than a byte-packed chunk: there is no
// on-disk format to target, so there is nothing to gain from packing
// and a great deal to lose in readability of codegen and VM code.
type Operand struct {
	Value     value.Value // OpPush
	Slot      int         // OpLoad, OpStore
	Addr      int         // OpJump, OpJumpIfFalse, OpJumpIfFalsePeek, OpJumpIfTruePeek
	Count     int         // OpPopN, OpReserve
	ArrayKind value.Kind  // OpAllocArr: zero-fill element kind
}

// Program is the immutable output of code generation: a flat instruction
// sequence ready for a VM to execute. It may be run repeatedly by
// independent VM instances; no single Program ties to a single run.
type Program struct {
	Instructions []Instruction
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.Instructions) }

// At returns the instruction at ip. Callers must bounds-check via Len;
// this indexes the underlying slice directly.
func (p *Program) At(ip int) Instruction { return p.Instructions[ip] }
