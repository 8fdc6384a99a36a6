// Package bytecode defines minic's instruction set architecture: the
// stable contract between the code generator and the virtual machine.
// Opcodes are grouped into ranges by category, so a reader can tell an
// instruction's rough purpose from its numeric value alone.
package bytecode

import "fmt"

// Opcode identifies a single VM instruction.
type Opcode byte

const (
	// Stack manipulation (0x00-0x0F)
	OpNop  Opcode = 0x00
	OpPop  Opcode = 0x01
	OpPopN Opcode = 0x02 // operand: count
	OpDup  Opcode = 0x03
	OpSwap Opcode = 0x04

	// Constants & locals (0x10-0x1F)
	OpPush  Opcode = 0x10 // operand: value.Value literal
	OpLoad  Opcode = 0x11 // operand: slot index
	OpStore Opcode = 0x12 // operand: slot index; does not pop

	// Arithmetic (0x20-0x2F)
	OpAdd    Opcode = 0x20
	OpSub    Opcode = 0x21
	OpMul    Opcode = 0x22
	OpDiv    Opcode = 0x23
	OpMod    Opcode = 0x24
	OpNegate Opcode = 0x25

	// Logical (0x30-0x3F)
	OpNot Opcode = 0x30

	// Comparison (0x40-0x4F)
	OpEq  Opcode = 0x40
	OpNeq Opcode = 0x41
	OpLt  Opcode = 0x42
	OpGt  Opcode = 0x43
	OpLte Opcode = 0x44
	OpGte Opcode = 0x45

	// Control flow (0x50-0x5F)
	OpJump             Opcode = 0x50 // operand: instruction address
	OpJumpIfFalse      Opcode = 0x51 // operand: address; pops
	OpJumpIfFalsePeek  Opcode = 0x52 // operand: address; peeks
	OpJumpIfTruePeek   Opcode = 0x53 // operand: address; peeks

	// Arrays / heap (0x60-0x6F)
	OpAllocArr Opcode = 0x60 // operand: element kind tag; pops size, pushes pointer
	OpLoadIdx  Opcode = 0x61
	OpStoreIdx Opcode = 0x62 // pushes the stored value back as the result

	// Observation & misc (0x70-0x7F)
	OpPrint   Opcode = 0x70
	OpReserve Opcode = 0x71 // operand: count; sp += count (hand-assembled tests only)
)

// names maps each opcode to its disassembly mnemonic.
var names = map[Opcode]string{
	OpNop:             "nop",
	OpPop:             "pop",
	OpPopN:            "pop_n",
	OpDup:             "dup",
	OpSwap:            "swap",
	OpPush:            "push",
	OpLoad:            "load",
	OpStore:           "store",
	OpAdd:             "add",
	OpSub:             "sub",
	OpMul:             "mul",
	OpDiv:             "div",
	OpMod:             "percent",
	OpNegate:          "negate",
	OpNot:             "not",
	OpEq:              "eq",
	OpNeq:             "neq",
	OpLt:              "lt",
	OpGt:              "gt",
	OpLte:             "lte",
	OpGte:             "gte",
	OpJump:            "jump",
	OpJumpIfFalse:     "jump_if_false",
	OpJumpIfFalsePeek: "jump_if_false_peek",
	OpJumpIfTruePeek:  "jump_if_true_peek",
	OpAllocArr:        "alloc_arr",
	OpLoadIdx:         "load_idx",
	OpStoreIdx:        "store_idx",
	OpPrint:           "print",
	OpReserve:         "reserve",
}

// String returns the opcode's disassembly mnemonic, or "unknown(0xNN)" for
// a byte that doesn't name a defined opcode — this should never happen to
// a Program produced by codegen, and signals an implementation bug if it does.
func (op Opcode) String() string {
	if name, ok := names[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(op))
}

// IsJump reports whether op carries an instruction-address operand that
// the code generator's backpatching logic must resolve.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpIfFalse, OpJumpIfFalsePeek, OpJumpIfTruePeek:
		return true
	default:
		return false
	}
}
