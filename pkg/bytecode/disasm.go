package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders p as a human-readable listing, one instruction per
// line: address, mnemonic, and an operand rendering appropriate to the
// opcode. Jump instructions render their resolved target address rather
// than the raw operand, since the raw operand and the target are the same
// value by construction but "jump 7" reads better than "jump addr=7".
//
// This is pure debugging tooling; it backs the CLI's -disasm and -trace
// flags and is handy from a debugger or a future visualizer.
func Disassemble(p *Program) string {
	var b strings.Builder
	for ip, ins := range p.Instructions {
		fmt.Fprintf(&b, "%04d  %s\n", ip, formatInstruction(ins))
	}
	return b.String()
}

// formatInstruction renders a single instruction the way Disassemble does,
// without an address prefix. Exposed for trace output in cmd/minic.
func formatInstruction(ins Instruction) string {
	switch ins.Op {
	case OpPush:
		return fmt.Sprintf("%-18s %s", ins.Op, ins.Operand.Value)
	case OpLoad, OpStore:
		return fmt.Sprintf("%-18s %d", ins.Op, ins.Operand.Slot)
	case OpPopN, OpReserve:
		return fmt.Sprintf("%-18s %d", ins.Op, ins.Operand.Count)
	case OpJump, OpJumpIfFalse, OpJumpIfFalsePeek, OpJumpIfTruePeek:
		return fmt.Sprintf("%-18s %d", ins.Op, ins.Operand.Addr)
	case OpAllocArr:
		return fmt.Sprintf("%-18s %s", ins.Op, ins.Operand.ArrayKind)
	default:
		return ins.Op.String()
	}
}

// FormatInstruction is the exported form of formatInstruction, used by
// cmd/minic's -trace mode to render the instruction about to execute.
func FormatInstruction(ins Instruction) string { return formatInstruction(ins) }
