package codegen

import (
	"testing"

	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/parser"
)

func mustGenerate(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	code, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate(%q): %v", src, err)
	}
	return code
}

func countOp(code *bytecode.Program, op bytecode.Opcode) int {
	n := 0
	for _, ins := range code.Instructions {
		if ins.Op == op {
			n++
		}
	}
	return n
}

func TestNonFinalExprStatementEmitsPop(t *testing.T) {
	// only the program's last statement keeps its expression value; any
	// earlier expression statement is discarded with a pop.
	code := mustGenerate(t, "int a = 5; 1 + 1; a;")
	var sawPop bool
	for _, ins := range code.Instructions {
		if ins.Op == bytecode.OpPop {
			sawPop = true
		}
	}
	if !sawPop {
		t.Error("expected a pop discarding the non-final expression statement's value")
	}
	if last := code.Instructions[len(code.Instructions)-1]; last.Op != bytecode.OpLoad {
		t.Errorf("expected the final statement's load to be the last instruction, got %s", last.Op)
	}
}

func TestFinalExpressionStatementRetainsValue(t *testing.T) {
	code := mustGenerate(t, "int a = 1; a;")
	last := code.Instructions[len(code.Instructions)-1]
	if last.Op == bytecode.OpPop {
		t.Errorf("final expression statement should not be popped, got trailing %s", last.Op)
	}
}

func TestVarDeclWithoutInitPushesUninit(t *testing.T) {
	code := mustGenerate(t, "int a;")
	if countOp(code, bytecode.OpPush) != 1 {
		t.Fatalf("expected exactly one push, got %d", countOp(code, bytecode.OpPush))
	}
	if code.Instructions[0].Operand.Value.Kind.String() != "uninitialized" {
		t.Errorf("expected uninitialized push, got %v", code.Instructions[0].Operand.Value)
	}
}

func TestIfElseJumpsAreResolved(t *testing.T) {
	code := mustGenerate(t, "bool a = true; int b = 1, c = 2; if (a) { b; } else { c; }")
	for i, ins := range code.Instructions {
		if ins.Op.IsJump() {
			if ins.Operand.Addr < 0 || ins.Operand.Addr > code.Len() {
				t.Errorf("instruction %d: jump target %d out of range", i, ins.Operand.Addr)
			}
		}
	}
}

func TestWhileLoopJumpsBackward(t *testing.T) {
	code := mustGenerate(t, "bool a = true; int b = 1; while (a) { b; }")
	var sawBackwardJump bool
	for i, ins := range code.Instructions {
		if ins.Op == bytecode.OpJump && ins.Operand.Addr < i {
			sawBackwardJump = true
		}
	}
	if !sawBackwardJump {
		t.Error("expected a backward jump closing the loop")
	}
}

func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	if _, err := parseAndGenerate(t, "break;"); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestContinueOutsideLoopIsCompileError(t *testing.T) {
	if _, err := parseAndGenerate(t, "continue;"); err == nil {
		t.Fatal("expected a compile error")
	}
}

func parseAndGenerate(t *testing.T, src string) (*bytecode.Program, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return Generate(prog)
}

func TestRedefinitionAtSameScopeFails(t *testing.T) {
	if _, err := parseAndGenerate(t, "int a = 1; int a = 2;"); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestUnresolvedIdentifierFails(t *testing.T) {
	if _, err := parseAndGenerate(t, "a;"); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestShadowingAcrossScopes(t *testing.T) {
	// an inner block may redeclare a name used in an outer scope; this
	// must not be a redefinition error, since it is a different depth.
	if _, err := parseAndGenerate(t, "int a = 1; { int a = 2; a; } a;"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBlockEmitsPopNForLocals(t *testing.T) {
	code := mustGenerate(t, "{ int a = 1; int b = 2; }")
	found := false
	for _, ins := range code.Instructions {
		if ins.Op == bytecode.OpPopN && ins.Operand.Count == 2 {
			found = true
		}
	}
	if !found {
		t.Error("expected a pop_n 2 closing the block")
	}
}

func TestInitializerListTooLongIsCompileError(t *testing.T) {
	if _, err := parseAndGenerate(t, "int a[2] = {1, 2, 3};"); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestLogicalShortCircuitUsesPeekJump(t *testing.T) {
	code := mustGenerate(t, "bool a = true, b = false; a && b;")
	if countOp(code, bytecode.OpJumpIfFalsePeek) != 1 {
		t.Errorf("expected one jump_if_false_peek, got %d", countOp(code, bytecode.OpJumpIfFalsePeek))
	}
	code = mustGenerate(t, "bool a = true, b = false; a || b;")
	if countOp(code, bytecode.OpJumpIfTruePeek) != 1 {
		t.Errorf("expected one jump_if_true_peek, got %d", countOp(code, bytecode.OpJumpIfTruePeek))
	}
}

func TestPostfixSubscriptUpdateStoresThroughCorrectAddress(t *testing.T) {
	// a[0]++ reads the old value once up front, then re-stages the
	// address pair for load_idx/store_idx exactly as genAssignSubscript
	// does; store_idx's operand order must never see the old value in
	// place of the pointer or index.
	code := mustGenerate(t, "int a[2] = {5, 0}; a[0]++;")
	if n := countOp(code, bytecode.OpLoadIdx); n != 2 {
		t.Fatalf("expected two load_idx (preserve + recompute), got %d", n)
	}
	// two store_idx from the {5, 0} initializer list, one more from the update.
	if n := countOp(code, bytecode.OpStoreIdx); n != 3 {
		t.Fatalf("expected three store_idx (2 init + 1 update), got %d", n)
	}
	if last := code.Instructions[len(code.Instructions)-1]; last.Op != bytecode.OpPop {
		t.Errorf("expected a trailing pop discarding the stored value, got %s", last.Op)
	}
}

func TestPostfixUpdateLeavesOldValue(t *testing.T) {
	code := mustGenerate(t, "int a = 5; a++;")
	// load, dup, push 1, add, store, pop — the final pop discards the new
	// value, leaving (in the VM) the pre-update value that dup preserved.
	var ops []bytecode.Opcode
	for _, ins := range code.Instructions {
		ops = append(ops, ins.Op)
	}
	tail := ops[len(ops)-6:]
	want := []bytecode.Opcode{bytecode.OpLoad, bytecode.OpDup, bytecode.OpPush, bytecode.OpAdd, bytecode.OpStore, bytecode.OpPop}
	for i, op := range want {
		if tail[i] != op {
			t.Errorf("op %d: got %s, want %s", i, tail[i], op)
		}
	}
}
