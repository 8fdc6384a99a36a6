package vm

import (
	"testing"

	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/value"
)

func prog(ins ...bytecode.Instruction) *bytecode.Program {
	return &bytecode.Program{Instructions: ins}
}

func push(v value.Value) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpPush, Operand: bytecode.Operand{Value: v}}
}

func op(o bytecode.Opcode) bytecode.Instruction {
	return bytecode.Instruction{Op: o}
}

func mustRun(t *testing.T, p *bytecode.Program) (value.Value, bool) {
	t.Helper()
	result, hasValue, err := New(p).RunToEnd()
	if err != nil {
		t.Fatalf("RunToEnd: unexpected error: %v", err)
	}
	return result, hasValue
}

func TestArithmeticIntegerResult(t *testing.T) {
	p := prog(push(value.NewInt(3)), push(value.NewInt(4)), op(bytecode.OpAdd))
	result, hasValue := mustRun(t, p)
	if !hasValue || result.Kind != value.Int || result.IntVal != 7 {
		t.Errorf("got %v, hasValue=%v, want int 7", result, hasValue)
	}
}

func TestMixedTypeArithmeticPromotesToDouble(t *testing.T) {
	p := prog(push(value.NewInt(3)), push(value.NewDouble(0.5)), op(bytecode.OpAdd))
	result, _ := mustRun(t, p)
	if result.Kind != value.Dbl || result.DblVal != 3.5 {
		t.Errorf("got %v, want double 3.5", result)
	}
}

func TestModuloRequiresIntegerOperands(t *testing.T) {
	p := prog(push(value.NewDouble(3)), push(value.NewInt(2)), op(bytecode.OpMod))
	_, _, err := New(p).RunToEnd()
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "modulo requires integer operands" {
		t.Errorf("got %q", err.Error())
	}
}

func TestDivisionByZero(t *testing.T) {
	p := prog(push(value.NewInt(1)), push(value.NewInt(0)), op(bytecode.OpDiv))
	_, _, err := New(p).RunToEnd()
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestModuloByZero(t *testing.T) {
	p := prog(push(value.NewInt(1)), push(value.NewInt(0)), op(bytecode.OpMod))
	_, _, err := New(p).RunToEnd()
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestIntegerDivisionTruncatesTowardZero(t *testing.T) {
	p := prog(push(value.NewInt(-7)), push(value.NewInt(2)), op(bytecode.OpDiv))
	result, _ := mustRun(t, p)
	if result.Kind != value.Int || result.IntVal != -3 {
		t.Errorf("got %v, want int -3 (truncated toward zero, not -4)", result)
	}
}

func TestModuloSignMatchesDividend(t *testing.T) {
	p := prog(push(value.NewInt(-7)), push(value.NewInt(2)), op(bytecode.OpMod))
	result, _ := mustRun(t, p)
	if result.Kind != value.Int || result.IntVal != -1 {
		t.Errorf("got %v, want int -1 (sign of the dividend)", result)
	}
}

func TestUninitializedReadIsRuntimeError(t *testing.T) {
	p := prog(push(value.Uninit()), push(value.NewInt(1)), op(bytecode.OpAdd))
	_, _, err := New(p).RunToEnd()
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Errorf("got %T, want *RuntimeError", err)
	}
}

func TestEqualityAcrossKindsIsFalse(t *testing.T) {
	p := prog(push(value.NewInt(1)), push(value.NewDouble(1)), op(bytecode.OpEq))
	result, _ := mustRun(t, p)
	if result.Kind != value.Bool || result.BoolVal {
		t.Errorf("got %v, want false", result)
	}
}

func TestBooleanStrictnessRejectsNonBoolCondition(t *testing.T) {
	p := prog(push(value.NewInt(1)), op(bytecode.OpNot))
	_, _, err := New(p).RunToEnd()
	if err == nil {
		t.Fatal("expected an error: ! requires a genuine boolean")
	}
}

func TestArrayAllocLoadStore(t *testing.T) {
	// slot 0 holds the array pointer directly: alloc_arr leaves it on the
	// stack in place, the same way codegen's declarator lowering does for
	// an array-typed local, with no separate store/pop needed.
	p := prog(
		push(value.NewInt(3)),
		bytecode.Instruction{Op: bytecode.OpAllocArr, Operand: bytecode.Operand{ArrayKind: value.Int}},
		bytecode.Instruction{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(1)),
		push(value.NewInt(42)),
		op(bytecode.OpStoreIdx),
		op(bytecode.OpPop),
		bytecode.Instruction{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(1)),
		op(bytecode.OpLoadIdx),
	)
	result, hasValue := mustRun(t, p)
	if !hasValue || result.Kind != value.Int || result.IntVal != 42 {
		t.Errorf("got %v, hasValue=%v, want int 42", result, hasValue)
	}
}

func TestArrayOutOfBoundsIsRuntimeError(t *testing.T) {
	p := prog(
		push(value.NewInt(2)),
		bytecode.Instruction{Op: bytecode.OpAllocArr, Operand: bytecode.Operand{ArrayKind: value.Int}},
		bytecode.Instruction{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(2)),
		op(bytecode.OpLoadIdx),
	)
	_, _, err := New(p).RunToEnd()
	if err == nil {
		t.Fatal("expected an out-of-bounds error")
	}
}

func TestPostfixSubscriptUpdateLeavesOldValue(t *testing.T) {
	// Mirrors the codegen lowering for `a[0]++` as an expression: the
	// load_idx/store_idx sequence must leave the pre-update value on top
	// while still writing the incremented value through to the array.
	alloc := []bytecode.Instruction{
		push(value.NewInt(2)),
		{Op: bytecode.OpAllocArr, Operand: bytecode.Operand{ArrayKind: value.Int}},
		{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(0)),
		push(value.NewInt(5)),
		op(bytecode.OpStoreIdx),
		op(bytecode.OpPop),
	}
	postfix := []bytecode.Instruction{
		{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(0)),
		op(bytecode.OpLoadIdx),
		{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(0)),
		{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(0)),
		op(bytecode.OpLoadIdx),
		push(value.NewInt(1)),
		op(bytecode.OpAdd),
		op(bytecode.OpStoreIdx),
		op(bytecode.OpPop),
	}

	ins := append(append([]bytecode.Instruction{}, alloc...), postfix...)
	result, hasValue := mustRun(t, prog(ins...))
	if !hasValue || result.Kind != value.Int || result.IntVal != 5 {
		t.Errorf("got %v, hasValue=%v, want int 5 (the pre-update value)", result, hasValue)
	}

	ins = append(ins,
		bytecode.Instruction{Op: bytecode.OpLoad, Operand: bytecode.Operand{Slot: 0}},
		push(value.NewInt(0)),
		op(bytecode.OpLoadIdx),
	)
	result, hasValue = mustRun(t, prog(ins...))
	if !hasValue || result.Kind != value.Int || result.IntVal != 6 {
		t.Errorf("got %v, hasValue=%v, want int 6 (the store took effect)", result, hasValue)
	}
}

func TestJumpSkipsInstructions(t *testing.T) {
	p := prog(
		bytecode.Instruction{Op: bytecode.OpJump, Operand: bytecode.Operand{Addr: 2}},
		push(value.NewInt(999)), // skipped
		push(value.NewInt(1)),
	)
	result, _ := mustRun(t, p)
	if result.IntVal != 1 {
		t.Errorf("got %v, want 1 (the jump target's value)", result)
	}
}

func TestJumpIfFalsePeekLeavesShortCircuitValue(t *testing.T) {
	// false && (would-error): the right side must never execute.
	p := prog(
		push(value.NewBool(false)),
		bytecode.Instruction{Op: bytecode.OpJumpIfFalsePeek, Operand: bytecode.Operand{Addr: 4}},
		op(bytecode.OpPop),
		push(value.NewBool(true)), // would only run if not short-circuited
	)
	result, hasValue := mustRun(t, p)
	if !hasValue || result.Kind != value.Bool || result.BoolVal {
		t.Errorf("got %v, hasValue=%v, want false (left operand retained)", result, hasValue)
	}
}

func TestCompletionRuleNoValueWhenStackEmpty(t *testing.T) {
	p := prog(push(value.NewInt(1)), op(bytecode.OpPop))
	_, hasValue := mustRun(t, p)
	if hasValue {
		t.Error("expected no value when the stack is empty at completion")
	}
}

func TestStepExecutesExactlyOneInstruction(t *testing.T) {
	p := prog(push(value.NewInt(1)), push(value.NewInt(2)))
	m := New(p)
	step, err := m.Step()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Done {
		t.Fatal("should not be done after one of two instructions")
	}
	if len(step.Stack) != 1 {
		t.Errorf("got stack depth %d, want 1", len(step.Stack))
	}
}

func TestStepIsStickyAfterDone(t *testing.T) {
	p := prog(push(value.NewInt(7)))
	m := New(p)
	if _, err := m.Step(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := m.Step()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Done || !first.HasValue || first.Result.IntVal != 7 {
		t.Fatalf("got %+v", first)
	}
	second, err := m.Step()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Done || second.Result.IntVal != 7 {
		t.Errorf("calling Step again after Done should keep returning the same result, got %+v", second)
	}
}

func TestMaxStepsBudgetExceeded(t *testing.T) {
	// an infinite loop: jump 0 forever.
	p := prog(bytecode.Instruction{Op: bytecode.OpJump, Operand: bytecode.Operand{Addr: 0}})
	m := New(p)
	m.MaxSteps = 5
	_, _, err := m.RunToEnd()
	if err == nil {
		t.Fatal("expected a step budget error")
	}
	if err.Error() != "step budget exceeded" {
		t.Errorf("got %q", err.Error())
	}
}

func TestMaxStepsZeroIsUnbounded(t *testing.T) {
	p := prog(push(value.NewInt(1)))
	m := New(p)
	if m.MaxSteps != 0 {
		t.Fatal("MaxSteps should default to zero")
	}
	if _, _, err := m.RunToEnd(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
