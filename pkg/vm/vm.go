// Package vm executes minic bytecode: a fetch-decode-execute evaluator
// over a unified operand/locals stack and an array heap, exposed as a
// lazy, restartable stepper rather than a single blocking run loop.
package vm

import (
	"io"
	"os"

	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/value"
)

// StepResult describes one executed instruction, for trace output and
// any future visualizer: it carries enough state after each step that a
// caller driving one need never inspect VM internals directly.
type StepResult struct {
	IPBefore    int
	IPAfter     int
	Instruction bytecode.Instruction
	Stack       []value.Value
	Done        bool
	Result      value.Value
	HasValue    bool
}

// VM evaluates one compiled Program. It is single-use: construct a fresh
// VM per run; a finished VM keeps returning its final result but never
// restarts from ip 0.
type VM struct {
	program *bytecode.Program
	ip      int
	stack   *stack
	heap    *heap
	guard   guardian
	out     io.Writer
	done    bool

	// MaxSteps bounds the number of instructions Step will execute before
	// failing with a RuntimeError. Zero means unbounded; a caller embedding
	// the VM in, say, a REPL or a sandboxed evaluator sets this to guard
	// against runaway loops.
	MaxSteps int
	steps    int
}

// New constructs a VM bound to program, with bp fixed at 0 (the core
// defines no function frames, so there is exactly one activation).
func New(program *bytecode.Program) *VM {
	return &VM{
		program: program,
		stack:   newStack(),
		heap:    newHeap(),
		out:     os.Stdout,
	}
}

// SetOutput redirects the print opcode's sink. Default is os.Stdout.
func (v *VM) SetOutput(w io.Writer) {
	v.out = w
}

// RunToEnd steps until the VM halts, returning the final result (if any)
// and whether one was produced.
func (v *VM) RunToEnd() (value.Value, bool, error) {
	var last StepResult
	for {
		res, err := v.Step()
		if err != nil {
			return value.Value{}, false, err
		}
		last = res
		if res.Done {
			return last.Result, last.HasValue, nil
		}
	}
}

// Step executes exactly one instruction and returns a description of
// what happened. Calling Step after Done is reported returns the same
// final result without re-executing anything.
func (v *VM) Step() (StepResult, error) {
	if v.done {
		result, hasValue := v.finalResult()
		return StepResult{IPBefore: v.ip, IPAfter: v.ip, Done: true, Result: result, HasValue: hasValue}, nil
	}

	if v.MaxSteps > 0 {
		v.steps++
		if v.steps > v.MaxSteps {
			return StepResult{}, &RuntimeError{Message: "step budget exceeded"}
		}
	}

	if v.ip >= v.program.Len() {
		v.done = true
		result, hasValue := v.finalResult()
		return StepResult{IPBefore: v.ip, IPAfter: v.ip, Done: true, Result: result, HasValue: hasValue}, nil
	}

	ins := v.program.At(v.ip)
	ipBefore := v.ip
	v.ip++

	if err := v.execute(ins); err != nil {
		return StepResult{}, err
	}

	done := v.ip >= v.program.Len()
	v.done = done
	result, hasValue := value.Value{}, false
	if done {
		result, hasValue = v.finalResult()
	}

	return StepResult{
		IPBefore:    ipBefore,
		IPAfter:     v.ip,
		Instruction: ins,
		Stack:       v.stack.snapshot(),
		Done:        done,
		Result:      result,
		HasValue:    hasValue,
	}, nil
}

// finalResult is the VM's completion rule: the top of stack if one was
// left above the base pointer, otherwise no value.
func (v *VM) finalResult() (value.Value, bool) {
	if v.stack.sp > v.stack.bp {
		return v.stack.values[v.stack.sp-1], true
	}
	return value.Value{}, false
}

func (v *VM) execute(ins bytecode.Instruction) error {
	switch ins.Op {
	case bytecode.OpNop:
		return nil

	case bytecode.OpPop:
		_, err := v.stack.pop()
		return err

	case bytecode.OpPopN:
		return v.stack.popN(ins.Operand.Count)

	case bytecode.OpDup:
		return v.stack.dup()

	case bytecode.OpSwap:
		return v.stack.swap()

	case bytecode.OpPush:
		return v.stack.push(ins.Operand.Value)

	case bytecode.OpLoad:
		return v.stack.load(ins.Operand.Slot)

	case bytecode.OpStore:
		return v.stack.store(ins.Operand.Slot)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		return v.execArith(ins.Op)

	case bytecode.OpNegate:
		return v.execNegate()

	case bytecode.OpNot:
		return v.execNot()

	case bytecode.OpEq, bytecode.OpNeq:
		return v.execEquality(ins.Op)

	case bytecode.OpLt, bytecode.OpGt, bytecode.OpLte, bytecode.OpGte:
		return v.execRelational(ins.Op)

	case bytecode.OpJump:
		v.ip = ins.Operand.Addr
		return nil

	case bytecode.OpJumpIfFalse:
		return v.execJumpIfFalse(ins.Operand.Addr)

	case bytecode.OpJumpIfFalsePeek:
		return v.execJumpPeek(ins.Operand.Addr, false)

	case bytecode.OpJumpIfTruePeek:
		return v.execJumpPeek(ins.Operand.Addr, true)

	case bytecode.OpAllocArr:
		return v.execAllocArr(ins.Operand.ArrayKind)

	case bytecode.OpLoadIdx:
		return v.execLoadIdx()

	case bytecode.OpStoreIdx:
		return v.execStoreIdx()

	case bytecode.OpPrint:
		return v.execPrint()

	case bytecode.OpReserve:
		return v.stack.reserve(ins.Operand.Count)

	default:
		return &RuntimeError{Message: "unknown opcode: " + ins.Op.String()}
	}
}

// execArith implements add/sub/mul/div/percent. Per the resolved mixed-type
// rule: if either operand is a double the result is a double; modulo
// requires both operands to be integers.
func (v *VM) execArith(op bytecode.Opcode) error {
	r, l, err := v.popNumericPair()
	if err != nil {
		return err
	}

	if op == bytecode.OpMod {
		if l.Kind != value.Int || r.Kind != value.Int {
			return &RuntimeError{Message: "modulo requires integer operands"}
		}
		if r.IntVal == 0 {
			return &RuntimeError{Message: "modulo by zero"}
		}
		return v.stack.push(value.NewInt(l.IntVal % r.IntVal))
	}

	if l.Kind == value.Int && r.Kind == value.Int {
		switch op {
		case bytecode.OpAdd:
			return v.stack.push(value.NewInt(l.IntVal + r.IntVal))
		case bytecode.OpSub:
			return v.stack.push(value.NewInt(l.IntVal - r.IntVal))
		case bytecode.OpMul:
			return v.stack.push(value.NewInt(l.IntVal * r.IntVal))
		case bytecode.OpDiv:
			if r.IntVal == 0 {
				return &RuntimeError{Message: "division by zero"}
			}
			return v.stack.push(value.NewInt(l.IntVal / r.IntVal))
		}
	}

	lf, rf := l.AsFloat(), r.AsFloat()
	switch op {
	case bytecode.OpAdd:
		return v.stack.push(value.NewDouble(lf + rf))
	case bytecode.OpSub:
		return v.stack.push(value.NewDouble(lf - rf))
	case bytecode.OpMul:
		return v.stack.push(value.NewDouble(lf * rf))
	case bytecode.OpDiv:
		if rf == 0 {
			return &RuntimeError{Message: "division by zero"}
		}
		return v.stack.push(value.NewDouble(lf / rf))
	}
	return &RuntimeError{Message: "unreachable arithmetic opcode"}
}

// popNumericPair pops R then L (R was pushed last) and checks both are
// numeric and initialized.
func (v *VM) popNumericPair() (r, l value.Value, err error) {
	r, err = v.stack.pop()
	if err != nil {
		return
	}
	l, err = v.stack.pop()
	if err != nil {
		return
	}
	if err = v.guard.checkNumeric(l); err != nil {
		return
	}
	if err = v.guard.checkNumeric(r); err != nil {
		return
	}
	return
}

func (v *VM) execNegate() error {
	x, err := v.stack.pop()
	if err != nil {
		return err
	}
	if err := v.guard.checkNumeric(x); err != nil {
		return err
	}
	if x.Kind == value.Int {
		return v.stack.push(value.NewInt(-x.IntVal))
	}
	return v.stack.push(value.NewDouble(-x.DblVal))
}

func (v *VM) execNot() error {
	x, err := v.stack.pop()
	if err != nil {
		return err
	}
	if err := v.guard.checkBoolean(x); err != nil {
		return err
	}
	return v.stack.push(value.NewBool(!x.BoolVal))
}

func (v *VM) execEquality(op bytecode.Opcode) error {
	r, err := v.stack.pop()
	if err != nil {
		return err
	}
	l, err := v.stack.pop()
	if err != nil {
		return err
	}
	if err := v.guard.checkInitialized(l); err != nil {
		return err
	}
	if err := v.guard.checkInitialized(r); err != nil {
		return err
	}
	eq := value.Equal(l, r)
	if op == bytecode.OpNeq {
		eq = !eq
	}
	return v.stack.push(value.NewBool(eq))
}

func (v *VM) execRelational(op bytecode.Opcode) error {
	r, l, err := v.popNumericPair()
	if err != nil {
		return err
	}
	lf, rf := l.AsFloat(), r.AsFloat()
	var result bool
	switch op {
	case bytecode.OpLt:
		result = lf < rf
	case bytecode.OpGt:
		result = lf > rf
	case bytecode.OpLte:
		result = lf <= rf
	case bytecode.OpGte:
		result = lf >= rf
	}
	return v.stack.push(value.NewBool(result))
}

func (v *VM) execJumpIfFalse(addr int) error {
	cond, err := v.stack.pop()
	if err != nil {
		return err
	}
	if err := v.guard.checkBoolean(cond); err != nil {
		return err
	}
	if !cond.BoolVal {
		v.ip = addr
	}
	return nil
}

// execJumpPeek implements jump_if_false_peek / jump_if_true_peek: reads
// the condition without popping, jumping when cond == wantTrue.
func (v *VM) execJumpPeek(addr int, wantTrue bool) error {
	cond, err := v.stack.peek()
	if err != nil {
		return err
	}
	if err := v.guard.checkBoolean(cond); err != nil {
		return err
	}
	if cond.BoolVal == wantTrue {
		v.ip = addr
	}
	return nil
}

func (v *VM) execAllocArr(elemKind value.Kind) error {
	sizeVal, err := v.stack.pop()
	if err != nil {
		return err
	}
	size, err := v.guard.checkIndexInt(sizeVal, "array size")
	if err != nil {
		return err
	}
	if size < 0 {
		return &RuntimeError{Message: "array size must be non-negative"}
	}
	addr := v.heap.alloc(size, value.ZeroOf(elemKind))
	return v.stack.push(value.NewArrayPointer(addr))
}

func (v *VM) execLoadIdx() error {
	idxVal, err := v.stack.pop()
	if err != nil {
		return err
	}
	ptrVal, err := v.stack.pop()
	if err != nil {
		return err
	}
	if err := v.guard.checkPointer(ptrVal); err != nil {
		return err
	}
	if err := v.guard.checkHeapAddress(ptrVal.Addr, len(v.heap.cells)); err != nil {
		return err
	}
	idx, err := v.guard.checkIndexInt(idxVal, "array index")
	if err != nil {
		return err
	}
	if err := v.guard.checkArrayBounds(v.heap.length(ptrVal.Addr), idx); err != nil {
		return err
	}
	return v.stack.push(v.heap.get(ptrVal.Addr, idx))
}

func (v *VM) execStoreIdx() error {
	val, err := v.stack.pop()
	if err != nil {
		return err
	}
	idxVal, err := v.stack.pop()
	if err != nil {
		return err
	}
	ptrVal, err := v.stack.pop()
	if err != nil {
		return err
	}
	if err := v.guard.checkPointer(ptrVal); err != nil {
		return err
	}
	if err := v.guard.checkHeapAddress(ptrVal.Addr, len(v.heap.cells)); err != nil {
		return err
	}
	idx, err := v.guard.checkIndexInt(idxVal, "array index")
	if err != nil {
		return err
	}
	if err := v.guard.checkArrayBounds(v.heap.length(ptrVal.Addr), idx); err != nil {
		return err
	}
	v.heap.set(ptrVal.Addr, idx, val)
	// store_idx leaves the stored value on top as the expression result.
	return v.stack.push(val)
}

func (v *VM) execPrint() error {
	top, err := v.stack.peek()
	if err != nil {
		return err
	}
	_, err = io.WriteString(v.out, top.String()+"\n")
	return err
}
