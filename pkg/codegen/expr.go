package codegen

import (
	"fmt"

	"github.com/chazu/minic/pkg/ast"
	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/token"
	"github.com/chazu/minic/pkg/value"
)

// binaryOpcode maps a non-short-circuit binary or compound-assignment
// operator token to its ISA opcode.
var binaryOpcode = map[token.Kind]bytecode.Opcode{
	token.Plus:    bytecode.OpAdd,
	token.Minus:   bytecode.OpSub,
	token.Star:    bytecode.OpMul,
	token.Slash:   bytecode.OpDiv,
	token.Percent: bytecode.OpMod,
	token.Eq:      bytecode.OpEq,
	token.NotEq:   bytecode.OpNeq,
	token.Lt:      bytecode.OpLt,
	token.Gt:      bytecode.OpGt,
	token.Lte:     bytecode.OpLte,
	token.Gte:     bytecode.OpGte,
}

// compoundBase maps a compound-assignment token to the binary opcode its
// read-modify-write sequence performs.
var compoundBase = map[token.Kind]bytecode.Opcode{
	token.PlusEq:    bytecode.OpAdd,
	token.MinusEq:   bytecode.OpSub,
	token.StarEq:    bytecode.OpMul,
	token.SlashEq:   bytecode.OpDiv,
	token.PercentEq: bytecode.OpMod,
}

// genExpr compiles e, leaving exactly one value on top of the stack.
func (g *Generator) genExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Literal:
		return g.genLiteral(n)
	case *ast.BoolLiteral:
		g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewBool(n.Value)})
		return nil
	case *ast.Identifier:
		slot, err := g.symbols.Resolve(n.Name)
		if err != nil {
			return &CodegenError{Pos: n.Position, Message: err.Error()}
		}
		g.emitOperand(bytecode.OpLoad, bytecode.Operand{Slot: slot})
		return nil
	case *ast.Unary:
		return g.genUnary(n)
	case *ast.Binary:
		return g.genBinary(n)
	case *ast.Logical:
		return g.genLogical(n)
	case *ast.Subscript:
		return g.genSubscriptLoad(n)
	case *ast.Assignment:
		return g.genAssignment(n)
	case *ast.Update:
		return g.genUpdate(n)
	default:
		return &CodegenError{Pos: e.Pos(), Message: fmt.Sprintf("codegen: unhandled expression %T", e)}
	}
}

func (g *Generator) genLiteral(n *ast.Literal) error {
	switch n.Kind {
	case ast.IntLit:
		g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(n.IntVal)})
	case ast.DoubleLit:
		g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewDouble(n.DblVal)})
	}
	return nil
}

func (g *Generator) genUnary(n *ast.Unary) error {
	if err := g.genExpr(n.Right); err != nil {
		return err
	}
	switch n.Op {
	case token.Minus:
		g.emit(bytecode.OpNegate)
	case token.Bang:
		g.emit(bytecode.OpNot)
	}
	return nil
}

func (g *Generator) genBinary(n *ast.Binary) error {
	if err := g.genExpr(n.Left); err != nil {
		return err
	}
	if err := g.genExpr(n.Right); err != nil {
		return err
	}
	op, ok := binaryOpcode[n.Op]
	if !ok {
		return &CodegenError{Pos: n.Position, Message: fmt.Sprintf("codegen: unhandled binary operator %s", n.Op)}
	}
	g.emit(op)
	return nil
}

// genLogical compiles short-circuit && and ||. The peek-variant jump
// leaves the short-circuit value as the expression's result when the
// right side is skipped; the pop removes the left operand only when the
// right side is evaluated.
func (g *Generator) genLogical(n *ast.Logical) error {
	if err := g.genExpr(n.Left); err != nil {
		return err
	}
	var endJump int
	if n.Op == token.AndAnd {
		endJump = g.emitJump(bytecode.OpJumpIfFalsePeek)
	} else {
		endJump = g.emitJump(bytecode.OpJumpIfTruePeek)
	}
	g.emit(bytecode.OpPop)
	if err := g.genExpr(n.Right); err != nil {
		return err
	}
	g.patchJump(endJump)
	return nil
}

func (g *Generator) genSubscriptLoad(n *ast.Subscript) error {
	if err := g.genExpr(n.Object); err != nil {
		return err
	}
	if err := g.genExpr(n.Index); err != nil {
		return err
	}
	g.emit(bytecode.OpLoadIdx)
	return nil
}

func (g *Generator) genAssignment(n *ast.Assignment) error {
	switch target := n.Target.(type) {
	case *ast.Identifier:
		return g.genAssignIdentifier(n, target)
	case *ast.Subscript:
		return g.genAssignSubscript(n, target)
	default:
		return &CodegenError{Pos: n.Position, Message: "invalid assignment target"}
	}
}

func (g *Generator) genAssignIdentifier(n *ast.Assignment, target *ast.Identifier) error {
	slot, err := g.symbols.Resolve(target.Name)
	if err != nil {
		return &CodegenError{Pos: target.Position, Message: err.Error()}
	}
	if n.Op == token.Assign {
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.emitOperand(bytecode.OpStore, bytecode.Operand{Slot: slot})
		return nil
	}
	op, ok := compoundBase[n.Op]
	if !ok {
		return &CodegenError{Pos: n.Position, Message: fmt.Sprintf("codegen: unhandled assignment operator %s", n.Op)}
	}
	g.emitOperand(bytecode.OpLoad, bytecode.Operand{Slot: slot})
	if err := g.genExpr(n.Value); err != nil {
		return err
	}
	g.emit(op)
	g.emitOperand(bytecode.OpStore, bytecode.Operand{Slot: slot})
	return nil
}

func (g *Generator) genAssignSubscript(n *ast.Assignment, target *ast.Subscript) error {
	if n.Op == token.Assign {
		if err := g.genExpr(target.Object); err != nil {
			return err
		}
		if err := g.genExpr(target.Index); err != nil {
			return err
		}
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.emit(bytecode.OpStoreIdx)
		return nil
	}

	op, ok := compoundBase[n.Op]
	if !ok {
		return &CodegenError{Pos: n.Position, Message: fmt.Sprintf("codegen: unhandled assignment operator %s", n.Op)}
	}

	// Address copy #1 — staged underneath, consumed by the trailing store_idx.
	if err := g.genExpr(target.Object); err != nil {
		return err
	}
	if err := g.genExpr(target.Index); err != nil {
		return err
	}
	// Address copy #2 — consumed immediately by load_idx to read the old value.
	if err := g.genExpr(target.Object); err != nil {
		return err
	}
	if err := g.genExpr(target.Index); err != nil {
		return err
	}
	g.emit(bytecode.OpLoadIdx)
	if err := g.genExpr(n.Value); err != nil {
		return err
	}
	g.emit(op)
	g.emit(bytecode.OpStoreIdx)
	return nil
}

func (g *Generator) genUpdate(n *ast.Update) error {
	op := bytecode.OpAdd
	if n.Op == token.MinusMinus {
		op = bytecode.OpSub
	}

	switch target := n.Argument.(type) {
	case *ast.Identifier:
		return g.genUpdateIdentifier(n, target, op)
	case *ast.Subscript:
		return g.genUpdateSubscript(n, target, op)
	default:
		return &CodegenError{Pos: n.Position, Message: "update operator requires an identifier or subscript"}
	}
}

func (g *Generator) genUpdateIdentifier(n *ast.Update, target *ast.Identifier, op bytecode.Opcode) error {
	slot, err := g.symbols.Resolve(target.Name)
	if err != nil {
		return &CodegenError{Pos: target.Position, Message: err.Error()}
	}
	if n.Prefix {
		g.emitOperand(bytecode.OpLoad, bytecode.Operand{Slot: slot})
		g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(1)})
		g.emit(op)
		g.emitOperand(bytecode.OpStore, bytecode.Operand{Slot: slot})
		return nil
	}
	g.emitOperand(bytecode.OpLoad, bytecode.Operand{Slot: slot})
	g.emit(bytecode.OpDup)
	g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(1)})
	g.emit(op)
	g.emitOperand(bytecode.OpStore, bytecode.Operand{Slot: slot})
	g.emit(bytecode.OpPop)
	return nil
}

func (g *Generator) genUpdateSubscript(n *ast.Update, target *ast.Subscript, op bytecode.Opcode) error {
	if n.Prefix {
		// Address copy #1, staged underneath for the trailing store_idx.
		if err := g.genExpr(target.Object); err != nil {
			return err
		}
		if err := g.genExpr(target.Index); err != nil {
			return err
		}
		// Address copy #2, consumed by load_idx to read the current value.
		if err := g.genExpr(target.Object); err != nil {
			return err
		}
		if err := g.genExpr(target.Index); err != nil {
			return err
		}
		g.emit(bytecode.OpLoadIdx)
		g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(1)})
		g.emit(op)
		g.emit(bytecode.OpStoreIdx)
		return nil
	}

	// Postfix must leave the pre-update value on top, but store_idx's
	// stack contract leaves the stored (new) value on top instead. Read
	// the old value first and keep it at the very bottom of the stack,
	// below the address pair staged for the store, so a final pop after
	// store_idx discards the new value and exposes the old one.
	if err := g.genExpr(target.Object); err != nil {
		return err
	}
	if err := g.genExpr(target.Index); err != nil {
		return err
	}
	g.emit(bytecode.OpLoadIdx)

	// Address copy #1, staged underneath for the trailing store_idx.
	if err := g.genExpr(target.Object); err != nil {
		return err
	}
	if err := g.genExpr(target.Index); err != nil {
		return err
	}
	// Address copy #2, consumed by load_idx to read the current value.
	if err := g.genExpr(target.Object); err != nil {
		return err
	}
	if err := g.genExpr(target.Index); err != nil {
		return err
	}
	g.emit(bytecode.OpLoadIdx)
	g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(1)})
	g.emit(op)
	g.emit(bytecode.OpStoreIdx)
	g.emit(bytecode.OpPop)
	return nil
}
