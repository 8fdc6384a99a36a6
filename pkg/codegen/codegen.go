// Package codegen lowers a minic AST to a bytecode.Program: jump
// backpatching for control flow, short-circuit evaluation, lvalue
// lowering for subscripts and compound updates, and scoped local slot
// assignment via pkg/symtab.
//
// A Generator holds its own bytecode buffer, symbol table, and loop
// stack as instance state so that concurrent or repeated calls to
// Generate never interfere with one another — each call constructs a
// fresh Generator and discards it once the Program is returned.
package codegen

import (
	"fmt"

	"github.com/chazu/minic/pkg/ast"
	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/symtab"
	"github.com/chazu/minic/pkg/token"
	"github.com/chazu/minic/pkg/value"
)

// CodegenError is a compile error raised during code generation: redefinition,
// an unresolved identifier, break/continue outside a loop, or an
// initializer list too large for its declared array.
type CodegenError struct {
	Pos     token.Position
	Message string
}

func (e *CodegenError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// loopContext tracks the jumps a break/continue inside one loop nesting
// level must patch. continueLabel is the address a `continue` jumps to
// directly when known up front (a while loop's condition re-check); it is
// -1 for a for-loop, whose continue target — the increment block — is
// only known after the body is compiled, so continues there are recorded
// in continueJumps and backpatched later.
type loopContext struct {
	continueLabel int
	breakJumps    []int
	continueJumps []int
}

// Generator compiles one AST into one bytecode.Program.
type Generator struct {
	instructions []bytecode.Instruction
	symbols      *symtab.Table
	loops        []*loopContext
}

// Generate compiles program into a bytecode.Program, or returns the first
// codegen error encountered.
func Generate(program *ast.Program) (*bytecode.Program, error) {
	g := &Generator{symbols: symtab.New()}
	if err := g.genProgram(program); err != nil {
		return nil, err
	}
	return &bytecode.Program{Instructions: g.instructions}, nil
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (g *Generator) here() int { return len(g.instructions) }

func (g *Generator) emit(op bytecode.Opcode) int {
	g.instructions = append(g.instructions, bytecode.Instruction{Op: op})
	return g.here() - 1
}

func (g *Generator) emitOperand(op bytecode.Opcode, operand bytecode.Operand) int {
	g.instructions = append(g.instructions, bytecode.Instruction{Op: op, Operand: operand})
	return g.here() - 1
}

// emitJump emits a jump-family instruction with a placeholder address,
// returning its index so PatchJump can later overwrite the operand.
func (g *Generator) emitJump(op bytecode.Opcode) int {
	return g.emitOperand(op, bytecode.Operand{Addr: -1})
}

func (g *Generator) patchJump(addr int) {
	g.instructions[addr].Operand.Addr = g.here()
}

func (g *Generator) patchJumpTo(addr, target int) {
	g.instructions[addr].Operand.Addr = target
}

// ---------------------------------------------------------------------------
// Program / statements
// ---------------------------------------------------------------------------

func (g *Generator) genProgram(p *ast.Program) error {
	for i, stmt := range p.Statements {
		if i == len(p.Statements)-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				return g.genExpr(es.X)
			}
		}
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) genStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.ExprStmt:
		if err := g.genExpr(n.X); err != nil {
			return err
		}
		g.emit(bytecode.OpPop)
		return nil
	case *ast.Empty:
		return nil
	case *ast.Block:
		return g.genBlock(n)
	case *ast.VarDecl:
		return g.genVarDecl(n)
	case *ast.If:
		return g.genIf(n)
	case *ast.While:
		return g.genWhile(n)
	case *ast.For:
		return g.genFor(n)
	case *ast.Break:
		return g.genBreak(n)
	case *ast.Continue:
		return g.genContinue(n)
	default:
		return &CodegenError{Pos: s.Pos(), Message: fmt.Sprintf("codegen: unhandled statement %T", s)}
	}
}

func (g *Generator) genBlock(b *ast.Block) error {
	g.symbols.EnterScope()
	for _, stmt := range b.Statements {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	n := g.symbols.ExitScope()
	if n > 0 {
		g.emitOperand(bytecode.OpPopN, bytecode.Operand{Count: n})
	}
	return nil
}

// typeKindOf maps a declaration's type keyword to the value.Kind used to
// zero-fill a newly allocated array.
func typeKindOf(t token.Kind) value.Kind {
	switch t {
	case token.KwInt:
		return value.Int
	case token.KwDouble:
		return value.Dbl
	case token.KwBool:
		return value.Bool
	default:
		return value.Uninitialized
	}
}

func (g *Generator) genVarDecl(decl *ast.VarDecl) error {
	elemKind := typeKindOf(decl.Type)
	for _, d := range decl.Declarators {
		if d.IsArray {
			if err := g.genArrayDeclarator(d, elemKind); err != nil {
				return err
			}
		} else {
			if d.Init != nil {
				if err := g.genExpr(d.Init); err != nil {
					return err
				}
			} else {
				g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.Uninit()})
			}
		}
		if _, err := g.symbols.Define(d.Name); err != nil {
			return &CodegenError{Pos: d.NamePos, Message: err.Error()}
		}
	}
	return nil
}

func (g *Generator) genArrayDeclarator(d ast.Declarator, elemKind value.Kind) error {
	var declaredSize int
	haveStaticSize := false

	if d.Size != nil {
		if lit, ok := d.Size.(*ast.Literal); ok && lit.Kind == ast.IntLit {
			declaredSize = int(lit.IntVal)
			haveStaticSize = true
		}
		if err := g.genExpr(d.Size); err != nil {
			return err
		}
	} else {
		declaredSize = len(d.InitList.Elements)
		haveStaticSize = true
		g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(int64(declaredSize))})
	}

	g.emitOperand(bytecode.OpAllocArr, bytecode.Operand{ArrayKind: elemKind})

	if d.InitList != nil {
		if haveStaticSize && len(d.InitList.Elements) > declaredSize {
			return &CodegenError{
				Pos: d.InitList.Pos(),
				Message: fmt.Sprintf("initializer list length %d exceeds array size %d",
					len(d.InitList.Elements), declaredSize),
			}
		}
		for i, elem := range d.InitList.Elements {
			g.emit(bytecode.OpDup)
			g.emitOperand(bytecode.OpPush, bytecode.Operand{Value: value.NewInt(int64(i))})
			if err := g.genExpr(elem); err != nil {
				return err
			}
			g.emit(bytecode.OpStoreIdx)
			g.emit(bytecode.OpPop)
		}
	}
	return nil
}

func (g *Generator) genIf(n *ast.If) error {
	if err := g.genExpr(n.Cond); err != nil {
		return err
	}
	thenJump := g.emitJump(bytecode.OpJumpIfFalse)
	if err := g.genStmt(n.Then); err != nil {
		return err
	}
	if n.Else != nil {
		elseJump := g.emitJump(bytecode.OpJump)
		g.patchJump(thenJump)
		if err := g.genStmt(n.Else); err != nil {
			return err
		}
		g.patchJump(elseJump)
	} else {
		g.patchJump(thenJump)
	}
	return nil
}

func (g *Generator) genWhile(n *ast.While) error {
	loopStart := g.here()
	ctx := &loopContext{continueLabel: loopStart}
	g.loops = append(g.loops, ctx)

	if err := g.genExpr(n.Cond); err != nil {
		return err
	}
	exitJump := g.emitJump(bytecode.OpJumpIfFalse)

	if err := g.genStmt(n.Body); err != nil {
		return err
	}
	g.emitOperand(bytecode.OpJump, bytecode.Operand{Addr: loopStart})
	g.patchJump(exitJump)

	for _, addr := range ctx.breakJumps {
		g.patchJump(addr)
	}
	g.loops = g.loops[:len(g.loops)-1]
	return nil
}

func (g *Generator) genFor(n *ast.For) error {
	g.symbols.EnterScope()

	if n.Init != nil {
		if err := g.genStmt(n.Init); err != nil {
			return err
		}
	}

	loopStart := g.here()

	exitJump := -1
	if n.Cond != nil {
		if err := g.genExpr(n.Cond); err != nil {
			return err
		}
		exitJump = g.emitJump(bytecode.OpJumpIfFalse)
	}

	ctx := &loopContext{continueLabel: -1}
	g.loops = append(g.loops, ctx)

	if err := g.genStmt(n.Body); err != nil {
		return err
	}

	incrementStart := g.here()
	for _, addr := range ctx.continueJumps {
		g.patchJumpTo(addr, incrementStart)
	}

	if n.Incr != nil {
		if err := g.genExpr(n.Incr); err != nil {
			return err
		}
		g.emit(bytecode.OpPop)
	}
	g.emitOperand(bytecode.OpJump, bytecode.Operand{Addr: loopStart})

	if exitJump >= 0 {
		g.patchJump(exitJump)
	}
	g.loops = g.loops[:len(g.loops)-1]

	for _, addr := range ctx.breakJumps {
		g.patchJump(addr)
	}

	n2 := g.symbols.ExitScope()
	if n2 > 0 {
		g.emitOperand(bytecode.OpPopN, bytecode.Operand{Count: n2})
	}
	return nil
}

func (g *Generator) currentLoop() *loopContext {
	if len(g.loops) == 0 {
		return nil
	}
	return g.loops[len(g.loops)-1]
}

func (g *Generator) genBreak(n *ast.Break) error {
	ctx := g.currentLoop()
	if ctx == nil {
		return &CodegenError{Pos: n.Position, Message: "'break' outside of any loop"}
	}
	addr := g.emitJump(bytecode.OpJump)
	ctx.breakJumps = append(ctx.breakJumps, addr)
	return nil
}

func (g *Generator) genContinue(n *ast.Continue) error {
	ctx := g.currentLoop()
	if ctx == nil {
		return &CodegenError{Pos: n.Position, Message: "'continue' outside of any loop"}
	}
	if ctx.continueLabel >= 0 {
		g.emitOperand(bytecode.OpJump, bytecode.Operand{Addr: ctx.continueLabel})
	} else {
		addr := g.emitJump(bytecode.OpJump)
		ctx.continueJumps = append(ctx.continueJumps, addr)
	}
	return nil
}
