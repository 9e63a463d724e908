package compiler

import (
	"muf/internal/ast"
	"muf/internal/bytecode"
	"muf/internal/symtab"
)

func (g *Generator) genStmt(s ast.Stmt) { s.Accept(g) }

func (g *Generator) VisitStmtList(n *ast.StmtList) interface{} {
	for _, s := range n.Stmts {
		g.genStmt(s)
	}
	return nil
}

// VisitVarDecl only emits code for declarations with an explicit initializer;
// the declaration itself was already turned into a frame slot by
// layoutScope before any statement in this scope is generated (muF requires
// declarations before use, so layout can run as one pass ahead of emission).
func (g *Generator) VisitVarDecl(n *ast.VarDecl) interface{} {
	for i, name := range n.Names {
		if i >= len(n.Inits) || n.Inits[i] == nil {
			continue
		}
		sym, ok := g.resolveSymbol(name)
		if !ok {
			g.fail(n.Position(), "undeclared variable %q", name)
			continue
		}
		g.genExpr(n.Inits[i])
		g.emitSymAddr(sym)
		g.Image.WriteOp(bytecode.WRMEM)
	}
	return nil
}

// genFuncDef emits one function's body at the current image position and
// records its entry address and frame size in the symbol table so every
// call site's patch list (resolved at the very end, see
// resolveCallPatches) can find it regardless of definition order. The
// function's return-value slot is expected to already be reserved (Generate
// allocates every function's slot up front, before any body is emitted);
// genFuncDef allocates it lazily here too so VisitFuncDef stays correct if
// ever reached outside that up-front pass.
func (g *Generator) genFuncDef(fn *ast.FuncDef) {
	sym, ok := g.Syms.FindSymbol(fn.Name)
	if !ok {
		argTypes := make([]ast.Type, len(fn.Args))
		for i, a := range fn.Args {
			argTypes[i] = a.Type
		}
		sym = g.Syms.AddFunction("", fn.Name, fn.RetType, argTypes, &symtab.FuncOpts{RetDims: fn.RetDims, External: fn.External})
	}
	if fn.RetType != ast.Void {
		if _, ok := g.Syms.FindSymbol(retSlotName(fn.Name)); !ok {
			g.allocGlobal(retSlotName(fn.Name), fn.RetType, fn.RetDims)
		}
	}

	entryAddr := g.Image.Pos()
	prevScope := g.scope
	prevArgBytes := g.curFuncArgBytes
	g.scope = fn.Name

	argBytes := 0
	for _, a := range fn.Args {
		argBytes += typeSize(a.Type, a.Dims)
	}
	g.curFuncArgBytes = argBytes

	frameSize := g.layoutScope(fn.Name, fn.Args, fn.Body)
	for _, stmt := range fn.Body {
		g.genStmt(stmt)
	}
	// implicit fallthrough return, for bodies that don't end in an
	// explicit `return` statement
	g.emitPushInt(int64(argBytes))
	g.Image.WriteOp(bytecode.RET)

	if sym != nil {
		sym.EntryAddr = entryAddr
		sym.HasEntry = true
		sym.FrameSize = frameSize
	}

	g.scope = prevScope
	g.curFuncArgBytes = prevArgBytes
}

func (g *Generator) VisitFuncDef(n *ast.FuncDef) interface{} {
	g.genFuncDef(n)
	return nil
}

// VisitReturn writes the (single) return value to the current function's
// dedicated return slot (see retSlotName / DESIGN.md's Open Question on
// call-return convention) and emits RET with the function's own argument
// cleanup count. Multiple return values (spec.md's optional multi-return
// list) are not lowered: no call site reads past the primary slot.
func (g *Generator) VisitReturn(n *ast.Return) interface{} {
	if !n.JumpOnly && len(n.Values) > 0 {
		if len(n.Values) > 1 {
			g.fail(n.Position(), "multi-value return is not supported")
		}
		retSym, ok := g.Syms.FindSymbol(retSlotName(g.scope))
		if !ok {
			g.fail(n.Position(), "return from a function with no declared return type")
		} else {
			g.genExpr(n.Values[0])
			g.emitSymAddr(retSym)
			g.Image.WriteOp(bytecode.WRMEM)
		}
	}
	g.emitPushInt(int64(g.curFuncArgBytes))
	g.Image.WriteOp(bytecode.RET)
	return nil
}

func (g *Generator) VisitCallStmt(n *ast.CallStmt) interface{} {
	if _, ok := g.Syms.FindSymbol(n.Name); !ok {
		g.fail(n.Position(), "call to undeclared function %q", n.Name)
		return nil
	}
	g.genCallCommon(n.Name, n.Args)
	return nil
}

// VisitExprStmt only supports a bare call used for its side effect; muF has
// no other expression with a side effect and the VM has no opcode to
// discard an unused value (it has no POP), so any other expression
// statement is a generation-time error rather than silently leaking a
// stack cell.
func (g *Generator) VisitExprStmt(n *ast.ExprStmt) interface{} {
	if call, ok := n.Expr.(*ast.Call); ok {
		g.genCallCommon(call.Name, call.Args)
		return nil
	}
	g.fail(n.Position(), "expression statement has no side effect")
	return nil
}

// VisitAssign re-evaluates Value once per target when there is more than
// one (spec.md's multi-target assignment): the VM's stack has no DUP, so a
// single evaluation can't be fanned out to several WRMEMs.
func (g *Generator) VisitAssign(n *ast.Assign) interface{} {
	valTy := g.exprType(n.Value)
	for _, target := range n.Targets {
		sym, ok := g.resolveSymbol(target)
		if !ok {
			g.fail(n.Position(), "undeclared variable %q", target)
			continue
		}
		g.genExpr(n.Value)
		if sym.Type != valTy && (isNumericScalar(sym.Type) || sym.Type == ast.String) &&
			(isNumericScalar(valTy) || valTy == ast.String) {
			g.Image.WriteOp(castOpcode(sym.Type))
		}
		g.emitSymAddr(sym)
		g.Image.WriteOp(bytecode.WRMEM)
	}
	return nil
}

// VisitArrayAssign lowers to WRARR/WRARRR; push order is address, then
// index (or lo,hi), then value last, since execWrArr (ops.go) pops the
// value first.
func (g *Generator) VisitArrayAssign(n *ast.ArrayAssign) interface{} {
	idx := n.Target
	sym, ok := g.resolveSymbol(idx.Target)
	if !ok {
		g.fail(n.Position(), "undeclared array %q", idx.Target)
		return nil
	}
	if idx.HasDim2 {
		if idx.Ranged1 || idx.Ranged2 {
			g.fail(n.Position(), "ranged 2-D array assignment is not supported")
			return nil
		}
		cols := 64
		if len(sym.Dims) == 2 {
			cols = sym.Dims[1]
		}
		g.emitSymAddr(sym)
		g.genFlatIndex2D(idx.Idx1, idx.Idx1b, cols)
		g.genExpr(n.Value)
		g.Image.WriteOp(bytecode.WRARR)
		return nil
	}
	g.emitSymAddr(sym)
	if idx.Ranged1 {
		g.genExpr(idx.Idx1)
		g.genExpr(idx.Idx2)
		g.genExpr(n.Value)
		g.Image.WriteOp(bytecode.WRARRR)
		return nil
	}
	g.genExpr(idx.Idx1)
	g.genExpr(n.Value)
	g.Image.WriteOp(bytecode.WRARR)
	return nil
}

// emitJumpPlaceholder writes PUSH <TagAddrMem, 0> and returns the slot
// position to patch once the real target address is known.
func (g *Generator) emitJumpPlaceholder() int {
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagAddrMem))
	return g.Image.WriteI32(0)
}

// VisitConditional implements if/then/else with the teacher's
// placeholder-then-patch idiom (compiler.go's VisitIfStmt): invert the
// condition and JMPCND straight to the else branch (or past the whole
// statement if there is none), then jump from the end of the then branch
// past the else branch.
func (g *Generator) VisitConditional(n *ast.Conditional) interface{} {
	g.genExpr(n.Cond)
	g.Image.WriteOp(bytecode.NOT)
	jumpIfFalseSlot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMPCND)

	for _, s := range n.Then {
		g.genStmt(s)
	}
	jumpOverElseSlot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMP)

	elseStart := g.Image.Pos()
	g.Image.PatchI32(jumpIfFalseSlot, int32(elseStart))

	for _, s := range n.Else {
		g.genStmt(s)
	}
	afterElse := g.Image.Pos()
	g.Image.PatchI32(jumpOverElseSlot, int32(afterElse))
	return nil
}

// VisitCases lowers select/case to a chain of equality tests against the
// scrutinee, re-evaluated per arm for the same DUP-less reason as
// VisitAssign.
func (g *Generator) VisitCases(n *ast.Cases) interface{} {
	var endPatches []int
	for _, c := range n.CaseList {
		g.genExpr(n.Scrutinee)
		g.genExpr(c.Expr)
		g.Image.WriteOp(bytecode.EQU)
		g.Image.WriteOp(bytecode.NOT)
		nextSlot := g.emitJumpPlaceholder()
		g.Image.WriteOp(bytecode.JMPCND)

		for _, s := range c.Stmts {
			g.genStmt(s)
		}
		endSlot := g.emitJumpPlaceholder()
		g.Image.WriteOp(bytecode.JMP)
		endPatches = append(endPatches, endSlot)

		nextPos := g.Image.Pos()
		g.Image.PatchI32(nextSlot, int32(nextPos))
	}
	if n.HasDefault {
		for _, s := range n.Default {
			g.genStmt(s)
		}
	}
	endPos := g.Image.Pos()
	for _, p := range endPatches {
		g.Image.PatchI32(p, int32(endPos))
	}
	return nil
}

// VisitCountedLoop lowers `do ident = begin, end[, inc]`. Only an
// ascending step is evaluated against the exit test (i <= end); inc's sign
// is not inspected at generation time since it can be an arbitrary
// expression, so a descending counted loop would need its exit test
// flipped at runtime — not supported here (see DESIGN.md).
func (g *Generator) VisitCountedLoop(n *ast.CountedLoop) interface{} {
	sym, ok := g.resolveSymbol(n.Range.Ident)
	if !ok {
		g.fail(n.Position(), "undeclared loop variable %q", n.Range.Ident)
		return nil
	}

	g.genExpr(n.Range.Begin)
	g.emitSymAddr(sym)
	g.Image.WriteOp(bytecode.WRMEM)

	loop := &loopContext{}
	g.loops = append(g.loops, loop)

	loopStart := g.Image.Pos()
	g.emitSymAddr(sym)
	g.Image.WriteOp(bytecode.RDMEM)
	g.genExpr(n.Range.End)
	g.Image.WriteOp(bytecode.LEQU)
	g.Image.WriteOp(bytecode.NOT)
	exitSlot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMPCND)

	for _, s := range n.Body {
		g.genStmt(s)
	}

	continueTarget := g.Image.Pos()
	g.emitSymAddr(sym)
	g.Image.WriteOp(bytecode.RDMEM)
	if n.Range.Inc != nil {
		g.genExpr(n.Range.Inc)
	} else {
		g.emitPushInt(1)
	}
	g.Image.WriteOp(bytecode.ADD)
	g.emitSymAddr(sym)
	g.Image.WriteOp(bytecode.WRMEM)
	g.emitPushAddr(bytecode.TagAddrMem, int32(loopStart))
	g.Image.WriteOp(bytecode.JMP)

	endPos := g.Image.Pos()
	g.Image.PatchI32(exitSlot, int32(endPos))
	for _, p := range loop.breakPatches {
		g.Image.PatchI32(p, int32(endPos))
	}
	for _, p := range loop.continuePatches {
		g.Image.PatchI32(p, int32(continueTarget))
	}
	g.loops = g.loops[:len(g.loops)-1]
	return nil
}

// VisitWhileLoop lowers a header-tested while loop; continue re-tests the
// header directly since there is no separate increment step.
func (g *Generator) VisitWhileLoop(n *ast.WhileLoop) interface{} {
	loop := &loopContext{}
	g.loops = append(g.loops, loop)

	loopStart := g.Image.Pos()
	g.genExpr(n.Cond)
	g.Image.WriteOp(bytecode.NOT)
	exitSlot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMPCND)

	for _, s := range n.Body {
		g.genStmt(s)
	}
	g.emitPushAddr(bytecode.TagAddrMem, int32(loopStart))
	g.Image.WriteOp(bytecode.JMP)

	endPos := g.Image.Pos()
	g.Image.PatchI32(exitSlot, int32(endPos))
	for _, p := range loop.breakPatches {
		g.Image.PatchI32(p, int32(endPos))
	}
	for _, p := range loop.continuePatches {
		g.Image.PatchI32(p, int32(loopStart))
	}
	g.loops = g.loops[:len(g.loops)-1]
	return nil
}

// VisitBreak/VisitContinue resolve Depth (1 = innermost) against the loop
// stack, per spec.md's multi-level break/continue (the "break-2 nested
// loop exit" scenario).
func (g *Generator) VisitBreak(n *ast.Break) interface{} {
	idx := len(g.loops) - n.Depth
	if idx < 0 || idx >= len(g.loops) {
		idx = 0
	}
	slot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMP)
	g.loops[idx].breakPatches = append(g.loops[idx].breakPatches, slot)
	return nil
}

func (g *Generator) VisitContinue(n *ast.Continue) interface{} {
	idx := len(g.loops) - n.Depth
	if idx < 0 || idx >= len(g.loops) {
		idx = 0
	}
	slot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMP)
	g.loops[idx].continuePatches = append(g.loops[idx].continuePatches, slot)
	return nil
}

// VisitLabel records the label's byte position, scoped by enclosing
// function exactly like resolveSymbol scopes variable names, so goto can
// never cross into another function's label namespace.
func (g *Generator) VisitLabel(n *ast.Label) interface{} {
	g.labels[symtab.QualifiedName(g.scope, n.Name)] = g.Image.Pos()
	return nil
}

// VisitJump implements goto via the same placeholder-then-patch idiom as
// every other jump in this file: the target may be a label not yet visited
// (a forward goto), so the slot is recorded in g.gotoPatches and resolved
// by resolveGotoPatches once the whole function (or program) is generated.
// comefrom remains reserved syntax and is rejected, per spec.md §9(iv).
func (g *Generator) VisitJump(n *ast.Jump) interface{} {
	if n.ComeFrom {
		g.fail(n.Position(), "comefrom is not implemented")
		return nil
	}
	slot := g.emitJumpPlaceholder()
	g.Image.WriteOp(bytecode.JMP)
	g.gotoPatches = append(g.gotoPatches, gotoPatch{
		targetPos: slot,
		label:     symtab.QualifiedName(g.scope, n.Label),
		pos:       n.Position(),
	})
	return nil
}
