package compiler

import (
	"muf/internal/ast"
	"muf/internal/bytecode"
)

// isNumericScalar reports whether t is one of the three scalar numeric
// kinds the promotion lattice widens between (spec.md §4.3).
func isNumericScalar(t ast.Type) bool {
	return t == ast.Integer || t == ast.Real || t == ast.Complex
}

// elemScalarType returns the scalar type an array's elements carry, or
// ast.Void if t is not an array type.
func elemScalarType(t ast.Type) ast.Type {
	switch t {
	case ast.RealArray:
		return ast.Real
	case ast.IntArray:
		return ast.Integer
	case ast.ComplexArray:
		return ast.Complex
	}
	return ast.Void
}

// castOpcode returns the scalar cast opcode that converts a value to ty, or
// bytecode.NOP if ty has no corresponding scalar cast (arithmetic operators
// never cast an array operand, per original_source/src/codegen/ops.cpp's
// CastTo, which only emits an array-target cast when explicitly asked to).
func castOpcode(ty ast.Type) bytecode.OpCode {
	switch ty {
	case ast.Integer:
		return bytecode.TOI
	case ast.Real:
		return bytecode.TOR
	case ast.Complex:
		return bytecode.TOC
	case ast.String:
		return bytecode.TOS
	case ast.Boolean:
		return bytecode.TOB
	}
	return bytecode.NOP
}

// promote ports original_source/src/codegen/ops.cpp's GetCastSymType: given
// the static types of a binary operator's two operands, it returns the
// scalar type each side must be cast to before the operator's opcode runs
// (ast.Void means no cast needed) and the static type of the result.
//
// Arithmetic operators never cast an array operand itself -- only a scalar
// combined with an array casts, toward the array's element type -- so the
// array side of castLeft/castRight is always ast.Void here.
func promote(t1, t2 ast.Type) (castLeft, castRight, result ast.Type) {
	if t1 == t2 {
		return ast.Void, ast.Void, t1
	}

	// a string paired with a numeric scalar always wins: the numeric side
	// casts to string, matching the original's STRING x REAL/INT handling.
	if t1 == ast.String && isNumericScalar(t2) {
		return ast.Void, ast.String, ast.String
	}
	if t2 == ast.String && isNumericScalar(t1) {
		return ast.String, ast.Void, ast.String
	}

	// two numeric scalars: the narrower one casts up to the wider.
	if isNumericScalar(t1) && isNumericScalar(t2) {
		if t1 < t2 {
			return t2, ast.Void, t2
		}
		return ast.Void, t1, t1
	}

	// an array paired with its own element type needs no cast at all.
	if t1.IsArray() && elemScalarType(t1) == t2 {
		return ast.Void, ast.Void, t1
	}
	if t2.IsArray() && elemScalarType(t2) == t1 {
		return ast.Void, ast.Void, t2
	}

	// an array paired with a different numeric scalar: only the scalar
	// casts, toward the array's element type.
	if t1.IsArray() && isNumericScalar(t2) {
		return ast.Void, elemScalarType(t1), t1
	}
	if t2.IsArray() && isNumericScalar(t1) {
		return elemScalarType(t2), ast.Void, t2
	}

	// fallback: cast the right operand to the left's type, matching the
	// original's default GetCastSymType branch.
	return ast.Void, t1, t1
}

// exprType statically infers e's muF type, consulting the symbol table for
// identifiers and calls and recursing through arithmetic for the rest; it
// never runs code, so it must agree with how genExpr would actually lower e.
func (g *Generator) exprType(e ast.Expr) ast.Type {
	switch n := e.(type) {
	case *ast.UnaryMinus:
		return g.exprType(n.Operand)
	case *ast.Binary:
		_, _, result := promote(g.exprType(n.Left), g.exprType(n.Right))
		return result
	case *ast.Modulo:
		_, _, result := promote(g.exprType(n.Left), g.exprType(n.Right))
		return result
	case *ast.Power:
		_, _, result := promote(g.exprType(n.Left), g.exprType(n.Right))
		return result
	case *ast.Transpose:
		return ast.RealArray
	case *ast.Norm:
		return ast.Real
	case *ast.VarRef:
		if sym, ok := g.resolveSymbol(n.Name); ok {
			return sym.Type
		}
		return ast.Real
	case *ast.Compare:
		return ast.Boolean
	case *ast.BoolExpr:
		return ast.Boolean
	case *ast.Call:
		if sym, ok := g.Syms.FindSymbol(n.Name); ok {
			return sym.RetType
		}
		return ast.Real
	case *ast.NumConst:
		return n.Type
	case *ast.StrConst:
		return ast.String
	case *ast.ArrayIndex:
		sym, ok := g.resolveSymbol(n.Target)
		if !ok {
			return ast.Real
		}
		if n.Ranged1 && !n.HasDim2 {
			return sym.Type
		}
		return elemScalarType(sym.Type)
	case *ast.ArrayLit:
		return n.Elem
	}
	return ast.Real
}

// arrayDims returns e's statically declared shape when e is a direct
// reference to a declared array variable, or nil otherwise -- mirroring
// VisitTranspose's restriction to direct matrix variable references, since
// only a declared symbol carries dimension metadata in this compiler.
func (g *Generator) arrayDims(e ast.Expr) []int {
	ref, ok := e.(*ast.VarRef)
	if !ok {
		return nil
	}
	sym, ok := g.resolveSymbol(ref.Name)
	if !ok || !sym.Type.IsArray() {
		return nil
	}
	return sym.Dims
}

// genCastBinary is the shared lowering for +,-,*,/,mod,^: it emits the left
// operand, reserves a one-byte NOP to backpatch into the left operand's
// cast (if promote decides one is needed), emits the right operand followed
// immediately by its own cast (if any), and finally the operator itself --
// the same single-NOP-then-append-cast shape as ASTPlus/ASTMod/ASTPow in
// original_source/src/codegen/ops.cpp.
func (g *Generator) genCastBinary(left, right ast.Expr, op bytecode.OpCode) {
	tLeft := g.exprType(left)
	tRight := g.exprType(right)
	castLeft, castRight, _ := promote(tLeft, tRight)

	g.genExpr(left)
	castSlot := g.Image.WriteOp(bytecode.NOP)
	g.genExpr(right)
	if castLeft != ast.Void {
		g.Image.PatchOp(castSlot, castOpcode(castLeft))
	}
	if castRight != ast.Void {
		g.Image.WriteOp(castOpcode(castRight))
	}
	g.Image.WriteOp(op)
}
