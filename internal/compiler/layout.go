package compiler

import (
	"muf/internal/ast"
	"muf/internal/bytecode"
	"muf/internal/symtab"
)

// typeSize returns the fixed on-wire byte size of a symbol's memory cell:
// one tag byte plus its payload, per bytecode.go's Size* constants and
// Memory's length-prefixed array/string layout. dims supplies the
// declared capacity for strings and arrays (original_source/src/common/
// sym.cpp sizes string/array storage from the same declared bounds).
func typeSize(ty ast.Type, dims []int) int {
	switch ty {
	case ast.Integer:
		return bytecode.SizeTag + bytecode.SizeInt
	case ast.Real:
		return bytecode.SizeTag + bytecode.SizeReal
	case ast.Boolean:
		return bytecode.SizeTag + bytecode.SizeBool
	case ast.Complex:
		return bytecode.SizeTag + bytecode.SizeCplx
	case ast.String:
		cap := 256
		if len(dims) > 0 && dims[0] > 0 {
			cap = dims[0]
		}
		return bytecode.SizeTag + 4 + cap
	case ast.RealArray:
		return bytecode.SizeTag + 4 + arrayCapacity(dims)*8
	case ast.IntArray:
		return bytecode.SizeTag + 4 + arrayCapacity(dims)*8
	case ast.ComplexArray:
		return bytecode.SizeTag + 4 + arrayCapacity(dims)*16
	default:
		return bytecode.SizeTag + bytecode.SizeInt
	}
}

// arrayCapacity is the product of an array/matrix symbol's declared
// dimensions (one entry per rank), defaulting to 64 elements when a
// variable is declared with no explicit bound.
func arrayCapacity(dims []int) int {
	if len(dims) == 0 {
		return 64
	}
	n := 1
	for _, d := range dims {
		if d <= 0 {
			d = 64
		}
		n *= d
	}
	return n
}

// retSlotName is the global symbol name backing a function's return value,
// per the Open Question decision in DESIGN.md: each function gets one
// reserved global cell for its result rather than threading it back across
// RET on the stack, trading reentrant-recursion correctness for a CALL/RET
// contract that stays a fixed two-field frame (savedBP, savedIP).
func retSlotName(fnName string) string { return fnName + "#ret" }

// allocGlobal assigns the next (descending) global-frame offset to name,
// advancing g.globalOffset, and registers it in the symbol table addressed
// via GBP. Used both for function return slots (allocated up front, before
// any function body is generated, so every call site can read its callee's
// slot regardless of declaration order) and for top-level variable
// declarations in the program's own scope.
func (g *Generator) allocGlobal(name string, ty ast.Type, dims []int) *symtab.Symbol {
	size := typeSize(ty, dims)
	g.globalOffset -= size
	sym := g.Syms.AddSymbol("", name, ty, dims)
	if sym == nil {
		return nil
	}
	sym.Offset = g.globalOffset
	sym.HasOffset = true
	sym.IsGlobal = true
	return sym
}

// layoutScope assigns BP-relative offsets to a function's arguments
// (ascending from argBaseOffset, in declaration order) and to its locals
// (descending from 0, in declaration order), registering every one in the
// symbol table under scope. Locals are discovered by scanning the body's
// top-level VarDecl statements, matching muF's Fortran-style
// declare-before-use convention (original_source/src/parser/decl.cpp
// requires all declarations to precede executable statements). Returns the
// total local byte count, the frame size a CALL/ADDFRAME must reserve.
func (g *Generator) layoutScope(scope string, args []ast.Arg, body []ast.Stmt) int {
	argOffset := argBaseOffset
	for i, a := range args {
		sym := g.Syms.AddSymbol(scope, a.Name, a.Type, a.Dims)
		if sym == nil {
			continue
		}
		sym.IsArg = true
		sym.ArgIndex = i
		sym.Offset = argOffset
		sym.HasOffset = true
		argOffset += typeSize(a.Type, a.Dims)
	}

	// The global (program) scope shares one running offset counter across
	// every call site: function return slots are allocated into it up
	// front (see allocGlobal), and the program's own top-level locals
	// continue from wherever that left off, so every global address is
	// unique within the one ADDFRAME reservation main wraps itself in.
	isGlobal := scope == ""
	localOffset := 0
	if isGlobal {
		localOffset = g.globalOffset
	}
	startOffset := localOffset

	for _, stmt := range body {
		decl, ok := stmt.(*ast.VarDecl)
		if !ok {
			continue
		}
		for _, name := range decl.Names {
			sym := g.Syms.AddSymbol(scope, name, decl.Type, decl.Dims)
			if sym == nil {
				continue
			}
			size := typeSize(decl.Type, decl.Dims)
			localOffset -= size
			sym.Offset = localOffset
			sym.HasOffset = true
			if isGlobal {
				sym.IsGlobal = true
			}
		}
	}
	if isGlobal {
		g.globalOffset = localOffset
		return -localOffset // whole globals region, return slots included; Generate reserves it with ADDFRAME
	}
	return startOffset - localOffset
}
