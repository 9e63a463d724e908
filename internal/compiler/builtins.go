package compiler

import (
	"muf/internal/ast"
	"muf/internal/symtab"
)

// builtinExternals is the fixed set of intrinsic procedures every muF
// program may call without declaring them, each one lowered to an EXTCALL
// rather than a user-function CALL. The name/return-type pairs mirror
// internal/vm/extcall.go's registerExternals dispatch table one for one
// (original_source/src/vm/extfuncs.cpp's CallExternal) — this table exists
// so the code generator can resolve a call to "print" or "sqrt" the same
// way it resolves a call to a declared function, instead of the caller
// having to special-case every builtin name at every call site.
var builtinExternals = map[string]ast.Type{
	"abs":  ast.Real,
	"fabs": ast.Real,
	"norm": ast.Real,

	"sqrt": ast.Real,
	"sin":  ast.Real,
	"cos":  ast.Real,
	"tan":  ast.Real,
	"exp":  ast.Real,
	"pow":  ast.Real,

	"set_eps": ast.Void,
	"get_eps": ast.Real,
	"set_prec": ast.Void,

	"to_str":     ast.String,
	"flt_to_str": ast.String,
	"int_to_str": ast.String,
	"strlen":     ast.Integer,

	"print": ast.Void,

	"getflt": ast.Real,
	"getint": ast.Integer,

	"set_isr":   ast.Void,
	"sleep":     ast.Void,
	"set_timer": ast.Void,
	"set_debug": ast.Void,
}

// registerBuiltins installs every intrinsic name into syms as an external
// function symbol before any user declaration is processed. A user
// function with a builtin's name does not replace it: AddFunction reports
// the second registration as a redeclaration and keeps the builtin's entry,
// so VisitCall/VisitCallStmt's FindSymbol resolves the name to the builtin
// and the call is lowered to EXTCALL.
func registerBuiltins(syms *symtab.Table) {
	for name, retType := range builtinExternals {
		syms.AddFunction("", name, retType, nil, &symtab.FuncOpts{External: name})
	}
}
