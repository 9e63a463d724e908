// Package compiler lowers a muF AST (internal/ast) to the byte-addressed
// instruction set of internal/bytecode, per spec.md §4.2 ("CodeGenerator").
// Control-flow lowering follows the teacher's placeholder-then-patch idiom
// (internal/compiler/stmt_compiler.go's VisitIfStmt/VisitWhileStmt
// jump-patching), generalized from Sentra's []Value stack machine to this
// module's flat-memory, tagged-cell machine; the concrete frame-offset and
// patch-list bookkeeping come from original_source/src/codegen/{codegen.cpp,
// loops.cpp,func.cpp,ops.cpp,var.cpp,arr.cpp}.
package compiler

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"muf/internal/ast"
	"muf/internal/bytecode"
	"muf/internal/constants"
	"muf/internal/symtab"
)

// argBaseOffset is the BP-relative address of the first (declaration-order)
// argument of a called function: savedBP and savedIP (9 bytes each) sit
// between BP and the caller's pushed arguments, per internal/vm/call.go.
const argBaseOffset = 18

// callPatch records a forward function reference: the CALL target-address
// slot and frame-size slot awaiting the callee's layout, resolved once every
// function has been generated (internal/compiler's analog of the original's
// "unresolved call" patch list, func.cpp).
type callPatch struct {
	targetPos    int
	frameSizePos int
	name         string
}

// loopContext tracks one enclosing loop's patch lists so Break/Continue can
// target the right jump regardless of nesting depth (loops.cpp's
// break/continue stacks, generalized from index-based to byte-offset
// patch lists).
type loopContext struct {
	continueTarget  int // resolved at loop-body end, before backward patching
	hasContinueTgt  bool
	breakPatches    []int
	continuePatches []int
}

// gotoPatch records a forward or backward goto: the JMP target-address slot
// awaiting the label's position, resolved once every statement in the
// enclosing function (and the top-level program) has been generated.
type gotoPatch struct {
	targetPos int
	label     string // scope-qualified, per symtab.QualifiedName
	pos       ast.Pos
}

// Generator is the CodeGenerator of spec.md §4.2: a single-pass lowering
// pass over the AST that emits directly into a bytecode.Image, recording
// patch lists for forward references (calls to not-yet-generated functions,
// break/continue inside loops, gotos to not-yet-seen labels) and resolving
// them once the whole program has been emitted.
type Generator struct {
	Image *bytecode.Image
	Syms  *symtab.Table
	Const *constants.Pool

	scope           string // current function's scope name, "" at top level
	curFuncArgBytes int    // total argument byte size of the function currently being generated, for RET's cleanup count

	globalOffset int // running descending-offset counter for the program scope

	callPatches []callPatch
	loops       []*loopContext

	labels      map[string]int // scope-qualified label name -> byte position
	gotoPatches []gotoPatch

	errs []error
}

// New returns a Generator ready to lower a parsed program.
func New(syms *symtab.Table) *Generator {
	return &Generator{
		Image:  bytecode.NewImage(),
		Syms:   syms,
		Const:  constants.New(),
		labels: make(map[string]int),
	}
}

// Generate lowers a full program: funcs are the function definitions
// (their return-value slots are reserved up front so every call site can
// read its callee's result regardless of declaration order; their bodies
// are then emitted in turn), and mainBody is the top-level program's
// statement list, run directly in the implicit "program" scope with
// GBP == BP for the life of the run (spec.md §4.4's global base pointer).
func (g *Generator) Generate(funcs []*ast.FuncDef, mainBody []ast.Stmt) (*bytecode.Image, error) {
	// program starts by jumping past the function bodies to main; JMP pops
	// its target, so the address must be pushed before the JMP itself.
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagAddrMem))
	entryTargetSlot := g.Image.WriteI32(0)
	g.Image.WriteOp(bytecode.JMP)

	registerBuiltins(g.Syms)

	for _, fn := range funcs {
		argTypes := make([]ast.Type, len(fn.Args))
		for i, a := range fn.Args {
			argTypes[i] = a.Type
		}
		sym := g.Syms.AddFunction("", fn.Name, fn.RetType, argTypes, &symtab.FuncOpts{RetDims: fn.RetDims, External: fn.External})
		if sym == nil {
			sym, _ = g.Syms.FindSymbol(fn.Name)
		}
		if fn.RetType != ast.Void {
			g.allocGlobal(retSlotName(fn.Name), fn.RetType, fn.RetDims)
		}
	}

	for _, fn := range funcs {
		g.genFuncDef(fn)
	}

	mainStart := g.Image.Pos()
	g.Image.PatchI32(entryTargetSlot, int32(mainStart))

	frameSize := g.layoutScope("", nil, mainBody)
	if frameSize > 0 {
		g.emitPushInt(int64(frameSize))
		g.Image.WriteOp(bytecode.ADDFRAME)
	}
	for _, stmt := range mainBody {
		g.genStmt(stmt)
	}
	if frameSize > 0 {
		g.emitPushInt(int64(frameSize))
		g.Image.WriteOp(bytecode.REMFRAME)
	}
	g.Image.WriteOp(bytecode.HALT)

	if err := g.resolveCallPatches(); err != nil {
		return nil, err
	}
	g.resolveGotoPatches()
	g.Image.Append(g.Const.TakeBytes())

	if len(g.errs) > 0 {
		return nil, g.errs[0]
	}
	return g.Image, nil
}

func (g *Generator) fail(pos ast.Pos, format string, args ...interface{}) {
	g.errs = append(g.errs, errors.Errorf("compile error at %d:%d: "+format, append([]interface{}{pos.Line, pos.Column}, args...)...))
}

func (g *Generator) resolveCallPatches() error {
	for _, p := range g.callPatches {
		sym, ok := g.Syms.FindSymbol(p.name)
		if !ok || !sym.HasEntry {
			return errors.Errorf("call to undefined function %q", p.name)
		}
		g.Image.PatchI32(p.targetPos, int32(sym.EntryAddr))
		patchI64(g.Image, p.frameSizePos, int64(sym.FrameSize))
	}
	return nil
}

// resolveGotoPatches backpatches every goto emitted by VisitJump, once every
// label in the program has been visited (forward gotos are the reason this
// runs as a second pass, mirroring resolveCallPatches).
func (g *Generator) resolveGotoPatches() {
	for _, p := range g.gotoPatches {
		target, ok := g.labels[p.label]
		if !ok {
			g.fail(p.pos, "goto target %q is undefined", p.label)
			continue
		}
		g.Image.PatchI32(p.targetPos, int32(target))
	}
}

// patchI64 overwrites an 8-byte little-endian immediate slot previously
// written by WriteI64; bytecode.Image exposes PatchI32 for address slots
// but has no 8-byte analog since only calls need to patch an int64 after
// the fact.
func patchI64(im *bytecode.Image, pos int, v int64) {
	binary.LittleEndian.PutUint64(im.Code[pos:pos+8], uint64(v))
}

func (g *Generator) emitPushInt(v int64) {
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagInt))
	g.Image.WriteI64(v)
}

func (g *Generator) emitPushReal(v float64) {
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagReal))
	g.Image.WriteI64(int64(math.Float64bits(v)))
}

func (g *Generator) emitPushBool(v bool) {
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagBool))
	var b byte
	if v {
		b = 1
	}
	g.Image.WriteByte(b)
}

// emitPushAddr pushes an absolute/relative address immediate of the given
// tag (one of the five TagAddr* variants).
func (g *Generator) emitPushAddr(tag bytecode.Tag, offset int32) {
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(tag))
	g.Image.WriteI32(offset)
}

// emitSymAddr pushes the address of sym's memory cell: GBP-relative for
// globals (including function return slots), BP-relative for locals/args.
func (g *Generator) emitSymAddr(sym *symtab.Symbol) {
	if sym.IsGlobal {
		g.emitPushAddr(bytecode.TagAddrGBP, int32(sym.Offset))
	} else {
		g.emitPushAddr(bytecode.TagAddrBP, int32(sym.Offset))
	}
}

// resolveSymbol looks a bare identifier up in the current function scope
// first, falling back to the program's global scope, mirroring the
// original's nested-scope lookup (sym.cpp's FindSymbol walking outward).
func (g *Generator) resolveSymbol(name string) (*symtab.Symbol, bool) {
	if g.scope != "" {
		if sym, ok := g.Syms.FindSymbol(symtab.QualifiedName(g.scope, name)); ok {
			return sym, true
		}
	}
	return g.Syms.FindSymbol(symtab.QualifiedName("", name))
}

// --- ast.ExprVisitor ---

func (g *Generator) genExpr(e ast.Expr) { e.Accept(g) }

func (g *Generator) VisitUnaryMinus(n *ast.UnaryMinus) interface{} {
	g.genExpr(n.Operand)
	g.Image.WriteOp(bytecode.USUB)
	return nil
}

// VisitBinary lowers +, -, * and / per spec.md §4.3's promotion lattice: a
// rank-2-involving multiplication dispatches to MATMUL (tryMatMul) with its
// operands' dimensions pushed ahead of it; dividing by an array is rejected
// at generation time since the VM also refuses it; everything else goes
// through genCastBinary's NOP-then-backpatch scalar casting.
func (g *Generator) VisitBinary(n *ast.Binary) interface{} {
	if n.Mul && !n.Inverted && g.tryMatMul(n) {
		return nil
	}
	if n.Mul && n.Inverted && g.exprType(n.Right).IsArray() {
		g.fail(n.Position(), "cannot divide by an array")
		return nil
	}
	var op bytecode.OpCode
	switch {
	case !n.Mul && !n.Inverted:
		op = bytecode.ADD
	case !n.Mul && n.Inverted:
		op = bytecode.SUB
	case n.Mul && !n.Inverted:
		op = bytecode.MUL
	default:
		op = bytecode.DIV
	}
	g.genCastBinary(n.Left, n.Right, op)
	return nil
}

// tryMatMul recognizes the three matrix-involving multiplication shapes
// (matrix*matrix, matrix*vector, vector*matrix) from its operands' declared
// dimensions and, if one matches, emits the MATMUL sequence: both operands,
// then (rows1, cols1, rows2, cols2) pushed in that order, then MATMUL
// itself, per original_source/src/codegen/ops.cpp's ASTMult. A bare vector
// operand synthesizes the missing dimension as 1, matching the original's
// row/column-vector convention. It reports false (emitting nothing) when
// neither operand has a known 2-D shape, leaving plain MUL to the caller.
func (g *Generator) tryMatMul(n *ast.Binary) bool {
	ld := g.arrayDims(n.Left)
	rd := g.arrayDims(n.Right)
	var r1, c1, r2, c2 int
	switch {
	case len(ld) == 2 && len(rd) == 2:
		r1, c1 = ld[0], ld[1]
		r2, c2 = rd[0], rd[1]
	case len(ld) == 2 && len(rd) == 1:
		r1, c1 = ld[0], ld[1]
		r2, c2 = rd[0], 1
	case len(ld) == 1 && len(rd) == 2:
		r1, c1 = 1, ld[0]
		r2, c2 = rd[0], rd[1]
	default:
		return false
	}
	g.genExpr(n.Left)
	g.genExpr(n.Right)
	g.emitPushInt(int64(r1))
	g.emitPushInt(int64(c1))
	g.emitPushInt(int64(r2))
	g.emitPushInt(int64(c2))
	g.Image.WriteOp(bytecode.MATMUL)
	return true
}

func (g *Generator) VisitModulo(n *ast.Modulo) interface{} {
	g.genCastBinary(n.Left, n.Right, bytecode.MOD)
	return nil
}

func (g *Generator) VisitPower(n *ast.Power) interface{} {
	g.genCastBinary(n.Left, n.Right, bytecode.POW)
	return nil
}

// VisitTranspose only supports a direct variable reference to a statically
// dimensioned matrix: the two dimensions are known at generation time, so
// transposition unrolls into one RDARR per output element rather than
// needing a dedicated VM opcode. Anything else (a transposed sub-expression
// with dimensions only known at runtime) is a generation-time error; the
// original's richer runtime-shaped transpose (vm.h's OpTranspose) was not
// carried over, see DESIGN.md.
func (g *Generator) VisitTranspose(n *ast.Transpose) interface{} {
	ref, ok := n.Operand.(*ast.VarRef)
	if !ok {
		g.fail(n.Position(), "transpose requires a direct matrix variable reference")
		return nil
	}
	sym, ok := g.resolveSymbol(ref.Name)
	if !ok || len(sym.Dims) != 2 {
		g.fail(n.Position(), "transpose requires a 2-D matrix variable")
		return nil
	}
	rows, cols := sym.Dims[0], sym.Dims[1]
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			g.emitSymAddr(sym)
			g.emitPushInt(int64(i*cols + j))
			g.Image.WriteOp(bytecode.RDARR)
		}
	}
	g.emitPushInt(int64(rows * cols))
	g.Image.WriteOp(bytecode.MAKEREALARR)
	return nil
}

// VisitNorm lowers to the "norm" external (scalar absolute value, or a real
// array's Euclidean length), per original_source/src/vm/extfuncs.cpp.
func (g *Generator) VisitNorm(n *ast.Norm) interface{} {
	g.genExpr(n.Operand)
	off := g.Const.AddString("norm")
	g.emitPushAddr(bytecode.TagAddrMem, int32(off))
	g.Image.WriteOp(bytecode.RDMEM)
	g.Image.WriteOp(bytecode.EXTCALL)
	return nil
}

func (g *Generator) VisitVarRef(n *ast.VarRef) interface{} {
	sym, ok := g.resolveSymbol(n.Name)
	if !ok {
		g.fail(n.Position(), "undeclared variable %q", n.Name)
		return nil
	}
	g.emitSymAddr(sym)
	g.Image.WriteOp(bytecode.RDMEM)
	return nil
}

var cmpOps = map[ast.CmpOp]bytecode.OpCode{
	ast.CmpEQ: bytecode.EQU, ast.CmpNEQ: bytecode.NEQU,
	ast.CmpGT: bytecode.GT, ast.CmpLT: bytecode.LT,
	ast.CmpGEQ: bytecode.GEQU, ast.CmpLEQ: bytecode.LEQU,
}

func (g *Generator) VisitCompare(n *ast.Compare) interface{} {
	g.genExpr(n.Left)
	g.genExpr(n.Right)
	g.Image.WriteOp(cmpOps[n.Op])
	return nil
}

func (g *Generator) VisitBoolExpr(n *ast.BoolExpr) interface{} {
	if n.Op == ast.BoolNot {
		g.genExpr(n.Left)
		g.Image.WriteOp(bytecode.NOT)
		return nil
	}
	g.genExpr(n.Left)
	g.genExpr(n.Right)
	switch n.Op {
	case ast.BoolAnd:
		g.Image.WriteOp(bytecode.AND)
	case ast.BoolOr:
		g.Image.WriteOp(bytecode.OR)
	case ast.BoolXor:
		g.Image.WriteOp(bytecode.XOR)
	}
	return nil
}

// VisitCall lowers a call used for its value. A builtin (sym.IsExternal)
// leaves its result on the stack directly, since ExternalFunc pushes its
// own return value; a declared muF function instead leaves its result in
// a dedicated return slot (its arguments pushed in reverse declaration
// order so the callee sees the first-declared argument at the smallest
// BP offset, argBaseOffset), read back here once CALL returns.
func (g *Generator) VisitCall(n *ast.Call) interface{} {
	sym, ok := g.Syms.FindSymbol(n.Name)
	if !ok {
		g.fail(n.Position(), "call to undeclared function %q", n.Name)
		return nil
	}
	g.genCallCommon(n.Name, n.Args)
	if sym.RetType == ast.Void {
		return nil
	}
	if sym.IsExternal {
		return nil
	}
	retSym, ok := g.Syms.FindSymbol(retSlotName(n.Name))
	if !ok {
		g.fail(n.Position(), "missing return slot for %q", n.Name)
		return nil
	}
	g.emitSymAddr(retSym)
	g.Image.WriteOp(bytecode.RDMEM)
	return nil
}

// genCallCommon emits the call sequence shared by Call (expression) and
// CallStmt (statement, result discarded): EXTCALL for a builtin, CALL for
// a declared muF function.
func (g *Generator) genCallCommon(name string, args []ast.Expr) {
	sym, _ := g.Syms.FindSymbol(name)
	if sym != nil && sym.IsExternal {
		g.genExtCall(sym, args)
		return
	}

	for i := len(args) - 1; i >= 0; i-- {
		g.genExpr(args[i])
	}
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagAddrMem))
	targetSlot := g.Image.WriteI32(0)
	g.Image.WriteOp(bytecode.PUSH)
	g.Image.WriteByte(byte(bytecode.TagInt))
	frameSizeSlot := g.Image.WriteI64(0)
	g.Image.WriteOp(bytecode.CALL)
	g.callPatches = append(g.callPatches, callPatch{targetPos: targetSlot, frameSizePos: frameSizeSlot, name: name})
}

// genExtCall lowers a builtin call to EXTCALL: arguments are pushed in
// declaration order (extcall.go's ExternalFuncs pop multi-argument
// builtins like pow/set_isr in declaration order, the opposite convention
// from a muF CALL's BP-relative layout), followed by the builtin's name as
// a string constant and the EXTCALL opcode itself, per spec.md's "pop
// function-name string; dispatch to host runtime".
func (g *Generator) genExtCall(sym *symtab.Symbol, args []ast.Expr) {
	for _, a := range args {
		g.genExpr(a)
	}
	off := g.Const.AddString(sym.ExternalName)
	g.emitPushAddr(bytecode.TagAddrMem, int32(off))
	g.Image.WriteOp(bytecode.RDMEM)
	g.Image.WriteOp(bytecode.EXTCALL)
}

func (g *Generator) VisitNumConst(n *ast.NumConst) interface{} {
	switch n.Type {
	case ast.Integer:
		g.emitPushInt(n.IVal)
	case ast.Boolean:
		g.emitPushBool(n.BVal)
	case ast.Complex:
		off := g.Const.AddComplex(n.CVal)
		g.emitPushAddr(bytecode.TagAddrMem, int32(off))
		g.Image.WriteOp(bytecode.RDMEM)
	default:
		g.emitPushReal(n.RVal)
	}
	return nil
}

func (g *Generator) VisitStrConst(n *ast.StrConst) interface{} {
	off := g.Const.AddString(n.Value)
	g.emitPushAddr(bytecode.TagAddrMem, int32(off))
	g.Image.WriteOp(bytecode.RDMEM)
	return nil
}

// VisitArrayIndex handles 1-D single/ranged access directly; 2-D (matrix)
// access is lowered to a single flattened RDARR using the symbol's declared
// column count, since the VM's array ops are 1-D only (ops.go's
// execRdArr/execWrArr) — the original's OpArithmetic matrix-index path
// (vm.h) folds the same way here at generation time instead of at runtime.
func (g *Generator) VisitArrayIndex(n *ast.ArrayIndex) interface{} {
	sym, ok := g.resolveSymbol(n.Target)
	if !ok {
		g.fail(n.Position(), "undeclared array %q", n.Target)
		return nil
	}
	if n.HasDim2 {
		if n.Ranged1 || n.Ranged2 {
			g.fail(n.Position(), "ranged 2-D array access is not supported")
			return nil
		}
		cols := 64
		if len(sym.Dims) == 2 {
			cols = sym.Dims[1]
		}
		g.emitSymAddr(sym)
		g.genFlatIndex2D(n.Idx1, n.Idx1b, cols)
		g.Image.WriteOp(bytecode.RDARR)
		return nil
	}
	g.emitSymAddr(sym)
	if n.Ranged1 {
		g.genExpr(n.Idx1)
		g.genExpr(n.Idx2)
		g.Image.WriteOp(bytecode.RDARRR)
		return nil
	}
	g.genExpr(n.Idx1)
	g.Image.WriteOp(bytecode.RDARR)
	return nil
}

// genFlatIndex2D emits row*cols+col, the row-major flattening every 2-D
// access (read or write) uses against the VM's 1-D array ops.
func (g *Generator) genFlatIndex2D(row, col ast.Expr, cols int) {
	g.genExpr(row)
	g.emitPushInt(int64(cols))
	g.Image.WriteOp(bytecode.MUL)
	g.genExpr(col)
	g.Image.WriteOp(bytecode.ADD)
}

// VisitArrayLit emits every element, the element count and a MAKE*ARR
// opcode. A cast is emitted only when n.Elem is an array type whose element
// type differs from an element's static type; the parser sets n.Elem to a
// scalar type, so parsed literals get no casts and always use MAKEREALARR,
// which converts integer elements to real at run time.
func (g *Generator) VisitArrayLit(n *ast.ArrayLit) interface{} {
	want := elemScalarType(n.Elem)
	for _, e := range n.Elems {
		g.genExpr(e)
		if got := g.exprType(e); want != ast.Void && got != want && (isNumericScalar(got) || got == ast.String) {
			g.Image.WriteOp(castOpcode(want))
		}
	}
	g.emitPushInt(int64(len(n.Elems)))
	switch n.Elem {
	case ast.IntArray:
		g.Image.WriteOp(bytecode.MAKEINTARR)
	case ast.ComplexArray:
		g.Image.WriteOp(bytecode.MAKECPLXARR)
	default:
		g.Image.WriteOp(bytecode.MAKEREALARR)
	}
	return nil
}
