package parser

import (
	"testing"

	"muf/internal/ast"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return prog
}

func TestParseMinimalProgram(t *testing.T) {
	prog := mustParse(t, `program hello
		integer :: x = 2
		integer :: y = 3
		print(x + y)
	end program hello`)

	if prog.Name != "hello" {
		t.Fatalf("program name = %q, want hello", prog.Name)
	}
	if len(prog.Body) != 3 {
		t.Fatalf("body len = %d, want 3", len(prog.Body))
	}
	decl, ok := prog.Body[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("stmt 0 = %T, want *ast.VarDecl", prog.Body[0])
	}
	if decl.Names[0] != "x" || decl.Type != ast.Integer {
		t.Fatalf("decl = %+v", decl)
	}
	call, ok := prog.Body[2].(*ast.CallStmt)
	if !ok || call.Name != "print" {
		t.Fatalf("stmt 2 = %+v, want print call", prog.Body[2])
	}
}

func TestParseCountedLoopSum(t *testing.T) {
	prog := mustParse(t, `program loopsum
		integer :: i
		integer :: s = 0
		do i = 1, 5
			s = s + i
		end do
		print(s)
	end program loopsum`)

	loop, ok := prog.Body[2].(*ast.CountedLoop)
	if !ok {
		t.Fatalf("stmt 2 = %T, want *ast.CountedLoop", prog.Body[2])
	}
	if loop.Range.Ident != "i" {
		t.Fatalf("loop ident = %q", loop.Range.Ident)
	}
	begin, ok := loop.Range.Begin.(*ast.NumConst)
	if !ok || begin.IVal != 1 {
		t.Fatalf("loop begin = %+v", loop.Range.Begin)
	}
	if len(loop.Body) != 1 {
		t.Fatalf("loop body len = %d, want 1", len(loop.Body))
	}
	assign, ok := loop.Body[0].(*ast.Assign)
	if !ok || assign.Targets[0] != "s" {
		t.Fatalf("loop body stmt = %+v", loop.Body[0])
	}
}

func TestParseConditional(t *testing.T) {
	prog := mustParse(t, `program branch
		integer :: x = 7
		if x > 5 then
			print(1)
		else
			print(0)
		end if
	end program branch`)

	cond, ok := prog.Body[1].(*ast.Conditional)
	if !ok {
		t.Fatalf("stmt 1 = %T, want *ast.Conditional", prog.Body[1])
	}
	cmp, ok := cond.Cond.(*ast.Compare)
	if !ok || cmp.Op != ast.CmpGT {
		t.Fatalf("cond = %+v", cond.Cond)
	}
	if len(cond.Then) != 1 || len(cond.Else) != 1 {
		t.Fatalf("then/else lens = %d/%d", len(cond.Then), len(cond.Else))
	}
}

func TestParseFunctionCallAndDef(t *testing.T) {
	prog := mustParse(t, `function add(integer :: a, integer :: b) result(integer)
		return a + b
	end function add

	program main
		integer :: total
		total = add(4, 6)
		print(total)
	end program main`)

	if len(prog.Functions) != 1 {
		t.Fatalf("functions = %d, want 1", len(prog.Functions))
	}
	fn := prog.Functions[0]
	if fn.Name != "add" || fn.RetType != ast.Integer || len(fn.Args) != 2 {
		t.Fatalf("fn = %+v", fn)
	}
	ret, ok := fn.Body[0].(*ast.Return)
	if !ok || len(ret.Values) != 1 {
		t.Fatalf("fn body[0] = %+v", fn.Body[0])
	}

	assign, ok := prog.Body[1].(*ast.Assign)
	if !ok {
		t.Fatalf("main stmt 1 = %T", prog.Body[1])
	}
	call, ok := assign.Value.(*ast.Call)
	if !ok || call.Name != "add" || len(call.Args) != 2 {
		t.Fatalf("assign value = %+v", assign.Value)
	}
}

func TestParseArrayIndexingAndAssignment(t *testing.T) {
	prog := mustParse(t, `program arr
		real, dimension(4) :: v
		v[0] = 1.5
		print(v[0])
	end program arr`)

	decl, ok := prog.Body[0].(*ast.VarDecl)
	if !ok || decl.Type != ast.RealArray || decl.Dims[0] != 4 {
		t.Fatalf("decl = %+v", prog.Body[0])
	}
	assign, ok := prog.Body[1].(*ast.ArrayAssign)
	if !ok || assign.Target.Target != "v" {
		t.Fatalf("stmt 1 = %+v", prog.Body[1])
	}
}

func TestParseSelectCase(t *testing.T) {
	prog := mustParse(t, `program sel
		integer :: x = 2
		select x
		case 1
			print(100)
		case 2
			print(200)
		default
			print(0)
		end select
	end program sel`)

	cases, ok := prog.Body[1].(*ast.Cases)
	if !ok {
		t.Fatalf("stmt 1 = %T, want *ast.Cases", prog.Body[1])
	}
	if len(cases.CaseList) != 2 || !cases.HasDefault {
		t.Fatalf("cases = %+v", cases)
	}
}

func TestParseNestedBreak(t *testing.T) {
	prog := mustParse(t, `program nb
		integer :: i
		integer :: j
		do i = 1, 3
			do j = 1, 3
				if j == 2 then
					break 2
				end if
			end do
		end do
	end program nb`)

	outer, ok := prog.Body[2].(*ast.CountedLoop)
	if !ok {
		t.Fatalf("stmt 2 = %T", prog.Body[2])
	}
	inner, ok := outer.Body[0].(*ast.CountedLoop)
	if !ok {
		t.Fatalf("outer body 0 = %T", outer.Body[0])
	}
	cond, ok := inner.Body[0].(*ast.Conditional)
	if !ok {
		t.Fatalf("inner body 0 = %T", inner.Body[0])
	}
	brk, ok := cond.Then[0].(*ast.Break)
	if !ok || brk.Depth != 2 {
		t.Fatalf("break = %+v", cond.Then[0])
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	prog := mustParse(t, `program exprs
		real :: r = 2 + 3 * 4 ^ 2
	end program exprs`)

	decl := prog.Body[0].(*ast.VarDecl)
	add, ok := decl.Inits[0].(*ast.Binary)
	if !ok || add.Mul || add.Inverted {
		t.Fatalf("top node = %+v, want a plain add", decl.Inits[0])
	}
	mul, ok := add.Right.(*ast.Binary)
	if !ok || !mul.Mul {
		t.Fatalf("right of add = %+v, want multiply", add.Right)
	}
	if _, ok := mul.Right.(*ast.Power); !ok {
		t.Fatalf("right of multiply = %+v, want power", mul.Right)
	}
}

func TestParseTransposeAndNorm(t *testing.T) {
	prog := mustParse(t, `program tn
		real :: m = |x|
		real :: p = y'
	end program tn`)

	norm, ok := prog.Body[0].(*ast.VarDecl).Inits[0].(*ast.Norm)
	if !ok {
		t.Fatalf("m init = %+v, want *ast.Norm", prog.Body[0].(*ast.VarDecl).Inits[0])
	}
	if _, ok := norm.Operand.(*ast.VarRef); !ok {
		t.Fatalf("norm operand = %+v", norm.Operand)
	}
	trans, ok := prog.Body[1].(*ast.VarDecl).Inits[0].(*ast.Transpose)
	if !ok {
		t.Fatalf("p init = %+v, want *ast.Transpose", prog.Body[1].(*ast.VarDecl).Inits[0])
	}
	if _, ok := trans.Operand.(*ast.VarRef); !ok {
		t.Fatalf("transpose operand = %+v", trans.Operand)
	}
}

func TestParseDottedBooleanOperators(t *testing.T) {
	prog := mustParse(t, `program dotted
		logical :: ok = .true. .and. .not. .false.
	end program dotted`)

	decl := prog.Body[0].(*ast.VarDecl)
	and, ok := decl.Inits[0].(*ast.BoolExpr)
	if !ok || and.Op != ast.BoolAnd {
		t.Fatalf("init = %+v", decl.Inits[0])
	}
	if _, ok := and.Left.(*ast.NumConst); !ok {
		t.Fatalf("left = %+v", and.Left)
	}
	not, ok := and.Right.(*ast.BoolExpr)
	if !ok || not.Op != ast.BoolNot {
		t.Fatalf("right = %+v", and.Right)
	}
}

func TestParseGotoAndLabel(t *testing.T) {
	prog := mustParse(t, `program gt
		goto .there
		.there
		print(1)
	end program gt`)

	jump, ok := prog.Body[0].(*ast.Jump)
	if !ok || jump.Label != ".there" || jump.ComeFrom {
		t.Fatalf("stmt 0 = %+v", prog.Body[0])
	}
	if _, ok := prog.Body[1].(*ast.Label); !ok {
		t.Fatalf("stmt 1 = %T, want *ast.Label", prog.Body[1])
	}
}
