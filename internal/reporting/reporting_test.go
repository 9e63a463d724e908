package reporting

import (
	"strings"
	"testing"

	"muf/internal/ast"
	"muf/internal/symtab"
)

func TestDumpSymbolTableRendersScalarsAndArrays(t *testing.T) {
	tbl := symtab.New()

	x := tbl.AddSymbol("main", "x", ast.Real, nil)
	x.Offset, x.HasOffset = 16, true
	tbl.FindSymbol(x.ScopedName)

	arr := tbl.AddSymbol("main", "v", ast.RealArray, []int{4})
	arr.Offset, arr.HasOffset = 32, true

	var buf strings.Builder
	if err := DumpSymbolTable(tbl, 1024, &buf); err != nil {
		t.Fatalf("DumpSymbolTable: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "main::x") {
		t.Errorf("missing scalar entry, got:\n%s", out)
	}
	if !strings.Contains(out, "main::v") || !strings.Contains(out, "4") {
		t.Errorf("missing array entry with dims, got:\n%s", out)
	}
	if !strings.Contains(out, "16") {
		t.Errorf("missing scalar address, got:\n%s", out)
	}
}

func TestDumpSymbolTableRendersFunctionFlags(t *testing.T) {
	tbl := symtab.New()
	fn := tbl.AddFunction("", "area", ast.Real, []ast.Type{ast.Real, ast.Real}, nil)
	fn.EntryAddr, fn.HasEntry = 10, true
	fn.EndAddr, fn.HasEndAddr = 40, true

	ext := tbl.AddFunction("", "sqrt", ast.Real, []ast.Type{ast.Real}, &symtab.FuncOpts{External: "libm_sqrt"})
	_ = ext

	var buf strings.Builder
	if err := DumpSymbolTable(tbl, 4096, &buf); err != nil {
		t.Fatalf("DumpSymbolTable: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "10-40") {
		t.Errorf("missing function address range, got:\n%s", out)
	}
	if !strings.Contains(out, "ret:real") {
		t.Errorf("missing ret flag, got:\n%s", out)
	}
	if !strings.Contains(out, "ext:libm_sqrt") {
		t.Errorf("missing ext flag, got:\n%s", out)
	}
}

func TestDumpSymbolTableTemporaryHasNoAddress(t *testing.T) {
	tbl := symtab.New()
	tbl.AddTemp("$const1", ast.Integer)

	var buf strings.Builder
	if err := DumpSymbolTable(tbl, 0, &buf); err != nil {
		t.Fatalf("DumpSymbolTable: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "tmp") {
		t.Errorf("missing tmp flag, got:\n%s", out)
	}
}

func TestDumpASTWrapsStatementsInRoot(t *testing.T) {
	body := []ast.Stmt{
		&ast.ExprStmt{Expr: &ast.NumConst{Type: ast.Integer, IVal: 7}},
	}

	var buf strings.Builder
	if err := DumpAST(nil, body, &buf); err != nil {
		t.Fatalf("DumpAST: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(strings.TrimSpace(out), "<ast>") {
		t.Errorf("expected <ast> root, got:\n%s", out)
	}
	if !strings.Contains(out, "</ast>") {
		t.Errorf("missing closing </ast>, got:\n%s", out)
	}
}

func TestDumpASTEmitsCallTagWithIdentAttr(t *testing.T) {
	body := []ast.Stmt{
		&ast.ExprStmt{Expr: &ast.Call{Name: "norm", Args: []ast.Expr{&ast.NumConst{Type: ast.Real, RVal: 1.5}}}},
	}

	var buf strings.Builder
	if err := DumpAST(nil, body, &buf); err != nil {
		t.Fatalf("DumpAST: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `ident="norm"`) {
		t.Errorf("expected Call tag with ident attribute, got:\n%s", out)
	}
}

func TestDumpASTRendersFunctionBody(t *testing.T) {
	fn := &ast.FuncDef{
		Name:    "double",
		RetType: ast.Integer,
		Args:    []ast.Arg{{Name: "n", Type: ast.Integer}},
		Body: []ast.Stmt{
			&ast.Return{Values: []ast.Expr{&ast.Binary{
				Left:  &ast.VarRef{Name: "n"},
				Right: &ast.VarRef{Name: "n"},
			}}},
		},
	}

	var buf strings.Builder
	if err := DumpAST([]*ast.FuncDef{fn}, nil, &buf); err != nil {
		t.Fatalf("DumpAST: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "FuncDef") {
		t.Errorf("expected FuncDef tag, got:\n%s", out)
	}
	if !strings.Contains(out, "Return") {
		t.Errorf("expected Return tag, got:\n%s", out)
	}
}
