// Package parser turns a muF token stream (internal/lexer) into the typed
// AST internal/ast defines, per spec.md §1: parsing is a collaborator
// domain, out of the specification's core, but still needed to exercise
// internal/compiler end to end. The recursive-descent structure and
// operator-precedence table mirror the teacher's parser, re-targeted from
// its C-like expression grammar to muF's Fortran-flavored syntax
// (program/function blocks, `::`-separated declarations, `do`/`while`/
// `if-then-else`/`select-case`, `~`-ranged array access).
package parser

import (
	"fmt"
	"strings"

	"muf/internal/ast"
	"muf/internal/lexer"
)

// positioner is implemented by every *ast.X node via its embedded base.
type positioner interface{ SetPos(ast.Pos) }

// withPos stamps a freshly constructed node with its source position and
// returns it, so every parse* function can tag-and-return in one line.
func withPos[T positioner](n T, pos ast.Pos) T {
	n.SetPos(pos)
	return n
}

// Program is the parsed result: the named top-level program body plus
// every function/procedure definition encountered anywhere in the file
// (muF, like Fortran, does not require definitions to precede use).
type Program struct {
	Name      string
	Functions []*ast.FuncDef
	Body      []ast.Stmt
}

// precedence mirrors the teacher's operator-precedence table, reordered to
// muF's operator set: logical or/and loosest, comparison next, then
// additive, then multiplicative/modulo; power and unary/postfix operators
// are handled directly by parseUnary/parsePower rather than through this
// table, since they bind tighter than every binary entry here.
var precedence = map[lexer.TokenType]int{
	lexer.TokenOr:  1,
	lexer.TokenXor: 1,
	lexer.TokenAnd: 2,
	lexer.TokenEqu: 3, lexer.TokenNeq: 3,
	lexer.TokenLT: 3, lexer.TokenGT: 3, lexer.TokenLE: 3, lexer.TokenGE: 3,
	lexer.TokenPlus: 4, lexer.TokenMinus: 4,
	lexer.TokenStar: 5, lexer.TokenSlash: 5, lexer.TokenPct: 5,
}

type Parser struct {
	tokens []lexer.Token
	pos    int
}

func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses a whole muF source file (one program block plus any number
// of function/procedure definitions) and returns the assembled Program.
func Parse(source string) (*Program, error) {
	toks := lexer.NewScanner(source).ScanTokens()
	return New(toks).ParseFile()
}

func (p *Parser) ParseFile() (*Program, error) {
	prog := &Program{}
	sawProgram := false
	for !p.check(lexer.TokenEOF) {
		switch {
		case p.check(lexer.TokenFunction) || p.check(lexer.TokenProcedure):
			fn, err := p.parseFuncDef()
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
		case p.check(lexer.TokenProgram):
			if sawProgram {
				return nil, p.errorf("more than one program block")
			}
			sawProgram = true
			name, body, err := p.parseProgramBlock()
			if err != nil {
				return nil, err
			}
			prog.Name = name
			prog.Body = body
		default:
			return nil, p.errorf("expected 'program' or 'function', got %s", p.peek().Type)
		}
	}
	if !sawProgram {
		return nil, p.errorf("source has no program block")
	}
	return prog, nil
}

func (p *Parser) parseProgramBlock() (string, []ast.Stmt, error) {
	p.advance() // 'program'
	name, err := p.expectIdentName()
	if err != nil {
		return "", nil, err
	}
	p.skipSemicolons()
	body, err := p.parseStmtsUntilEnd()
	if err != nil {
		return "", nil, err
	}
	if err := p.expectEnd(lexer.TokenProgram); err != nil {
		return "", nil, err
	}
	if p.check(lexer.TokenIdent) {
		p.advance() // trailing repeated program name
	}
	return name, body, nil
}

// parseFuncDef parses `function NAME ( [typedecl ident, ...] ) result ( typedecl )
// stmts end function`. `procedure` is the same shape with an implicit void
// return type and no `result` clause.
func (p *Parser) parseFuncDef() (*ast.FuncDef, error) {
	startPos := p.tokPos()
	isFunc := p.check(lexer.TokenFunction)
	p.advance() // 'function' | 'procedure'
	name, err := p.expectIdentName()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	var args []ast.Arg
	for !p.check(lexer.TokenRParen) {
		ty, dims, err := p.parseTypeDecl()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.TokenTypeSep); err != nil {
			return nil, err
		}
		argName, err := p.expectIdentName()
		if err != nil {
			return nil, err
		}
		args = append(args, ast.Arg{Name: argName, Type: ty, Dims: dims})
		if p.check(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}

	retType := ast.Void
	var retDims []int
	var multi []ast.Arg
	if isFunc && p.check(lexer.TokenResult) {
		p.advance()
		if err := p.expect(lexer.TokenLParen); err != nil {
			return nil, err
		}
		retType, retDims, err = p.parseTypeDecl()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
	} else if isFunc && p.check(lexer.TokenResults) {
		p.advance()
		if err := p.expect(lexer.TokenLParen); err != nil {
			return nil, err
		}
		for {
			ty, dims, err := p.parseTypeDecl()
			if err != nil {
				return nil, err
			}
			if err := p.expect(lexer.TokenTypeSep); err != nil {
				return nil, err
			}
			rname, err := p.expectIdentName()
			if err != nil {
				return nil, err
			}
			if retType == ast.Void && len(multi) == 0 {
				retType, retDims = ty, dims
			} else {
				multi = append(multi, ast.Arg{Name: rname, Type: ty, Dims: dims})
			}
			if p.check(lexer.TokenComma) {
				p.advance()
				continue
			}
			break
		}
		if err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
	}
	p.skipSemicolons()

	body, err := p.parseStmtsUntilEnd()
	if err != nil {
		return nil, err
	}
	kw := lexer.TokenFunction
	if !isFunc {
		kw = lexer.TokenProcedure
	}
	if err := p.expectEnd(kw); err != nil {
		return nil, err
	}
	if p.check(lexer.TokenIdent) {
		p.advance() // trailing repeated function name
	}

	return withPos(&ast.FuncDef{
		Name: name, RetType: retType, RetDims: retDims,
		Args: args, Body: body, MultiReturn: multi,
	}, startPos), nil
}

// parseStmtsUntilEnd parses statements separated by ';' until a keyword
// that closes an enclosing block is seen (end/else/case/default), without
// consuming that keyword.
func (p *Parser) parseStmtsUntilEnd() ([]ast.Stmt, error) {
	var stmts []ast.Stmt
	for {
		p.skipSemicolons()
		if p.atBlockTerminator() {
			return stmts, nil
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
}

func (p *Parser) atBlockTerminator() bool {
	if p.check(lexer.TokenEOF) {
		return true
	}
	switch p.peek().Type {
	case lexer.TokenEnd, lexer.TokenElse, lexer.TokenCase, lexer.TokenDefault:
		return true
	}
	return false
}

func (p *Parser) skipSemicolons() {
	for p.check(lexer.TokenSemicolon) {
		p.advance()
	}
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	pos := p.tokPos()
	switch {
	case p.isTypeKeyword():
		return p.parseVarDecl()
	case p.check(lexer.TokenIf):
		return p.parseConditional()
	case p.check(lexer.TokenSelect):
		return p.parseCases()
	case p.check(lexer.TokenDo):
		return p.parseCountedLoop()
	case p.check(lexer.TokenWhile):
		return p.parseWhileLoop()
	case p.check(lexer.TokenBreak):
		p.advance()
		return withPos(&ast.Break{Depth: p.optionalDepth()}, pos), nil
	case p.check(lexer.TokenNext):
		p.advance()
		return withPos(&ast.Continue{Depth: p.optionalDepth()}, pos), nil
	case p.check(lexer.TokenReturn):
		return p.parseReturn()
	case p.check(lexer.TokenGoto):
		p.advance()
		label, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.Jump{Label: label}, pos), nil
	case p.check(lexer.TokenComefrom):
		p.advance()
		label, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.Jump{Label: label, ComeFrom: true}, pos), nil
	case p.check(lexer.TokenLabel):
		name := p.advance().Lexeme
		return withPos(&ast.Label{Name: name}, pos), nil
	case p.check(lexer.TokenIdent):
		return p.parseIdentLedStmt()
	}
	return nil, p.errorf("unexpected token %s in statement", p.peek().Type)
}

func (p *Parser) optionalDepth() int {
	if p.check(lexer.TokenInt) {
		return int(p.advance().IntValue())
	}
	return 1
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	pos := p.tokPos()
	p.advance() // 'return'
	if p.check(lexer.TokenSemicolon) || p.atBlockTerminator() {
		return withPos(&ast.Return{JumpOnly: true}, pos), nil
	}
	var vals []ast.Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		vals = append(vals, e)
		if p.check(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return withPos(&ast.Return{Values: vals}, pos), nil
}

// parseIdentLedStmt disambiguates assignment, multi-target assignment,
// array-element assignment, and a bare call statement, all of which start
// with an identifier.
func (p *Parser) parseIdentLedStmt() (ast.Stmt, error) {
	pos := p.tokPos()
	names := []string{p.advance().Lexeme}

	if p.check(lexer.TokenLBracket) {
		idx, err := p.parseArrayIndexSuffix(names[0], pos)
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.TokenEqual); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.ArrayAssign{Target: idx, Value: val}, pos), nil
	}

	if p.check(lexer.TokenLParen) {
		args, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.CallStmt{Name: names[0], Args: args}, pos), nil
	}

	for p.check(lexer.TokenComma) {
		p.advance()
		n, err := p.expectIdentName()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	if err := p.expect(lexer.TokenEqual); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return withPos(&ast.Assign{Targets: names, Value: val}, pos), nil
}

func (p *Parser) parseCallArgs() ([]ast.Expr, error) {
	p.advance() // '('
	var args []ast.Expr
	for !p.check(lexer.TokenRParen) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.check(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return args, p.expect(lexer.TokenRParen)
}

// parseArrayIndexSuffix parses `[ idx1 [~ idx1b] [, idx2 [~ idx2b]] ]`
// following a variable name already consumed by the caller.
func (p *Parser) parseArrayIndexSuffix(target string, pos ast.Pos) (*ast.ArrayIndex, error) {
	p.advance() // '['
	idx := &ast.ArrayIndex{Target: target}
	idx.Pos = pos

	e1, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	idx.Idx1 = e1
	if p.check(lexer.TokenRange) {
		p.advance()
		idx.Ranged1 = true
		idx.Idx2, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.check(lexer.TokenComma) {
		p.advance()
		idx.HasDim2 = true
		e2, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		idx.Idx1b = e2
		if p.check(lexer.TokenRange) {
			p.advance()
			idx.Ranged2 = true
			idx.Idx2b, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
	}
	return idx, p.expect(lexer.TokenRBracket)
}

func (p *Parser) parseConditional() (ast.Stmt, error) {
	pos := p.tokPos()
	p.advance() // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.TokenThen); err != nil {
		return nil, err
	}
	thenBody, err := p.parseStmtsUntilEnd()
	if err != nil {
		return nil, err
	}
	var elseBody []ast.Stmt
	if p.check(lexer.TokenElse) {
		p.advance()
		elseBody, err = p.parseStmtsUntilEnd()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectEnd(lexer.TokenIf); err != nil {
		return nil, err
	}
	return withPos(&ast.Conditional{Cond: cond, Then: thenBody, Else: elseBody}, pos), nil
}

func (p *Parser) parseCases() (ast.Stmt, error) {
	pos := p.tokPos()
	p.advance() // 'select'
	scrutinee, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSemicolons()
	n := &ast.Cases{Scrutinee: scrutinee}
	n.Pos = pos
	for p.check(lexer.TokenCase) {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.check(lexer.TokenColon) {
			p.advance()
		}
		body, err := p.parseStmtsUntilEnd()
		if err != nil {
			return nil, err
		}
		n.CaseList = append(n.CaseList, ast.Case{Expr: e, Stmts: body})
	}
	if p.check(lexer.TokenDefault) {
		p.advance()
		if p.check(lexer.TokenColon) {
			p.advance()
		}
		n.HasDefault = true
		n.Default, err = p.parseStmtsUntilEnd()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectEnd(lexer.TokenSelect); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseCountedLoop() (ast.Stmt, error) {
	pos := p.tokPos()
	p.advance() // 'do'
	ident, err := p.expectIdentName()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.TokenEqual); err != nil {
		return nil, err
	}
	begin, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.TokenComma); err != nil {
		return nil, err
	}
	end, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var inc ast.Expr
	if p.check(lexer.TokenComma) {
		p.advance()
		inc, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseStmtsUntilEnd()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(lexer.TokenDo); err != nil {
		return nil, err
	}
	rng := ast.VarRange{Ident: ident, Begin: begin, End: end, Inc: inc}
	return withPos(&ast.CountedLoop{Range: rng, Body: body}, pos), nil
}

func (p *Parser) parseWhileLoop() (ast.Stmt, error) {
	pos := p.tokPos()
	p.advance() // 'while'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStmtsUntilEnd()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(lexer.TokenWhile); err != nil {
		return nil, err
	}
	return withPos(&ast.WhileLoop{Cond: cond, Body: body}, pos), nil
}

// parseVarDecl parses `typekw [, dimension(d1[,d2])] :: name[(d1[,d2])] [=
// expr] (, name... )*`. A per-name `(dims)` suffix overrides the shared
// dimension clause; omitting both yields a scalar.
func (p *Parser) parseVarDecl() (ast.Stmt, error) {
	pos := p.tokPos()
	ty, sharedDims, err := p.parseTypeDecl()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.TokenTypeSep); err != nil {
		return nil, err
	}
	n := &ast.VarDecl{Type: ty}
	n.Pos = pos
	for {
		name, err := p.expectIdentName()
		if err != nil {
			return nil, err
		}
		dims := sharedDims
		if p.check(lexer.TokenLParen) {
			p.advance()
			dims, err = p.parseIntList()
			if err != nil {
				return nil, err
			}
			if err := p.expect(lexer.TokenRParen); err != nil {
				return nil, err
			}
		}
		var init ast.Expr
		if p.check(lexer.TokenEqual) {
			p.advance()
			init, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		n.Names = append(n.Names, name)
		n.Dims = dims // muF declarations share one shape per statement in practice
		n.Inits = append(n.Inits, init)
		if p.check(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return n, nil
}

func (p *Parser) parseIntList() ([]int, error) {
	var dims []int
	for {
		tok := p.advance()
		if tok.Type != lexer.TokenInt {
			return nil, p.errorAt(tok, "expected integer dimension, got %s", tok.Type)
		}
		dims = append(dims, int(tok.IntValue()))
		if p.check(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return dims, nil
}

// parseTypeDecl parses a scalar/array type keyword with an optional
// `, dimension(d1[,d2])` clause and returns the declared type plus dims.
func (p *Parser) parseTypeDecl() (ast.Type, []int, error) {
	var base ast.Type
	switch p.peek().Type {
	case lexer.TokenIntDecl:
		base = ast.Integer
	case lexer.TokenRealDecl:
		base = ast.Real
	case lexer.TokenBoolDecl:
		base = ast.Boolean
	case lexer.TokenCplxDecl:
		base = ast.Complex
	case lexer.TokenStringDecl:
		base = ast.String
	default:
		return ast.Void, nil, p.errorf("expected a type keyword, got %s", p.peek().Type)
	}
	p.advance()

	var dims []int
	if p.check(lexer.TokenComma) {
		save := p.pos
		p.advance()
		if p.check(lexer.TokenDim) {
			p.advance()
			if err := p.expect(lexer.TokenLParen); err != nil {
				return ast.Void, nil, err
			}
			var err error
			dims, err = p.parseIntList()
			if err != nil {
				return ast.Void, nil, err
			}
			if err := p.expect(lexer.TokenRParen); err != nil {
				return ast.Void, nil, err
			}
		} else {
			p.pos = save // the comma belongs to the caller (e.g. argument list), not us
		}
	}
	if len(dims) > 0 {
		switch base {
		case ast.Real:
			base = ast.RealArray
		case ast.Integer:
			base = ast.IntArray
		case ast.Complex:
			base = ast.ComplexArray
		}
	}
	return base, dims, nil
}

func (p *Parser) isTypeKeyword() bool {
	switch p.peek().Type {
	case lexer.TokenIntDecl, lexer.TokenRealDecl, lexer.TokenBoolDecl, lexer.TokenCplxDecl, lexer.TokenStringDecl:
		return true
	}
	return false
}

// ---- expressions ----

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseBinary(1)
}

func (p *Parser) parseBinary(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		opTok := p.peek()
		prec, ok := precedence[opTok.Type]
		if !ok || prec < minPrec {
			return left, nil
		}
		pos := p.tokPos()
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left, err = combineBinary(opTok.Type, left, right, pos)
		if err != nil {
			return nil, err
		}
	}
}

func combineBinary(tt lexer.TokenType, left, right ast.Expr, pos ast.Pos) (ast.Expr, error) {
	switch tt {
	case lexer.TokenPlus:
		return withPos(&ast.Binary{Left: left, Right: right}, pos), nil
	case lexer.TokenMinus:
		return withPos(&ast.Binary{Left: left, Right: right, Inverted: true}, pos), nil
	case lexer.TokenStar:
		return withPos(&ast.Binary{Left: left, Right: right, Mul: true}, pos), nil
	case lexer.TokenSlash:
		return withPos(&ast.Binary{Left: left, Right: right, Mul: true, Inverted: true}, pos), nil
	case lexer.TokenPct:
		return withPos(&ast.Modulo{Left: left, Right: right}, pos), nil
	case lexer.TokenEqu:
		return withPos(&ast.Compare{Left: left, Right: right, Op: ast.CmpEQ}, pos), nil
	case lexer.TokenNeq:
		return withPos(&ast.Compare{Left: left, Right: right, Op: ast.CmpNEQ}, pos), nil
	case lexer.TokenGT:
		return withPos(&ast.Compare{Left: left, Right: right, Op: ast.CmpGT}, pos), nil
	case lexer.TokenLT:
		return withPos(&ast.Compare{Left: left, Right: right, Op: ast.CmpLT}, pos), nil
	case lexer.TokenGE:
		return withPos(&ast.Compare{Left: left, Right: right, Op: ast.CmpGEQ}, pos), nil
	case lexer.TokenLE:
		return withPos(&ast.Compare{Left: left, Right: right, Op: ast.CmpLEQ}, pos), nil
	case lexer.TokenAnd:
		return withPos(&ast.BoolExpr{Left: left, Right: right, Op: ast.BoolAnd}, pos), nil
	case lexer.TokenOr:
		return withPos(&ast.BoolExpr{Left: left, Right: right, Op: ast.BoolOr}, pos), nil
	case lexer.TokenXor:
		return withPos(&ast.BoolExpr{Left: left, Right: right, Op: ast.BoolXor}, pos), nil
	}
	return nil, fmt.Errorf("internal: unhandled binary operator %s", tt)
}

// parseUnary handles unary minus and logical not, then defers to
// parsePower for the tighter-binding operators.
func (p *Parser) parseUnary() (ast.Expr, error) {
	pos := p.tokPos()
	switch p.peek().Type {
	case lexer.TokenMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.UnaryMinus{Operand: operand}, pos), nil
	case lexer.TokenNot:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.BoolExpr{Left: operand, Op: ast.BoolNot}, pos), nil
	}
	return p.parsePower()
}

// parsePower is right-associative and binds tighter than unary minus's
// operand parse but looser than postfix transpose.
func (p *Parser) parsePower() (ast.Expr, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.check(lexer.TokenPow) {
		pos := p.tokPos()
		p.advance()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return withPos(&ast.Power{Left: base, Right: exp}, pos), nil
	}
	return base, nil
}

// parsePostfix handles the transpose postfix operator, which the original
// grammar gives the tightest binding of any binary/unary form.
func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.TokenApos) {
		pos := p.tokPos()
		p.advance()
		e = withPos(&ast.Transpose{Operand: e}, pos)
	}
	return e, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	pos := p.tokPos()
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenInt:
		p.advance()
		return withPos(&ast.NumConst{Type: ast.Integer, IVal: tok.IntValue()}, pos), nil
	case lexer.TokenReal:
		p.advance()
		return withPos(&ast.NumConst{Type: ast.Real, RVal: tok.RealValue()}, pos), nil
	case lexer.TokenBool:
		p.advance()
		return withPos(&ast.NumConst{Type: ast.Boolean, BVal: strings.EqualFold(tok.Lexeme, ".true.")}, pos), nil
	case lexer.TokenString:
		p.advance()
		return withPos(&ast.StrConst{Value: tok.Lexeme}, pos), nil
	case lexer.TokenLParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expect(lexer.TokenRParen)
	case lexer.TokenPipe:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.TokenPipe); err != nil {
			return nil, err
		}
		return withPos(&ast.Norm{Operand: e}, pos), nil
	case lexer.TokenLBracket:
		return p.parseArrayLit(pos)
	case lexer.TokenIdent:
		name := p.advance().Lexeme
		if p.check(lexer.TokenLParen) {
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			return withPos(&ast.Call{Name: name, Args: args}, pos), nil
		}
		if p.check(lexer.TokenLBracket) {
			idx, err := p.parseArrayIndexSuffix(name, pos)
			if err != nil {
				return nil, err
			}
			return idx, nil
		}
		return withPos(&ast.VarRef{Name: name}, pos), nil
	}
	return nil, p.errorf("unexpected token %s in expression", tok.Type)
}

func (p *Parser) parseArrayLit(pos ast.Pos) (ast.Expr, error) {
	p.advance() // '['
	n := &ast.ArrayLit{Elem: ast.Real}
	n.Pos = pos
	for !p.check(lexer.TokenRBracket) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Elems = append(n.Elems, e)
		if p.check(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(lexer.TokenRBracket); err != nil {
		return nil, err
	}
	if len(n.Elems) > 0 {
		if nc, ok := n.Elems[0].(*ast.NumConst); ok {
			n.Elem = nc.Type
		}
	}
	return n, nil
}

// ---- token plumbing ----

func (p *Parser) peek() lexer.Token { return p.tokens[p.pos] }

func (p *Parser) tokPos() ast.Pos { return ast.Pos{Line: p.peek().Line} }

func (p *Parser) advance() lexer.Token {
	t := p.tokens[p.pos]
	if t.Type != lexer.TokenEOF {
		p.pos++
	}
	return t
}

func (p *Parser) check(tt lexer.TokenType) bool { return p.peek().Type == tt }

func (p *Parser) expect(tt lexer.TokenType) error {
	if !p.check(tt) {
		return p.errorf("expected %s, got %s %q", tt, p.peek().Type, p.peek().Lexeme)
	}
	p.advance()
	return nil
}

// expectEnd consumes `end KEYWORD`, where KEYWORD names the construct being
// closed (if/do/while/select/function/procedure/program).
func (p *Parser) expectEnd(kw lexer.TokenType) error {
	if err := p.expect(lexer.TokenEnd); err != nil {
		return err
	}
	return p.expect(kw)
}

func (p *Parser) expectIdentName() (string, error) {
	if !p.check(lexer.TokenIdent) {
		return "", p.errorf("expected identifier, got %s", p.peek().Type)
	}
	return p.advance().Lexeme, nil
}

func (p *Parser) expectLabelName() (string, error) {
	if !p.check(lexer.TokenLabel) {
		return "", p.errorf("expected label, got %s", p.peek().Type)
	}
	return p.advance().Lexeme, nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", p.peek().Line, fmt.Sprintf(format, args...))
}

func (p *Parser) errorAt(tok lexer.Token, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", tok.Line, fmt.Sprintf(format, args...))
}
