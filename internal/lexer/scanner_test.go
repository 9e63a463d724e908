package lexer

import "testing"

func tokenTypes(tokens []Token) []TokenType {
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func assertTypes(t *testing.T, src string, want ...TokenType) {
	t.Helper()
	got := tokenTypes(NewScanner(src).ScanTokens())
	want = append(want, TokenEOF)
	if len(got) != len(want) {
		t.Fatalf("ScanTokens(%q) = %v, want %v", src, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("ScanTokens(%q)[%d] = %s, want %s (full: %v, want %v)", src, i, got[i], want[i], got, want)
		}
	}
}

func TestScanKeywordsAreCaseInsensitive(t *testing.T) {
	assertTypes(t, "PROGRAM Program program", TokenProgram, TokenProgram, TokenProgram)
}

func TestScanTypeDeclarationKeywords(t *testing.T) {
	assertTypes(t, "integer real logical complex string",
		TokenIntDecl, TokenRealDecl, TokenBoolDecl, TokenCplxDecl, TokenStringDecl)
}

func TestScanIdentifierNotConfusedWithKeywordPrefix(t *testing.T) {
	assertTypes(t, "doubled", TokenIdent)
}

func TestScanTypeSeparatorVsColon(t *testing.T) {
	assertTypes(t, ":: :", TokenTypeSep, TokenColon)
}

func TestScanComparisonOperators(t *testing.T) {
	assertTypes(t, "= == /= < <= > >=",
		TokenEqual, TokenEqu, TokenNeq, TokenLT, TokenLE, TokenGT, TokenGE)
}

func TestScanLogicalOperatorsRequireDoubling(t *testing.T) {
	assertTypes(t, "&& ||", TokenAnd, TokenOr)
}

func TestScanDottedKeywords(t *testing.T) {
	assertTypes(t, ".true. .false. .and. .or. .not. .eq. .ne. .le. .ge. .lt. .gt.",
		TokenBool, TokenBool, TokenAnd, TokenOr, TokenNot,
		TokenEqu, TokenNeq, TokenLE, TokenGE, TokenLT, TokenGT)
}

func TestScanDottedLabelFallsBackWhenNotAKeyword(t *testing.T) {
	got := NewScanner(".loop_top").ScanTokens()
	if len(got) != 2 || got[0].Type != TokenLabel || got[0].Lexeme != ".loop_top" {
		t.Fatalf("ScanTokens(.loop_top) = %v, want a single LABEL token", got)
	}
}

func TestScanIntegerLiteral(t *testing.T) {
	toks := NewScanner("42").ScanTokens()
	if toks[0].Type != TokenInt || toks[0].intValue() != 42 {
		t.Fatalf("token = %v, want INT 42", toks[0])
	}
}

func TestScanRealLiteralWithExponent(t *testing.T) {
	toks := NewScanner("1.5e3").ScanTokens()
	if toks[0].Type != TokenReal || toks[0].realValue() != 1500 {
		t.Fatalf("token = %v, want REAL 1500", toks[0])
	}
}

func TestScanRealLiteralWithImaginarySuffix(t *testing.T) {
	toks := NewScanner("2.0i").ScanTokens()
	if toks[0].Type != TokenReal || toks[0].realValue() != 2.0 {
		t.Fatalf("token = %v, want REAL 2.0 (suffix stripped)", toks[0])
	}
}

func TestScanIntegerFollowedByImaginarySuffixBecomesReal(t *testing.T) {
	toks := NewScanner("3i").ScanTokens()
	if toks[0].Type != TokenReal || toks[0].realValue() != 3 {
		t.Fatalf("token = %v, want REAL 3 (int+suffix promotes to real)", toks[0])
	}
}

func TestScanStringLiteralStripsQuotes(t *testing.T) {
	toks := NewScanner(`"hello world"`).ScanTokens()
	if toks[0].Type != TokenString || toks[0].Lexeme != "hello world" {
		t.Fatalf("token = %v, want STRING \"hello world\"", toks[0])
	}
}

func TestScanUnterminatedStringProducesNoToken(t *testing.T) {
	toks := NewScanner(`"unterminated`).ScanTokens()
	if len(toks) != 1 || toks[0].Type != TokenEOF {
		t.Fatalf("ScanTokens(unterminated string) = %v, want just EOF", toks)
	}
}

func TestScanLineCommentsAreSkipped(t *testing.T) {
	assertTypes(t, "! a full-line comment\nx = 1", TokenIdent, TokenEqual, TokenInt)
}

func TestScanSlashSlashCommentIsSkipped(t *testing.T) {
	assertTypes(t, "x = 1 // trailing comment\ny = 2", TokenIdent, TokenEqual, TokenInt, TokenIdent, TokenEqual, TokenInt)
}

func TestScanPipeVsOr(t *testing.T) {
	assertTypes(t, "|x| ||", TokenPipe, TokenIdent, TokenPipe, TokenOr)
}

func TestScanLineNumbersAdvanceAcrossNewlines(t *testing.T) {
	toks := NewScanner("x\ny\nz").ScanTokens()
	if toks[0].Line != 1 || toks[1].Line != 2 || toks[2].Line != 3 {
		t.Fatalf("line numbers = %d,%d,%d, want 1,2,3", toks[0].Line, toks[1].Line, toks[2].Line)
	}
}

func TestScanTransposeApostrophe(t *testing.T) {
	assertTypes(t, "a'", TokenIdent, TokenApos)
}

func TestScanArrayBracketsAndComma(t *testing.T) {
	assertTypes(t, "v[1, 2]", TokenIdent, TokenLBracket, TokenInt, TokenComma, TokenInt, TokenRBracket)
}
