package lexer

import (
	"testing"

	"fallen/token"
)

func tokenTypesOf(toks []token.Token) []token.TokenType {
	out := make([]token.TokenType, len(toks))
	for i, tk := range toks {
		out[i] = tk.TokenType
	}
	return out
}

func assertTypes(t *testing.T, got []token.Token, want []token.TokenType) {
	t.Helper()
	gotTypes := tokenTypesOf(got)
	if len(gotTypes) != len(want) {
		t.Fatalf("token count = %d, want %d\ngot: %v\nwant: %v", len(gotTypes), len(want), gotTypes, want)
	}
	for i := range want {
		if gotTypes[i] != want[i] {
			t.Errorf("token[%d] = %s, want %s", i, gotTypes[i], want[i])
		}
	}
}

func TestScanPunctuationAndOperators(t *testing.T) {
	input := `(){}[],:* + - / == != < <= > >=`
	lex := New(input)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTypes(t, toks, []token.TokenType{
		token.LPA, token.RPA, token.LCUR, token.RCUR, token.LBRACK, token.RBRACK,
		token.COMMA, token.COLON, token.MULT, token.ADD, token.SUB, token.DIV,
		token.EQUAL_EQUAL, token.NOT_EQUAL, token.LESS, token.LESS_EQUAL,
		token.LARGER, token.LARGER_EQUAL, token.EOF,
	})
}

func TestScanTypeMarkers(t *testing.T) {
	input := `x =i 1`
	lex := New(input)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTypes(t, toks, []token.TokenType{token.IDENTIFIER, token.MARKER_INT, token.INT, token.EOF})
}

func TestScanAllTypeMarkerVariants(t *testing.T) {
	input := `=s =i =f =b =l =d`
	lex := New(input)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTypes(t, toks, []token.TokenType{
		token.MARKER_STR, token.MARKER_INT, token.MARKER_FLT,
		token.MARKER_BOOL, token.MARKER_LIST, token.MARKER_DICT, token.EOF,
	})
}

func TestScanBareEqualsIsError(t *testing.T) {
	lex := New(`x = 1`)
	_, err := lex.Scan()
	if err == nil {
		t.Fatal("expected error for bare '=', got nil")
	}
	if _, ok := err.(LexError); !ok {
		t.Fatalf("expected LexError, got %T", err)
	}
}

func TestScanKeywords(t *testing.T) {
	input := `if elif else while for in stop continue func return match import export and or not true false set to add insert remove call trace on off`
	lex := New(input)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.TokenType{
		token.IF, token.ELIF, token.ELSE, token.WHILE, token.FOR, token.IN,
		token.STOP, token.CONTINUE, token.FUNC, token.RETURN, token.MATCH,
		token.IMPORT, token.EXPORT, token.AND, token.OR, token.NOT, token.TRUE,
		token.FALSE, token.SET, token.TO, token.ADD_KW, token.INSERT,
		token.REMOVE, token.CALL, token.TRACE, token.ON, token.OFF, token.EOF,
	}
	assertTypes(t, toks, want)
}

func TestScanIdentifier(t *testing.T) {
	lex := New(`myVar_2`)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].TokenType != token.IDENTIFIER || toks[0].Lexeme != "myVar_2" {
		t.Errorf("got %+v, want IDENTIFIER myVar_2", toks[0])
	}
}

func TestScanIntegerLiteral(t *testing.T) {
	lex := New(`42`)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].TokenType != token.INT || toks[0].Literal != int64(42) {
		t.Errorf("got %+v, want INT 42", toks[0])
	}
}

func TestScanFloatLiteral(t *testing.T) {
	lex := New(`3.14`)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].TokenType != token.FLOAT || toks[0].Literal != float64(3.14) {
		t.Errorf("got %+v, want FLOAT 3.14", toks[0])
	}
}

func TestScanStringLiteralWithEscapes(t *testing.T) {
	lex := New(`"hi\n\t\"there\\"`)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "hi\n\t\"there\\"
	if toks[0].TokenType != token.STRING || toks[0].Literal != want {
		t.Errorf("got %+v, want STRING %q", toks[0], want)
	}
}

func TestScanUnterminatedStringIsError(t *testing.T) {
	lex := New(`"abc`)
	_, err := lex.Scan()
	if err == nil {
		t.Fatal("expected error for unterminated string, got nil")
	}
}

func TestScanUnknownEscapeIsError(t *testing.T) {
	lex := New(`"a\qb"`)
	_, err := lex.Scan()
	if err == nil {
		t.Fatal("expected error for unknown escape sequence, got nil")
	}
}

func TestScanCommentIsIgnored(t *testing.T) {
	lex := New("x =i 1 # this is a comment\ny =i 2")
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTypes(t, toks, []token.TokenType{
		token.IDENTIFIER, token.MARKER_INT, token.INT,
		token.IDENTIFIER, token.MARKER_INT, token.INT, token.EOF,
	})
}

func TestScanTracksLineNumbers(t *testing.T) {
	lex := New("x =i 1\ny =i 2\n")
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Line != 1 {
		t.Errorf("first token line = %d, want 1", toks[0].Line)
	}
	if toks[3].Line != 2 {
		t.Errorf("second-line token line = %d, want 2", toks[3].Line)
	}
}

func TestScanUnexpectedCharacterIsError(t *testing.T) {
	lex := New("@")
	_, err := lex.Scan()
	if err == nil {
		t.Fatal("expected error for unexpected character, got nil")
	}
}

func TestScanListAndDictLiterals(t *testing.T) {
	lex := New(`[1, 2] {"a": 1}`)
	toks, err := lex.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTypes(t, toks, []token.TokenType{
		token.LBRACK, token.INT, token.COMMA, token.INT, token.RBRACK,
		token.LCUR, token.STRING, token.COLON, token.INT, token.RCUR, token.EOF,
	})
}
