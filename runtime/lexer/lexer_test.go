package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ZontarLives/tsp-compiler/core/token"
)

// types strips values and positions so stream-shape tests stay readable.
func types(tokens []token.Token) []token.Type {
	out := make([]token.Type, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func values(tokens []token.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}

func TestTokenizeCommandWithFragments(t *testing.T) {
	tokens := Tokenize(`Hello [say "Hi" (mood == good) : volume=2]`)

	want := []token.Type{
		token.TEXT, token.LBRACKET, token.IDENT, token.STRING,
		token.LPAREN, token.IDENT, token.EQ_EQ, token.IDENT, token.RPAREN,
		token.COLON, token.IDENT, token.ASSIGN, token.NUMBER,
		token.RBRACKET, token.EOF,
	}
	if diff := cmp.Diff(want, types(tokens)); diff != "" {
		t.Fatalf("token type mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Hello ", tokens[0].Value); diff != "" {
		t.Fatalf("text value mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Hi", tokens[3].Value); diff != "" {
		t.Fatalf("string value mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeOptionCloseVersusGreaterThan(t *testing.T) {
	tokens := Tokenize(`<choice "Go" (score > 2)>`)

	want := []token.Type{
		token.OPTOPEN, token.IDENT, token.STRING,
		token.LPAREN, token.IDENT, token.GT, token.NUMBER, token.RPAREN,
		token.OPTCLOSE, token.EOF,
	}
	if diff := cmp.Diff(want, types(tokens)); diff != "" {
		t.Fatalf("token type mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeAngleInProseStaysText(t *testing.T) {
	tokens := Tokenize("a < b and a > c")

	want := []token.Type{token.TEXT, token.EOF}
	if diff := cmp.Diff(want, types(tokens)); diff != "" {
		t.Fatalf("token type mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("a < b and a > c", tokens[0].Value); diff != "" {
		t.Fatalf("text value mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeBackslashEscapesDelimiters(t *testing.T) {
	tokens := Tokenize(`\[not a command] and \{not a link}`)

	want := []token.Type{token.TEXT, token.EOF}
	if diff := cmp.Diff(want, types(tokens)); diff != "" {
		t.Fatalf("token type mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("[not a command] and {not a link}", tokens[0].Value); diff != "" {
		t.Fatalf("escaped text mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeEndTagAndNewlines(t *testing.T) {
	tokens := Tokenize("[location hall]\ntext\n[/location]")

	want := []token.Type{
		token.LBRACKET, token.IDENT, token.IDENT, token.RBRACKET,
		token.NEWLINE, token.TEXT, token.NEWLINE,
		token.ENDOPEN, token.IDENT, token.RBRACKET, token.EOF,
	}
	if diff := cmp.Diff(want, types(tokens)); diff != "" {
		t.Fatalf("token type mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeAssignmentOperators(t *testing.T) {
	tokens := Tokenize(`[set score += 10][set lives -= 1][set won = true]`)

	got := values(tokens)
	wantOps := map[int]string{3: "+=", 9: "-=", 15: "="}
	for idx, op := range wantOps {
		if diff := cmp.Diff(op, got[idx]); diff != "" {
			t.Fatalf("operator at %d mismatch (-want +got):\n%s", idx, diff)
		}
	}
	if diff := cmp.Diff(token.PLUS_ASSIGN, tokens[3].Type); diff != "" {
		t.Fatalf("operator type mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(token.MINUS_ASSIGN, tokens[9].Type); diff != "" {
		t.Fatalf("operator type mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeNegativeAndDecimalNumbers(t *testing.T) {
	tokens := Tokenize(`[pause : duration=-1.5]`)

	if diff := cmp.Diff(token.NUMBER, tokens[5].Type); diff != "" {
		t.Fatalf("number type mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("-1.5", tokens[5].Value); diff != "" {
		t.Fatalf("number value mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeUnterminatedString(t *testing.T) {
	tokens := Tokenize(`[say "oops`)

	want := []token.Type{token.LBRACKET, token.IDENT, token.ILLEGAL, token.EOF}
	if diff := cmp.Diff(want, types(tokens)); diff != "" {
		t.Fatalf("token type mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeLinePositions(t *testing.T) {
	tokens := Tokenize("first\nsecond\n[say \"x\"]")

	if diff := cmp.Diff(1, tokens[0].Position.Line); diff != "" {
		t.Fatalf("line mismatch (-want +got):\n%s", diff)
	}
	// tokens: TEXT NEWLINE TEXT NEWLINE LBRACKET ...
	if diff := cmp.Diff(2, tokens[2].Position.Line); diff != "" {
		t.Fatalf("line mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, tokens[4].Position.Line); diff != "" {
		t.Fatalf("line mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeAlwaysEndsWithEOF(t *testing.T) {
	for _, input := range []string{"", "plain text", "[", `[say "unclosed`} {
		tokens := Tokenize(input)
		if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
			t.Fatalf("input %q: stream not EOF-terminated: %v", input, tokens)
		}
	}
}
