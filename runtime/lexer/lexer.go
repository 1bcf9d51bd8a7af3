// Package lexer turns story source text into the token stream the parser
// consumes. The scanner is mode-based: narrative text and command content
// follow different lexical rules, and the current delimiter decides which
// rules apply. The parser never re-tokenizes; it works on the finished slice.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ZontarLives/tsp-compiler/core/token"
)

// Mode represents the lexer's scanning modes.
type Mode int

const (
	TextMode    Mode = iota // narrative prose between commands
	CommandMode             // inside [ ... ], { ... } or < ... >
)

// Lexer scans one source unit.
type Lexer struct {
	input    string
	position int  // byte offset of ch
	readPos  int  // byte offset after ch
	ch       rune // current rune, -1 at EOF
	line     int
	column   int

	mode Mode

	// opener is the delimiter that switched us into CommandMode:
	// '[', '{' or '<'. Decides whether '>' closes an option tag or is a
	// relational operator.
	opener     rune
	parenLevel int
}

// New creates a lexer over input.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0, mode: TextMode}
	l.readChar()
	return l
}

// Tokenize scans the whole input and returns the token slice, always
// terminated by an EOF token.
func Tokenize(input string) []token.Token {
	l := New(input)
	var tokens []token.Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = -1
		l.position = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	l.position = l.readPos
	l.readPos += size
	l.ch = r
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) pos() token.Position {
	return token.Position{Line: l.line, Column: l.column, Offset: l.position}
}

// Next returns the next token.
func (l *Lexer) Next() token.Token {
	if l.ch == -1 {
		return token.Token{Type: token.EOF, Position: l.pos()}
	}
	if l.mode == TextMode {
		return l.nextText()
	}
	return l.nextCommand()
}

// nextText scans narrative prose. Delimiters `[`, `[/`, `{` and `<`+letter
// switch to CommandMode; newlines are structural tokens of their own;
// everything else accumulates into a TEXT run. Backslash escapes a delimiter
// into literal text.
func (l *Lexer) nextText() token.Token {
	start := l.pos()

	switch {
	case l.ch == '\n':
		l.readChar()
		return token.Token{Type: token.NEWLINE, Value: "\n", Position: start}
	case l.ch == '[':
		if l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			l.mode = CommandMode
			l.opener = '['
			return token.Token{Type: token.ENDOPEN, Value: "[/", Position: start}
		}
		l.readChar()
		l.mode = CommandMode
		l.opener = '['
		return token.Token{Type: token.LBRACKET, Value: "[", Position: start}
	case l.ch == '{':
		l.readChar()
		l.mode = CommandMode
		l.opener = '{'
		return token.Token{Type: token.LBRACE, Value: "{", Position: start}
	case l.ch == '<' && isIdentStart(l.peekChar()):
		l.readChar()
		l.mode = CommandMode
		l.opener = '<'
		return token.Token{Type: token.OPTOPEN, Value: "<", Position: start}
	}

	var text strings.Builder
	for l.ch != -1 && l.ch != '\n' && l.ch != '[' && l.ch != '{' {
		if l.ch == '<' && isIdentStart(l.peekChar()) {
			break
		}
		if l.ch == '\\' {
			next := l.peekChar()
			if next == '[' || next == '{' || next == '<' || next == '\\' {
				l.readChar() // drop the backslash, keep the delimiter as text
			}
		}
		text.WriteRune(l.ch)
		l.readChar()
	}
	return token.Token{Type: token.TEXT, Value: text.String(), Position: start}
}

// nextCommand scans inside a command delimiter. Whitespace (including
// newlines) separates tokens and is skipped.
func (l *Lexer) nextCommand() token.Token {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.readChar()
	}
	start := l.pos()

	switch {
	case l.ch == -1:
		return token.Token{Type: token.EOF, Position: start}
	case l.ch == ']':
		l.readChar()
		l.exitCommand()
		return token.Token{Type: token.RBRACKET, Value: "]", Position: start}
	case l.ch == '}':
		l.readChar()
		l.exitCommand()
		return token.Token{Type: token.RBRACE, Value: "}", Position: start}
	case l.ch == '>' && l.opener == '<' && l.parenLevel == 0:
		l.readChar()
		l.exitCommand()
		return token.Token{Type: token.OPTCLOSE, Value: ">", Position: start}
	case l.ch == '(':
		l.parenLevel++
		l.readChar()
		return token.Token{Type: token.LPAREN, Value: "(", Position: start}
	case l.ch == ')':
		if l.parenLevel > 0 {
			l.parenLevel--
		}
		l.readChar()
		return token.Token{Type: token.RPAREN, Value: ")", Position: start}
	case l.ch == ':':
		l.readChar()
		return token.Token{Type: token.COLON, Value: ":", Position: start}
	case l.ch == ',':
		l.readChar()
		return token.Token{Type: token.COMMA, Value: ",", Position: start}
	case l.ch == '"':
		return l.lexString(start)
	case l.ch == '=':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return token.Token{Type: token.EQ_EQ, Value: "==", Position: start}
		}
		return token.Token{Type: token.ASSIGN, Value: "=", Position: start}
	case l.ch == '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return token.Token{Type: token.NOT_EQ, Value: "!=", Position: start}
		}
		l.readChar()
		return token.Token{Type: token.BANG, Value: "!", Position: start}
	case l.ch == '+' && l.peekChar() == '=':
		l.readChar()
		l.readChar()
		return token.Token{Type: token.PLUS_ASSIGN, Value: "+=", Position: start}
	case l.ch == '<':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return token.Token{Type: token.LT_EQ, Value: "<=", Position: start}
		}
		return token.Token{Type: token.LT, Value: "<", Position: start}
	case l.ch == '>':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return token.Token{Type: token.GT_EQ, Value: ">=", Position: start}
		}
		return token.Token{Type: token.GT, Value: ">", Position: start}
	case l.ch == '-' && (isDigit(l.peekChar())):
		return l.lexNumber(start)
	case isDigit(l.ch):
		return l.lexNumber(start)
	case l.ch == '-' && l.peekChar() == '=':
		l.readChar()
		l.readChar()
		return token.Token{Type: token.MINUS_ASSIGN, Value: "-=", Position: start}
	case isIdentStart(l.ch):
		return l.lexIdent(start)
	}

	ch := l.ch
	l.readChar()
	return token.Token{Type: token.ILLEGAL, Value: string(ch), Position: start}
}

func (l *Lexer) exitCommand() {
	l.mode = TextMode
	l.opener = 0
	l.parenLevel = 0
}

func (l *Lexer) lexIdent(start token.Position) token.Token {
	begin := l.position
	for l.ch != -1 && isIdentPart(l.ch) {
		l.readChar()
	}
	word := l.input[begin:l.position]
	switch word {
	case "and":
		return token.Token{Type: token.AND, Value: word, Position: start}
	case "or":
		return token.Token{Type: token.OR, Value: word, Position: start}
	}
	return token.Token{Type: token.IDENT, Value: word, Position: start}
}

func (l *Lexer) lexNumber(start token.Position) token.Token {
	begin := l.position
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return token.Token{Type: token.NUMBER, Value: l.input[begin:l.position], Position: start}
}

func (l *Lexer) lexString(start token.Position) token.Token {
	l.readChar() // consume opening quote
	var text strings.Builder
	for l.ch != -1 && l.ch != '"' {
		if l.ch == '\\' {
			next := l.peekChar()
			if next == '"' || next == '\\' {
				l.readChar()
			}
		}
		text.WriteRune(l.ch)
		l.readChar()
	}
	if l.ch == '"' {
		l.readChar()
		return token.Token{Type: token.STRING, Value: text.String(), Position: start}
	}
	// Unterminated string: report what we have as ILLEGAL so the parser
	// raises a positioned fatal error instead of scanning past EOF.
	return token.Token{Type: token.ILLEGAL, Value: text.String(), Position: start}
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || ch == '-' || unicode.IsDigit(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}
