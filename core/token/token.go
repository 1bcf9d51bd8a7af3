// Package token defines the lexical contract between the tokenizer and the
// parser: a finite, ordered token sequence with source positions, always
// terminated by an EOF token. The parser only advances, peeks, and rewinds a
// cursor over this sequence; it never re-tokenizes.
package token

import "fmt"

// Type is the closed set of lexical token kinds.
type Type int

const (
	// Special tokens
	EOF Type = iota
	ILLEGAL

	// Structure
	NEWLINE // \n - structural whitespace, kept as its own token
	TEXT    // free narrative text run

	// Command delimiters
	LBRACKET // [  macro or entity open
	ENDOPEN  // [/ macro end-tag open
	RBRACKET // ]

	// Inline-link delimiters
	LBRACE // {
	RBRACE // }

	// Option delimiters (structured macros)
	OPTOPEN  // <
	OPTCLOSE // >

	// Command-mode punctuation
	LPAREN // (
	RPAREN // )
	COLON  // :
	COMMA  // ,
	BANG   // ! flag prefix in entity headers

	// Assignment operators
	ASSIGN       // =
	PLUS_ASSIGN  // +=
	MINUS_ASSIGN // -=

	// Relational operators (conditional chains)
	EQ_EQ  // ==
	NOT_EQ // !=
	LT     // <  (command mode only)
	LT_EQ  // <=
	GT     // >  (command mode only)
	GT_EQ  // >=

	// Logical connectors (conditional chains)
	AND // and
	OR  // or

	// Literals
	IDENT  // tags, ids, lvals, rvals
	STRING // "quoted display or body text"
	NUMBER // 42, -3, 2.5
)

var typeNames = map[Type]string{
	EOF:          "EOF",
	ILLEGAL:      "ILLEGAL",
	NEWLINE:      "NEWLINE",
	TEXT:         "TEXT",
	LBRACKET:     "'['",
	ENDOPEN:      "'[/'",
	RBRACKET:     "']'",
	LBRACE:       "'{'",
	RBRACE:       "'}'",
	OPTOPEN:      "'<'",
	OPTCLOSE:     "'>'",
	LPAREN:       "'('",
	RPAREN:       "')'",
	COLON:        "':'",
	COMMA:        "','",
	BANG:         "'!'",
	ASSIGN:       "'='",
	PLUS_ASSIGN:  "'+='",
	MINUS_ASSIGN: "'-='",
	EQ_EQ:        "'=='",
	NOT_EQ:       "'!='",
	LT:           "'<'",
	LT_EQ:        "'<='",
	GT:           "'>'",
	GT_EQ:        "'>='",
	AND:          "'and'",
	OR:           "'or'",
	IDENT:        "identifier",
	STRING:       "string",
	NUMBER:       "number",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsRelational reports whether t can appear as the operator of a
// conditional-chain comparison.
func (t Type) IsRelational() bool {
	switch t {
	case EQ_EQ, NOT_EQ, LT, LT_EQ, GT, GT_EQ:
		return true
	}
	return false
}

// IsAssignOp reports whether t is a valid assignment-macro operator.
func (t Type) IsAssignOp() bool {
	switch t {
	case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN:
		return true
	}
	return false
}

// Position is a source location. Line and Column are 1-based; Offset is the
// 0-based byte offset into the source unit.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexical token.
type Token struct {
	Type     Type
	Value    string
	Position Position
}

// Symbol returns the token's text when it carries any, otherwise the display
// name of its type. Used in diagnostics.
func (t Token) Symbol() string {
	if t.Value != "" {
		return t.Value
	}
	return t.Type.String()
}
