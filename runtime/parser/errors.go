package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/token"
)

// ParseError is the fatal parsing error: a malformed token sequence the
// cursor cannot resolve. It aborts the current source unit; sibling units
// still get processed. Non-fatal issues go to the diagnostics list instead
// and never surface as ParseError.
type ParseError struct {
	Unit        string
	Token       token.Token
	Message     string
	Context     string   // what was being parsed, e.g. "[say]" or "entity header"
	Suggestions []string // possible fixes, best first
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s: %s", e.Unit, e.Token.Position, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, " (while parsing %s)", e.Context)
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestions[0])
	}
	return b.String()
}

// Line returns the source line of the error.
func (e *ParseError) Line() int { return e.Token.Position.Line }

// errorf builds a ParseError at the current token.
func (p *parser) errorf(context, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Unit:    p.unit,
		Token:   p.current(),
		Message: fmt.Sprintf(format, args...),
		Context: context,
	}
}

// errorExpected builds a ParseError for a missing expected token.
func (p *parser) errorExpected(want token.Type, context string) *ParseError {
	return &ParseError{
		Unit:    p.unit,
		Token:   p.current(),
		Message: fmt.Sprintf("expected %s, got %s", want, p.current().Symbol()),
		Context: context,
	}
}

// tagError wraps a grammar lookup failure at the offending tag token,
// carrying its fuzzy suggestions into the ParseError.
func (p *parser) tagError(tok token.Token, err error, context string) *ParseError {
	pe := &ParseError{
		Unit:    p.unit,
		Token:   tok,
		Message: err.Error(),
		Context: context,
	}
	var undef *grammar.UndefinedTagError
	if errors.As(err, &undef) {
		pe.Message = fmt.Sprintf("undefined command tag %q", undef.Tag)
		pe.Suggestions = undef.Suggestions
	}
	return pe
}
