package parser

import (
	"strconv"
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/invariant"
	"github.com/ZontarLives/tsp-compiler/core/token"
	"github.com/ZontarLives/tsp-compiler/core/tree"
)

// parseMacro parses one macro, driven entirely by its grammar shape: an
// assignment shape parses `id OP rval` and stops; any other shape interleaves
// the three optional open fragments (inline-quoted body, conditional chain,
// settings list) in any order until the macro open closes, then parses a
// structured or plain body if the shape allows one.
func (p *parser) parseMacro(parent *tree.Node) (*tree.Node, error) {
	open := p.advance() // '['
	tagTok := p.advance()
	if tagTok.Type != token.IDENT {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message: "expected command tag after '['",
			Context: "macro",
		}
	}
	shape, err := p.env.Grammar.ShapeOf(tagTok.Value)
	if err != nil {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message:     "undefined command tag " + strconv.Quote(tagTok.Value),
			Context:     "macro",
			Suggestions: undefinedSuggestions(err),
		}
	}
	if shape.EntityType {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message: "entity declarations are only allowed at top level",
			Context: "[" + tagTok.Value + "]",
		}
	}

	n := p.newNode(shape.Kind, tagTok.Value, open)
	context := "[" + n.Tag + "]"

	if shape.Assignment {
		if err := p.parseAssignment(n, context); err != nil {
			return nil, err
		}
	} else {
		if err := p.parseOpenFragments(n, shape, context, token.RBRACKET); err != nil {
			return nil, err
		}
		switch {
		case shape.Structured():
			if err := p.parseStructuredBody(n, shape); err != nil {
				return nil, err
			}
		case shape.Body != grammar.Forbidden:
			if err := p.parseBody(n, n.Tag); err != nil {
				return nil, err
			}
		}
	}

	if err := p.seal(n, shape, parent); err != nil {
		return nil, err
	}
	return n, nil
}

// parseAssignment parses `id OP rval ]`. Assignment macros never carry a
// body.
func (p *parser) parseAssignment(n *tree.Node, context string) error {
	idTok, err := p.expect(token.IDENT, context)
	if err != nil {
		return err
	}
	n.ID = idTok.Value

	opTok := p.current()
	if !opTok.Type.IsAssignOp() {
		return p.errorf(context, "expected assignment operator, got %s", opTok.Symbol())
	}
	p.advance()
	n.Op = opTok.Value

	rvalTok := p.current()
	switch rvalTok.Type {
	case token.IDENT, token.NUMBER, token.STRING:
		p.advance()
		n.RVal = rvalTok.Value
	default:
		return p.errorf(context, "expected value after %q, got %s", n.Op, rvalTok.Symbol())
	}

	_, err = p.expect(token.RBRACKET, context)
	return err
}

// parseOpenFragments consumes the interior of a macro or option open up to
// the closing delimiter: zero or more of a quoted inline text, a
// parenthesized conditional chain, a colon-prefixed settings list, and, for
// shapes that take one, a bare identifier id.
func (p *parser) parseOpenFragments(n *tree.Node, shape *grammar.Shape, context string, closer token.Type) error {
	for !p.at(closer) {
		prev := p.pos
		switch p.current().Type {
		case token.EOF:
			return p.errorf(context, "unterminated %s", context)
		case token.STRING:
			n.InlineText = p.advance().Value
		case token.LPAREN:
			cond, err := p.parseConditions(context)
			if err != nil {
				return err
			}
			n.Cond = cond
		case token.COLON:
			p.advance()
			settings, err := p.parseSettings(shape, context)
			if err != nil {
				return err
			}
			n.Settings = settings
		case token.IDENT:
			if n.ID != "" {
				return p.errorf(context, "unexpected identifier %q", p.current().Value)
			}
			n.ID = p.advance().Value
		default:
			return p.errorf(context, "unexpected %s", p.current().Symbol())
		}
		invariant.Invariant(p.pos > prev, "fragment parse stuck at pos %d", p.pos)
	}
	p.advance() // closer
	return nil
}

// parseConditions parses a parenthesized conditional-expression chain: a
// flat left-to-right tuple list with no operator precedence. The opening
// paren is at the cursor.
func (p *parser) parseConditions(context string) ([]tree.Condition, error) {
	if _, err := p.expect(token.LPAREN, context); err != nil {
		return nil, err
	}
	var chain []tree.Condition
	for {
		lval, err := p.expect(token.IDENT, context+" condition")
		if err != nil {
			return nil, err
		}

		opTok := p.current()
		if !opTok.Type.IsRelational() {
			return nil, p.errorf(context+" condition",
				"expected relational operator after %q, got %s", lval.Value, opTok.Symbol())
		}
		p.advance()

		rvalTok := p.current()
		switch rvalTok.Type {
		case token.IDENT, token.NUMBER, token.STRING:
			p.advance()
		default:
			return nil, p.errorf(context+" condition",
				"expected value after %q, got %s", opTok.Value, rvalTok.Symbol())
		}

		cond := tree.Condition{LVal: lval.Value, Op: opTok.Value, RVal: rvalTok.Value}

		switch p.current().Type {
		case token.AND, token.OR:
			cond.Connector = p.advance().Value
			chain = append(chain, cond)
			continue
		}
		chain = append(chain, cond)
		break
	}
	if _, err := p.expect(token.RPAREN, context+" condition"); err != nil {
		return nil, err
	}
	return chain, nil
}

// parseSettings parses a comma-separated `key[= value]` list. A bare key
// defaults to boolean true. Values coerce against the shape's declared
// defaults, falling back to auto-detection. The list ends at the first token
// that is neither a comma nor a key.
func (p *parser) parseSettings(shape *grammar.Shape, context string) (map[string]any, error) {
	settings := make(map[string]any)
	for {
		key, err := p.expect(token.IDENT, context+" settings")
		if err != nil {
			return nil, err
		}

		value := any(true)
		if p.at(token.ASSIGN) {
			p.advance()
			valTok := p.current()
			switch valTok.Type {
			case token.IDENT, token.NUMBER, token.STRING:
				p.advance()
				value = coerceSetting(shape, key.Value, valTok.Value)
			default:
				return nil, p.errorf(context+" settings",
					"expected value for setting %q, got %s", key.Value, valTok.Symbol())
			}
		}

		if _, dup := settings[key.Value]; dup {
			p.env.Diags.Warnf(p.unit, key.Position.Line,
				"setting %q declared more than once; keeping the last", key.Value)
		}
		settings[key.Value] = value

		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		return settings, nil
	}
}

// coerceSetting types a raw setting value: the macro's declared default for
// the key decides bool/number inference, falling back to auto-detection
// (boolean literal, then numeric, else text).
func coerceSetting(shape *grammar.Shape, key, raw string) any {
	if dv, ok := shape.Defaults[key]; ok {
		switch dv.(type) {
		case bool:
			if raw == "true" {
				return true
			}
			if raw == "false" {
				return false
			}
		case float64:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				return f
			}
		}
	}
	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// parseStructuredBody parses a structured macro's body: one optional
// free-form leadin, then Option nodes while the upcoming option tag is
// registered for this parent, then the parent's named end tag. An
// option-shaped tag that is not registered for this parent is a hard parse
// error, not a silent fallthrough.
func (p *parser) parseStructuredBody(n *tree.Node, shape *grammar.Shape) error {
	context := "[" + n.Tag + "]"

	// Leadin: mixed content before the first option. Whitespace is always
	// tolerated here (the normalizer drops it later); anything more needs
	// the shape's permission.
	for {
		prev := p.pos
		switch p.current().Type {
		case token.EOF:
			return p.errorf(context, "missing end tag [/%s]", n.Tag)
		case token.OPTOPEN, token.ENDOPEN:
			// Fall through to options.
		case token.NEWLINE:
			child, err := p.parseBodyItem(n)
			if err != nil {
				return err
			}
			n.Append(child)
			continue
		case token.TEXT:
			if !shape.Leadin && strings.TrimSpace(p.current().Value) != "" {
				return p.errorf(context, "[%s] does not allow content before its first option", n.Tag)
			}
			child, err := p.parseBodyItem(n)
			if err != nil {
				return err
			}
			n.Append(child)
			continue
		default:
			if !shape.Leadin {
				return p.errorf(context, "[%s] does not allow content before its first option", n.Tag)
			}
			child, err := p.parseBodyItem(n)
			if err != nil {
				return err
			}
			n.Append(child)
			continue
		}
		invariant.Invariant(p.pos >= prev, "leadin parse stuck at pos %d", p.pos)
		break
	}

	// Options.
	for {
		prev := p.pos
		switch p.current().Type {
		case token.OPTOPEN:
			opt, err := p.parseOption(n, shape)
			if err != nil {
				return err
			}
			n.Append(opt)
		case token.NEWLINE:
			child, err := p.parseBodyItem(n)
			if err != nil {
				return err
			}
			n.Append(child)
		case token.TEXT:
			if strings.TrimSpace(p.current().Value) != "" {
				return p.errorf(context, "unexpected text between options of [%s]", n.Tag)
			}
			child, err := p.parseBodyItem(n)
			if err != nil {
				return err
			}
			n.Append(child)
		case token.ENDOPEN:
			nameTok := p.peek()
			if nameTok.Type != token.IDENT || nameTok.Value != n.Tag {
				return p.errorf(context, "end tag [/%s] does not close [%s]", nameTok.Value, n.Tag)
			}
			p.advance() // '[/'
			p.advance() // name
			_, err := p.expect(token.RBRACKET, context)
			return err
		case token.EOF:
			return p.errorf(context, "missing end tag [/%s]", n.Tag)
		default:
			return p.errorf(context, "unexpected %s between options of [%s]",
				p.current().Symbol(), n.Tag)
		}
		invariant.Invariant(p.pos > prev, "option list parse stuck at pos %d", p.pos)
	}
}

// parseOption parses one `<tag ...>` option plus its body, which runs until
// the next option tag or the parent's end tag. Nested structured macros
// inside the body close with their own named end tags, so no ambiguity
// arises with the parent's.
func (p *parser) parseOption(parent *tree.Node, parentShape *grammar.Shape) (*tree.Node, error) {
	open := p.advance() // '<'
	tagTok := p.advance()
	if tagTok.Type != token.IDENT {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message: "expected option tag after '<'",
			Context: "[" + parentShape.Tag + "]",
		}
	}
	shape, err := p.env.Grammar.OptionShapeOf(parentShape.Tag, tagTok.Value)
	if err != nil {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message:     "option <" + tagTok.Value + "> is not valid for [" + parentShape.Tag + "]",
			Context:     "[" + parentShape.Tag + "]",
			Suggestions: undefinedSuggestions(err),
		}
	}

	n := p.newNode(tree.KindOption, tagTok.Value, open)
	context := "<" + n.Tag + ">"

	if err := p.parseOpenFragments(n, shape, context, token.OPTCLOSE); err != nil {
		return nil, err
	}

	// Option body: mixed content until the next option or the parent's end
	// tag, both left for the caller.
	for {
		prev := p.pos
		switch p.current().Type {
		case token.OPTOPEN, token.ENDOPEN:
			if err := p.seal(n, shape, parent); err != nil {
				return nil, err
			}
			return n, nil
		case token.EOF:
			return nil, p.errorf(context, "missing end tag [/%s]", parentShape.Tag)
		default:
			child, err := p.parseBodyItem(n)
			if err != nil {
				return nil, err
			}
			n.Append(child)
		}
		invariant.Invariant(p.pos > prev, "option body parse stuck at pos %d", p.pos)
	}
}

func undefinedSuggestions(err error) []string {
	if undef, ok := err.(*grammar.UndefinedTagError); ok {
		return undef.Suggestions
	}
	return nil
}
