// Package parser builds the command tree from a token stream in two passes:
// a shallow reference-building pass that indexes every top-level entity
// declaration, then a full structural pass that builds the tree, consulting
// the grammar registry at every step and handing every completed node to the
// verifier before it is considered real.
//
// The parser never re-tokenizes. It only advances, peeks and rewinds a
// cursor over the finished token slice, and every parsing loop strictly
// consumes input (asserted with invariant checks), so pathological inputs
// still terminate.
package parser

import (
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/diag"
	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/invariant"
	"github.com/ZontarLives/tsp-compiler/core/token"
	"github.com/ZontarLives/tsp-compiler/core/tree"
	"github.com/ZontarLives/tsp-compiler/runtime/verify"
)

// Env is the cross-unit compilation state threaded through the parser. The
// compilation session owns it; nothing here is process-global, and a fresh
// session starts from a clean Env.
type Env struct {
	Grammar  *grammar.Registry
	Verifier *verify.Verifier
	Refs     *tree.ReferenceMap
	Globals  *tree.GlobalTable
	Diags    *diag.List

	// NextSeq allocates synthetic node ids, monotonically increasing for
	// the lifetime of the session.
	NextSeq func() uint64
}

// ParseUnit parses one source unit: pass 1 builds the reference map, pass 2
// builds the command tree. Returns the unit's entities in declaration order.
// A fatal error aborts this unit only; non-fatal diagnostics accumulate in
// env.Diags and parsing continues past them.
func ParseUnit(unit string, tokens []token.Token, env *Env) ([]*tree.Node, error) {
	invariant.NotNil(env, "parser env")
	invariant.Precondition(len(tokens) > 0 && tokens[len(tokens)-1].Type == token.EOF,
		"token stream must be EOF-terminated")

	p := &parser{unit: unit, tokens: tokens, env: env}

	if err := p.buildReferences(); err != nil {
		return nil, err
	}
	p.pos = 0
	return p.parseUnit()
}

type parser struct {
	unit   string
	tokens []token.Token
	pos    int
	env    *Env

	// Per-entity state, reset by parseEntity.
	entity       *tree.Node
	vctx         *verify.Context
	sceneryLinks map[string]*tree.Node
	npcLinks     map[string]*tree.Node
}

func (p *parser) current() token.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() token.Token {
	if p.pos+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+1]
}

func (p *parser) at(t token.Type) bool { return p.current().Type == t }

func (p *parser) advance() token.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) expect(t token.Type, context string) (token.Token, error) {
	if !p.at(t) {
		return token.Token{}, p.errorExpected(t, context)
	}
	return p.advance(), nil
}

// newNode allocates a node through the session's synthetic-id counter and
// stamps the source position and owning entity.
func (p *parser) newNode(kind tree.Kind, tag string, at token.Token) *tree.Node {
	n := &tree.Node{
		Seq:  p.env.NextSeq(),
		Kind: kind,
		Tag:  tag,
		Unit: p.unit,
		Line: at.Position.Line,
	}
	if p.entity != nil {
		n.Owner = p.entity.ID
	}
	return n
}

// seal finishes node construction: the flow classification is inherited from
// the grammar entry and the verifier runs synchronously. A node that fails
// fatally never enters the tree.
func (p *parser) seal(n *tree.Node, shape *grammar.Shape, parent *tree.Node) error {
	n.Flow = shape.Flow
	return p.env.Verifier.Node(n, shape, parent, p.vctx)
}

// isEntityHeader reports whether the cursor sits on `[` followed by an
// entity-type tag.
func (p *parser) isEntityHeader() bool {
	if !p.at(token.LBRACKET) || p.peek().Type != token.IDENT {
		return false
	}
	shape, err := p.env.Grammar.ShapeOf(p.peek().Value)
	return err == nil && shape.EntityType
}

// buildReferences is pass 1: scan entity headers only, skip every body by
// consuming tokens blindly until the next entity header or end of stream.
// Only basic header shape sanity is checked here; the verifier proper runs
// in pass 2.
func (p *parser) buildReferences() error {
	for !p.at(token.EOF) {
		prev := p.pos
		if p.isEntityHeader() {
			if err := p.referenceHeader(); err != nil {
				return err
			}
		} else {
			p.advance()
		}
		invariant.Invariant(p.pos > prev || p.at(token.EOF),
			"pass 1 stuck at pos %d", p.pos)
	}
	return nil
}

// referenceHeader parses one entity header shallowly and declares it in the
// reference map. The shallow node is body-less with kind reference.
func (p *parser) referenceHeader() error {
	open := p.advance() // '['
	tagTok := p.advance()
	shape, err := p.env.Grammar.ShapeOf(tagTok.Value)
	if err != nil {
		return p.tagError(tagTok, err, "entity header")
	}

	n := &tree.Node{
		Seq:  p.env.NextSeq(),
		Kind: tree.KindReference,
		Tag:  tagTok.Value,
		Unit: p.unit,
		Line: open.Position.Line,
	}

	idTok, err := p.expect(token.IDENT, "entity header")
	if err != nil {
		return err
	}
	n.ID = idTok.Value

	if p.at(token.LPAREN) {
		attrs, err := p.parseNameList("entity attributes")
		if err != nil {
			return err
		}
		n.Attributes = attrs
	}
	for p.at(token.BANG) {
		p.advance()
		flag, err := p.expect(token.IDENT, "entity flags")
		if err != nil {
			return err
		}
		n.Flags = append(n.Flags, flag.Value)
	}

	// The rest of the header (settings etc.) is pass-2 material: skip
	// blindly to the closing bracket.
	for !p.at(token.RBRACKET) && !p.at(token.EOF) {
		p.advance()
	}
	if _, err := p.expect(token.RBRACKET, "entity header"); err != nil {
		return err
	}

	n.States = entityStates(shape, n.Attributes)

	if err := p.env.Refs.Declare(n.ID, n); err != nil {
		return &ParseError{Unit: p.unit, Token: idTok, Message: err.Error(), Context: "entity header"}
	}
	return nil
}

// parseNameList parses `( name, name, ... )`.
func (p *parser) parseNameList(context string) ([]string, error) {
	if _, err := p.expect(token.LPAREN, context); err != nil {
		return nil, err
	}
	var names []string
	for !p.at(token.RPAREN) {
		name, err := p.expect(token.IDENT, context)
		if err != nil {
			return nil, err
		}
		names = append(names, name.Value)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN, context); err != nil {
		return nil, err
	}
	return names, nil
}

// entityStates computes the type-dependent default runtime flags once at
// creation: the shape's defaults plus one boolean flag per declared
// attribute. Function parameters are not states.
func entityStates(shape *grammar.Shape, attributes []string) map[string]any {
	if shape.States == nil {
		return nil
	}
	states := make(map[string]any, len(shape.States)+len(attributes))
	for k, v := range shape.States {
		states[k] = v
	}
	for _, attr := range attributes {
		states[attr] = true
	}
	return states
}

// parseUnit is pass 2: parse each entity in declaration order.
func (p *parser) parseUnit() ([]*tree.Node, error) {
	var entities []*tree.Node
	for !p.at(token.EOF) {
		prev := p.pos
		switch {
		case p.at(token.NEWLINE):
			p.advance()
		case p.at(token.TEXT) && strings.TrimSpace(p.current().Value) == "":
			p.advance()
		case p.at(token.LBRACKET):
			e, err := p.parseEntity()
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		default:
			return nil, p.errorf("top level", "unexpected %s outside any entity", p.current().Symbol())
		}
		invariant.Invariant(p.pos > prev || p.at(token.EOF),
			"pass 2 stuck at pos %d", p.pos)
	}
	return entities, nil
}

// parseEntity parses one full entity declaration: header, body (unless the
// shape forbids one), post-body singularity pruning, then verification.
func (p *parser) parseEntity() (*tree.Node, error) {
	open := p.advance() // '['
	tagTok := p.advance()
	if tagTok.Type != token.IDENT {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message: "expected entity type after '['",
			Context: "entity header",
		}
	}
	shape, err := p.env.Grammar.ShapeOf(tagTok.Value)
	if err != nil {
		return nil, p.tagError(tagTok, err, "entity header")
	}
	if !shape.EntityType {
		return nil, &ParseError{
			Unit: p.unit, Token: tagTok,
			Message: "only entity declarations are allowed at top level",
			Context: "[" + tagTok.Value + "]",
		}
	}

	n := &tree.Node{
		Seq:  p.env.NextSeq(),
		Kind: tree.KindEntity,
		Tag:  tagTok.Value,
		Unit: p.unit,
		Line: open.Position.Line,
	}

	idTok, err := p.expect(token.IDENT, "entity header")
	if err != nil {
		return nil, err
	}
	n.ID = idTok.Value
	n.Owner = n.ID

	if p.at(token.LPAREN) {
		attrs, err := p.parseNameList("entity attributes")
		if err != nil {
			return nil, err
		}
		n.Attributes = attrs
	}
	for p.at(token.BANG) {
		p.advance()
		flag, err := p.expect(token.IDENT, "entity flags")
		if err != nil {
			return nil, err
		}
		n.Flags = append(n.Flags, flag.Value)
	}
	if p.at(token.COLON) {
		p.advance()
		settings, err := p.parseSettings(shape, "["+n.Tag+"]")
		if err != nil {
			return nil, err
		}
		n.Settings = settings
	}
	if _, err := p.expect(token.RBRACKET, "entity header"); err != nil {
		return nil, err
	}

	n.States = entityStates(shape, n.Attributes)

	// Reinitialize per-entity parsing context: the link tables are scratch
	// state rebuilt for every entity.
	p.entity = n
	p.sceneryLinks = make(map[string]*tree.Node)
	p.npcLinks = make(map[string]*tree.Node)
	p.vctx = &verify.Context{
		Unit:         p.unit,
		Refs:         p.env.Refs,
		Globals:      p.env.Globals,
		Diags:        p.env.Diags,
		SceneryLinks: p.sceneryLinks,
		NpcLinks:     p.npcLinks,
		OwnerType:    n.Tag,
		OwnerID:      n.ID,
	}
	if n.Tag == "function" {
		p.vctx.FuncParams = make(map[string]bool, len(n.Attributes))
		for _, param := range n.Attributes {
			p.vctx.FuncParams[param] = true
		}
	}

	if shape.Body != grammar.Forbidden {
		if err := p.parseBody(n, n.Tag); err != nil {
			return nil, err
		}
	}

	p.pruneSingulars(n)

	if err := p.seal(n, shape, nil); err != nil {
		return nil, err
	}
	return n, nil
}

// parseBody parses a mixed content sequence (newlines, text, inline links,
// nested macros) into parent until the named end tag `[/endTag]` is reached.
func (p *parser) parseBody(parent *tree.Node, endTag string) error {
	for {
		prev := p.pos
		switch p.current().Type {
		case token.EOF:
			return p.errorf("["+endTag+"]", "missing end tag [/%s]", endTag)
		case token.ENDOPEN:
			nameTok := p.peek()
			if nameTok.Type != token.IDENT || nameTok.Value != endTag {
				return p.errorf("["+endTag+"]",
					"end tag [/%s] does not close [%s]", nameTok.Value, endTag)
			}
			p.advance() // '[/'
			p.advance() // name
			if _, err := p.expect(token.RBRACKET, "["+endTag+"]"); err != nil {
				return err
			}
			return nil
		case token.OPTOPEN:
			return p.errorf("["+endTag+"]",
				"option <%s> is not valid outside a structured macro", p.peek().Value)
		default:
			child, err := p.parseBodyItem(parent)
			if err != nil {
				return err
			}
			parent.Append(child)
		}
		invariant.Invariant(p.pos > prev, "body parse stuck at pos %d", p.pos)
	}
}

// parseBodyItem parses one mixed-content child: newline, text, inline link
// or macro. The caller has already excluded end tags and options.
func (p *parser) parseBodyItem(parent *tree.Node) (*tree.Node, error) {
	switch p.current().Type {
	case token.NEWLINE:
		tok := p.advance()
		n := p.newNode(tree.KindNewline, "", tok)
		n.Text = "\n"
		if err := p.seal(n, grammar.NewlineShape, parent); err != nil {
			return nil, err
		}
		return n, nil
	case token.TEXT:
		tok := p.advance()
		n := p.newNode(tree.KindText, "", tok)
		n.Text = tok.Value
		if err := p.seal(n, grammar.TextShape, parent); err != nil {
			return nil, err
		}
		return n, nil
	case token.LBRACE:
		return p.parseLink(parent)
	case token.LBRACKET:
		return p.parseMacro(parent)
	default:
		return nil, p.errorf("body", "unexpected %s", p.current().Symbol())
	}
}

// parseLink parses one inline link. All six forms share the algorithm:
// opening delimiter, form tag, bare id, optional quoted display string,
// closing delimiter. Scenery and npc forms additionally register into the
// per-entity link tables.
func (p *parser) parseLink(parent *tree.Node) (*tree.Node, error) {
	open := p.advance() // '{'
	tagTok, err := p.expect(token.IDENT, "inline link")
	if err != nil {
		return nil, err
	}
	shape, err := p.env.Grammar.LinkShapeOf(tagTok.Value)
	if err != nil {
		return nil, p.tagError(tagTok, err, "inline link")
	}

	n := p.newNode(shape.Kind, tagTok.Value, open)

	idTok, err := p.expect(token.IDENT, "{"+tagTok.Value+"}")
	if err != nil {
		return nil, err
	}
	n.ID = idTok.Value

	if p.at(token.STRING) {
		n.InlineText = p.advance().Value
	}
	if _, err := p.expect(token.RBRACE, "{"+tagTok.Value+"}"); err != nil {
		return nil, err
	}

	switch n.Kind {
	case tree.KindSceneryLink:
		p.sceneryLinks[strings.ToLower(n.ID)] = n
	case tree.KindNpcLink:
		p.npcLinks[strings.ToLower(n.ID)] = n
	}

	if err := p.seal(n, shape, parent); err != nil {
		return nil, err
	}
	return n, nil
}

// pruneSingulars applies the keep-last rule to direct children whose tag is
// flagged singular-per-parent: duplicates are pruned, each pruned node gets
// a warning. Self-healing, never fatal.
func (p *parser) pruneSingulars(parent *tree.Node) {
	last := make(map[string]int) // tag -> index of last occurrence
	for i, c := range parent.Body {
		if c.Kind != tree.KindMacro {
			continue
		}
		shape, err := p.env.Grammar.ShapeOf(c.Tag)
		if err != nil || shape.Singular != grammar.SingularPerParent {
			continue
		}
		last[c.Tag] = i
	}
	if len(last) == 0 {
		return
	}

	kept := parent.Body[:0]
	for i, c := range parent.Body {
		if idx, ok := last[c.Tag]; ok && c.Kind == tree.KindMacro && i != idx {
			p.env.Diags.Warnf(p.unit, c.Line,
				"duplicate [%s] in %q; keeping the one at line %d",
				c.Tag, parent.ID, parent.Body[idx].Line)
			continue
		}
		kept = append(kept, c)
	}
	parent.Body = kept
}
