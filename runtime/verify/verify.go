// Package verify is the rule engine coupled to node construction: the parser
// hands every completed node to Node before the node is considered real, so
// no invalid node ever enters the tree. The verifier is stateless; all
// accumulation happens through the Context it is given.
//
// Two channels, never conflated: a returned *FatalError aborts parsing of the
// current source unit; everything else lands in the diagnostics list and
// parsing continues, usually after self-healing the node.
package verify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/diag"
	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/invariant"
	"github.com/ZontarLives/tsp-compiler/core/tree"
)

// FatalError aborts parsing of the current source unit. It is caught at the
// unit boundary so sibling units still get processed.
type FatalError struct {
	Unit    string
	Line    int
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Unit, e.Line, e.Message)
}

// Context is the enclosing parsing context for one verification call.
type Context struct {
	Unit    string
	Refs    *tree.ReferenceMap
	Globals *tree.GlobalTable
	Diags   *diag.List

	// Per-entity scratch link tables, rebuilt for every entity: inline-link
	// id -> declaring node.
	SceneryLinks map[string]*tree.Node
	NpcLinks     map[string]*tree.Node

	// Enclosing entity.
	OwnerType string
	OwnerID   string

	// Parameter names when inside a function entity.
	FuncParams map[string]bool
}

// Verifier enforces composition, containment, singularity and
// reference-resolution rules against the grammar.
type Verifier struct {
	grammar *grammar.Registry
}

// New returns a verifier over g.
func New(g *grammar.Registry) *Verifier {
	invariant.NotNil(g, "grammar registry")
	return &Verifier{grammar: g}
}

// Node verifies one completed node against its shape. parent is the
// immediate parent command, nil for root-level entities.
func (v *Verifier) Node(n *tree.Node, shape *grammar.Shape, parent *tree.Node, ctx *Context) error {
	invariant.NotNil(n, "node")
	invariant.NotNil(shape, "shape")
	invariant.NotNil(ctx, "verify context")

	if err := v.checkComposition(n, shape, ctx); err != nil {
		return err
	}
	if shape.Structured() {
		v.checkOptions(n, shape, ctx)
	}
	v.checkContainer(n, shape, parent, ctx)

	switch {
	case n.Kind == tree.KindSceneryLink || n.Kind == tree.KindNpcLink:
		v.checkLinks(n, shape, ctx)
	case n.Kind == tree.KindOption && isLinkBlockTag(n.Tag):
		// Checked via checkBlockDecls once the owning entity seals; an
		// inline link later in the body still counts.
	default:
		v.checkReferences(n, shape, ctx)
	}

	if n.Kind == tree.KindEntity {
		v.checkBlockDecls(n, ctx)
	}
	return nil
}

// checkComposition enforces rule 1: required properties must be present;
// properties the shape does not recognize are stripped and reported as a
// warning (self-healing, never fatal). The bookkeeping fields Seq, Unit,
// Line, Owner and Flow are always allowed. A forbidden id or rval is an
// error rather than a warning; a missing required id aborts the unit.
func (v *Verifier) checkComposition(n *tree.Node, shape *grammar.Shape, ctx *Context) error {
	type property struct {
		name    string
		rule    grammar.Presence
		present bool
		strip   func()
	}
	props := []property{
		{"id", shape.ID, n.ID != "", func() { n.ID = "" }},
		{"attributes", shape.Attributes, len(n.Attributes) > 0, func() { n.Attributes = nil }},
		{"flags", shape.Flags, len(n.Flags) > 0, func() { n.Flags = nil }},
		{"body", shape.Body, len(n.Body) > 0, func() { n.Body = nil }},
		{"inline text", shape.InlineText, n.InlineText != "", func() { n.InlineText = "" }},
		{"conditions", shape.Cond, len(n.Cond) > 0, func() { n.Cond = nil }},
		{"settings", shape.Settings, len(n.Settings) > 0, func() { n.Settings = nil }},
		{"rval", shape.RVal, n.RVal != "", func() { n.RVal = "" }},
	}

	for _, prop := range props {
		switch prop.rule {
		case grammar.Required:
			if !prop.present {
				if prop.name == "id" {
					return &FatalError{
						Unit:    ctx.Unit,
						Line:    n.Line,
						Message: fmt.Sprintf("[%s] requires an id", n.Tag),
					}
				}
				ctx.Diags.Errorf(ctx.Unit, n.Line, "[%s] is missing required %s", n.Tag, prop.name)
			}
		case grammar.Forbidden:
			if prop.present {
				if prop.name == "id" || prop.name == "rval" {
					ctx.Diags.Errorf(ctx.Unit, n.Line, "[%s] does not accept %s", n.Tag, prop.name)
				} else {
					ctx.Diags.Warnf(ctx.Unit, n.Line, "[%s] does not accept %s; dropped", n.Tag, prop.name)
				}
				prop.strip()
			}
		}
	}
	return nil
}

// checkOptions enforces rule 2 on structured macros: option presence and
// placement. Violations are non-fatal; the tree is still fully constructed.
func (v *Verifier) checkOptions(n *tree.Node, shape *grammar.Shape, ctx *Context) {
	var options []*tree.Node
	for _, c := range n.Body {
		if c.Kind == tree.KindOption {
			options = append(options, c)
		}
	}

	for _, spec := range shape.Options {
		count := 0
		for _, o := range options {
			if o.Tag == spec.Tag {
				count++
			}
		}
		if spec.Required && count == 0 {
			ctx.Diags.Errorf(ctx.Unit, n.Line, "[%s] requires at least one <%s> option", n.Tag, spec.Tag)
		}
		switch spec.Placement {
		case grammar.First:
			for i, o := range options {
				if o.Tag == spec.Tag && i != 0 {
					ctx.Diags.Errorf(ctx.Unit, o.Line, "<%s> must be the first option of [%s]", spec.Tag, n.Tag)
				}
			}
		case grammar.Last:
			for i, o := range options {
				if o.Tag == spec.Tag && i != len(options)-1 {
					ctx.Diags.Errorf(ctx.Unit, o.Line, "<%s> must be the last option of [%s]", spec.Tag, n.Tag)
				}
			}
		}
	}
}

// checkContainer enforces rule 3: a required container type must match the
// immediate parent command's tag.
func (v *Verifier) checkContainer(n *tree.Node, shape *grammar.Shape, parent *tree.Node, ctx *Context) {
	if shape.Container == "" || parent == nil {
		return
	}
	if parent.Tag != shape.Container {
		container := parent.ID
		if container == "" {
			container = parent.Tag
		}
		ctx.Diags.Errorf(ctx.Unit, n.Line,
			"[%s] must appear inside a %s, not %q", n.Tag, shape.Container, container)
	}
}

// checkLinks enforces the inline half of rule 4: scenery/npc inline links
// must live inside an allowed entity type. Npc-link target resolution is
// deferred to the whole-program pass because the reference set is still
// growing during unit parsing.
func (v *Verifier) checkLinks(n *tree.Node, shape *grammar.Shape, ctx *Context) {
	switch {
	case len(shape.LinkEntityTypes) > 0:
		allowed := false
		for _, t := range shape.LinkEntityTypes {
			if ctx.OwnerType == t {
				allowed = true
				break
			}
		}
		if !allowed {
			ctx.Diags.Errorf(ctx.Unit, n.Line,
				"{%s} links are not allowed inside a %s entity", n.Tag, ctx.OwnerType)
		}
	}
}

// checkBlockDecls enforces the block-declaration half of rule 4, once the
// entity's link tables are complete: every prop and actor option must name
// an id referenced inline somewhere in the same entity.
func (v *Verifier) checkBlockDecls(entity *tree.Node, ctx *Context) {
	entity.Walk(func(n *tree.Node) bool {
		if n.Kind != tree.KindOption {
			return true
		}
		switch n.Tag {
		case "prop":
			if _, ok := ctx.SceneryLinks[strings.ToLower(n.ID)]; !ok {
				ctx.Diags.Warnf(ctx.Unit, n.Line,
					"prop %q has no matching inline scenery link in %q and will be ignored", n.ID, ctx.OwnerID)
			}
		case "actor":
			if _, ok := ctx.NpcLinks[strings.ToLower(n.ID)]; !ok {
				ctx.Diags.Warnf(ctx.Unit, n.Line,
					"actor %q has no matching inline npc link in %q and will be ignored", n.ID, ctx.OwnerID)
			}
		}
		return true
	})
}

// checkReferences enforces rule 5: id resolution (with lazy global-variable
// fallback) and rval validity. Item, fixed-item, hotlink and tostring links
// route here too; only scenery/npc links have their own resolution rules.
func (v *Verifier) checkReferences(n *tree.Node, shape *grammar.Shape, ctx *Context) {
	if shape.ID == grammar.Required && n.ID != "" && n.Kind != tree.KindEntity {
		if _, ok := ctx.Refs.Resolve(n.ID); !ok {
			ctx.Globals.Use(n.ID, tree.Site{Unit: ctx.Unit, Line: n.Line, Owner: ctx.OwnerID})
		}
	}
	if shape.RVal == grammar.Required && n.RVal != "" {
		if !v.ValidRVal(n.RVal, n.ID, ctx) {
			ctx.Diags.Errorf(ctx.Unit, n.Line, "invalid value %q for %q", n.RVal, n.ID)
		}
	}
}

// ValidRVal reports whether raw is an acceptable right-hand value: an entity
// reference, a boolean literal, a number, a flag name on the entity named by
// lvalID, a built-in function name, or a built-in entity name. Free text is
// deliberately rejected.
func (v *Verifier) ValidRVal(raw, lvalID string, ctx *Context) bool {
	if _, ok := ctx.Refs.Resolve(raw); ok {
		return true
	}
	if raw == "true" || raw == "false" {
		return true
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return true
	}
	if lvalID != "" {
		if e, ok := ctx.Refs.Resolve(lvalID); ok && entityHasFlag(e, raw) {
			return true
		}
	}
	if grammar.BuiltinFunctions[raw] {
		return true
	}
	if grammar.BuiltinEntities[strings.ToLower(raw)] {
		return true
	}
	return false
}

func entityHasFlag(e *tree.Node, name string) bool {
	for _, f := range e.Flags {
		if f == name {
			return true
		}
	}
	if _, ok := e.States[name]; ok {
		return true
	}
	return false
}

func isLinkBlockTag(tag string) bool {
	return tag == "prop" || tag == "actor"
}
