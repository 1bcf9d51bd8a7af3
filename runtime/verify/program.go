package verify

import (
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/diag"
	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/tree"
)

// Program runs the whole-program checks after every source unit has been
// parsed: system-entity singularity, declared-once settings keys, npc-link
// target resolution, conditional lval/rval validity, and unresolved globals.
// Everything here is non-fatal; the tree is complete by now.
func (v *Verifier) Program(p *tree.Program, d *diag.List) {
	v.checkSystemSingularity(p, d)
	v.checkSettingsKeys(p, d)
	v.checkNpcLinkTargets(p, d)
	v.checkConditionals(p, d)
	v.checkGlobals(p, d)
}

// checkSystemSingularity enforces the program-wide singularity of the
// "system" entity type: every declaration past the first is reported.
func (v *Verifier) checkSystemSingularity(p *tree.Program, d *diag.List) {
	var first *tree.Node
	for _, e := range p.Entities {
		if e.Tag != "system" {
			continue
		}
		if first == nil {
			first = e
			continue
		}
		d.Errorf(e.Unit, e.Line,
			"only one system entity is allowed (first declared at %s:%d)", first.Unit, first.Line)
	}
}

// checkSettingsKeys enforces declared-once-only configuration keys: the
// settings bags of system and variable entities form the program's
// configuration namespace, and a key set by two declarations is an error.
func (v *Verifier) checkSettingsKeys(p *tree.Program, d *diag.List) {
	type site struct {
		unit string
		line int
	}
	seen := make(map[string]site)
	for _, e := range p.Entities {
		if e.Tag != "system" && e.Tag != "variable" {
			continue
		}
		for key := range e.Settings {
			if prev, ok := seen[key]; ok {
				d.Errorf(e.Unit, e.Line,
					"setting %q already declared at %s:%d", key, prev.unit, prev.line)
				continue
			}
			seen[key] = site{unit: e.Unit, line: e.Line}
		}
	}
}

// checkNpcLinkTargets resolves every npc inline link against the complete
// reference set: the id must name an npc entity.
func (v *Verifier) checkNpcLinkTargets(p *tree.Program, d *diag.List) {
	for _, e := range p.Entities {
		e.Walk(func(n *tree.Node) bool {
			if n.Kind != tree.KindNpcLink {
				return true
			}
			target, ok := p.Refs.Resolve(n.ID)
			if !ok {
				d.Errorf(n.Unit, n.Line, "npc link %q does not resolve to any entity", n.ID)
				return true
			}
			if target.Tag != "npc" {
				d.Errorf(n.Unit, n.Line, "npc link %q resolves to a %s entity", n.ID, target.Tag)
			}
			return true
		})
	}
}

// checkConditionals validates every conditional expression's lval and rval
// the same way rule 5 validates assignment values, now that the reference
// set is complete.
func (v *Verifier) checkConditionals(p *tree.Program, d *diag.List) {
	for _, e := range p.Entities {
		owner := e
		e.Walk(func(n *tree.Node) bool {
			for _, cond := range n.Cond {
				if !v.validProgramName(cond.LVal, owner, p) {
					d.Errorf(n.Unit, n.Line, "condition references unknown name %q", cond.LVal)
				}
				ctx := &Context{Unit: n.Unit, Refs: p.Refs, Globals: p.Globals, Diags: d}
				if !v.ValidRVal(cond.RVal, cond.LVal, ctx) {
					d.Errorf(n.Unit, n.Line, "condition has invalid value %q", cond.RVal)
				}
			}
			return true
		})
	}
}

// checkGlobals reports every global-variable record that still does not
// resolve against the complete reference set, local function parameters, or
// built-ins, reported once per usage site.
func (v *Verifier) checkGlobals(p *tree.Program, d *diag.List) {
	for _, rec := range p.Globals.Records() {
		if _, ok := p.Refs.Resolve(rec.Name); ok {
			continue
		}
		if grammar.BuiltinFunctions[rec.Name] || grammar.BuiltinEntities[strings.ToLower(rec.Name)] {
			continue
		}
		for _, use := range rec.Uses {
			if v.isFunctionParam(rec.Name, use.Owner, p) {
				continue
			}
			d.Errorf(use.Unit, use.Line, "unresolved identifier %q", rec.Name)
		}
	}
}

// validProgramName reports whether name resolves as an entity reference, a
// state or flag on the owning entity, a parameter of the owning function, or
// a built-in.
func (v *Verifier) validProgramName(name string, owner *tree.Node, p *tree.Program) bool {
	if _, ok := p.Refs.Resolve(name); ok {
		return true
	}
	if owner != nil && entityHasFlag(owner, name) {
		return true
	}
	if owner != nil && owner.Tag == "function" {
		for _, param := range owner.Attributes {
			if param == name {
				return true
			}
		}
	}
	if grammar.BuiltinFunctions[name] || grammar.BuiltinEntities[strings.ToLower(name)] {
		return true
	}
	return false
}

func (v *Verifier) isFunctionParam(name, ownerID string, p *tree.Program) bool {
	if ownerID == "" {
		return false
	}
	owner, ok := p.Refs.Resolve(ownerID)
	if !ok || owner.Tag != "function" {
		return false
	}
	for _, param := range owner.Attributes {
		if param == name {
			return true
		}
	}
	return false
}
