// Package normalize rewrites a verified command tree so that text flows the
// way the grammar's flow classes prescribe. It runs once, after whole-program
// verification, and is idempotent: normalizing an already-normalized tree is
// a no-op.
package normalize

import (
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/diag"
	"github.com/ZontarLives/tsp-compiler/core/invariant"
	"github.com/ZontarLives/tsp-compiler/core/tree"
)

// paragraph is the separator injected around block nodes.
const paragraph = "\n\n"

// Normalizer rewrites trees in place. It carries no per-tree state; the
// sequence source and diagnostic sink are the session's, threaded in
// explicitly so repeated compilations never share hidden globals.
type Normalizer struct {
	nextSeq func() uint64
	diags   *diag.List
}

func New(nextSeq func() uint64, diags *diag.List) *Normalizer {
	invariant.Precondition(nextSeq != nil, "normalizer needs a sequence source")
	invariant.Precondition(diags != nil, "normalizer needs a diagnostic list")
	return &Normalizer{nextSeq: nextSeq, diags: diags}
}

// Program normalizes every entity tree in p.
func (nz *Normalizer) Program(p *tree.Program) {
	for _, e := range p.Entities {
		nz.Entity(e)
	}
}

// Entity normalizes one entity tree in place. Top-level entities are never
// removed, whatever their flow class; removal applies to body children only.
func (nz *Normalizer) Entity(n *tree.Node) {
	nz.node(n)
}

// node applies n's own flow rule after rewriting its body. Bottom-up order
// matters: a block child trims and separates itself before its parent looks
// at sibling positions.
func (nz *Normalizer) node(n *tree.Node) {
	switch n.Flow {
	case tree.FlowStructured:
		n.Body = nz.structuredBody(n)
	case tree.FlowBlock:
		n.InlineText = strings.Trim(n.InlineText, " \t\r\n")
		n.Body = nz.flowBody(n.Body)
		trimEdges(n)
	case tree.FlowLocation:
		n.Body = nz.flowBody(n.Body)
		trimEdges(n)
	default: // inline, and none when kept at top level
		n.Body = nz.flowBody(n.Body)
	}
}

// flowBody recurses into children, drops none-classified ones, and injects a
// paragraph separator on each side of a block child. A separator only goes
// where it separates displayed content: a side whose remaining siblings show
// nothing, or that already borders a paragraph break, is left alone, which
// is what makes a second pass a no-op.
func (nz *Normalizer) flowBody(body []*tree.Node) []*tree.Node {
	if len(body) == 0 {
		return body
	}
	kept := body[:0:0]
	for _, c := range body {
		if c.Flow == tree.FlowNone {
			continue
		}
		nz.node(c)
		kept = append(kept, c)
	}

	out := make([]*tree.Node, 0, len(kept))
	for i, c := range kept {
		if c.Flow == tree.FlowBlock && displaysAny(kept[:i]) && !isParagraphBreak(out[len(out)-1]) {
			out = append(out, nz.separator(c))
		}
		out = append(out, c)
		if c.Flow == tree.FlowBlock && displaysAny(kept[i+1:]) && !isParagraphBreak(kept[i+1]) {
			out = append(out, nz.separator(c))
		}
	}
	return out
}

// displaysAny reports whether any node in the slice renders visible text.
func displaysAny(nodes []*tree.Node) bool {
	for _, n := range nodes {
		if displays(n) {
			return true
		}
	}
	return false
}

func displays(n *tree.Node) bool {
	if n.InlineText != "" || strings.TrimSpace(n.Text) != "" {
		return true
	}
	for _, c := range n.Body {
		if displays(c) {
			return true
		}
	}
	return false
}

// structuredBody keeps only the children a structured node is allowed to
// carry. Whitespace-only text between options is layout, not content, and is
// dropped silently; text with content here means an upstream bug worth a
// trace in the diagnostics.
func (nz *Normalizer) structuredBody(n *tree.Node) []*tree.Node {
	if len(n.Body) == 0 {
		return n.Body
	}
	out := make([]*tree.Node, 0, len(n.Body))
	for _, c := range n.Body {
		if c.Kind == tree.KindText || c.Kind == tree.KindNewline {
			if strings.TrimSpace(c.Text) != "" {
				nz.diags.Infof(c.Unit, c.Line,
					"text %q inside [%s] has no display position and was dropped",
					strings.TrimSpace(c.Text), n.Tag)
			}
			continue
		}
		if c.Flow == tree.FlowNone {
			continue
		}
		nz.node(c)
		out = append(out, c)
	}
	return out
}

// separator builds a synthetic paragraph-break text node near n.
func (nz *Normalizer) separator(near *tree.Node) *tree.Node {
	return &tree.Node{
		Seq:   nz.nextSeq(),
		Kind:  tree.KindText,
		Tag:   "#text",
		Text:  paragraph,
		Flow:  tree.FlowInline,
		Unit:  near.Unit,
		Line:  near.Line,
		Owner: near.Owner,
	}
}

func isParagraphBreak(n *tree.Node) bool {
	return n.Kind == tree.KindText && n.Text == paragraph
}

// trimEdges strips leading whitespace from the run of text nodes at the
// start of n's subtree and trailing whitespace from the run at its end.
// Interior whitespace is untouched; a node carrying its own display text
// ends the run from either side. A boundary node trimmed down to nothing is
// removed rather than left behind as an empty command.
func trimEdges(n *tree.Node) {
	leaves := displayLeaves(n)
	drained := make(map[*tree.Node]bool)
	for _, t := range leaves {
		if t.InlineText != "" {
			break
		}
		t.Text = strings.TrimLeft(t.Text, " \t\r\n")
		if t.Text != "" {
			break
		}
		drained[t] = true
	}
	for i := len(leaves) - 1; i >= 0; i-- {
		if leaves[i].InlineText != "" {
			break
		}
		leaves[i].Text = strings.TrimRight(leaves[i].Text, " \t\r\n")
		if leaves[i].Text != "" {
			break
		}
		drained[leaves[i]] = true
	}
	if len(drained) > 0 {
		removeDrained(n, drained)
	}
}

// removeDrained prunes the emptied boundary leaves from n's subtree.
func removeDrained(n *tree.Node, drained map[*tree.Node]bool) {
	kept := n.Body[:0]
	for _, c := range n.Body {
		if drained[c] {
			continue
		}
		removeDrained(c, drained)
		kept = append(kept, c)
	}
	n.Body = kept
}

// displayLeaves collects, in document order, the nodes under n that carry
// renderable text: text and newline leaves plus any node with inline display
// text, excluding n itself.
func displayLeaves(n *tree.Node) []*tree.Node {
	var out []*tree.Node
	for _, c := range n.Body {
		c.Walk(func(d *tree.Node) bool {
			if d.Kind == tree.KindText || d.Kind == tree.KindNewline || d.InlineText != "" {
				out = append(out, d)
			}
			return true
		})
	}
	return out
}
