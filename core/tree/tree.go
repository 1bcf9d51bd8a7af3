// Package tree defines the command tree: the single polymorphic node type the
// parser builds, the verifier checks, and the normalizer rewrites. The tree
// is a strict owning hierarchy; the back-reference from a node to its owning
// entity is the entity id string, never a pointer, so no cycles exist.
package tree

import "fmt"

// Kind is the closed set of command-node kinds.
type Kind uint8

const (
	KindEntity Kind = iota
	KindMacro
	KindOption
	KindAssignment
	KindText
	KindNewline
	KindItemLink
	KindFixedItemLink
	KindSceneryLink
	KindNpcLink
	KindHotlink
	KindToString
	KindReference
)

var kindNames = [...]string{
	KindEntity:        "entity",
	KindMacro:         "macro",
	KindOption:        "option",
	KindAssignment:    "assignment",
	KindText:          "text",
	KindNewline:       "newline",
	KindItemLink:      "item-link",
	KindFixedItemLink: "fixed-item-link",
	KindSceneryLink:   "scenery-link",
	KindNpcLink:       "npc-link",
	KindHotlink:       "hotlink",
	KindToString:      "tostring",
	KindReference:     "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsLink reports whether k is one of the inline-link kinds.
func (k Kind) IsLink() bool {
	switch k {
	case KindItemLink, KindFixedItemLink, KindSceneryLink, KindNpcLink, KindHotlink, KindToString:
		return true
	}
	return false
}

// Flow is the per-tag whitespace policy consumed by the normalizer.
type Flow uint8

const (
	FlowInline Flow = iota // default: whitespace untouched
	FlowBlock              // paragraph separators injected around the node
	FlowStructured         // node contributes no text; whitespace children dropped
	FlowLocation           // inline interior, boundary whitespace trimmed
	FlowNone               // node and subtree removed from output
)

var flowNames = [...]string{
	FlowInline:     "inline",
	FlowBlock:      "block",
	FlowStructured: "structured",
	FlowLocation:   "location",
	FlowNone:       "none",
}

func (f Flow) String() string {
	if int(f) < len(flowNames) {
		return flowNames[f]
	}
	return fmt.Sprintf("Flow(%d)", uint8(f))
}

// Condition is one link of a conditional-expression chain. Chains are flat
// and evaluated strictly left to right: there is no operator precedence.
// Connector joins this tuple to the next one and is empty on the last tuple.
type Condition struct {
	LVal      string
	Op        string // == != < <= > >=
	RVal      string
	Connector string // "and", "or", or ""
}

// Node is the single polymorphic unit of the command tree.
//
// Seq is the process-wide monotonically increasing synthetic id assigned at
// creation by the compilation session; it is distinct from the author-supplied
// ID. Owner is the id of the owning entity, used only for contextual lookups.
type Node struct {
	Seq  uint64
	Kind Kind
	Tag  string
	ID   string

	Attributes []string
	Flags      []string

	Body       []*Node
	Text       string // leaf text content
	InlineText string // inline-quoted display/body string

	Cond     []Condition
	Settings map[string]any

	// Assignment shape only.
	Op   string
	RVal string

	Flow  Flow
	Owner string

	// States is the type-dependent default runtime flag bag, entities only,
	// computed once at creation from the declared type and attributes.
	States map[string]any

	Unit string
	Line int
}

// NewNode constructs a node without registering it anywhere. Callers go
// through the parser's node factory so every node is verified before it is
// considered real; this constructor exists for tests and for the factory.
func NewNode(seq uint64, kind Kind, tag string) *Node {
	return &Node{Seq: seq, Kind: kind, Tag: tag}
}

// Append adds child to n's body.
func (n *Node) Append(child *Node) {
	n.Body = append(n.Body, child)
}

// FirstText returns the first text descendant of n in document order, or nil.
func (n *Node) FirstText() *Node {
	if n.Kind == KindText {
		return n
	}
	for _, c := range n.Body {
		if t := c.FirstText(); t != nil {
			return t
		}
	}
	return nil
}

// LastText returns the last text descendant of n in document order, or nil.
func (n *Node) LastText() *Node {
	if n.Kind == KindText {
		return n
	}
	for i := len(n.Body) - 1; i >= 0; i-- {
		if t := n.Body[i].LastText(); t != nil {
			return t
		}
	}
	return nil
}

// Walk visits n and every descendant in document order. Walk stops early if
// fn returns false for a node; its children are then skipped.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Body {
		c.Walk(fn)
	}
}

// Clone returns a deep copy of n. Settings and States maps are copied
// shallowly per key; values are immutable scalars.
func (n *Node) Clone() *Node {
	c := *n
	if n.Body != nil {
		c.Body = make([]*Node, len(n.Body))
		for i, child := range n.Body {
			c.Body[i] = child.Clone()
		}
	}
	if n.Cond != nil {
		c.Cond = append([]Condition(nil), n.Cond...)
	}
	if n.Settings != nil {
		c.Settings = make(map[string]any, len(n.Settings))
		for k, v := range n.Settings {
			c.Settings[k] = v
		}
	}
	if n.States != nil {
		c.States = make(map[string]any, len(n.States))
		for k, v := range n.States {
			c.States[k] = v
		}
	}
	if n.Attributes != nil {
		c.Attributes = append([]string(nil), n.Attributes...)
	}
	if n.Flags != nil {
		c.Flags = append([]string(nil), n.Flags...)
	}
	return &c
}
