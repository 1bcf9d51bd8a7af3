// Package emit turns a normalized program into the JSON document the
// downstream runtime consumes, plus a deterministic canonical form for
// change detection.
package emit

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/ZontarLives/tsp-compiler/core/tree"
)

// Document is the emitted output: every declared entity, keyed by
// lower-cased id.
type Document struct {
	Entities map[string]*Entity `json:"entities"`
}

// Entity is the emitted form of one top-level declaration. Type is the
// declared entity type tag ("location", "npc", ...).
type Entity struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes []string       `json:"attributes,omitempty"`
	Flags      []string       `json:"flags,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	States     map[string]any `json:"states,omitempty"`
	Body       []*Command     `json:"body"`
}

// Command is the emitted form of one body node.
type Command struct {
	Kind       string         `json:"kind"`
	Tag        string         `json:"tag,omitempty"`
	ID         string         `json:"id,omitempty"`
	Display    string         `json:"display,omitempty"`
	Text       string         `json:"text,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	Op         string         `json:"op,omitempty"`
	RVal       any            `json:"rval,omitempty"`
	Body       []*Command     `json:"body,omitempty"`
}

// Condition mirrors one tuple of a flat conditional chain.
type Condition struct {
	LVal      string `json:"lval"`
	Op        string `json:"op"`
	RVal      string `json:"rval"`
	Connector string `json:"connector,omitempty"`
}

// BuildDocument flattens the program into its emitted document. The program
// must already be normalized; emission itself never rewrites anything.
func BuildDocument(p *tree.Program) *Document {
	doc := &Document{Entities: make(map[string]*Entity, len(p.Entities))}
	for _, e := range p.Entities {
		doc.Entities[strings.ToLower(e.ID)] = buildEntity(e)
	}
	return doc
}

func buildEntity(n *tree.Node) *Entity {
	e := &Entity{
		Type:       n.Tag,
		ID:         n.ID,
		Attributes: n.Attributes,
		Flags:      n.Flags,
		Settings:   n.Settings,
		States:     n.States,
		Body:       buildBody(n.Body),
	}
	if e.Body == nil {
		e.Body = []*Command{}
	}
	return e
}

func buildBody(body []*tree.Node) []*Command {
	if len(body) == 0 {
		return nil
	}
	out := make([]*Command, 0, len(body))
	for _, c := range body {
		out = append(out, buildCommand(c))
	}
	return out
}

func buildCommand(n *tree.Node) *Command {
	c := &Command{
		Kind:     n.Kind.String(),
		Tag:      n.Tag,
		ID:       n.ID,
		Display:  n.InlineText,
		Text:     n.Text,
		Settings: n.Settings,
		Op:       n.Op,
		Body:     buildBody(n.Body),
	}
	switch n.Kind {
	case tree.KindText, tree.KindNewline:
		// Leaf text keeps no tag in the output; the kind says it all.
		c.Tag = ""
	}
	if n.RVal != "" {
		c.RVal = nativeValue(n.RVal)
	}
	for _, cond := range n.Cond {
		c.Conditions = append(c.Conditions, Condition{
			LVal:      cond.LVal,
			Op:        cond.Op,
			RVal:      cond.RVal,
			Connector: cond.Connector,
		})
	}
	return c
}

// nativeValue maps literal booleans and numerics to their JSON-native types;
// anything else stays a string.
func nativeValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
