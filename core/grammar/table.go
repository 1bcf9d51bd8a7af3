package grammar

import "github.com/ZontarLives/tsp-compiler/core/tree"

// The closed grammar table. Fixed at compile time; not end-user-editable.
//
// Entity tags own a body subtree and a type-dependent default states bag.
// Macro tags are either plain (mixed body), assignment, or structured
// (leadin + options). Link tags describe the six inline-link forms.

// BuiltinFunctions are names an rval may reference without declaration.
var BuiltinFunctions = map[string]bool{
	"random":  true,
	"visited": true,
	"count":   true,
	"has":     true,
	"turn":    true,
}

// BuiltinEntities are entity names that exist without declaration.
var BuiltinEntities = map[string]bool{
	"player": true,
	"game":   true,
}

// SceneryLinkOwners are entity types allowed to contain scenery-style
// inline links; NpcLinkOwners likewise for npc-style links.
var (
	SceneryLinkOwners = []string{"location", "fixed-scenery-container"}
	NpcLinkOwners     = []string{"location"}
)

var defaultShapes = []*Shape{
	// Entities.
	{
		Tag: "location", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Flags: Optional, Body: Required,
		Flow:   tree.FlowLocation,
		States: map[string]any{"visited": false, "entries": float64(0)},
	},
	{
		Tag: "item", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Flags: Optional, Body: Optional,
		Flow:   tree.FlowInline,
		States: map[string]any{"carried": false, "seen": false},
	},
	{
		Tag: "fixed-scenery-container", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Flags: Optional, Body: Optional,
		Flow:   tree.FlowInline,
		States: map[string]any{"open": false, "seen": false},
	},
	{
		Tag: "npc", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Flags: Optional, Body: Optional,
		Flow:   tree.FlowInline,
		States: map[string]any{"met": false, "alive": true},
	},
	{
		Tag: "function", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Body: Required,
		Flow: tree.FlowInline,
	},
	{
		Tag: "audio", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Body: Forbidden, Settings: Optional,
		Flow:     tree.FlowNone,
		Defaults: map[string]any{"loop": false, "volume": float64(1)},
	},
	{
		Tag: "variable", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Body: Forbidden, Settings: Optional,
		Flow: tree.FlowNone,
	},
	{
		Tag: "system", Kind: tree.KindEntity, EntityType: true,
		ID: Required, Attributes: Optional, Body: Optional, Settings: Optional,
		Flow: tree.FlowNone, Singular: SingularPerProgram,
	},

	// Plain macros.
	{
		Tag: "say", Kind: tree.KindMacro,
		InlineText: Required, Cond: Optional, Settings: Optional, Body: Forbidden,
		Flow:     tree.FlowBlock,
		Defaults: map[string]any{"volume": float64(1), "blocking": false},
	},
	{
		Tag: "think", Kind: tree.KindMacro,
		InlineText: Required, Cond: Optional, Body: Forbidden,
		Flow: tree.FlowBlock,
	},
	{
		Tag: "if", Kind: tree.KindMacro,
		Cond: Required, Body: Required,
		Flow: tree.FlowInline,
	},
	{
		Tag: "pause", Kind: tree.KindMacro,
		Settings: Required, Body: Forbidden,
		Flow:     tree.FlowBlock,
		Defaults: map[string]any{"duration": float64(1), "blocking": true},
	},
	{
		Tag: "play", Kind: tree.KindMacro,
		ID: Required, Settings: Optional, Body: Forbidden,
		Flow:     tree.FlowInline,
		Defaults: map[string]any{"loop": false, "volume": float64(1)},
	},
	{
		Tag: "note", Kind: tree.KindMacro,
		Body: Optional, InlineText: Optional,
		Flow: tree.FlowNone,
	},
	{
		Tag: "onenter", Kind: tree.KindMacro,
		Body: Required, Container: "location", Singular: SingularPerParent,
		Flow: tree.FlowInline,
	},
	{
		Tag: "onexit", Kind: tree.KindMacro,
		Body: Required, Container: "location", Singular: SingularPerParent,
		Flow: tree.FlowInline,
	},

	// Assignment macro.
	{
		Tag: "set", Kind: tree.KindAssignment, Assignment: true,
		ID: Required, RVal: Required, Body: Forbidden,
		Flow: tree.FlowStructured,
	},

	// Structured macros.
	{
		Tag: "dialog", Kind: tree.KindMacro,
		Body: Required, Cond: Optional, Leadin: true,
		Flow: tree.FlowStructured,
		Options: []OptionSpec{
			{Tag: "choice", Placement: Repeatable, Required: true},
			{Tag: "timeout", Placement: Last},
		},
	},
	{
		Tag: "props", Kind: tree.KindMacro,
		Body: Required, Container: "location",
		Flow: tree.FlowStructured,
		Options: []OptionSpec{
			{Tag: "prop", Placement: Repeatable, Required: true},
		},
	},
	{
		Tag: "cast", Kind: tree.KindMacro,
		Body: Required, Container: "location",
		Flow: tree.FlowStructured,
		Options: []OptionSpec{
			{Tag: "actor", Placement: Repeatable, Required: true},
		},
	},

}

// Inline-link shapes, the brace namespace. The parser produces these from
// brace delimiters; their shapes drive the verifier's domain checks.
var defaultLinkShapes = []*Shape{
	{
		Tag: "item", Kind: tree.KindItemLink,
		ID: Required, InlineText: Optional,
		Flow: tree.FlowInline,
	},
	{
		Tag: "fixed-item", Kind: tree.KindFixedItemLink,
		ID: Required, InlineText: Optional,
		Flow: tree.FlowInline,
	},
	{
		Tag: "scenery", Kind: tree.KindSceneryLink,
		ID: Required, InlineText: Optional,
		Flow:            tree.FlowInline,
		LinkEntityTypes: SceneryLinkOwners,
	},
	{
		Tag: "npc", Kind: tree.KindNpcLink,
		ID: Required, InlineText: Optional,
		Flow:            tree.FlowInline,
		LinkEntityTypes: NpcLinkOwners,
	},
	{
		Tag: "hotlink", Kind: tree.KindHotlink,
		ID: Required, InlineText: Optional,
		Flow: tree.FlowInline,
	},
	{
		Tag: "tostring", Kind: tree.KindToString,
		ID: Required, InlineText: Forbidden,
		Flow: tree.FlowInline,
	},
}

// Option descriptors, keyed by parent tag. Option tags live in their own
// namespace: "prop" under "props" does not collide with any macro tag.
var defaultOptionShapes = map[string][]*Shape{
	"dialog": {
		{
			Tag: "choice", Kind: tree.KindOption,
			InlineText: Required, Cond: Optional, Body: Optional,
			Flow: tree.FlowInline,
		},
		{
			Tag: "timeout", Kind: tree.KindOption,
			Settings: Required, Body: Optional,
			Flow:     tree.FlowInline,
			Defaults: map[string]any{"duration": float64(10)},
		},
	},
	"props": {
		{
			Tag: "prop", Kind: tree.KindOption,
			ID: Required, Body: Required,
			Flow: tree.FlowInline,
		},
	},
	"cast": {
		{
			Tag: "actor", Kind: tree.KindOption,
			ID: Required, Body: Required,
			Flow: tree.FlowInline,
		},
	},
}

// Implicit shapes for nodes the author never tags: free text runs and
// structural newlines. They live outside the registry, so the tag namespace
// stays closed, but give the parser's node factory a shape to verify
// against like every other node.
var (
	TextShape = &Shape{
		Tag: "#text", Kind: tree.KindText,
		Flow: tree.FlowInline,
	}
	NewlineShape = &Shape{
		Tag: "#newline", Kind: tree.KindNewline,
		Flow: tree.FlowInline,
	}
)

var defaultRegistry = NewRegistry(defaultShapes, defaultLinkShapes, defaultOptionShapes)

// Default returns the compiled-in grammar registry.
func Default() *Registry { return defaultRegistry }
