// Package grammar is the closed, compiled-in command grammar: a pure lookup
// table mapping every command tag to a shape descriptor. Shapes are data, not
// behavior; both the parser and the verifier query them. The grammar is
// closed: an undefined tag is a fatal error, never a silent acceptance.
package grammar

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ZontarLives/tsp-compiler/core/tree"
)

// Presence is a per-property composition rule.
type Presence uint8

const (
	Forbidden Presence = iota
	Optional
	Required
)

// Placement constrains where an option may appear in its parent's body.
type Placement uint8

const (
	Repeatable Placement = iota
	First
	Last
)

func (p Placement) String() string {
	switch p {
	case First:
		return "first"
	case Last:
		return "last"
	default:
		return "repeatable"
	}
}

// SingularScope limits how often a tag may occur.
type SingularScope uint8

const (
	NotSingular SingularScope = iota
	SingularPerParent // at most once among direct siblings; keep-last heals
	SingularPerProgram
)

// OptionSpec declares one member of a structured macro's option set.
type OptionSpec struct {
	Tag       string
	Placement Placement
	Required  bool
}

// Shape is the descriptor for one command tag. Pure data: presence rules,
// flow classification, containment and singularity constraints, the nested
// option set for structured macros, and coercion defaults for settings.
type Shape struct {
	Tag  string
	Kind tree.Kind

	ID         Presence
	Attributes Presence
	Flags      Presence
	Body       Presence
	InlineText Presence
	Cond       Presence
	Settings   Presence

	// Assignment shapes parse `id OP rval` and never carry a body.
	Assignment bool
	RVal       Presence

	Flow      tree.Flow
	Container string // required immediate parent tag; "" means any
	Singular  SingularScope

	// Structured macros only.
	Options []OptionSpec
	Leadin  bool // free-form content allowed before the first option

	// Defaults drives settings-value coercion: a bool default coerces the
	// setting to bool, a number default to float64.
	Defaults map[string]any

	// Entity tags only.
	EntityType bool
	States     map[string]any

	// Inline-link tags only: entity types the link may appear inside.
	// Empty means any.
	LinkEntityTypes []string
}

// Structured reports whether the shape declares a nested option set.
func (s *Shape) Structured() bool { return len(s.Options) > 0 }

// OptionSpecFor returns the OptionSpec for tag, if registered.
func (s *Shape) OptionSpecFor(tag string) (OptionSpec, bool) {
	for _, o := range s.Options {
		if o.Tag == tag {
			return o, true
		}
	}
	return OptionSpec{}, false
}

// UndefinedTagError is the fatal error for a tag the grammar does not define.
// It carries fuzzy "did you mean" candidates.
type UndefinedTagError struct {
	Tag         string
	Suggestions []string
}

func (e *UndefinedTagError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("undefined command tag %q (did you mean %q?)", e.Tag, e.Suggestions[0])
	}
	return fmt.Sprintf("undefined command tag %q", e.Tag)
}

// Registry is the grammar lookup surface. The option sub-table is flattened
// once at construction so option membership queries are O(1). Inline-link
// tags live in their own namespace: the link tags "item" and "npc" shadow
// the entity tags of the same name, and the parser knows from the brace
// delimiter which namespace it wants.
type Registry struct {
	shapes  map[string]*Shape
	links   map[string]*Shape
	options map[string]map[string]*Shape // parent tag -> option tag -> shape
	tags    []string                     // sorted, for suggestions
}

// NewRegistry builds a registry from shape, link-shape, and option-shape
// tables. optionShapes holds the full descriptors of option tags, keyed by
// the parent tag they belong to.
func NewRegistry(shapes, linkShapes []*Shape, optionShapes map[string][]*Shape) *Registry {
	r := &Registry{
		shapes:  make(map[string]*Shape, len(shapes)),
		links:   make(map[string]*Shape, len(linkShapes)),
		options: make(map[string]map[string]*Shape),
	}
	for _, s := range shapes {
		r.shapes[s.Tag] = s
		r.tags = append(r.tags, s.Tag)
	}
	for _, s := range linkShapes {
		r.links[s.Tag] = s
	}
	for parent, opts := range optionShapes {
		idx := make(map[string]*Shape, len(opts))
		for _, o := range opts {
			idx[o.Tag] = o
		}
		r.options[parent] = idx
	}
	sort.Strings(r.tags)
	return r
}

// ShapeOf returns the descriptor for tag. Requesting an undefined tag is an
// immediate fatal error.
func (r *Registry) ShapeOf(tag string) (*Shape, error) {
	if s, ok := r.shapes[tag]; ok {
		return s, nil
	}
	return nil, &UndefinedTagError{Tag: tag, Suggestions: r.closestTags(tag)}
}

// OptionShapeOf returns the descriptor of optionTag as registered under
// parentTag. An option tag that is not registered for the parent is an error;
// the parser treats that as fatal when the token is already option-shaped.
func (r *Registry) OptionShapeOf(parentTag, optionTag string) (*Shape, error) {
	if idx, ok := r.options[parentTag]; ok {
		if s, ok := idx[optionTag]; ok {
			return s, nil
		}
	}
	return nil, &UndefinedTagError{Tag: optionTag, Suggestions: r.closestOptionTags(parentTag, optionTag)}
}

// LinkShapeOf resolves an inline-link form tag (the brace namespace).
func (r *Registry) LinkShapeOf(tag string) (*Shape, error) {
	if s, ok := r.links[tag]; ok {
		return s, nil
	}
	return nil, &UndefinedTagError{Tag: tag, Suggestions: r.closestLinkTags(tag)}
}

// IsOptionOf reports whether optionTag is registered for parentTag.
func (r *Registry) IsOptionOf(parentTag, optionTag string) bool {
	idx, ok := r.options[parentTag]
	if !ok {
		return false
	}
	_, ok = idx[optionTag]
	return ok
}

// EntityTags returns the sorted entity-type tags.
func (r *Registry) EntityTags() []string {
	var out []string
	for _, tag := range r.tags {
		if r.shapes[tag].EntityType {
			out = append(out, tag)
		}
	}
	return out
}

// closestTags finds fuzzy matches for an unknown tag, best first.
func (r *Registry) closestTags(target string) []string {
	ranks := fuzzy.RankFindFold(target, r.tags)
	sort.Sort(ranks)
	var out []string
	for i, rank := range ranks {
		if i == 3 {
			break
		}
		out = append(out, rank.Target)
	}
	return out
}

func (r *Registry) closestLinkTags(target string) []string {
	candidates := make([]string, 0, len(r.links))
	for tag := range r.links {
		candidates = append(candidates, tag)
	}
	sort.Strings(candidates)
	ranks := fuzzy.RankFindFold(target, candidates)
	sort.Sort(ranks)
	var out []string
	for i, rank := range ranks {
		if i == 3 {
			break
		}
		out = append(out, rank.Target)
	}
	return out
}

func (r *Registry) closestOptionTags(parentTag, target string) []string {
	idx, ok := r.options[parentTag]
	if !ok {
		return nil
	}
	candidates := make([]string, 0, len(idx))
	for tag := range idx {
		candidates = append(candidates, tag)
	}
	sort.Strings(candidates)
	ranks := fuzzy.RankFindFold(target, candidates)
	sort.Sort(ranks)
	var out []string
	for i, rank := range ranks {
		if i == 3 {
			break
		}
		out = append(out, rank.Target)
	}
	return out
}
