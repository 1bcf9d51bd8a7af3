// Package compiler ties the pipeline together: one Session per compilation,
// holding every piece of cross-unit state explicitly. Nothing in the
// pipeline touches process globals, so two sessions never interfere and a
// rebuild starts genuinely clean.
package compiler

import (
	"github.com/ZontarLives/tsp-compiler/core/diag"
	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/invariant"
	"github.com/ZontarLives/tsp-compiler/core/tree"
	"github.com/ZontarLives/tsp-compiler/runtime/emit"
	"github.com/ZontarLives/tsp-compiler/runtime/lexer"
	"github.com/ZontarLives/tsp-compiler/runtime/normalize"
	"github.com/ZontarLives/tsp-compiler/runtime/parser"
	"github.com/ZontarLives/tsp-compiler/runtime/verify"
)

// Session is one whole-program compilation. Units are compiled one at a time
// in caller order; Finalize runs the whole-program checks, normalizes, and
// builds the output document.
type Session struct {
	grammar  *grammar.Registry
	verifier *verify.Verifier

	refs    *tree.ReferenceMap
	globals *tree.GlobalTable
	diags   *diag.List

	seq      uint64
	entities []*tree.Node
	units    []string

	finalized bool
}

// UnitResult reports the outcome of one source unit. A fatal error leaves
// Err set and Entities empty; the session itself stays usable for the
// remaining units.
type UnitResult struct {
	Unit     string
	Entities []*tree.Node
	Err      error
}

// NewSession builds a session over the given grammar. Pass grammar.Default()
// for the built-in language.
func NewSession(g *grammar.Registry) *Session {
	invariant.NotNil(g, "grammar registry")
	return &Session{
		grammar:  g,
		verifier: verify.New(g),
		refs:     tree.NewReferenceMap(),
		globals:  tree.NewGlobalTable(),
		diags:    &diag.List{},
	}
}

func (s *Session) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// CompileUnit lexes and parses one source unit. Fatal errors abort this unit
// only and are returned in the result, not raised; non-fatal diagnostics
// accumulate on the session.
func (s *Session) CompileUnit(unit, source string) UnitResult {
	invariant.Precondition(!s.finalized, "session already finalized")

	s.units = append(s.units, unit)
	tokens := lexer.Tokenize(source)

	env := &parser.Env{
		Grammar:  s.grammar,
		Verifier: s.verifier,
		Refs:     s.refs,
		Globals:  s.globals,
		Diags:    s.diags,
		NextSeq:  s.nextSeq,
	}
	entities, err := parser.ParseUnit(unit, tokens, env)
	if err != nil {
		return UnitResult{Unit: unit, Err: err}
	}

	s.entities = append(s.entities, entities...)
	return UnitResult{Unit: unit, Entities: entities}
}

// Finalize runs whole-program verification over everything compiled so far,
// normalizes the surviving trees, and builds the emitted document. The
// session accepts no further units afterwards.
func (s *Session) Finalize() (*emit.Document, *tree.Program) {
	invariant.Precondition(!s.finalized, "session already finalized")
	s.finalized = true

	prog := &tree.Program{
		Entities: s.entities,
		Refs:     s.refs,
		Globals:  s.globals,
	}
	s.verifier.Program(prog, s.diags)

	nz := normalize.New(s.nextSeq, s.diags)
	nz.Program(prog)

	return emit.BuildDocument(prog), prog
}

// Diagnostics returns the accumulated non-fatal records, sorted by unit then
// line. Safe to call before and after Finalize.
func (s *Session) Diagnostics() []diag.Record {
	return s.diags.Records()
}

// HasErrors reports whether any accumulated diagnostic is error severity.
func (s *Session) HasErrors() bool {
	return s.diags.HasErrors()
}

// Units returns the unit names in compilation order.
func (s *Session) Units() []string {
	return append([]string(nil), s.units...)
}
