package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ZontarLives/tsp-compiler/core/diag"
	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/core/tree"
	"github.com/ZontarLives/tsp-compiler/runtime/lexer"
	"github.com/ZontarLives/tsp-compiler/runtime/verify"
)

func parseSource(t *testing.T, src string) ([]*tree.Node, *diag.List, error) {
	t.Helper()
	var seq uint64
	diags := &diag.List{}
	env := &Env{
		Grammar:  grammar.Default(),
		Verifier: verify.New(grammar.Default()),
		Refs:     tree.NewReferenceMap(),
		Globals:  tree.NewGlobalTable(),
		Diags:    diags,
		NextSeq:  func() uint64 { seq++; return seq },
	}
	entities, err := ParseUnit("test.tsp", lexer.Tokenize(src), env)
	return entities, diags, err
}

func mustParse(t *testing.T, src string) ([]*tree.Node, *diag.List) {
	t.Helper()
	entities, diags, err := parseSource(t, src)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	return entities, diags
}

func childTags(n *tree.Node, kind tree.Kind) []string {
	var out []string
	for _, c := range n.Body {
		if c.Kind == kind {
			out = append(out, c.Tag)
		}
	}
	return out
}

func TestParseLocationEntity(t *testing.T) {
	entities, diags := mustParse(t, `[location kitchen (dark) !noauto]
A small kitchen.
[/location]`)

	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	loc := entities[0]

	if diff := cmp.Diff("location", loc.Tag); diff != "" {
		t.Fatalf("tag mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("kitchen", loc.ID); diff != "" {
		t.Fatalf("id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"dark"}, loc.Attributes); diff != "" {
		t.Fatalf("attributes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"noauto"}, loc.Flags); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}

	wantStates := map[string]any{"visited": false, "entries": float64(0), "dark": true}
	if diff := cmp.Diff(wantStates, loc.States); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}

	// Body: newline, text, newline.
	var kinds []tree.Kind
	for _, c := range loc.Body {
		kinds = append(kinds, c.Kind)
	}
	want := []tree.Kind{tree.KindNewline, tree.KindText, tree.KindNewline}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("body kinds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("A small kitchen.", loc.Body[1].Text); diff != "" {
		t.Fatalf("text mismatch (-want +got):\n%s", diff)
	}
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Records())
	}
}

func TestForwardReferenceResolves(t *testing.T) {
	_, diags := mustParse(t, `[location hall]
[play theme]
[/location]
[audio theme : volume=2]`)

	if diags.Len() != 0 {
		t.Fatalf("forward reference must resolve cleanly, got: %v", diags.Records())
	}
}

func TestDuplicateEntityIDIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
x
[/location]
[item hall]`)

	if err == nil {
		t.Fatal("expected duplicate-id error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if !strings.Contains(pe.Message, "duplicate entity id") {
		t.Fatalf("unexpected message: %s", pe.Message)
	}
	if !strings.Contains(pe.Message, "test.tsp:1") {
		t.Fatalf("message must name the prior site: %s", pe.Message)
	}
}

func TestSingularSiblingKeepsLast(t *testing.T) {
	entities, diags := mustParse(t, `[location hall]
[onenter]first[/onenter]
[onenter]second[/onenter]
[/location]`)

	loc := entities[0]
	var kept []*tree.Node
	for _, c := range loc.Body {
		if c.Kind == tree.KindMacro && c.Tag == "onenter" {
			kept = append(kept, c)
		}
	}
	if len(kept) != 1 {
		t.Fatalf("expected exactly one onenter, got %d", len(kept))
	}
	if diff := cmp.Diff("second", kept[0].FirstText().Text); diff != "" {
		t.Fatalf("keep-last violated (-want +got):\n%s", diff)
	}

	records := diags.Records()
	if len(records) != 1 || records[0].Severity != diag.Warning {
		t.Fatalf("expected exactly one warning, got %v", records)
	}
	if !strings.Contains(records[0].Message, "duplicate [onenter]") {
		t.Fatalf("unexpected warning: %s", records[0].Message)
	}
}

func TestOptionPlacementViolationIsNonFatal(t *testing.T) {
	entities, diags := mustParse(t, `[location hall]
[dialog]
<timeout : duration=5>Too slow.
<choice "North">You head north.
[/dialog]
[/location]`)

	var dialog *tree.Node
	for _, c := range entities[0].Body {
		if c.Tag == "dialog" {
			dialog = c
		}
	}
	if dialog == nil {
		t.Fatal("dialog must still be constructed")
	}
	if diff := cmp.Diff([]string{"timeout", "choice"}, childTags(dialog, tree.KindOption)); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	var placement []string
	for _, r := range diags.Records() {
		if r.Severity == diag.Error {
			placement = append(placement, r.Message)
		}
	}
	if len(placement) != 1 {
		t.Fatalf("expected exactly one placement error, got %v", placement)
	}
	if !strings.Contains(placement[0], "<timeout> must be the last option of [dialog]") {
		t.Fatalf("unexpected error: %s", placement[0])
	}
}

func TestContainerViolationNamesBothSides(t *testing.T) {
	_, diags := mustParse(t, `[npc guard]
[props]
<prop sword>An old sword.
[/props]
[/npc]`)

	var found bool
	for _, r := range diags.Records() {
		if r.Severity != diag.Error {
			continue
		}
		if strings.Contains(r.Message, "[props]") && strings.Contains(r.Message, `"guard"`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected container error naming [props] and guard, got %v", diags.Records())
	}
}

func TestUndefinedTagIsFatalWithSuggestion(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
[sa "hi"]
[/location]`)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if !strings.Contains(pe.Message, `undefined command tag "sa"`) {
		t.Fatalf("unexpected message: %s", pe.Message)
	}
	if len(pe.Suggestions) == 0 || pe.Suggestions[0] != "say" {
		t.Fatalf("expected say suggestion, got %v", pe.Suggestions)
	}
}

func TestMismatchedEndTagIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
some text
[/item]`)

	if err == nil || !strings.Contains(err.Error(), "end tag [/item] does not close [location]") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMissingEndTagIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
some text`)

	if err == nil || !strings.Contains(err.Error(), "missing end tag [/location]") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOptionOutsideStructuredMacroIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
<choice "nope">
[/location]`)

	if err == nil || !strings.Contains(err.Error(), "not valid outside a structured macro") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnregisteredOptionTagIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
[dialog]
<answer "what">
[/dialog]
[/location]`)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if !strings.Contains(pe.Message, "<answer> is not valid for [dialog]") {
		t.Fatalf("unexpected message: %s", pe.Message)
	}
}

func TestAssignmentMacro(t *testing.T) {
	entities, _ := mustParse(t, `[variable score]
[location hall]
[set score += 10]
[/location]`)

	var set *tree.Node
	for _, c := range entities[1].Body {
		if c.Kind == tree.KindAssignment {
			set = c
		}
	}
	if set == nil {
		t.Fatal("set node missing")
	}
	if diff := cmp.Diff("score", set.ID); diff != "" {
		t.Fatalf("id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("+=", set.Op); diff != "" {
		t.Fatalf("op mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("10", set.RVal); diff != "" {
		t.Fatalf("rval mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidRValIsNonFatal(t *testing.T) {
	_, diags := mustParse(t, `[variable mood]
[location hall]
[set mood = "free text"]
[/location]`)

	var found bool
	for _, r := range diags.Records() {
		if r.Severity == diag.Error && strings.Contains(r.Message, "invalid value") {
			found = true
		}
	}
	if !found {
		t.Fatalf("free text rval must be rejected, got %v", diags.Records())
	}
}

func TestSettingsCoercion(t *testing.T) {
	entities, _ := mustParse(t, `[location hall]
[say "Hi" : volume=3, blocking]
[/location]`)

	var say *tree.Node
	for _, c := range entities[0].Body {
		if c.Tag == "say" {
			say = c
		}
	}
	if say == nil {
		t.Fatal("say node missing")
	}
	want := map[string]any{"volume": float64(3), "blocking": true}
	if diff := cmp.Diff(want, say.Settings); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Hi", say.InlineText); diff != "" {
		t.Fatalf("inline text mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicateSettingKeepsLast(t *testing.T) {
	entities, diags := mustParse(t, `[location hall]
[say "Hi" : volume=1, volume=4]
[/location]`)

	var say *tree.Node
	for _, c := range entities[0].Body {
		if c.Tag == "say" {
			say = c
		}
	}
	if diff := cmp.Diff(float64(4), say.Settings["volume"]); diff != "" {
		t.Fatalf("keep-last violated (-want +got):\n%s", diff)
	}
	records := diags.Records()
	if len(records) != 1 || !strings.Contains(records[0].Message, `setting "volume"`) {
		t.Fatalf("expected duplicate-setting warning, got %v", records)
	}
}

func TestConditionChainIsFlat(t *testing.T) {
	entities, _ := mustParse(t, `[location hall (dark)]
[if (dark == true and entries > 2)]It is pitch black.[/if]
[/location]`)

	var ifNode *tree.Node
	for _, c := range entities[0].Body {
		if c.Tag == "if" {
			ifNode = c
		}
	}
	want := []tree.Condition{
		{LVal: "dark", Op: "==", RVal: "true", Connector: "and"},
		{LVal: "entries", Op: ">", RVal: "2"},
	}
	if diff := cmp.Diff(want, ifNode.Cond); diff != "" {
		t.Fatalf("condition chain mismatch (-want +got):\n%s", diff)
	}
}

func TestPropBeforeInlineLinkStillMatches(t *testing.T) {
	_, diags := mustParse(t, `[location hall]
[props]
<prop window>Layers of dust.
[/props]
A {scenery window "grimy window"} looks north.
[/location]`)

	for _, r := range diags.Records() {
		if strings.Contains(r.Message, "will be ignored") {
			t.Fatalf("prop must match a later inline link: %s", r.Message)
		}
	}
}

func TestPropWithoutInlineLinkWarns(t *testing.T) {
	_, diags := mustParse(t, `[location hall]
[props]
<prop ghost>Not referenced anywhere.
[/props]
[/location]`)

	records := diags.Records()
	var found bool
	for _, r := range records {
		if r.Severity == diag.Warning && strings.Contains(r.Message, `prop "ghost"`) &&
			strings.Contains(r.Message, "will be ignored") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ignored-prop warning, got %v", records)
	}
}

func TestSceneryLinkOutsideAllowedOwner(t *testing.T) {
	_, diags := mustParse(t, `[npc guard]
He guards a {scenery gate}.
[/npc]`)

	var found bool
	for _, r := range diags.Records() {
		if r.Severity == diag.Error && strings.Contains(r.Message, "{scenery} links are not allowed inside a npc entity") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected link-owner error, got %v", diags.Records())
	}
}

func TestMissingRequiredIDIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location]
x
[/location]`)

	if err == nil {
		t.Fatal("expected fatal error for missing id")
	}
}

func TestForbiddenInlineTextIsStripped(t *testing.T) {
	entities, diags := mustParse(t, `[location hall]
[pause "wait" : duration=2]
[/location]`)

	var pause *tree.Node
	for _, c := range entities[0].Body {
		if c.Tag == "pause" {
			pause = c
		}
	}
	if pause.InlineText != "" {
		t.Fatal("forbidden inline text must be stripped")
	}
	records := diags.Records()
	var found bool
	for _, r := range records {
		if r.Severity == diag.Warning && strings.Contains(r.Message, "does not accept inline text") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stripped-property warning, got %v", records)
	}
}

func TestNestedEntityDeclarationIsFatal(t *testing.T) {
	_, _, err := parseSource(t, `[location hall]
[item key]
[/location]`)

	if err == nil || !strings.Contains(err.Error(), "only allowed at top level") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDialogLeadinAndOptionBodies(t *testing.T) {
	entities, diags := mustParse(t, `[location hall]
[dialog]
The guard eyes you.
<choice "Fight">You raise your fists.
<choice "Flee">You run away.
[/dialog]
[/location]`)

	var dialog *tree.Node
	for _, c := range entities[0].Body {
		if c.Tag == "dialog" {
			dialog = c
		}
	}
	opts := childTags(dialog, tree.KindOption)
	if diff := cmp.Diff([]string{"choice", "choice"}, opts); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	var choices []*tree.Node
	for _, c := range dialog.Body {
		if c.Kind == tree.KindOption {
			choices = append(choices, c)
		}
	}
	if diff := cmp.Diff("Fight", choices[0].InlineText); diff != "" {
		t.Fatalf("choice display mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("You raise your fists.", choices[0].FirstText().Text); diff != "" {
		t.Fatalf("choice body mismatch (-want +got):\n%s", diff)
	}
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Records())
	}
}

func TestMalformedInputDoesNotHang(t *testing.T) {
	inputs := []string{
		"[location hall] [ [/location]",
		"[location hall]\n[say\n[/location]",
		"[location hall]\n{scenery\n[/location]",
		"[dialog]",
	}
	for _, src := range inputs {
		if _, _, err := parseSource(t, src); err == nil {
			t.Fatalf("input %q: expected an error", src)
		}
	}
}
