package tree

import (
	"fmt"
	"sort"
	"strings"
)

// ReferenceMap maps entity ids to their shallow, body-less header nodes.
// It is built once per source unit before structural parsing (which is what
// makes forward references resolve) and is additive across units: a duplicate
// id in the same unit or across units is a hard error.
//
// Keys are lower-cased; entity ids are case-insensitive.
type ReferenceMap struct {
	entries map[string]*Node
	order   []string
}

// NewReferenceMap returns an empty map.
func NewReferenceMap() *ReferenceMap {
	return &ReferenceMap{entries: make(map[string]*Node)}
}

// Declare registers the shallow header node for id. Duplicate ids are a hard
// error naming the earlier declaration site.
func (m *ReferenceMap) Declare(id string, n *Node) error {
	key := strings.ToLower(id)
	if prev, ok := m.entries[key]; ok {
		return fmt.Errorf("duplicate entity id %q (previously declared at %s:%d)",
			id, prev.Unit, prev.Line)
	}
	m.entries[key] = n
	m.order = append(m.order, key)
	return nil
}

// Resolve looks up id, case-insensitively.
func (m *ReferenceMap) Resolve(id string) (*Node, bool) {
	n, ok := m.entries[strings.ToLower(id)]
	return n, ok
}

// Len returns the number of declared entities.
func (m *ReferenceMap) Len() int { return len(m.entries) }

// IDs returns the declared ids in declaration order.
func (m *ReferenceMap) IDs() []string {
	return append([]string(nil), m.order...)
}

// Site is one usage location of a deferred identifier.
type Site struct {
	Unit  string
	Line  int
	Owner string // id of the enclosing entity at the usage site
}

// GlobalRecord is the deferred-resolution record for an identifier that did
// not resolve against the ReferenceMap when first seen. It survives until the
// whole-program verification pass; if it still does not resolve there, every
// usage site is reported.
type GlobalRecord struct {
	Name  string
	First Site
	Uses  []Site
}

// GlobalTable accumulates GlobalRecords across all source units.
type GlobalTable struct {
	records map[string]*GlobalRecord
}

// NewGlobalTable returns an empty table.
func NewGlobalTable() *GlobalTable {
	return &GlobalTable{records: make(map[string]*GlobalRecord)}
}

// Use records a usage site for name, creating the record lazily.
func (t *GlobalTable) Use(name string, site Site) {
	key := strings.ToLower(name)
	rec, ok := t.records[key]
	if !ok {
		rec = &GlobalRecord{Name: name, First: site}
		t.records[key] = rec
	}
	rec.Uses = append(rec.Uses, site)
}

// Records returns all records sorted by first-seen site (unit, then line).
func (t *GlobalTable) Records() []*GlobalRecord {
	out := make([]*GlobalRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].First.Unit != out[j].First.Unit {
			return out[i].First.Unit < out[j].First.Unit
		}
		if out[i].First.Line != out[j].First.Line {
			return out[i].First.Line < out[j].First.Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Program is the whole-program view handed to the final verification pass
// and the emitter: every parsed entity in declaration order plus the shared
// resolution tables.
type Program struct {
	Entities []*Node
	Refs     *ReferenceMap
	Globals  *GlobalTable
}
