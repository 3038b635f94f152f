package symtab

import (
	"strings"

	"machlink/internal/config"
	"machlink/internal/sections"
)

// recoverUndefined tries to find a definition for an unresolved
// reference. Returns true if one was found and no diagnostics are needed.
func (t *Table) recoverUndefined(s *Symbol) bool {
	name := s.Name()
	if rest, ok := strings.CutPrefix(name, "section$start$"); ok {
		t.handleSectionBoundary(name, rest, boundaryStart)
		return true
	}
	if rest, ok := strings.CutPrefix(name, "section$end$"); ok {
		t.handleSectionBoundary(name, rest, boundaryEnd)
		return true
	}
	if rest, ok := strings.CutPrefix(name, "segment$start$"); ok {
		t.handleSegmentBoundary(name, rest, boundaryStart)
		return true
	}
	if rest, ok := strings.CutPrefix(name, "segment$end$"); ok {
		t.handleSegmentBoundary(name, rest, boundaryEnd)
		return true
	}

	// Dtrace probe sites are rewritten during relocation; nothing to
	// resolve here.
	if strings.HasPrefix(name, "___dtrace_") {
		return true
	}

	// -U name
	if t.cfg.IsExplicitDynamicLookup(name) {
		t.AddDynamicLookup(name)
		return true
	}

	// -undefined dynamic_lookup | suppress
	if t.cfg.UndefinedTreatment == config.UndefinedDynamicLookup ||
		t.cfg.UndefinedTreatment == config.UndefinedSuppress {
		t.AddDynamicLookup(name)
		return true
	}

	// -undefined warning installs the dynamic lookup but still wants the
	// diagnostic, so it does not count as recovered.
	if t.cfg.UndefinedTreatment == config.UndefinedWarning {
		t.AddDynamicLookup(name)
	}
	return false
}

type refSite struct {
	isec   *sections.InputSection
	offset uint64
}

type undefRefs struct {
	codeRefs  []refSite
	otherRefs []string
}

// undefMap keeps undefined diagnostics in first-report order. Not
// goroutine-safe: the reference scan is a single-threaded phase.
type undefMap struct {
	order []*Symbol
	refs  map[*Symbol]*undefRefs
}

func (m *undefMap) get(s *Symbol) *undefRefs {
	if r, ok := m.refs[s]; ok {
		return r
	}
	r := &undefRefs{}
	m.refs[s] = r
	m.order = append(m.order, s)
	return r
}

func (m *undefMap) clear() {
	m.order = nil
	m.refs = make(map[*Symbol]*undefRefs)
}

// TreatUndefinedSymbol decides the fate of a still-undefined reference
// found outside section data (a command-line entry point, an export list).
// Unrecovered references queue for ReportPendingUndefinedSymbols.
func (t *Table) TreatUndefinedSymbol(s *Symbol, source string) {
	if t.recoverUndefined(s) {
		return
	}
	r := t.undefs.get(s)
	r.otherRefs = append(r.otherRefs, source)
}

// TreatUndefinedSymbolAt is TreatUndefinedSymbol for references located in
// section data.
func (t *Table) TreatUndefinedSymbolAt(s *Symbol, isec *sections.InputSection, offset uint64) {
	if t.recoverUndefined(s) {
		return
	}
	r := t.undefs.get(s)
	r.codeRefs = append(r.codeRefs, refSite{isec: isec, offset: offset})
}
