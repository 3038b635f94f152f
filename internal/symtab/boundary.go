package symtab

import (
	"strings"
)

type boundary uint8

const (
	boundaryStart boundary = iota
	boundaryEnd
)

// createBoundarySymbol makes the private-extern placeholder whose value
// layout fills in later; it never lands in the output symtab.
func (t *Table) createBoundarySymbol(name string) *Symbol {
	return t.AddSynthetic(name, nil, ^uint64(0), true, false, false)
}

// handleSectionBoundary pins a section$start$/section$end$ symbol to the
// output section for SEG$SECT, synthesizing an empty live input section
// when no real input created one.
func (t *Table) handleSectionBoundary(name, segSect string, which boundary) {
	segName, sectName, _ := strings.Cut(segSect, "$")

	osec := t.ext.FindOutputSection(segName, sectName)
	if osec == nil {
		isec := t.ext.MakeSyntheticSection(segName, sectName)
		// Boundary recovery runs after liveness marking; the synthetic
		// section must be live for an output section to materialize.
		isec.Live = true
		osec = t.ext.OutputSectionFor(isec)
	}

	b := t.createBoundarySymbol(name)
	if which == boundaryStart {
		osec.StartSymbols = append(osec.StartSymbols, b)
	} else {
		osec.EndSymbols = append(osec.EndSymbols, b)
	}
}

// handleSegmentBoundary pins a segment$start$/segment$end$ symbol to the
// named output segment, created on demand.
func (t *Table) handleSegmentBoundary(name, segName string, which boundary) {
	seg := t.ext.OutputSegment(segName)
	b := t.createBoundarySymbol(name)
	if which == boundaryStart {
		seg.StartSymbols = append(seg.StartSymbols, b)
	} else {
		seg.EndSymbols = append(seg.EndSymbols, b)
	}
}
