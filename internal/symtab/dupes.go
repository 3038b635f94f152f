package symtab

import (
	"machlink/internal/diag"
	"machlink/internal/files"
	"machlink/internal/sections"
	"machlink/internal/trace"
)

// duplicateDiag captures both sides of a strong/strong collision at the
// moment it happened; rendering waits until reporting.
type duplicateDiag struct {
	loc1, file1 string
	loc2, file2 string
	sym         *Symbol
}

// recordDuplicate defers a duplicate-definition diagnostic. Caller holds
// the slot lock; the pool has its own mutex because parallel ingestion
// appends from many workers.
func (t *Table) recordDuplicate(s *Symbol, file files.ID, isec *sections.InputSection, value uint64) {
	d := duplicateDiag{
		loc1:  t.srcLoc(s.body.isec, s.body.value),
		file1: t.fileName(s.body.file),
		loc2:  t.srcLoc(isec, value),
		file2: t.fileName(file),
		sym:   s,
	}
	trace.Point(t.tracer, trace.ScopeSymbol, "duplicate:"+s.name, d.file2)

	t.dupMu.Lock()
	t.dups = append(t.dups, d)
	t.dupMu.Unlock()
}

// ReportPendingDuplicateSymbols flushes the duplicate pool. With
// dead-strip-duplicates configured, collisions on symbols the liveness
// query rejects stay silent. Idempotent: the pool clears after emission.
func (t *Table) ReportPendingDuplicateSymbols(r diag.Reporter) {
	t.dupMu.Lock()
	dups := t.dups
	t.dups = nil
	t.dupMu.Unlock()

	for _, dup := range dups {
		if t.cfg.DeadStripDuplicates && !t.isLive(dup.sym) {
			continue
		}
		d := diag.NewWarning(diag.ResolveDuplicateSymbol, "duplicate symbol: "+dup.sym.Name()).
			WithSymbol(dup.sym.Name())
		d = appendDefinedIn(d, dup.loc1, dup.file1)
		d = appendDefinedIn(d, dup.loc2, dup.file2)
		r.Report(d)
	}
}

// appendDefinedIn emits the ">>> defined in" note pair the way the
// reference linker prints it: the source location first when known, then
// the input file on an aligned continuation line.
func appendDefinedIn(d diag.Diagnostic, loc, file string) diag.Diagnostic {
	if loc != "" {
		d = d.WithNote("defined in " + loc)
		return d.WithNote("           " + file)
	}
	return d.WithNote("defined in " + file)
}
