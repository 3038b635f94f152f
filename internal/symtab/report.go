package symtab

import (
	"fmt"

	"machlink/internal/config"
	"machlink/internal/diag"
)

// maxUndefinedReferences bounds the "referenced by" lines per symbol.
const maxUndefinedReferences = 3

// ReportPendingUndefinedSymbols flushes the undefined pool in first-seen
// order. The spell corrector runs for the first two symbols only; the
// Levenshtein scan is O(name length * alphabet) and diagnostics past the
// first few rarely get read. Idempotent: the pool clears after emission.
func (t *Table) ReportPendingUndefinedSymbols(r diag.Reporter) {
	for i, s := range t.undefs.order {
		t.reportUndefined(r, s, t.undefs.refs[s], i < 2)
	}
	t.undefs.clear()
}

func (t *Table) reportUndefined(r diag.Reporter, s *Symbol, refs *undefRefs, correctSpelling bool) {
	msg := "undefined symbol"
	if t.cfg.ArchMultiple {
		msg += " for arch " + t.cfg.ArchName()
	}
	msg += ": " + s.Name()

	sev := diag.SevError
	if t.cfg.UndefinedTreatment == config.UndefinedWarning {
		sev = diag.SevWarning
	}
	d := diag.New(sev, diag.ResolveUndefinedSymbol, msg).WithSymbol(s.Name())

	shown := 0
	for _, loc := range refs.otherRefs {
		if shown >= maxUndefinedReferences {
			break
		}
		d = d.WithNote("referenced by " + loc)
		shown++
	}
	for _, site := range refs.codeRefs {
		if shown >= maxUndefinedReferences {
			break
		}
		if src := t.srcLoc(site.isec, site.offset); src != "" {
			d = d.WithNote("referenced by " + src)
			d = d.WithNote("              " + site.isec.Location(t.files, site.offset))
		} else {
			d = d.WithNote("referenced by " + site.isec.Location(t.files, site.offset))
		}
		shown++
	}
	if total := len(refs.otherRefs) + len(refs.codeRefs); total > shown {
		d = d.WithNote(fmt.Sprintf("referenced %d more times", total-shown))
	}

	if correctSpelling {
		preHint, postHint := ": ", ""
		if cand := t.alternativeSpelling(s, &preHint, &postHint); cand != nil {
			d = d.WithNote("did you mean" + preHint + cand.name + postHint)
			if cand.file.IsValid() {
				d = d.WithNote("defined in: " + t.fileName(cand.file))
			}
		}
	}

	r.Report(d)
}
