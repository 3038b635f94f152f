package symtab

import (
	"strings"

	"github.com/ianlancetaylor/demangle"

	"machlink/internal/files"
)

// spellCandidate is a suggested alternative spelling: either a global
// symbol or a file-local defined name of the referencing object.
type spellCandidate struct {
	name string
	file files.ID
}

// alternativeSpelling suggests a replacement for an undefined name. The
// search order follows the reference linker: Levenshtein-distance-1
// candidates (plus the common adjacent transposition), a case-insensitive
// match, and finally the Itanium demangler looking for a missing
// extern "C". A candidate qualifies only if it exists as something other
// than an Undefined.
func (t *Table) alternativeSpelling(s *Symbol, preHint, postHint *string) *spellCandidate {
	var refFile *files.File
	if f := t.files.Get(s.File()); f != nil && f.Kind == files.KindObj {
		refFile = f
	}

	local := make(map[string]files.ID)
	if refFile != nil {
		for _, n := range refFile.Locals {
			if _, ok := local[n]; !ok {
				local[n] = refFile.ID
			}
		}
	}

	suggest := func(newName string) *spellCandidate {
		if id, ok := local[newName]; ok {
			return &spellCandidate{name: newName, file: id}
		}
		if cand := t.Find(newName); cand != nil && cand.Kind() != KindUndefined {
			return &spellCandidate{name: cand.Name(), file: cand.File()}
		}
		return nil
	}

	// Enumerate all strings of edit distance 1 (and adjacent
	// transpositions, distance 2 but common) over the charset '0'..'z'.
	name := s.Name()
	for i := 0; i <= len(name); i++ {
		// Insert a character before name[i].
		newName := []byte(name[:i] + "0" + name[i:])
		for c := byte('0'); c <= 'z'; c++ {
			newName[i] = c
			if cand := suggest(string(newName)); cand != nil {
				return cand
			}
		}
		if i == len(name) {
			break
		}

		// Substitute name[i].
		newName = []byte(name)
		for c := byte('0'); c <= 'z'; c++ {
			newName[i] = c
			if cand := suggest(string(newName)); cand != nil {
				return cand
			}
		}

		// Transpose name[i] and name[i+1].
		if i+1 < len(name) {
			newName = []byte(name)
			newName[i], newName[i+1] = name[i+1], name[i]
			if cand := suggest(string(newName)); cand != nil {
				return cand
			}
		}

		// Delete name[i].
		if cand := suggest(name[:i] + name[i+1:]); cand != nil {
			return cand
		}
	}

	// Case mismatch, e.g. Foo vs FOO.
	if refFile != nil {
		for _, n := range refFile.Locals {
			if strings.EqualFold(name, n) {
				return &spellCandidate{name: n, file: refFile.ID}
			}
		}
	}
	var caseHit *spellCandidate
	t.pool.forEach(func(sym *Symbol) bool {
		if sym.body.kind != KindUndefined && sym.body.kind != KindInvalid &&
			strings.EqualFold(name, sym.name) {
			caseHit = &spellCandidate{name: sym.name, file: sym.body.file}
			return false
		}
		return true
	})
	if caseHit != nil {
		return caseHit
	}

	// The reference may be mangled while the definition is not; or the
	// other way around. Either way, suggest the missing extern "C".
	if strings.HasPrefix(name, "__Z") {
		if fn, ok := demangledFunctionName(name); ok {
			if cand := suggest("_" + fn); cand != nil {
				*preHint = `: extern "C" `
				return cand
			}
		}
	} else {
		ref := strings.TrimPrefix(name, "_")
		var hit *spellCandidate
		if refFile != nil {
			for _, n := range refFile.Locals {
				if canSuggestExternCForCXX(ref, n) {
					hit = &spellCandidate{name: n, file: refFile.ID}
					break
				}
			}
		}
		if hit == nil {
			t.pool.forEach(func(sym *Symbol) bool {
				if sym.body.kind == KindUndefined || sym.body.kind == KindInvalid {
					return true
				}
				if canSuggestExternCForCXX(ref, sym.name) {
					hit = &spellCandidate{name: sym.name, file: sym.body.file}
					return false
				}
				return true
			})
		}
		if hit != nil {
			*preHint = " to declare "
			*postHint = ` as extern "C"?`
			return hit
		}
	}

	return nil
}

// canSuggestExternCForCXX reports whether def is a mangled function whose
// undecorated name matches the reference.
func canSuggestExternCForCXX(ref, def string) bool {
	fn, ok := demangledFunctionName(def)
	return ok && ref == fn
}

// demangledFunctionName demangles an Itanium-mangled Mach-O name
// ("__Z...", one underscore more than the ELF convention) down to its
// bare function name.
func demangledFunctionName(name string) (string, bool) {
	mangled := name
	if strings.HasPrefix(mangled, "__Z") {
		mangled = mangled[1:]
	}
	if !strings.HasPrefix(mangled, "_Z") {
		return "", false
	}
	fn, err := demangle.ToString(mangled, demangle.NoParams, demangle.NoTemplateParams, demangle.NoClones)
	if err != nil {
		return "", false
	}
	return fn, true
}
