package symtab

import (
	"machlink/internal/files"
)

// AddDylib installs an import from a dynamic library without dispatching
// on an existing variant. For producers that have already proven the name
// fresh; the manifest driver feeds dylib exports through ResolveDylib.
func (t *Table) AddDylib(name string, file files.ID, isWeakDef, isTlv bool) *Symbol {
	s, _ := t.insert(name, file)
	t.installDylib(s, file, isWeakDef, RefUnreferenced, isTlv)
	s.mu.Unlock()
	return s
}

// ResolveDylib resolves a dylib import against the existing slot. The
// import claims the slot when the slot is an Undefined, a weaker
// DylibSymbol, or a dynamic lookup being upgraded to a real dylib; a
// Defined keeps the slot but may be marked as overriding a weak def.
// The observed refState survives the replacement.
func (t *Table) ResolveDylib(name string, file files.ID, isWeakDef, isTlv bool) *Symbol {
	s, wasInserted := t.insert(name, file)
	defer s.mu.Unlock()

	refState := RefUnreferenced
	if !wasInserted {
		switch s.body.kind {
		case KindDefined:
			if isWeakDef && s.body.flags&FlagWeakDef == 0 {
				s.body.flags |= FlagOverridesWeakDef
			}
		case KindUndefined, KindDylib:
			refState = s.body.refState
		}
	}

	isDynamicLookup := !file.IsValid()
	if wasInserted || s.body.kind == KindUndefined ||
		(s.body.kind == KindDylib &&
			((!isWeakDef && s.body.flags&FlagWeakDef != 0) ||
				(!isDynamicLookup && !s.body.file.IsValid()))) {
		t.unreferenceDylib(s)
		t.installDylib(s, file, isWeakDef, refState, isTlv)
	}
	return s
}

// AddDynamicLookup resolves name to a load-time dynamic lookup: a
// DylibSymbol with no backing dylib.
func (t *Table) AddDynamicLookup(name string) *Symbol {
	return t.ResolveDylib(name, files.None, false, false)
}
