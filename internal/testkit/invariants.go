package testkit

import (
	"fmt"

	"machlink/internal/symtab"
)

// CheckTableInvariants runs the structural invariants every resolved
// table must satisfy:
// 1) every name maps to exactly one slot, and Find returns that slot
// 2) no slot is left with an invalid discriminant
// 3) refState only appears on variants that carry references
func CheckTableInvariants(t *symtab.Table) error {
	if t == nil {
		return fmt.Errorf("nil table")
	}
	seen := make(map[string]*symtab.Symbol)
	for _, s := range t.Symbols() {
		if s.Kind() == symtab.KindInvalid {
			return fmt.Errorf("slot %q has no installed variant", s.Name())
		}
		if prev, ok := seen[s.Name()]; ok && prev != s {
			return fmt.Errorf("name %q maps to two slots", s.Name())
		}
		seen[s.Name()] = s

		if got := t.Find(s.Name()); got != s {
			return fmt.Errorf("Find(%q) returned a different slot", s.Name())
		}

		switch s.Kind() {
		case symtab.KindDefined, symtab.KindCommon, symtab.KindLazyArchive, symtab.KindLazyObject:
			if s.RefState() != symtab.RefUnreferenced {
				return fmt.Errorf("%s %q carries a refState", s.Kind(), s.Name())
			}
		}
	}
	return nil
}

// CheckSlotIdentity verifies that repeated resolutions of name kept the
// slot address stable.
func CheckSlotIdentity(t *symtab.Table, name string, want *symtab.Symbol) error {
	if got := t.Find(name); got != want {
		return fmt.Errorf("slot for %q moved: %p != %p", name, got, want)
	}
	return nil
}
