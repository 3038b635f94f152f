package symtab

import (
	"machlink/internal/files"
)

// AddLazyArchive registers a name an archive member could provide. An
// already-pending reference demands the member immediately; a referenced
// weak dylib import does too, while an unreferenced one yields the slot
// so a later strong reference can pull the member.
func (t *Table) AddLazyArchive(name string, archive files.ID, cookie uint64) *Symbol {
	s, wasInserted := t.insert(name, archive)
	if wasInserted {
		t.installLazy(s, KindLazyArchive, archive, cookie)
		s.mu.Unlock()
		return s
	}

	switch s.body.kind {
	case KindUndefined:
		s.mu.Unlock()
		t.fetchArchive(archive, cookie)
		return s
	case KindDylib:
		if s.body.flags&FlagWeakDef != 0 {
			if s.body.refState != RefUnreferenced {
				s.mu.Unlock()
				t.fetchArchive(archive, cookie)
				return s
			}
			t.installLazy(s, KindLazyArchive, archive, cookie)
		}
	}
	s.mu.Unlock()
	return s
}

// AddLazyObject mirrors AddLazyArchive for lazy object files.
func (t *Table) AddLazyObject(name string, file files.ID) *Symbol {
	s, wasInserted := t.insert(name, file)
	if wasInserted {
		t.installLazy(s, KindLazyObject, file, 0)
		s.mu.Unlock()
		return s
	}

	switch s.body.kind {
	case KindUndefined:
		s.mu.Unlock()
		t.extractLazy(file, name)
		return s
	case KindDylib:
		if s.body.flags&FlagWeakDef != 0 {
			if s.body.refState != RefUnreferenced {
				s.mu.Unlock()
				t.extractLazy(file, name)
				return s
			}
			t.installLazy(s, KindLazyObject, file, 0)
		}
	}
	s.mu.Unlock()
	return s
}
